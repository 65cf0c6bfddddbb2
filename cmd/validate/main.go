// Command validate checks NDBC XML exchange files before they are handed to
// the destination: parseability, file naming, value range, ordering and
// byte-exact canonical rendering.
//
// Usage:
//
//	go run ./cmd/validate 44078_METBK1_20240501150000.xml 44078_WAVSS_20240501150000.xml
//	go run ./cmd/validate -dir /tmp/ndbc-transfer/keep
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

var fileNamePattern = regexp.MustCompile(`^([A-Za-z0-9]+)_([A-Z0-9]+)_(\d{14})\.xml$`)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// exchangeFile is one parsed file.
type exchangeFile struct {
	path     string
	raw      []byte
	messages []domain.ExchangeMessage
}

func main() {
	dir := flag.String("dir", "", "validate every .xml file in this directory")
	flag.Parse()

	paths := flag.Args()
	if *dir != "" {
		matches, err := filepath.Glob(filepath.Join(*dir, "*.xml"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(1)
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(paths, os.Stdout))
}

func run(paths []string, out io.Writer) int {
	fmt.Fprintln(out, "=== NDBC Exchange File Validation ===")
	fmt.Fprintln(out)

	parse := &phase{name: "Parse"}
	files := loadFiles(paths, parse)

	phases := []*phase{
		parse,
		validateNaming(files, domain.DefaultMapper()),
		validateRange(files),
		validateOrdering(files),
		validateCanonical(files),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	records := 0
	for _, f := range files {
		records += len(f.messages)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Files: %d, messages: %d\n", len(paths), records)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// loadFiles parses every path. Files that fail to parse are left out of the
// later phases.
func loadFiles(paths []string, p *phase) []exchangeFile {
	files := make([]exchangeFile, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			p.errorf("%s: %v", path, err)
			continue
		}
		msgs, err := domain.ParseMessages(bytes.NewReader(raw))
		if err != nil {
			p.errorf("%s: %v", filepath.Base(path), err)
			continue
		}
		if len(msgs) == 0 {
			p.errorf("%s: no <message> blocks", filepath.Base(path))
			continue
		}
		files = append(files, exchangeFile{path: path, raw: raw, messages: msgs})
	}
	return files
}

// ── Phases ──

func validateNaming(files []exchangeFile, mapper *domain.Mapper) *phase {
	p := &phase{name: "File naming"}
	for _, f := range files {
		name := filepath.Base(f.path)
		m := fileNamePattern.FindStringSubmatch(name)
		if m == nil {
			p.errorf("%s: want <WMO>_<SENSOR>_<YYYYMMDDHHMMSS>.xml", name)
			continue
		}
		wmo, sensor := m[1], m[2]
		if !mapper.Known(sensor) {
			p.errorf("%s: unknown sensor type %q", name, sensor)
		}
		for i, msg := range f.messages {
			if msg.Station != wmo {
				p.errorf("%s: message %d station %q, file is for %q", name, i+1, msg.Station, wmo)
			}
		}
	}
	return p
}

func validateRange(files []exchangeFile) *phase {
	p := &phase{name: "Value range [-9999, 9999]"}
	for _, f := range files {
		name := filepath.Base(f.path)
		for i, msg := range f.messages {
			for _, c := range msg.Channels {
				if c.Missing {
					continue
				}
				if c.Value < domain.MinValue || c.Value > domain.MaxValue {
					p.errorf("%s: message %d <%s> = %v out of range", name, i+1, c.Tag, c.Value)
				}
			}
		}
	}
	return p
}

func validateOrdering(files []exchangeFile) *phase {
	p := &phase{name: "Time and schema ordering"}
	for _, f := range files {
		name := filepath.Base(f.path)
		for i, msg := range f.messages {
			if i > 0 && !msg.Time.After(f.messages[i-1].Time) {
				p.errorf("%s: message %d at %s does not follow %s", name, i+1,
					msg.Time.Format(domain.DateLayout), f.messages[i-1].Time.Format(domain.DateLayout))
			}

			tags := make([]string, len(msg.Channels))
			for j, c := range msg.Channels {
				tags[j] = c.Tag
			}
			sorted := slices.Clone(tags)
			domain.SortTags(sorted)
			if !slices.Equal(tags, sorted) {
				p.errorf("%s: message %d channels %v not in schema order", name, i+1, tags)
			}
			if len(slices.Compact(sorted)) != len(tags) {
				p.errorf("%s: message %d repeats a channel", name, i+1)
			}
		}
	}
	return p
}

// validateCanonical re-renders the parsed messages and requires the file to
// match byte for byte.
func validateCanonical(files []exchangeFile) *phase {
	p := &phase{name: "Canonical rendering"}
	for _, f := range files {
		want := domain.RenderMessages(f.messages)
		if bytes.Equal(want, f.raw) {
			continue
		}
		p.errorf("%s: differs from canonical form at byte %d", filepath.Base(f.path), firstDiff(want, f.raw))
	}
	return p
}

func firstDiff(a, b []byte) int {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
