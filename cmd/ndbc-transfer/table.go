package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// renderSummary formats a run summary as a status line, a per-feed table and
// a failure table.
func renderSummary(s domain.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %s\n", s.RunID, statusLabel(s.Status))
	if !s.WindowEnd.IsZero() {
		fmt.Fprintf(&b, "Window: %s to %s\n", s.WindowStart.Format(time.RFC3339), s.WindowEnd.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Records: %d  Files written: %d  Files transferred: %d\n",
		s.RecordsBuilt, s.FilesWritten, s.FilesTransferred)

	if len(s.Feeds) > 0 {
		rows := make([][]string, 0, len(s.Feeds))
		for _, f := range s.Feeds {
			file := f.File
			if file == "" {
				file = "-"
			}
			rows = append(rows, []string{f.Station, f.Sensor, strconv.Itoa(f.Readings), strconv.Itoa(f.Records), file})
		}
		b.WriteString("\n")
		b.WriteString(renderTable(
			[]string{"Station", "Sensor", "Readings", "Records", "File"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		))
		b.WriteString("\n")
	}

	if len(s.Failures) > 0 {
		failures := append([]domain.Failure(nil), s.Failures...)
		sort.SliceStable(failures, func(i, j int) bool { return failures[i].Kind < failures[j].Kind })
		rows := make([][]string, 0, len(failures))
		for _, f := range failures {
			where := "-"
			if parts := nonEmpty(f.Station, f.Sensor, f.File); len(parts) > 0 {
				where = strings.Join(parts, " ")
			}
			rows = append(rows, []string{string(f.Kind), where, f.Message})
		}
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"Failure", "Where", "Message"}, rows, nil))
		b.WriteString("\n")
	}
	return b.String()
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
