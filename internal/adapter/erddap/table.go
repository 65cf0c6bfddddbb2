package erddap

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

// ERDDAP JSON table response types.

type envelope struct {
	Table *table `json:"table"`
}

type table struct {
	ColumnNames []string `json:"columnNames"`
	Rows        [][]any  `json:"rows"`
}

func decodeTable(r io.Reader) (*table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode table: %w", domain.ErrUpstreamFormat, err)
	}
	if env.Table == nil || len(env.Table.ColumnNames) == 0 {
		return nil, fmt.Errorf("%w: response is not an ERDDAP table", domain.ErrUpstreamFormat)
	}
	for i, row := range env.Table.Rows {
		if len(row) != len(env.Table.ColumnNames) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d",
				domain.ErrUpstreamFormat, i, len(row), len(env.Table.ColumnNames))
		}
	}
	return env.Table, nil
}

func (t *table) column(name string) int {
	return slices.Index(t.ColumnNames, name)
}

func (t *table) timeIndex() int {
	return t.column("time")
}

// variableNames reads an /info/<dataset>/index.json table.
func (t *table) variableNames() ([]string, error) {
	rowType, varName := t.column("Row Type"), t.column("Variable Name")
	if rowType < 0 || varName < 0 {
		return nil, fmt.Errorf("%w: info table lacks Row Type/Variable Name columns", domain.ErrUpstreamFormat)
	}
	var names []string
	for _, row := range t.Rows {
		if kind, _ := row[rowType].(string); kind != "variable" {
			continue
		}
		if name, _ := row[varName].(string); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// readings flattens the table into one reading per (row, channel). Rows
// outside window are skipped.
func (t *table) readings(stationID string, window domain.TimeWindow) iter.Seq2[domain.SensorReading, error] {
	ti := t.timeIndex()
	return func(yield func(domain.SensorReading, error) bool) {
		for i, row := range t.Rows {
			ts, err := parseTime(row[ti])
			if err != nil {
				yield(domain.SensorReading{}, fmt.Errorf("%w: row %d: %w", domain.ErrUpstreamFormat, i, err))
				return
			}
			if !window.Contains(ts) {
				continue
			}
			ts = ts.Truncate(time.Minute)

			for j, channel := range t.ColumnNames {
				if j == ti {
					continue
				}
				m, err := parseCell(row[j])
				if err != nil {
					yield(domain.SensorReading{}, fmt.Errorf("%w: row %d column %s: %w", domain.ErrUpstreamFormat, i, channel, err))
					return
				}
				if !yield(domain.SensorReading{
					Station:     stationID,
					Channel:     channel,
					Time:        ts,
					Measurement: m,
				}, nil) {
					return
				}
			}
		}
	}
}

func parseTime(cell any) (time.Time, error) {
	switch v := cell.(type) {
	case string:
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
		if err != nil {
			return time.Time{}, fmt.Errorf("parse time %q: %w", v, err)
		}
		return ts.UTC(), nil
	case json.Number:
		secs, err := v.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("parse epoch time %q: %w", v, err)
		}
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected time cell %v", cell)
	}
}

// parseCell converts a data cell. Text goes through domain.ParseMeasurement,
// so null, empty, NaN and non-numeric text are absent for that channel only.
// Any other JSON type is a format error.
func parseCell(cell any) (domain.Measurement, error) {
	switch v := cell.(type) {
	case nil:
		return domain.Absent(), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return domain.Measurement{}, fmt.Errorf("parse number %q: %w", v, err)
		}
		return domain.Present(f), nil
	case string:
		return domain.ParseMeasurement(v), nil
	default:
		return domain.Measurement{}, fmt.Errorf("unexpected cell %v", cell)
	}
}
