package domain

import (
	"sort"
	"time"
)

// Row is one timestamp's worth of channel values for a feed.
type Row struct {
	Time   time.Time
	Values map[string]Measurement
}

type binAccumulator struct {
	sum   float64
	count int
	first float64
}

// Resample groups readings into bins of the given interval, labelled by bin
// start, and averages each channel over its present samples. Channels seen in
// a bin with no present sample stay absent. An interval <= 0 groups by minute.
// Rows are returned in time order.
func Resample(readings []SensorReading, interval time.Duration) []Row {
	if interval <= 0 {
		interval = time.Minute
	}

	bins := make(map[time.Time]map[string]*binAccumulator)
	for _, r := range readings {
		label := r.Time.UTC().Truncate(interval)
		chans, ok := bins[label]
		if !ok {
			chans = make(map[string]*binAccumulator)
			bins[label] = chans
		}
		acc, ok := chans[r.Channel]
		if !ok {
			acc = &binAccumulator{}
			chans[r.Channel] = acc
		}
		if m := r.Measurement; m.Present {
			if acc.count == 0 {
				acc.first = m.Value
			}
			acc.sum += m.Value
			acc.count++
		}
	}

	rows := make([]Row, 0, len(bins))
	for label, chans := range bins {
		row := Row{Time: label, Values: make(map[string]Measurement, len(chans))}
		for ch, acc := range chans {
			switch acc.count {
			case 0:
				row.Values[ch] = Absent()
			case 1:
				row.Values[ch] = Present(acc.first)
			default:
				row.Values[ch] = Present(round2(acc.sum / float64(acc.count)))
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })
	return rows
}
