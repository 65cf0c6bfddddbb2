package domain

import (
	"sort"
	"time"
)

// ExchangeMessage is one NDBC record: a station's channel values at one time.
type ExchangeMessage struct {
	Station  string
	Time     time.Time
	Channels []ChannelValue
}

// Value returns the channel for tag.
func (m ExchangeMessage) Value(tag string) (ChannelValue, bool) {
	for _, c := range m.Channels {
		if c.Tag == tag {
			return c, true
		}
	}
	return ChannelValue{}, false
}

// RecordBuilder assembles messages for one feed. Tags is the feed's full
// destination schema; tags without a value at a timestamp render as missing.
type RecordBuilder struct {
	tags      []string
	constants []Constant
}

// NewRecordBuilder creates a builder for the given feed schema and constants.
func NewRecordBuilder(tags []string, constants []Constant) *RecordBuilder {
	return &RecordBuilder{
		tags:      append([]string(nil), tags...),
		constants: append([]Constant(nil), constants...),
	}
}

// Build produces the message for station at ts. It returns false when the
// record carries no mapped channel or when every mapped channel is missing;
// such records are never transmitted.
func (b *RecordBuilder) Build(station Station, ts time.Time, values map[string]ChannelValue) (ExchangeMessage, bool) {
	seen := make(map[string]bool, len(b.tags)+len(values))
	channels := make([]ChannelValue, 0, len(b.tags)+len(values)+len(b.constants))
	mapped, valid := 0, 0

	add := func(tag string, cv ChannelValue, ok bool) {
		seen[tag] = true
		if !ok {
			channels = append(channels, MissingChannel(tag))
			return
		}
		mapped++
		if !cv.Missing {
			valid++
		}
		cv.Tag = tag
		channels = append(channels, cv)
	}

	for _, tag := range b.tags {
		cv, ok := values[tag]
		add(tag, cv, ok)
	}
	extra := make([]string, 0)
	for tag := range values {
		if !seen[tag] {
			extra = append(extra, tag)
		}
	}
	sort.Strings(extra)
	for _, tag := range extra {
		add(tag, values[tag], true)
	}

	if mapped == 0 || valid == 0 {
		return ExchangeMessage{}, false
	}

	for _, c := range b.constants {
		if seen[c.Tag] {
			continue
		}
		seen[c.Tag] = true
		channels = append(channels, ApplyMissingPolicy(c.Tag, Present(c.Value)))
	}

	sort.SliceStable(channels, func(i, j int) bool {
		return tagLess(channels[i].Tag, channels[j].Tag)
	})

	return ExchangeMessage{
		Station:  station.WMO,
		Time:     ts.UTC().Truncate(time.Second),
		Channels: channels,
	}, true
}
