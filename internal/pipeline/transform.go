package pipeline

import (
	"log/slog"
	"time"

	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

// Transformer turns one feed's readings into exchange messages: bin means,
// derived channels, tag mapping, missing-value policy and record building.
type Transformer struct {
	mapper   *domain.Mapper
	interval time.Duration
	logger   *slog.Logger
}

// NewTransformer creates a Transformer. An interval <= 0 keeps minute bins.
func NewTransformer(mapper *domain.Mapper, interval time.Duration, logger *slog.Logger) *Transformer {
	return &Transformer{
		mapper:   mapper,
		interval: interval,
		logger:   logger,
	}
}

// Transform returns the feed's messages in time order. Bins labelled before
// window.Start hold only the tail of a bin and are dropped. Unmapped channels
// are dropped with one warning per channel.
func (t *Transformer) Transform(station domain.Station, feed domain.Feed, window domain.TimeWindow, readings []domain.SensorReading) []domain.ExchangeMessage {
	rows := domain.Resample(readings, t.interval)
	builder := domain.NewRecordBuilder(t.mapper.Tags(feed.Sensor), feed.Constants)
	warned := make(map[string]bool)

	msgs := make([]domain.ExchangeMessage, 0, len(rows))
	for _, row := range rows {
		if row.Time.Before(window.Start) {
			continue
		}
		derived := domain.DeriveChannels(row.Values, station.SensorHeight)

		values := make(map[string]domain.ChannelValue, len(derived))
		for channel, m := range derived {
			tags, err := t.mapper.Lookup(feed.Sensor, channel)
			if err != nil {
				if !warned[channel] {
					warned[channel] = true
					t.logger.Warn("dropping unmapped channel",
						"station", station.WMO,
						"sensor", feed.Sensor,
						"channel", channel,
						"error", err,
					)
				}
				continue
			}
			for _, tag := range tags {
				values[tag] = domain.ApplyMissingPolicy(tag, m)
			}
		}

		if msg, ok := builder.Build(station, row.Time, values); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}
