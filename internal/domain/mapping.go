package domain

import (
	"fmt"
	"slices"
	"sort"
)

// Sensor types.
const (
	SensorMETBK1 = "METBK1"
	SensorMETBK2 = "METBK2"
	SensorWAVSS  = "WAVSS"
)

// Upstream channel names.
const (
	ChannelAirTemperature        = "air_temperature"
	ChannelBarometricPressure    = "barometric_pressure"
	ChannelSeaLevelPressure      = "sea_level_pressure"
	ChannelRelativeHumidity      = "relative_humidity"
	ChannelLongwaveIrradiance    = "longwave_irradiance"
	ChannelShortwaveIrradiance   = "shortwave_irradiance"
	ChannelEastwardWind          = "eastward_wind_velocity"
	ChannelNorthwardWind         = "northward_wind_velocity"
	ChannelWindSpeed             = "wind_speed"
	ChannelWindDirection         = "wind_direction"
	ChannelSeaSurfaceTemperature = "sea_surface_temperature"
	ChannelSalinity              = "sea_water_practical_salinity"
	ChannelWaveHeight            = "significant_wave_height"
	ChannelWavePeriod            = "significant_wave_period"
	ChannelWaveDirection         = "mean_wave_direction"
)

// SchemaOrder is the NDBC declared field order for channels inside <met>.
var SchemaOrder = []string{
	"atmp1", "atmp2", "baro1", "baro2", "lwrad", "rrh", "srad1",
	"wspd1", "wspd2", "wdir1", "wdir2", "wtmp1", "wtmp2",
	"tp001", "tp002", "sp001", "sp002", "dompd", "mwdir", "wvhgt",
	"dp001", "dp002", "fm64iii", "fm64k1", "fm64k2",
}

var schemaIndex = func() map[string]int {
	idx := make(map[string]int, len(SchemaOrder))
	for i, tag := range SchemaOrder {
		idx[tag] = i
	}
	return idx
}()

// SortTags orders tags by SchemaOrder; tags outside the schema follow in
// lexical order.
func SortTags(tags []string) {
	sort.SliceStable(tags, func(i, j int) bool {
		return tagLess(tags[i], tags[j])
	})
}

func tagLess(a, b string) bool {
	ia, okA := schemaIndex[a]
	ib, okB := schemaIndex[b]
	switch {
	case okA && okB:
		return ia < ib
	case okA:
		return true
	case okB:
		return false
	default:
		return a < b
	}
}

// Mapping routes one upstream channel to one or more destination tags.
type Mapping struct {
	Channel string
	Tags    []string
}

// SensorTable is the static mapping for one sensor type. Inputs lists
// channels consumed by derivation that must be requested but are never mapped.
type SensorTable struct {
	Mappings []Mapping
	Inputs   []string
}

// Mapper resolves upstream channels to destination tags per sensor type.
type Mapper struct {
	tables map[string]SensorTable
}

// NewMapper builds a Mapper from explicit tables.
func NewMapper(tables map[string]SensorTable) *Mapper {
	return &Mapper{tables: tables}
}

// DefaultMapper returns the NDBC mapping for METBK and WAVSS sensors.
func DefaultMapper() *Mapper {
	return NewMapper(map[string]SensorTable{
		SensorMETBK1: metbkTable("1"),
		SensorMETBK2: metbkTable("2"),
		SensorWAVSS: {
			Mappings: []Mapping{
				{Channel: ChannelWavePeriod, Tags: []string{"dompd"}},
				{Channel: ChannelWaveDirection, Tags: []string{"mwdir"}},
				{Channel: ChannelWaveHeight, Tags: []string{"wvhgt"}},
			},
		},
	})
}

// metbkTable builds the table for METBK instrument n. Only the first package
// reports radiation and humidity. Surface temperature is also the first point
// of the temperature profile, hence two tags.
func metbkTable(n string) SensorTable {
	t := SensorTable{
		Mappings: []Mapping{
			{Channel: ChannelAirTemperature, Tags: []string{"atmp" + n}},
			{Channel: ChannelSeaLevelPressure, Tags: []string{"baro" + n}},
			{Channel: ChannelWindSpeed, Tags: []string{"wspd" + n}},
			{Channel: ChannelWindDirection, Tags: []string{"wdir" + n}},
			{Channel: ChannelSeaSurfaceTemperature, Tags: []string{"wtmp" + n, "tp00" + n}},
			{Channel: ChannelSalinity, Tags: []string{"sp00" + n}},
		},
		Inputs: []string{ChannelBarometricPressure, ChannelEastwardWind, ChannelNorthwardWind},
	}
	if n == "1" {
		t.Mappings = append(t.Mappings,
			Mapping{Channel: ChannelLongwaveIrradiance, Tags: []string{"lwrad"}},
			Mapping{Channel: ChannelRelativeHumidity, Tags: []string{"rrh"}},
			Mapping{Channel: ChannelShortwaveIrradiance, Tags: []string{"srad1"}},
		)
	}
	return t
}

// Known reports whether sensorType has a mapping table.
func (m *Mapper) Known(sensorType string) bool {
	_, ok := m.tables[sensorType]
	return ok
}

// Lookup returns the destination tags for channel, or ErrUnmappedChannel.
func (m *Mapper) Lookup(sensorType, channel string) ([]string, error) {
	t, ok := m.tables[sensorType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown sensor type %q", ErrUnmappedChannel, sensorType)
	}
	for _, mp := range t.Mappings {
		if mp.Channel == channel {
			return mp.Tags, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no mapping for %q", ErrUnmappedChannel, sensorType, channel)
}

// Tags returns every destination tag of sensorType in schema order.
func (m *Mapper) Tags(sensorType string) []string {
	t := m.tables[sensorType]
	var tags []string
	for _, mp := range t.Mappings {
		for _, tag := range mp.Tags {
			if !slices.Contains(tags, tag) {
				tags = append(tags, tag)
			}
		}
	}
	SortTags(tags)
	return tags
}

// Channels returns the upstream variables to request for sensorType: mapped
// channels plus derivation inputs, sorted.
func (m *Mapper) Channels(sensorType string) []string {
	t := m.tables[sensorType]
	chans := make([]string, 0, len(t.Mappings)+len(t.Inputs))
	for _, mp := range t.Mappings {
		chans = append(chans, mp.Channel)
	}
	chans = append(chans, t.Inputs...)
	sort.Strings(chans)
	return slices.Compact(chans)
}
