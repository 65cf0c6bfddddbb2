package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapper_Lookup(t *testing.T) {
	m := DefaultMapper()

	tags, err := m.Lookup(SensorMETBK1, ChannelWindSpeed)
	require.NoError(t, err)
	assert.Equal(t, []string{"wspd1"}, tags)

	tags, err = m.Lookup(SensorMETBK2, ChannelSeaLevelPressure)
	require.NoError(t, err)
	assert.Equal(t, []string{"baro2"}, tags)

	tags, err = m.Lookup(SensorMETBK1, ChannelSeaSurfaceTemperature)
	require.NoError(t, err)
	assert.Equal(t, []string{"wtmp1", "tp001"}, tags)

	tags, err = m.Lookup(SensorWAVSS, ChannelWaveHeight)
	require.NoError(t, err)
	assert.Equal(t, []string{"wvhgt"}, tags)
}

func TestMapper_Lookup_Unmapped(t *testing.T) {
	m := DefaultMapper()

	_, err := m.Lookup(SensorMETBK1, "battery_voltage")
	require.ErrorIs(t, err, ErrUnmappedChannel)

	// Radiation is only reported by the first package.
	_, err = m.Lookup(SensorMETBK2, ChannelShortwaveIrradiance)
	require.ErrorIs(t, err, ErrUnmappedChannel)

	_, err = m.Lookup("CTDBP", ChannelAirTemperature)
	require.ErrorIs(t, err, ErrUnmappedChannel)
	assert.Contains(t, err.Error(), "CTDBP")
}

func TestMapper_TagsInSchemaOrder(t *testing.T) {
	m := DefaultMapper()

	assert.Equal(t,
		[]string{"atmp1", "baro1", "lwrad", "rrh", "srad1", "wspd1", "wdir1", "wtmp1", "tp001", "sp001"},
		m.Tags(SensorMETBK1))
	assert.Equal(t,
		[]string{"atmp2", "baro2", "wspd2", "wdir2", "wtmp2", "tp002", "sp002"},
		m.Tags(SensorMETBK2))
	assert.Equal(t, []string{"dompd", "mwdir", "wvhgt"}, m.Tags(SensorWAVSS))
	assert.Empty(t, m.Tags("unknown"))
}

func TestMapper_ChannelsIncludeDerivationInputs(t *testing.T) {
	chans := DefaultMapper().Channels(SensorMETBK1)

	assert.Contains(t, chans, ChannelEastwardWind)
	assert.Contains(t, chans, ChannelNorthwardWind)
	assert.Contains(t, chans, ChannelBarometricPressure)
	assert.Contains(t, chans, ChannelAirTemperature)
	assert.IsIncreasing(t, chans)
}

func TestSortTags(t *testing.T) {
	tags := []string{"zeta", "wvhgt", "atmp1", "alpha", "fm64k2", "baro1"}
	SortTags(tags)
	assert.Equal(t, []string{"atmp1", "baro1", "wvhgt", "fm64k2", "alpha", "zeta"}, tags)
}
