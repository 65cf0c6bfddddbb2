package domain

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   ChannelValue
		want string
	}{
		{ChannelValue{Value: 182}, "182"},
		{ChannelValue{Value: 11.1}, "11.1"},
		{ChannelValue{Value: 0}, "0"},
		{ChannelValue{Value: -0.25}, "-0.25"},
		{ChannelValue{Value: 1013.25}, "1013.25"},
		{ChannelValue{Value: 9999}, "9999"},
		{MissingChannel("x"), "-9999"},
		{ChannelValue{Value: MissingSentinel}, "-9999"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestRenderMessage_EscapesStation(t *testing.T) {
	var buf bytes.Buffer
	RenderMessage(&buf, ExchangeMessage{
		Station:  "A&B",
		Time:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Channels: []ChannelValue{{Tag: "wspd1", Value: 1}},
	})
	assert.Contains(t, buf.String(), "<station>A&amp;B</station>")
	assert.Contains(t, buf.String(), "<date>01/02/2024 03:04:05</date>")
}

func sampleMessages() []ExchangeMessage {
	return []ExchangeMessage{
		{
			Station: "41X14",
			Time:    time.Date(2008, 3, 1, 1, 0, 0, 0, time.UTC),
			Channels: []ChannelValue{
				MissingChannel("baro1"),
				{Tag: "wspd1", Value: 11.1},
				{Tag: "wdir1", Value: 182},
			},
		},
		{
			Station: "41X14",
			Time:    time.Date(2008, 3, 1, 1, 10, 0, 0, time.UTC),
			Channels: []ChannelValue{
				{Tag: "baro1", Value: 1013.25},
				{Tag: "wspd1", Value: 0},
				{Tag: "wdir1", Value: -12.5},
			},
		},
	}
}

func TestRenderParse_RoundTrip(t *testing.T) {
	want := sampleMessages()

	got, err := ParseMessages(bytes.NewReader(RenderMessages(want)))
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderMessages_Deterministic(t *testing.T) {
	first := RenderMessages(sampleMessages())
	for range 5 {
		assert.Equal(t, first, RenderMessages(sampleMessages()))
	}
}

func TestRenderMessages_Empty(t *testing.T) {
	assert.Empty(t, RenderMessages(nil))
}

func TestParseMessages_CustomSentinel(t *testing.T) {
	doc := `<message>
<station>41X14</station>
<date>03/01/2008 01:00:00</date>
<missing>-999</missing>
<met>
    <atmp1>-999</atmp1>
    <wspd1>4.5</wspd1>
</met>
</message>`

	msgs, err := ParseMessages(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	atmp, ok := msgs[0].Value("atmp1")
	require.True(t, ok)
	assert.True(t, atmp.Missing)
	assert.Equal(t, MissingSentinel, atmp.Value)
}

func TestParseMessages_Errors(t *testing.T) {
	tests := map[string]string{
		"bad date":      "<message><station>X</station><date>2008-03-01</date><met/></message>",
		"bad value":     "<message><station>X</station><date>03/01/2008 01:00:00</date><met><wspd1>fast</wspd1></met></message>",
		"wrong root":    "<report/>",
		"truncated xml": "<message><station>X</station>",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMessages(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}
