package webvtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsapp/kai/pkg/encoderdelay"
	"github.com/stemsapp/kai/pkg/karaoke"
)

func TestEncodeDecodeRoundTripWithWords(t *testing.T) {
	comp := encoderdelay.New(1105, 44100)
	lines := []karaoke.LyricLine{
		{
			SingerID: "A",
			StartSec: 12.345,
			EndSec:   15.678,
			Text:     "hi there",
			Words: []karaoke.Word{
				{StartSec: 12.345, EndSec: 13.0, Text: "hi"},
				{StartSec: 13.0, EndSec: 15.678, Text: "there"},
			},
		},
		{
			SingerID: "B",
			StartSec: 20,
			EndSec:   22,
			Text:     "backup line",
			Disabled: true,
		},
	}

	doc := Encode(lines, comp)
	got, errs := Decode(doc, comp)
	require.Empty(t, errs)
	require.Len(t, got, 2)

	assert.Equal(t, "A", got[0].SingerID)
	assert.InDelta(t, 12.345, got[0].StartSec, 1e-4)
	assert.InDelta(t, 15.678, got[0].EndSec, 1e-4)
	require.Len(t, got[0].Words, 2)
	assert.Equal(t, "hi", got[0].Words[0].Text)
	assert.InDelta(t, 12.345, got[0].Words[0].StartSec, 1e-4)
	assert.InDelta(t, 13.0, got[0].Words[0].EndSec, 1e-4)
	assert.Equal(t, "there", got[0].Words[1].Text)

	assert.Equal(t, "B", got[1].SingerID)
	assert.True(t, got[1].Disabled)
	assert.Equal(t, "backup line", got[1].Text)
}

func TestDecodeDropsMalformedCueAndReports(t *testing.T) {
	doc := "WEBVTT\n\n" +
		"00:00:01.000 --> not-a-timestamp\n<v A>hello\n\n" +
		"00:00:02.000 --> 00:00:03.000\n<v B>world\n"
	comp := encoderdelay.New(0, 44100)

	lines, errs := Decode(doc, comp)
	require.Len(t, errs, 1)
	require.Len(t, lines, 1)
	assert.Equal(t, "B", lines[0].SingerID)
}

func TestFormatParseTimestampRoundTrip(t *testing.T) {
	ts := formatTimestamp(3725.125)
	assert.Equal(t, "01:02:05.125", ts)
	sec, err := parseTimestamp(ts)
	require.NoError(t, err)
	assert.InDelta(t, 3725.125, sec, 1e-6)
}
