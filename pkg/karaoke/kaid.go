package karaoke

import (
	"bytes"
	"sort"
	"strings"

	"github.com/pkg/errors"
	json "github.com/segmentio/encoding/json"
)

// KaidVersion is the value written to stems_karaoke_version by this
// package. A decoded document carrying a different version is accepted,
// but the version is not kept on the Song: EncodeKaid always writes
// KaidVersion.
const KaidVersion = "1.0"

type kaidSource struct {
	Track int    `json:"track"`
	ID    string `json:"id"`
	Role  Role   `json:"role"`
}

type kaidPreset struct {
	ID     string             `json:"id"`
	Levels map[string]float64 `json:"levels"`
}

type kaidAudio struct {
	Profile             Profile      `json:"profile"`
	EncoderDelaySamples uint32       `json:"encoder_delay_samples"`
	Sources             []kaidSource `json:"sources"`
	Presets             []kaidPreset `json:"presets"`
}

type kaidTiming struct {
	Reference Reference `json:"reference"`
	OffsetSec float32   `json:"offset_sec"`
}

type kaidSinger struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	GuideTrack int    `json:"guide_track"`
}

type kaidLine struct {
	SingerID   string      `json:"singer_id"`
	Start      float64     `json:"start"`
	End        float64     `json:"end"`
	Text       string      `json:"text"`
	Disabled   bool        `json:"disabled,omitempty"`
	WordTiming [][2]float64 `json:"word_timing,omitempty"`
}

type kaidDoc struct {
	Version string       `json:"stems_karaoke_version"`
	Audio   kaidAudio    `json:"audio"`
	Timing  kaidTiming   `json:"timing"`
	Singers []kaidSinger `json:"singers"`
	Lines   []kaidLine   `json:"lines"`
}

// canonical top-level keys, in the order §4.5 documents them.
var kaidTopLevelKeys = []string{"stems_karaoke_version", "audio", "timing", "singers", "lines"}

// DecodeKaid parses the kaid JSON payload into a Song, preserving any
// top-level keys outside the canonical set in Song.Extra.
func DecodeKaid(data []byte) (*Song, error) {
	var doc kaidDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "karaoke: decode kaid")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "karaoke: decode kaid extras")
	}
	for _, k := range kaidTopLevelKeys {
		delete(raw, k)
	}
	var extra map[string]any
	if len(raw) > 0 {
		extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return nil, errors.Wrapf(err, "karaoke: decode kaid extra key %q", k)
			}
			extra[k] = val
		}
	}

	song := &Song{
		Audio: Audio{
			Profile:             doc.Audio.Profile,
			EncoderDelaySamples: doc.Audio.EncoderDelaySamples,
		},
		Timing:  Timing{Reference: doc.Timing.Reference, OffsetSec: doc.Timing.OffsetSec},
		Extra:   extra,
	}

	for _, s := range doc.Audio.Sources {
		song.Audio.Sources = append(song.Audio.Sources, Source{TrackIndex: s.Track, ID: s.ID, Role: s.Role})
	}
	for _, p := range doc.Audio.Presets {
		song.Audio.Presets = append(song.Audio.Presets, Preset{ID: p.ID, Levels: p.Levels})
	}
	for _, s := range doc.Singers {
		song.Singers = append(song.Singers, Singer{ID: s.ID, DisplayName: s.Name, GuideTrack: s.GuideTrack})
	}
	for _, l := range doc.Lines {
		song.Lines = append(song.Lines, lineFromKaid(l))
	}

	return song, nil
}

// lineFromKaid converts one wire line, deriving per-word absolute times
// and text by zipping word_timing pairs (relative to the line start) with
// the whitespace-split words of Text. A pair with no corresponding word
// (count mismatch) is dropped rather than erroring here; WordOutOfLine and
// friends are reported by Validate, not by decode.
func lineFromKaid(l kaidLine) LyricLine {
	line := LyricLine{
		SingerID: l.SingerID,
		StartSec: l.Start,
		EndSec:   l.End,
		Text:     l.Text,
		Disabled: l.Disabled,
	}
	if len(l.WordTiming) == 0 {
		return line
	}
	words := strings.Fields(l.Text)
	n := len(l.WordTiming)
	if len(words) < n {
		n = len(words)
	}
	for i := 0; i < n; i++ {
		line.Words = append(line.Words, Word{
			StartSec: l.Start + l.WordTiming[i][0],
			EndSec:   l.Start + l.WordTiming[i][1],
			Text:     words[i],
		})
	}
	return line
}

// EncodeKaid renders song as the canonical kaid JSON document: the five
// known top-level keys in their documented order, followed by any
// Song.Extra keys in sorted order, for a deterministic byte-level diff
// across repeated saves.
func EncodeKaid(song *Song) ([]byte, error) {
	doc := kaidDoc{
		Version: KaidVersion,
		Audio: kaidAudio{
			Profile:             song.Audio.Profile,
			EncoderDelaySamples: song.Audio.EncoderDelaySamples,
		},
		Timing: kaidTiming{Reference: song.Timing.Reference, OffsetSec: song.Timing.OffsetSec},
	}
	for _, s := range song.Audio.Sources {
		doc.Audio.Sources = append(doc.Audio.Sources, kaidSource{Track: s.TrackIndex, ID: s.ID, Role: s.Role})
	}
	for _, p := range song.Audio.Presets {
		doc.Audio.Presets = append(doc.Audio.Presets, kaidPreset{ID: p.ID, Levels: p.Levels})
	}
	for _, s := range song.Singers {
		doc.Singers = append(doc.Singers, kaidSinger{ID: s.ID, Name: s.DisplayName, GuideTrack: s.GuideTrack})
	}
	for _, l := range song.Lines {
		doc.Lines = append(doc.Lines, lineToKaid(l))
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "karaoke: encode kaid")
	}
	if len(song.Extra) == 0 {
		return body, nil
	}
	return appendExtraKeys(body, song.Extra)
}

func lineToKaid(l LyricLine) kaidLine {
	out := kaidLine{SingerID: l.SingerID, Start: l.StartSec, End: l.EndSec, Text: l.Text, Disabled: l.Disabled}
	for _, w := range l.Words {
		out.WordTiming = append(out.WordTiming, [2]float64{w.StartSec - l.StartSec, w.EndSec - l.StartSec})
	}
	return out
}

// appendExtraKeys splices extra's keys, in sorted order, into the closing
// brace of an already-marshaled JSON object body.
func appendExtraKeys(body []byte, extra map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(bytes.TrimRight(body, "\n"))
	buf.Truncate(buf.Len() - 1) // drop the trailing '}'
	for _, k := range keys {
		v, err := json.Marshal(extra[k])
		if err != nil {
			return nil, errors.Wrapf(err, "karaoke: encode kaid extra key %q", k)
		}
		buf.WriteByte(',')
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
