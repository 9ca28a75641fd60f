// Package karaoke implements the stem-karaoke payload schema (C5): the
// typed Song value decoded from and encoded into the kaid/vpch/kons/stem
// freeform atoms, and the closed Role/Profile/Reference enums that give
// the wire JSON's string fields a typed, round-trippable representation.
package karaoke

// Source describes one audio track's role within a stem mix.
type Source struct {
	TrackIndex int    `json:"track" validate:"gte=0"`
	ID         string `json:"id" validate:"required" mold:"trim"`
	Role       Role   `json:"role" validate:"required"`
}

// Preset maps roles to a mix level in dB for a named mixing preset (e.g.
// "karaoke" mutes vocals, "a-cappella" mutes everything else).
type Preset struct {
	ID     string             `json:"id" validate:"required" mold:"trim"`
	Levels map[string]float64 `json:"levels"`
}

// Audio describes the stem layout and mastering metadata for a Song.
type Audio struct {
	Profile             Profile  `json:"profile" default:"STEMS-4" validate:"required"`
	EncoderDelaySamples uint32   `json:"encoder_delay_samples" default:"1105"`
	Sources             []Source `json:"sources"`
	Presets             []Preset `json:"presets"`
}

// Timing describes what a Song's lyric/pitch/onset timestamps are anchored
// to, and a fixed offset applied on top of that reference.
type Timing struct {
	Reference Reference `json:"reference" default:"aligned_to_vocals" validate:"required"`
	OffsetSec float32   `json:"offset_sec"`
}

// Singer is one karaoke performer slot, tied to a guide audio track.
type Singer struct {
	ID           string `json:"id" validate:"required" mold:"trim"`
	DisplayName  string `json:"name" mold:"trim"`
	GuideTrack   int    `json:"guide_track" validate:"gte=0"`
}

// Word is a single timed syllable/word within a LyricLine. Its times are
// absolute seconds, like the line's own; only the kaid wire form stores
// them relative to the line start (see lineFromKaid/lineToKaid).
type Word struct {
	StartSec float64 `json:"start" validate:"gtefield=0"`
	EndSec   float64 `json:"end" validate:"gtefield=StartSec"`
	Text     string  `json:"text"`
}

// LyricLine is one line of karaoke lyric text assigned to a singer.
//
// Invariants (enforced by Validate, not by the struct tags above, since
// they are cross-field/cross-line and the validator package alone cannot
// express "two lines for the same singer may not overlap"):
// StartSec <= EndSec; every word's times lie within [StartSec, EndSec];
// line starts are monotone per singer; two lines for the same singer may
// not overlap (lines for different singers may).
type LyricLine struct {
	SingerID string `json:"singer_id" validate:"required"`
	StartSec float64  `json:"start"`
	EndSec   float64  `json:"end"`
	Text     string   `json:"text" mold:"trim"`
	Disabled bool     `json:"disabled,omitempty"`
	Words    []Word   `json:"word_timing,omitempty"`
}

// ITunesMetadata carries the standard iTunes-style metadata atoms that
// ride along unchanged through a save (not karaoke-specific, but owned by
// the same container so the loader/writer façade can present one value).
type ITunesMetadata struct {
	Title     string
	Artist    string
	Album     string
	Year      string
	Genre     string
	Comment   string
	Encoder   string
	MediaType int
	CoverArt  []byte
	CoverMime string
}

// VocalPitch is a fixed-rate pitch track in MIDI cents, decoded from vpch.
type VocalPitch struct {
	SampleRateHz uint16
	Values       []float32
}

// Song is the core domain value: container metadata plus the decoded
// karaoke payload, as produced by a Load and consumed by a Save.
type Song struct {
	Audio          Audio
	Timing         Timing
	Singers        []Singer
	Lines          []LyricLine
	VocalPitch     *VocalPitch
	Onsets         []float64
	ITunesMetadata ITunesMetadata

	// Extra preserves unknown top-level kaid keys verbatim across a
	// decode/encode cycle (see kaid.go); never read or written by this
	// package's own logic.
	Extra map[string]any
}
