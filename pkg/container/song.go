package container

import (
	"time"

	"github.com/stemsapp/kai/pkg/karaoke"
)

// Song is the façade-level value C8/C9 exchange with callers: the karaoke
// payload (C5) plus the container-level facts that only a parsed box tree
// can supply and that a caller may want to inspect without re-reading the
// whole tree (duration, per-track handler type and flags).
type Song struct {
	*karaoke.Song

	// SourcePath is the file this Song was loaded from, empty for a Song
	// not yet persisted anywhere.
	SourcePath string

	// Duration is the movie's total duration, read from mvhd.
	Duration time.Duration

	// Tracks describes each audio/text track found in moov, in file
	// order, read-only context for callers (e.g. a CLI printing track
	// layout); Save never consults it directly — audio.sources is the
	// writer's source of truth for stem layout.
	Tracks []TrackInfo
}

// TrackInfo is read-only descriptive information about one moov/trak.
type TrackInfo struct {
	Index     int
	Handler   string // "soun" or "text"
	Enabled   bool
	IsDefault bool
}
