// Package kaierrors collects the container engine's error taxonomy: format
// errors (bad input file), semantic errors (bad Song content), integrity
// errors (internal bug or disk fault), and external errors (subprocess /
// I/O failures). Every type here carries the context needed to rebuild a
// human-readable message at the façade boundary without re-deriving it.
package kaierrors

import (
	"fmt"
)

// Format errors: recoverable only by the user choosing a different file.
var (
	// ErrMalformedBox is returned when a box's declared size is inconsistent
	// with the surrounding buffer.
	ErrMalformedBox = sentinel("malformed box structure")

	// ErrTruncatedBox is returned when fewer bytes remain than a box header
	// requires.
	ErrTruncatedBox = sentinel("truncated box")

	// ErrUnsupportedFormat is returned for an input extension/shape this
	// engine does not read or write (e.g. a .cdg pair, or a .kai save
	// attempt).
	ErrUnsupportedFormat = sentinel("unsupported container format")

	// ErrMissingKaraokePayload is returned when a .stem.m4a file has no
	// kaid freeform item.
	ErrMissingKaraokePayload = sentinel("missing karaoke payload")
)

// OverlappingLines reports two lyric lines for the same singer whose time
// ranges overlap.
type OverlappingLines struct {
	SingerID string
	IndexA   int
	IndexB   int
}

func (e *OverlappingLines) Error() string {
	return fmt.Sprintf("lines %d and %d for singer %q overlap", e.IndexA, e.IndexB, e.SingerID)
}

// NonMonotonicTiming reports a lyric line whose timing is out of order: it
// starts before the previous line for the same singer, or its start lies
// after its own end.
type NonMonotonicTiming struct {
	SingerID string
	Index    int
}

func (e *NonMonotonicTiming) Error() string {
	return fmt.Sprintf("line %d for singer %q is out of time order", e.Index, e.SingerID)
}

// TimestampBeyondDuration reports a line or word time past the track's
// known duration.
type TimestampBeyondDuration struct {
	Index        int
	TimeSec      float64
	DurationSec  float64
	FieldContext string
}

func (e *TimestampBeyondDuration) Error() string {
	return fmt.Sprintf("line %d %s time %.3fs exceeds track duration %.3fs", e.Index, e.FieldContext, e.TimeSec, e.DurationSec)
}

// WordOutOfLine reports a word timing that falls outside its line's range.
type WordOutOfLine struct {
	LineIndex int
	WordIndex int
}

func (e *WordOutOfLine) Error() string {
	return fmt.Sprintf("word %d of line %d falls outside the line's time range", e.WordIndex, e.LineIndex)
}

// Integrity errors: a bug in this engine or a disk fault, never user input.

// ChunkOffsetMismatch reports that a chunk-offset table entry does not
// point at the expected chunk after a write.
type ChunkOffsetMismatch struct {
	TrackIndex int
	ChunkIndex int
}

func (e *ChunkOffsetMismatch) Error() string {
	return fmt.Sprintf("track %d chunk %d: recorded offset does not address the expected chunk", e.TrackIndex, e.ChunkIndex)
}

// PostWriteValidationFailed reports that C11 rejected a freshly written
// file, together with the outcome of the automatic .bak restore.
type PostWriteValidationFailed struct {
	Path     string
	Cause    error
	Restored bool
}

func (e *PostWriteValidationFailed) Error() string {
	if e.Restored {
		return fmt.Sprintf("save to %s failed validation (%v); original file restored from backup", e.Path, e.Cause)
	}
	return fmt.Sprintf("save to %s failed validation (%v); restore from backup also failed", e.Path, e.Cause)
}

func (e *PostWriteValidationFailed) Unwrap() error {
	return e.Cause
}

// External errors: subprocess / I/O failures outside this engine's control.

// ExternalEncoderFailed reports a non-zero exit, or a RESULT line with
// success=false, from the external audio encoder.
type ExternalEncoderFailed struct {
	Stderr   string
	ExitCode int
}

func (e *ExternalEncoderFailed) Error() string {
	return fmt.Sprintf("external encoder failed (exit %d): %s", e.ExitCode, e.Stderr)
}

// CancelledDuringEncode reports that the caller's context was cancelled
// while the external encoder subprocess was running.
var ErrCancelledDuringEncode = sentinel("cancelled during encode")

type sentinel string

func (s sentinel) Error() string { return string(s) }
