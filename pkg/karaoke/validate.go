package karaoke

import (
	"context"
	"reflect"
	"sort"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/stemsapp/kai/pkg/kaierrors"
)

var (
	conform  = modifiers.New()
	validate = validator.New()
)

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ApplyDefaults fills Song.Audio.Profile/EncoderDelaySamples and
// Timing.Reference with spec defaults (struct `default:` tags) wherever
// they are currently the zero value. Call this on a freshly constructed
// Song before Validate, exactly as the teacher's Binder calls
// defaults.Set ahead of validate.Struct.
func ApplyDefaults(song *Song) error {
	return errors.WithStack(defaults.Set(song))
}

// Normalize trims/cleans Song string fields in place (singer display
// names, lyric text) via mold, mirroring the teacher's conform.Struct
// call ahead of validation.
func Normalize(ctx context.Context, song *Song) error {
	return errors.WithStack(conform.Struct(ctx, song))
}

// Validate runs struct-tag validation (required fields, numeric bounds)
// followed by the cross-field/cross-line invariants §3's Data Model
// documents that the validator package alone cannot express.
func Validate(song *Song) error {
	if err := validate.Struct(song); err != nil {
		return errors.WithStack(err)
	}
	return validateLines(song.Lines)
}

// validateLines enforces: start <= end; word times lie within the line;
// line starts are monotone per singer; two lines for the same singer may
// not overlap (different singers may).
func validateLines(lines []LyricLine) error {
	bySinger := make(map[string][]int)
	for i, l := range lines {
		if l.StartSec > l.EndSec {
			return &kaierrors.NonMonotonicTiming{SingerID: l.SingerID, Index: i}
		}
		for wi, w := range l.Words {
			if w.StartSec < l.StartSec || w.EndSec > l.EndSec {
				return &kaierrors.WordOutOfLine{LineIndex: i, WordIndex: wi}
			}
		}
		if prev := bySinger[l.SingerID]; len(prev) > 0 && l.StartSec < lines[prev[len(prev)-1]].StartSec {
			return &kaierrors.NonMonotonicTiming{SingerID: l.SingerID, Index: i}
		}
		bySinger[l.SingerID] = append(bySinger[l.SingerID], i)
	}

	for singer, idxs := range bySinger {
		sort.Slice(idxs, func(a, b int) bool { return lines[idxs[a]].StartSec < lines[idxs[b]].StartSec })
		for k := 1; k < len(idxs); k++ {
			prev, cur := lines[idxs[k-1]], lines[idxs[k]]
			if cur.StartSec < prev.StartSec {
				return &kaierrors.NonMonotonicTiming{SingerID: singer, Index: idxs[k]}
			}
			if cur.StartSec < prev.EndSec {
				return &kaierrors.OverlappingLines{SingerID: singer, IndexA: idxs[k-1], IndexB: idxs[k]}
			}
		}
	}
	return nil
}

// TrimmedText returns l.Text with surrounding whitespace removed, the
// normalization Normalize applies via the mold `trim` tag; exposed so
// callers building a Song by hand (outside the Normalize pipeline) can
// match its behaviour without importing mold directly.
func TrimmedText(s string) string {
	return strings.TrimSpace(s)
}
