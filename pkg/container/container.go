// Package container implements the loader façade (C8), writer façade
// (C9), and post-write validator (C11): the boundary between a raw M4A/MP4
// byte buffer on disk and a karaoke.Song value in memory.
package container

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"

	"github.com/stemsapp/kai/pkg/kaierrors"
)

// Load opens path and returns the unified Song it describes. Extension
// dispatch: ".m4a"/".mp4" parse the ISO BMFF tree (this package's main
// focus); ".kai" reads the legacy zip container read-only (migration
// path); any other extension, or a ".cdg" pair, returns
// ErrUnsupportedFormat.
func Load(path string) (*Song, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".m4a", ".mp4":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if !looksLikeISOBMFF(data) {
			return nil, errors.Wrapf(kaierrors.ErrUnsupportedFormat, "%s: not an ISO BMFF file", path)
		}
		return loadM4A(path, data)
	case ".kai":
		return loadLegacyKai(path)
	case ".cdg":
		return nil, errors.Wrapf(kaierrors.ErrUnsupportedFormat, "%s: .cdg pairs are not yet supported", path)
	default:
		return nil, errors.Wrapf(kaierrors.ErrUnsupportedFormat, "%s: unrecognised extension %q", path, ext)
	}
}

// looksLikeISOBMFF sniffs data's actual content type so a misnamed file
// (wrong extension, not actually ISO BMFF) is rejected before the parser
// ever runs, rather than surfacing as an obscure MalformedBox deep in a
// box walk.
func looksLikeISOBMFF(data []byte) bool {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		switch m.String() {
		case "video/mp4", "audio/mp4", "audio/x-m4a", "application/mp4":
			return true
		}
	}
	return false
}

// Save writes song to path, performing the minimal structural edit to the
// existing file at path (C9, §4.9). locker, if non-nil, is held for the
// duration of the save; callers writing to the same path concurrently
// must supply the same *sync.Mutex (or other sync.Locker) so saves to one
// path serialize, per §5's concurrency model. The core keeps no internal
// per-path registry.
func Save(song *Song, path string, locker sync.Locker) error {
	if locker != nil {
		locker.Lock()
		defer locker.Unlock()
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".m4a" && ext != ".mp4" {
		return errors.Wrapf(kaierrors.ErrUnsupportedFormat, "%s: save only targets .m4a/.mp4 (no .kai write path)", path)
	}
	return saveM4A(song, path)
}
