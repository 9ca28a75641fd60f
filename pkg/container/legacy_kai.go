package container

import (
	"archive/zip"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/stemsapp/kai/pkg/karaoke"
)

// legacyKaiMetaNames are the filenames this engine recognises inside a
// .kai zip for the song's kaid-shaped metadata, tried in order.
var legacyKaiMetaNames = []string{"song.json", "meta.json", "kaid.json"}

// loadLegacyKai reads a .kai zip container: a pre-M4A bundle of a kaid-
// shaped JSON file plus an optional cover image, predating this engine's
// single-file .stem.m4a format. It is read-only — Save never targets
// .kai — this is a migration path for libraries that predate the M4A
// container, per the Open Question resolved in DESIGN.md.
func loadLegacyKai(path string) (*Song, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "container: opening legacy .kai %s", path)
	}
	defer zr.Close()

	var metaBytes []byte
	metaRank := len(legacyKaiMetaNames)
	var coverBytes []byte
	var coverMime string

	for _, f := range zr.File {
		name := strings.ToLower(f.Name)
		for rank, candidate := range legacyKaiMetaNames {
			if name == candidate && rank < metaRank {
				b, err := readZipFile(f)
				if err != nil {
					return nil, err
				}
				metaBytes = b
				metaRank = rank
			}
		}
		if isLegacyCoverName(name) {
			b, err := readZipFile(f)
			if err != nil {
				return nil, err
			}
			coverBytes = b
			if mime, err := karaoke.SniffCoverMime(b); err == nil {
				coverMime = mime
			}
		}
	}

	if metaBytes == nil {
		return nil, errors.Errorf("container: %s: no kaid-shaped metadata file found in legacy .kai", path)
	}

	song, err := karaoke.DecodeKaid(metaBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "container: decoding legacy .kai metadata in %s", path)
	}
	if coverBytes != nil {
		song.ITunesMetadata.CoverArt = coverBytes
		song.ITunesMetadata.CoverMime = coverMime
	}

	return &Song{
		Song:       song,
		SourcePath: path,
	}, nil
}

func isLegacyCoverName(name string) bool {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, "cover.") {
		return false
	}
	switch filepath.Ext(base) {
	case ".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

func readZipFile(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}
