package karaoke

import (
	"bytes"
	"image"
	_ "image/jpeg" // register jpeg decoder for format sniffing
	_ "image/png"  // register png decoder for format sniffing

	_ "golang.org/x/image/bmp" // register bmp decoder, in case a source cover is bmp
	_ "golang.org/x/image/tiff"

	"github.com/pkg/errors"
)

// ErrCoverMimeMismatch is returned when a declared cover MIME type does
// not match the image format actually decoded from the byte content.
var ErrCoverMimeMismatch = errors.New("karaoke: cover art MIME type does not match decoded image format")

var formatMimeTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
}

// SniffCoverMime decodes just enough of data to identify its true image
// format and returns the corresponding MIME type.
func SniffCoverMime(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "karaoke: cover art is not a recognised image format")
	}
	mime, ok := formatMimeTypes[format]
	if !ok {
		return "", errors.Errorf("karaoke: cover art format %q has no known MIME mapping", format)
	}
	return mime, nil
}

// ValidateCoverMime confirms declaredMime matches the format actually
// encoded in data, returning ErrCoverMimeMismatch otherwise.
func ValidateCoverMime(data []byte, declaredMime string) error {
	actual, err := SniffCoverMime(data)
	if err != nil {
		return err
	}
	if actual != declaredMime {
		return errors.Wrapf(ErrCoverMimeMismatch, "declared %q, decoded as %q", declaredMime, actual)
	}
	return nil
}
