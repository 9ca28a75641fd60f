// Package muxer implements the subprocess driver (C10): invoking the
// external audio encoder that produces a fresh multi-track M4A container
// from per-stem WAV files and a WebVTT subtitle document, before handing
// the result to pkg/container's writer for karaoke-payload injection.
//
// Grounded on pkg/plugins' ffmpeg host API: a context-scoped
// exec.CommandContext invocation with captured stdout/stderr, generalized
// here to the line-oriented PROGRESS/RESULT protocol of §6 instead of a
// single synchronous result.
package muxer

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/stemsapp/kai/pkg/kaierrors"
)

// Event is one line of the external encoder's progress protocol (§6):
// either a Progress update or the terminal Result.
type Event struct {
	Progress *Progress
	Result   *Result
}

// Progress reports the encoder's current stage.
type Progress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
}

// Result is the encoder's final line before exit.
type Result struct {
	Success    bool   `json:"success"`
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StemInput is one input WAV for a mux, in mixdown-first track order.
type StemInput struct {
	Path string
	Role string
}

// Request describes one mux invocation: the per-stem audio inputs (index 0
// is always the mixdown), the subtitle document, and the iTunes tags to
// stamp into the output container.
type Request struct {
	Stems       []StemInput
	SubtitleVTT string
	Title       string
	Artist      string
	Album       string
	Year        string
	Genre       string
	TrackNumber int
	CoverPath   string
}

// Driver invokes the external encoder binary to perform a mux.
type Driver struct {
	// EncoderBin is the external encoder executable (config.Config.EncoderBin).
	EncoderBin string

	// CacheDir is the root scratch directory; each Mux call gets its own
	// uuid-named subdirectory under it, removed on failure or cancellation
	// and kept on success, since the output container is written into it.
	CacheDir string
}

// New returns a Driver using encoderBin and cacheDir.
func New(encoderBin, cacheDir string) *Driver {
	return &Driver{EncoderBin: encoderBin, CacheDir: cacheDir}
}

// Mux runs the external encoder against req, streaming Events to events (if
// non-nil) as they arrive, and returns the path to the produced container.
// Cancelling ctx kills the child process and removes the scratch directory;
// per §5 this is the only point at which a mux may be cancelled.
func (d *Driver) Mux(ctx context.Context, req Request, events chan<- Event) (string, error) {
	runID := uuid.NewString()
	scratchDir := filepath.Join(d.CacheDir, "tmp", runID)
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "muxer: creating scratch dir %s", scratchDir)
	}
	// Only torn down on failure/cancellation: on success the output
	// container still lives under scratchDir, and moving it out is left to
	// the caller (cmd/kai's mux command does so when --out is given).
	// Nothing in this package removes the directory after a success.
	succeeded := false
	defer func() {
		if !succeeded {
			os.RemoveAll(scratchDir)
		}
	}()

	vttPath := filepath.Join(scratchDir, "subtitles.vtt")
	if err := os.WriteFile(vttPath, []byte(req.SubtitleVTT), 0o644); err != nil {
		return "", errors.Wrap(err, "muxer: writing subtitle scratch file")
	}

	outputPath := filepath.Join(scratchDir, "output.m4a")
	args := buildArgs(req, vttPath, outputPath)

	cmd := exec.CommandContext(ctx, d.EncoderBin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", errors.WithStack(err)
	}
	var stderrBuf errCollector
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return "", errors.Wrapf(err, "muxer: starting %s", d.EncoderBin)
	}

	result, scanErr := consumeProtocol(stdout, events)

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return "", errors.WithStack(kaierrors.ErrCancelledDuringEncode)
	}
	if waitErr != nil {
		exitCode := 0
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return "", &kaierrors.ExternalEncoderFailed{Stderr: stderrBuf.String(), ExitCode: exitCode}
	}
	if scanErr != nil {
		return "", errors.Wrap(scanErr, "muxer: reading encoder output")
	}
	if result == nil || !result.Success {
		msg := ""
		if result != nil {
			msg = result.Error
		}
		return "", &kaierrors.ExternalEncoderFailed{Stderr: msg, ExitCode: 0}
	}

	finalPath := result.OutputPath
	if finalPath == "" {
		finalPath = outputPath
	}
	succeeded = true
	return finalPath, nil
}

// buildArgs translates req into the external encoder's documented CLI
// surface: per-stem input paths (mixdown first), the subtitle file, output
// path, and iTunes metadata key/value flags.
func buildArgs(req Request, vttPath, outputPath string) []string {
	var args []string
	for _, s := range req.Stems {
		args = append(args, "--stem", s.Role+"="+s.Path)
	}
	args = append(args, "--subtitles", vttPath)
	args = append(args, "--output", outputPath)
	if req.Title != "" {
		args = append(args, "--title", req.Title)
	}
	if req.Artist != "" {
		args = append(args, "--artist", req.Artist)
	}
	if req.Album != "" {
		args = append(args, "--album", req.Album)
	}
	if req.Year != "" {
		args = append(args, "--year", req.Year)
	}
	if req.Genre != "" {
		args = append(args, "--genre", req.Genre)
	}
	if req.TrackNumber > 0 {
		args = append(args, "--track", strconv.Itoa(req.TrackNumber))
	}
	if req.CoverPath != "" {
		args = append(args, "--cover", req.CoverPath)
	}
	return args
}

// consumeProtocol reads the child's stdout line by line, parsing
// "PROGRESS:{json}" and "RESULT:{json}" prefixed lines per §6 and
// forwarding them to events; any other line is simply discarded (the
// caller's own logger is expected to tee raw stdout if it wants it).
func consumeProtocol(r io.Reader, events chan<- Event) (*Result, error) {
	const progressPrefix = "PROGRESS:"
	const resultPrefix = "RESULT:"

	var result *Result
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case hasPrefix(line, progressPrefix):
			var p Progress
			if err := json.Unmarshal([]byte(line[len(progressPrefix):]), &p); err == nil && events != nil {
				events <- Event{Progress: &p}
			}
		case hasPrefix(line, resultPrefix):
			var res Result
			if err := json.Unmarshal([]byte(line[len(resultPrefix):]), &res); err != nil {
				return nil, errors.Wrap(err, "muxer: parsing RESULT line")
			}
			result = &res
			if events != nil {
				events <- Event{Result: &res}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return result, errors.WithStack(err)
	}
	return result, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// errCollector accumulates stderr for inclusion in ExternalEncoderFailed.
type errCollector struct {
	buf []byte
}

func (e *errCollector) Write(p []byte) (int, error) {
	e.buf = append(e.buf, p...)
	return len(p), nil
}

func (e *errCollector) String() string {
	return string(e.buf)
}
