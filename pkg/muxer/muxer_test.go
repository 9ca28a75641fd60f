package muxer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeEncoder writes a tiny shell script standing in for the external
// encoder binary, emitting the PROGRESS/RESULT protocol lines §6 documents.
func writeFakeEncoder(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-encoder.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestMux_Success(t *testing.T) {
	bin := writeFakeEncoder(t, `
echo 'PROGRESS:{"stage":"encode","percent":50}'
echo 'RESULT:{"success":true}'
`)
	d := New(bin, t.TempDir())

	events := make(chan Event, 10)
	req := Request{
		Stems: []StemInput{
			{Path: "/dev/null", Role: "mixdown"},
		},
		SubtitleVTT: "WEBVTT\n",
	}
	outPath, err := d.Mux(context.Background(), req, events)
	close(events)
	require.NoError(t, err)
	assert.NotEmpty(t, outPath)

	var sawProgress, sawResult bool
	for e := range events {
		if e.Progress != nil {
			sawProgress = true
		}
		if e.Result != nil {
			sawResult = true
			assert.True(t, e.Result.Success)
		}
	}
	assert.True(t, sawProgress)
	assert.True(t, sawResult)
}

func TestMux_EncoderFailure(t *testing.T) {
	bin := writeFakeEncoder(t, `
echo 'RESULT:{"success":false,"error":"bad stem count"}'
exit 0
`)
	d := New(bin, t.TempDir())

	_, err := d.Mux(context.Background(), Request{}, nil)
	require.Error(t, err)
}

func TestMux_NonZeroExit(t *testing.T) {
	bin := writeFakeEncoder(t, `
echo "boom" 1>&2
exit 1
`)
	d := New(bin, t.TempDir())

	_, err := d.Mux(context.Background(), Request{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestMux_Cancellation(t *testing.T) {
	bin := writeFakeEncoder(t, `
sleep 5
echo 'RESULT:{"success":true}'
`)
	d := New(bin, t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := d.Mux(ctx, Request{}, nil)
	require.Error(t, err)
}

func TestMux_ScratchDirKeptOnSuccess(t *testing.T) {
	bin := writeFakeEncoder(t, `echo 'RESULT:{"success":true}'`)
	cacheDir := t.TempDir()
	d := New(bin, cacheDir)

	outPath, err := d.Mux(context.Background(), Request{}, nil)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(filepath.Dir(outPath), "subtitles.vtt"))
}

func TestMux_ScratchDirRemovedOnFailure(t *testing.T) {
	bin := writeFakeEncoder(t, `exit 1`)
	cacheDir := t.TempDir()
	d := New(bin, cacheDir)

	_, err := d.Mux(context.Background(), Request{}, nil)
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(cacheDir, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
