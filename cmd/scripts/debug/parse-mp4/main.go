package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"

	"github.com/stemsapp/kai/pkg/container"
)

func main() {
	log := logger.New()

	var opts struct {
		CoverOutput string `short:"o" long:"cover-output" description:"A path to output the embedded cover image"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/debug/parse-mp4 <path/to/file.stem.m4a>")
		os.Exit(1)
	}

	song, err := container.Load(args[0])
	if err != nil {
		log.Err(err).Fatal("load error")
	}

	fmt.Printf("source: %s\n", song.SourcePath)
	fmt.Printf("duration: %s\n", song.Duration)
	fmt.Printf("tracks: %+v\n", song.Tracks)
	fmt.Printf("itunes metadata: %+v\n", song.ITunesMetadata)
	fmt.Printf("audio: %+v\n", song.Audio)
	fmt.Printf("timing: %+v\n", song.Timing)
	fmt.Printf("singers: %+v\n", song.Singers)
	fmt.Printf("lyric lines: %d\n", len(song.Lines))
	if song.VocalPitch != nil {
		fmt.Printf("vocal pitch samples: %d\n", len(song.VocalPitch.Values))
	}
	fmt.Printf("onsets: %d\n", len(song.Onsets))

	if opts.CoverOutput != "" && len(song.ITunesMetadata.CoverArt) > 0 {
		f, err := os.Create(opts.CoverOutput)
		if err != nil {
			log.Err(err).Fatal("create file error")
		}
		defer f.Close()
		if _, err := f.Write(song.ITunesMetadata.CoverArt); err != nil {
			log.Err(err).Fatal("file write error")
		}
	}
}
