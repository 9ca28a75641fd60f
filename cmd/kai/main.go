// Command kai is the reference CLI for the stem-karaoke container engine:
// inspect a .stem.m4a's karaoke payload, replace it wholesale from a kaid
// JSON document, re-run the post-write validator standalone, or drive a
// mux through the external encoder. It exists to exercise C8/C9/C11/C10
// from the command line the way a real integration (the Electron shell,
// a batch job) would, without pulling in any of that integration's own
// code.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/robinjoseph08/golib/logger"
	"github.com/urfave/cli/v2"

	"github.com/stemsapp/kai/pkg/config"
	"github.com/stemsapp/kai/pkg/container"
	"github.com/stemsapp/kai/pkg/karaoke"
	"github.com/stemsapp/kai/pkg/muxer"
)

func main() {
	log := logger.New()

	app := &cli.App{
		Name:  "kai",
		Usage: "inspect and edit stem-karaoke M4A containers",
		Commands: []*cli.Command{
			inspectCommand(),
			exportKaidCommand(),
			importKaidCommand(),
			validateCommand(),
			muxCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("kai: command failed")
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "print a song's container metadata and karaoke payload summary",
		ArgsUsage: "<path/to/song.stem.m4a>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return cli.Exit("inspect requires a file path", 1)
			}
			song, err := container.Load(path)
			if err != nil {
				return err
			}
			fmt.Printf("source:        %s\n", song.SourcePath)
			fmt.Printf("duration:      %s\n", song.Duration)
			fmt.Printf("tracks:        %d\n", len(song.Tracks))
			fmt.Printf("profile:       %s\n", song.Audio.Profile)
			fmt.Printf("encoder delay: %d samples\n", song.Audio.EncoderDelaySamples)
			fmt.Printf("sources:       %d\n", len(song.Audio.Sources))
			fmt.Printf("singers:       %d\n", len(song.Singers))
			fmt.Printf("lyric lines:   %d\n", len(song.Lines))
			if song.VocalPitch != nil {
				fmt.Printf("pitch samples: %d @%dHz\n", len(song.VocalPitch.Values), song.VocalPitch.SampleRateHz)
			}
			fmt.Printf("onsets:        %d\n", len(song.Onsets))
			fmt.Printf("title:         %s\n", song.ITunesMetadata.Title)
			fmt.Printf("artist:        %s\n", song.ITunesMetadata.Artist)
			return nil
		},
	}
}

func exportKaidCommand() *cli.Command {
	return &cli.Command{
		Name:      "export-kaid",
		Usage:     "write a song's kaid JSON payload to a file (or stdout with -)",
		ArgsUsage: "<path/to/song.stem.m4a> <output.json|->",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return cli.Exit("export-kaid requires a source file and an output path", 1)
			}
			song, err := container.Load(c.Args().Get(0))
			if err != nil {
				return err
			}
			raw, err := karaoke.EncodeKaid(song.Song)
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "", "  "); err != nil {
				return err
			}
			if out := c.Args().Get(1); out == "-" {
				_, err := os.Stdout.Write(pretty.Bytes())
				return err
			}
			return os.WriteFile(c.Args().Get(1), pretty.Bytes(), 0o644)
		},
	}
}

func importKaidCommand() *cli.Command {
	return &cli.Command{
		Name:      "import-kaid",
		Usage:     "replace a song's karaoke payload from a kaid JSON file and save",
		ArgsUsage: "<path/to/song.stem.m4a> <input.json>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return cli.Exit("import-kaid requires a target file and an input kaid JSON path", 1)
			}
			target := c.Args().Get(0)
			raw, err := os.ReadFile(c.Args().Get(1))
			if err != nil {
				return err
			}
			song, err := karaoke.DecodeKaid(raw)
			if err != nil {
				return err
			}
			existing, err := container.Load(target)
			if err == nil {
				song.ITunesMetadata = existing.ITunesMetadata
				song.VocalPitch = existing.VocalPitch
				song.Onsets = existing.Onsets
			}
			return container.Save(&container.Song{Song: song}, target, nil)
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "re-run the post-write validator (C11) against an on-disk file",
		ArgsUsage: "<path/to/song.stem.m4a>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return cli.Exit("validate requires a file path", 1)
			}
			if err := container.Validate(path); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func muxCommand() *cli.Command {
	var stems cli.StringSlice
	var subtitlePath, title, artist, album, outDir string

	return &cli.Command{
		Name:  "mux",
		Usage: "invoke the external encoder to mux per-stem WAVs plus subtitles into a container (C10)",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "stem", Usage: "role=path/to/stem.wav, mixdown first", Destination: &stems},
			&cli.StringFlag{Name: "subtitles", Usage: "path to a WebVTT document", Destination: &subtitlePath},
			&cli.StringFlag{Name: "title", Destination: &title},
			&cli.StringFlag{Name: "artist", Destination: &artist},
			&cli.StringFlag{Name: "album", Destination: &album},
			&cli.StringFlag{Name: "out", Usage: "directory to move the final container into", Destination: &outDir},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}

			var vtt string
			if subtitlePath != "" {
				raw, err := os.ReadFile(subtitlePath)
				if err != nil {
					return err
				}
				vtt = string(raw)
			}

			req := muxer.Request{SubtitleVTT: vtt, Title: title, Artist: artist, Album: album}
			for _, s := range stems.Value() {
				role, path, ok := splitStemFlag(s)
				if !ok {
					return cli.Exit(fmt.Sprintf("invalid --stem value %q, expected role=path", s), 1)
				}
				req.Stems = append(req.Stems, muxer.StemInput{Path: path, Role: role})
			}

			driver := muxer.New(config.ResolveEncoderBin(cfg), cfg.CacheDir)
			events := make(chan muxer.Event)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for ev := range events {
					if ev.Progress != nil {
						fmt.Printf("[%s] %.0f%% %s\n", ev.Progress.Stage, ev.Progress.Percent, ev.Progress.Message)
					}
				}
			}()

			outputPath, err := driver.Mux(c.Context, req, events)
			close(events)
			<-done
			if err != nil {
				return err
			}

			fmt.Printf("muxed: %s\n", outputPath)
			if outDir != "" {
				dest := outDir + "/" + outputPathBase(outputPath)
				if err := os.Rename(outputPath, dest); err != nil {
					return err
				}
				fmt.Printf("moved to: %s\n", dest)
			}
			return nil
		},
	}
}

func splitStemFlag(s string) (role, path string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func outputPathBase(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
