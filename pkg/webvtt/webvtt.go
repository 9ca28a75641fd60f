// Package webvtt implements the karaoke-enriched WebVTT codec (C6): the
// lyric text track carried in the `mov_text` subtitle track, one cue per
// LyricLine, voice tags identifying the singer, and per-word timestamp
// runs for in-line highlight.
//
// Cue payload shape: "<v[.backup] SINGER_ID><T0>word1 <T1>word2 <T2>" —
// each timestamp tag opens the word that follows it; the final tag closes
// the last word and carries no trailing text. A line with no per-word
// timing is written as a plain "<v SINGER_ID>text" cue.
package webvtt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/stemsapp/kai/pkg/encoderdelay"
	"github.com/stemsapp/kai/pkg/karaoke"
)

// CueParseError reports one cue dropped during Decode because its
// timestamp(s) could not be parsed. Decode collects these rather than
// aborting the whole file.
type CueParseError struct {
	CueIndex int
	Raw      string
	Reason   string
}

func (e *CueParseError) Error() string {
	return fmt.Sprintf("webvtt: cue %d malformed (%s): %q", e.CueIndex, e.Reason, e.Raw)
}

var (
	cueTimingRE = regexp.MustCompile(`^(\d{2,}:\d{2}:\d{2}\.\d{3})\s*-->\s*(\d{2,}:\d{2}:\d{2}\.\d{3})`)
	voiceTagRE  = regexp.MustCompile(`^<v(\.backup)?\s+([^>]+)>(.*)$`)
	wordTagRE   = regexp.MustCompile(`<(\d{2,}:\d{2}:\d{2}\.\d{3})>`)
)

// Decode parses a WebVTT document into LyricLines, applying comp.Remove to
// every decoded timestamp to convert the wire (encoder-delayed) times back
// to logical ones. Cues whose timing line fails to parse are skipped and
// reported in errs rather than aborting the parse.
func Decode(doc string, comp encoderdelay.Compensator) (lines []karaoke.LyricLine, errs []error) {
	blocks := splitCueBlocks(doc)
	for i, block := range blocks {
		line, err := decodeCue(block, comp)
		if err != nil {
			errs = append(errs, &CueParseError{CueIndex: i, Raw: block, Reason: err.Error()})
			continue
		}
		lines = append(lines, line)
	}
	return lines, errs
}

// splitCueBlocks separates doc into blank-line-delimited cue blocks,
// skipping the leading WEBVTT header block (and any NOTE blocks).
func splitCueBlocks(doc string) []string {
	doc = strings.ReplaceAll(doc, "\r\n", "\n")
	rawBlocks := strings.Split(doc, "\n\n")

	var blocks []string
	for _, b := range rawBlocks {
		trimmed := strings.TrimSpace(b)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "WEBVTT") {
			continue
		}
		if strings.HasPrefix(trimmed, "NOTE") {
			continue
		}
		blocks = append(blocks, trimmed)
	}
	return blocks
}

func decodeCue(block string, comp encoderdelay.Compensator) (karaoke.LyricLine, error) {
	rawLines := strings.Split(block, "\n")
	idx := 0
	// An optional leading cue identifier line (anything without "-->").
	if idx < len(rawLines) && !strings.Contains(rawLines[idx], "-->") {
		idx++
	}
	if idx >= len(rawLines) {
		return karaoke.LyricLine{}, fmt.Errorf("no timing line")
	}
	m := cueTimingRE.FindStringSubmatch(rawLines[idx])
	if m == nil {
		return karaoke.LyricLine{}, fmt.Errorf("unparseable timing line %q", rawLines[idx])
	}
	startWire, err := parseTimestamp(m[1])
	if err != nil {
		return karaoke.LyricLine{}, err
	}
	endWire, err := parseTimestamp(m[2])
	if err != nil {
		return karaoke.LyricLine{}, err
	}

	payload := strings.Join(rawLines[idx+1:], "\n")
	vm := voiceTagRE.FindStringSubmatch(payload)
	if vm == nil {
		return karaoke.LyricLine{}, fmt.Errorf("missing voice tag in payload %q", payload)
	}
	backup := vm[1] != ""
	singerID := vm[2]
	rest := vm[3]

	words, text, err := decodeWords(rest, comp)
	if err != nil {
		return karaoke.LyricLine{}, err
	}

	return karaoke.LyricLine{
		SingerID: singerID,
		StartSec: comp.Remove(startWire),
		EndSec:   comp.Remove(endWire),
		Text:     norm.NFC.String(text),
		Disabled: backup,
		Words:    words,
	}, nil
}

// decodeWords parses the "<T0>word1 <T1>word2 <T2>" run, if present, into
// Words plus the reconstructed plain text (words joined by a single
// space); if no timestamp tags are present, rest is returned verbatim as
// plain text with no Words.
func decodeWords(rest string, comp encoderdelay.Compensator) ([]karaoke.Word, string, error) {
	tagIdx := wordTagRE.FindAllStringSubmatchIndex(rest, -1)
	if len(tagIdx) == 0 {
		return nil, strings.TrimSpace(rest), nil
	}

	var words []karaoke.Word
	var textParts []string
	for i, loc := range tagIdx {
		tsStr := rest[loc[2]:loc[3]]
		ts, err := parseTimestamp(tsStr)
		if err != nil {
			return nil, "", err
		}
		logical := comp.Remove(ts)

		segEnd := len(rest)
		if i+1 < len(tagIdx) {
			segEnd = tagIdx[i+1][0]
		}
		word := strings.TrimSpace(rest[loc[1]:segEnd])

		if i+1 < len(tagIdx) {
			nextTs, err := parseTimestamp(rest[tagIdx[i+1][2]:tagIdx[i+1][3]])
			if err != nil {
				return nil, "", err
			}
			words = append(words, karaoke.Word{StartSec: logical, EndSec: comp.Remove(nextTs), Text: word})
			textParts = append(textParts, word)
		}
		// The final tag closes the previous word and carries no text of
		// its own (word is expected to be empty there).
	}
	return words, strings.Join(textParts, " "), nil
}

// Encode renders lines as a complete WebVTT document, applying comp.Apply
// to every timestamp to convert logical times to wire (encoder-delayed)
// ones.
func Encode(lines []karaoke.LyricLine, comp encoderdelay.Compensator) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, l := range lines {
		b.WriteString(encodeCue(i, l, comp))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func encodeCue(index int, l karaoke.LyricLine, comp encoderdelay.Compensator) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", index+1)
	fmt.Fprintf(&b, "%s --> %s\n", formatTimestamp(comp.Apply(l.StartSec)), formatTimestamp(comp.Apply(l.EndSec)))

	if l.Disabled {
		fmt.Fprintf(&b, "<v.backup %s>", l.SingerID)
	} else {
		fmt.Fprintf(&b, "<v %s>", l.SingerID)
	}

	if len(l.Words) == 0 {
		b.WriteString(norm.NFC.String(l.Text))
		return b.String()
	}

	for i, w := range l.Words {
		fmt.Fprintf(&b, "<%s>%s ", formatTimestamp(comp.Apply(w.StartSec)), norm.NFC.String(w.Text))
		if i == len(l.Words)-1 {
			fmt.Fprintf(&b, "<%s>", formatTimestamp(comp.Apply(w.EndSec)))
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// formatTimestamp renders seconds as HH:MM:SS.mmm.
func formatTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	totalMillis := int64(sec*1000 + 0.5)
	ms := totalMillis % 1000
	totalSec := totalMillis / 1000
	s := totalSec % 60
	totalMin := totalSec / 60
	m := totalMin % 60
	h := totalMin / 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// parseTimestamp parses an HH:MM:SS.mmm timestamp into seconds.
func parseTimestamp(s string) (float64, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in timestamp %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in timestamp %q", s)
	}
	secParts := strings.SplitN(parts[2], ".", 2)
	if len(secParts) != 2 {
		return 0, fmt.Errorf("invalid seconds in timestamp %q", s)
	}
	sec, err := strconv.Atoi(secParts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid seconds in timestamp %q", s)
	}
	ms, err := strconv.Atoi(secParts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid milliseconds in timestamp %q", s)
	}
	return float64(h*3600+m*60+sec) + float64(ms)/1000, nil
}
