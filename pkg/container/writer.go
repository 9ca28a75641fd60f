package container

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/stemsapp/kai/pkg/bmff"
	"github.com/stemsapp/kai/pkg/encoderdelay"
	"github.com/stemsapp/kai/pkg/freeform"
	"github.com/stemsapp/kai/pkg/kaierrors"
	"github.com/stemsapp/kai/pkg/karaoke"
	"github.com/stemsapp/kai/pkg/webvtt"
)

// saveM4A rewrites the karaoke payload, iTunes tags, stem box and subtitle
// track of the file at path in place: it never re-encodes the audio chunks
// themselves, only moov's metadata tree and the mov_text sample (§4.9).
func saveM4A(song *Song, path string) error {
	if err := karaoke.ApplyDefaults(song.Song); err != nil {
		return err
	}
	if err := karaoke.Normalize(context.Background(), song.Song); err != nil {
		return err
	}
	if err := karaoke.Validate(song.Song); err != nil {
		return err
	}

	orig, err := os.ReadFile(path)
	if err != nil {
		return errors.WithStack(err)
	}

	root, err := bmff.Parse(orig)
	if err != nil {
		return errors.Wrapf(err, "container: parse %s", path)
	}
	moov := root.Find("moov")
	if moov == nil {
		return errors.Wrapf(kaierrors.ErrMalformedBox, "%s: no moov box", path)
	}

	moovStart, err := boxAbsoluteOffset(root, moov)
	if err != nil {
		return err
	}
	origMoovSize := bmff.Recompute(moov)
	moovEndOrig := moovStart + origMoovSize

	comp := encoderdelay.New(song.Audio.EncoderDelaySamples, readAudioSampleRate(moov))

	// Locate (or create) the subtitle track's stbl so we know where its
	// single sample currently lives, before any edits move anything. Its
	// sample bytes live inside mdat's payload, so a resize in Phase B
	// must also resize mdat.Payload — found and measured here, before
	// any mutation, so the offset arithmetic below is against the
	// original, unedited layout.
	subTrak := findTrakByHandler(moov, "text")
	var subOffsetOrig, subSizeOrig int64
	var subOffsetBox *bmff.Box
	var mdatBox *bmff.Box
	var mdatPayloadStartOrig int64
	if subTrak != nil {
		stbl := subTrak.Path("mdia", "minf", "stbl")
		if stbl == nil {
			return errors.New("container: subtitle trak has no stbl")
		}
		subOffsetOrig, subOffsetBox, err = singleChunkOffset(stbl)
		if err != nil {
			return err
		}
		subSizeOrig, err = singleSampleSize(stbl)
		if err != nil {
			return err
		}

		mdatBox = root.Find("mdat")
		if mdatBox == nil {
			return errors.New("container: no mdat box to hold the subtitle sample")
		}
		mdatAbsStart, err := boxAbsoluteOffset(root, mdatBox)
		if err != nil {
			return err
		}
		mdatPayloadStartOrig = mdatAbsStart + mdatBox.HeaderSize
	}

	// --- Rebuild the karaoke payload, iTunes tags and stem box in udta/meta/ilst ---
	udta := moov.Find("udta")
	if udta == nil {
		udta = &bmff.Box{Type: "udta"}
		moov.Children = append(moov.Children, udta)
	}
	meta := udta.Find("meta")
	if meta == nil {
		meta = &bmff.Box{Type: "meta", Preamble: []byte{0, 0, 0, 0}}
		hdlr := &bmff.Box{Type: "hdlr", Payload: mdirHdlrPayload()}
		meta.Children = append(meta.Children, hdlr)
		udta.Children = append(udta.Children, meta)
	}
	oldIlst := meta.Find("ilst")

	kaidJSON, err := karaoke.EncodeKaid(song.Song)
	if err != nil {
		return err
	}
	kaidItem := freeform.Encode(freeform.Item{Namespace: freeformNamespace, Name: kaidName, DataType: freeform.DataTypeUTF8, Value: kaidJSON})

	var vpchItem, konsItem *bmff.Box
	if song.VocalPitch != nil && len(song.VocalPitch.Values) > 0 {
		b := freeform.Encode(freeform.Item{Namespace: freeformNamespace, Name: vpchName, DataType: freeform.DataTypeBinary, Value: karaoke.EncodePitch(song.VocalPitch)})
		vpchItem = b
	}
	if len(song.Onsets) > 0 {
		b := freeform.Encode(freeform.Item{Namespace: freeformNamespace, Name: konsName, DataType: freeform.DataTypeBinary, Value: karaoke.EncodeOnsets(song.Onsets)})
		konsItem = b
	}

	newIlst := buildIlst(oldIlst, song.ITunesMetadata, kaidItem, vpchItem, konsItem)
	if oldIlst != nil {
		*oldIlst = *newIlst
	} else {
		meta.Children = append(meta.Children, newIlst)
	}

	stemBox := karaoke.BuildStemBox(song.Audio.Sources)
	stemJSON, err := karaoke.EncodeStemBox(stemBox)
	if err != nil {
		return err
	}
	if existing := udta.Find("stem"); existing != nil {
		existing.Payload = stemJSON
	} else {
		udta.Children = append(udta.Children, &bmff.Box{Type: "stem", Payload: stemJSON})
	}

	// --- Phase A: Δ from the ilst/stem edit shifts everything in mdat. ---
	deltaA := bmff.Recompute(moov) - origMoovSize
	if deltaA != 0 {
		if err := rewriteWithOverflowRetry(moov, deltaA, moovEndOrig); err != nil {
			return err
		}
	}

	// --- Phase B: resize the subtitle sample in place. ---
	if subTrak != nil {
		doc := webvtt.Encode(song.Lines, comp)
		newSubBytes := encodeMovTextSample(doc)

		stbl := subTrak.Path("mdia", "minf", "stbl")
		deltaB := int64(len(newSubBytes)) - subSizeOrig
		subOffsetNow := subOffsetOrig + deltaA
		if deltaB != 0 {
			threshold := subOffsetNow + subSizeOrig
			if err := rewriteWithOverflowRetry(moov, deltaB, threshold); err != nil {
				return err
			}
		}
		// Phase A shifted the subtitle's own entry by deltaA; Phase B's pass
		// leaves it alone (it sits at subOffsetNow, strictly less than the
		// threshold subOffsetNow+subSizeOrig), so it keeps the
		// Phase-A-shifted value.
		setSingleChunkOffset(subOffsetBox, subOffsetNow)
		if err := setSingleSampleSize(stbl, int64(len(newSubBytes))); err != nil {
			return err
		}

		// mdat is a parsed leaf in root, not an opaque byte range: resizing
		// its Payload here means Serialize below recomputes mdat's own
		// header size along with everything else, instead of leaving it
		// stale by deltaB the way a raw tail splice would.
		if err := spliceIntoMdat(mdatBox, mdatPayloadStartOrig, subOffsetOrig, subSizeOrig, newSubBytes); err != nil {
			return err
		}
	}

	// --- Assemble the final buffer. ---
	// root already holds every top-level box (ftyp, moov, mdat, and any
	// others) as parsed from orig; only moov and (when present) mdat were
	// mutated above, so serializing root whole carries everything else
	// through unchanged and keeps every box's header consistent with its
	// current payload.
	finalBuf := bmff.Serialize(root)

	return atomicPublish(path, finalBuf)
}

// spliceIntoMdat replaces the subSizeOrig-byte span at absolute file
// offset subOffsetOrig — which must lie inside mdat's payload, using its
// original (pre-edit) position — with newSubBytes, growing or shrinking
// mdat.Payload so Serialize recomputes mdat's own box-header size along
// with the rest of the tree (§4.3's Δ propagation covers mdat's header
// too, not only the stco/co64 entries that address it).
func spliceIntoMdat(mdat *bmff.Box, mdatPayloadStart, subOffsetOrig, subSizeOrig int64, newSubBytes []byte) error {
	rel := subOffsetOrig - mdatPayloadStart
	if rel < 0 || rel+subSizeOrig > int64(len(mdat.Payload)) {
		return errors.New("container: subtitle sample lies outside mdat")
	}
	out := make([]byte, 0, int64(len(mdat.Payload))-subSizeOrig+int64(len(newSubBytes)))
	out = append(out, mdat.Payload[:rel]...)
	out = append(out, newSubBytes...)
	out = append(out, mdat.Payload[rel+subSizeOrig:]...)
	mdat.Payload = out
	return nil
}

// rewriteWithOverflowRetry applies bmff.RewriteChunkOffsets and, if that
// rewrite upgraded an stco table to co64 (growing moov further), re-applies
// the additional growth once more — the fixed point converges in a single
// extra pass in practice (§4.3/§4.9).
func rewriteWithOverflowRetry(moov *bmff.Box, delta, threshold int64) error {
	sizeBefore := bmff.Recompute(moov)
	upgraded, err := bmff.RewriteChunkOffsets(moov, delta, threshold)
	if err != nil {
		return err
	}
	if !upgraded {
		return nil
	}
	sizeAfter := bmff.Recompute(moov)
	extra := sizeAfter - sizeBefore
	if extra == 0 {
		return nil
	}
	_, err = bmff.RewriteChunkOffsets(moov, extra, threshold)
	return err
}

// boxAbsoluteOffset returns target's byte offset from the start of root's
// serialized bytes, computed by summing the sizes of root's preceding
// children (moov always lives at the top level, after ftyp/free/etc.).
func boxAbsoluteOffset(root, target *bmff.Box) (int64, error) {
	var offset int64
	for _, c := range root.Children {
		if c == target {
			return offset, nil
		}
		offset += bmff.Recompute(c)
	}
	return 0, errors.New("container: box not found at top level")
}

func mdirHdlrPayload() []byte {
	b := make([]byte, 24)
	copy(b[8:12], "mdir")
	copy(b[20:24], "appl")
	return b
}

// encodeMovTextSample wraps a WebVTT document in the mov_text 2-byte
// length-prefix sample format (§4.6).
func encodeMovTextSample(doc string) []byte {
	out := make([]byte, 2+len(doc))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(doc)))
	copy(out[2:], doc)
	return out
}

// readAudioSampleRate reads the first soun track's mdia/mdhd timescale,
// falling back to encoderdelay.DefaultSampleRateHz when absent.
func readAudioSampleRate(moov *bmff.Box) uint32 {
	trak := findTrakByHandler(moov, "soun")
	if trak == nil {
		return encoderdelay.DefaultSampleRateHz
	}
	mdhd := trak.Path("mdia", "mdhd")
	if mdhd == nil || len(mdhd.Payload) < 4 {
		return encoderdelay.DefaultSampleRateHz
	}
	version := mdhd.Payload[0]
	if version == 1 {
		if len(mdhd.Payload) < 28 {
			return encoderdelay.DefaultSampleRateHz
		}
		return binary.BigEndian.Uint32(mdhd.Payload[20:24])
	}
	if len(mdhd.Payload) < 16 {
		return encoderdelay.DefaultSampleRateHz
	}
	return binary.BigEndian.Uint32(mdhd.Payload[12:16])
}

// atomicPublish writes data to path via a temp file + fsync + rename,
// keeping a .bak of the previous contents so a post-write validation
// failure (C11) can restore it (§4.9, §7).
func atomicPublish(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.WithStack(err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WithStack(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WithStack(err)
	}

	bakPath := path + ".bak"
	if orig, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(bakPath, orig, 0o644); err != nil {
			return errors.WithStack(err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return errors.WithStack(err)
	}

	if err := Validate(path); err != nil {
		restored := false
		if bak, rerr := os.ReadFile(bakPath); rerr == nil {
			if werr := os.WriteFile(path, bak, 0o644); werr == nil {
				restored = true
			}
		}
		return &kaierrors.PostWriteValidationFailed{Path: path, Cause: err, Restored: restored}
	}
	os.Remove(bakPath)
	return nil
}
