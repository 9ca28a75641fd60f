package fixtures

import (
	"github.com/stemsapp/kai/pkg/bmff"
	"github.com/stemsapp/kai/pkg/freeform"
	"github.com/stemsapp/kai/pkg/karaoke"
)

// WithKaraoke re-serializes data (as produced by Build) with moov/udta/
// meta/ilst synthesized from scratch and populated with song's kaid (and
// vpch/kons when present) freeform items — the shape container.Load
// expects to find without going through a full container.Save first, for
// tests that want to exercise the read path against a known-good payload
// directly.
func WithKaraoke(data []byte, song *karaoke.Song) ([]byte, error) {
	root, err := bmff.Parse(data)
	if err != nil {
		return nil, err
	}
	moov := root.Find("moov")

	var moovStart int64
	for _, c := range root.Children {
		if c == moov {
			break
		}
		moovStart += bmff.Recompute(c)
	}
	oldMoovSize := bmff.Recompute(moov)
	moovEnd := moovStart + oldMoovSize

	kaidJSON, err := karaoke.EncodeKaid(song)
	if err != nil {
		return nil, err
	}
	kaidItem := freeform.Encode(freeform.Item{Namespace: "com.stems", Name: "kaid", DataType: freeform.DataTypeUTF8, Value: kaidJSON})

	ilst := &bmff.Box{Type: "ilst", Children: []*bmff.Box{kaidItem}}
	if song.VocalPitch != nil && len(song.VocalPitch.Values) > 0 {
		ilst.Children = append(ilst.Children, freeform.Encode(freeform.Item{
			Namespace: "com.stems", Name: "vpch", DataType: freeform.DataTypeBinary, Value: karaoke.EncodePitch(song.VocalPitch),
		}))
	}
	if len(song.Onsets) > 0 {
		ilst.Children = append(ilst.Children, freeform.Encode(freeform.Item{
			Namespace: "com.stems", Name: "kons", DataType: freeform.DataTypeBinary, Value: karaoke.EncodeOnsets(song.Onsets),
		}))
	}

	meta := &bmff.Box{Type: "meta", Preamble: []byte{0, 0, 0, 0}, Children: []*bmff.Box{
		{Type: "hdlr", Payload: mdirHdlrPayload()},
		ilst,
	}}
	udta := &bmff.Box{Type: "udta", Children: []*bmff.Box{meta}}

	stemBox := karaoke.BuildStemBox(song.Audio.Sources)
	stemJSON, err := karaoke.EncodeStemBox(stemBox)
	if err != nil {
		return nil, err
	}
	udta.Children = append(udta.Children, &bmff.Box{Type: "stem", Payload: stemJSON})

	moov.Children = append(moov.Children, udta)
	delta := bmff.Recompute(moov) - oldMoovSize
	if delta != 0 {
		if _, err := bmff.RewriteChunkOffsets(moov, delta, moovEnd); err != nil {
			return nil, err
		}
	}
	return bmff.Serialize(root), nil
}

func mdirHdlrPayload() []byte {
	b := make([]byte, 24)
	copy(b[8:12], "mdir")
	copy(b[20:24], "appl")
	return b
}
