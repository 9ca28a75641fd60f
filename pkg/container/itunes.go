package container

import (
	"github.com/stemsapp/kai/pkg/bmff"
	"github.com/stemsapp/kai/pkg/freeform"
	"github.com/stemsapp/kai/pkg/karaoke"
)

// iTunes data-type codes for the data box's type field (§4.5/§6).
const (
	dataTypeUTF8    = 1
	dataTypeJPEG    = 13
	dataTypePNG     = 14
	dataTypeInteger = 21
)

// managedAtoms are the iTunes atom types this package rebuilds from
// karaoke.ITunesMetadata on every save; anything else in ilst (other
// freeform items, unrecognised atoms) is preserved untouched.
var managedAtoms = map[string]bool{
	"\xa9nam": true, "\xa9ART": true, "\xa9alb": true, "\xa9day": true,
	"\xa9gen": true, "\xa9cmt": true, "\xa9too": true, "covr": true, "stik": true,
}

// buildIlst rebuilds the ilst box: the three com.stems freeform items
// (kaid/vpch/kons), the managed iTunes atoms from meta, and every other
// existing child copied through unchanged.
func buildIlst(old *bmff.Box, meta karaoke.ITunesMetadata, kaidItem, vpchItem, konsBox *bmff.Box) *bmff.Box {
	ilst := &bmff.Box{Type: "ilst"}

	if old != nil {
		for _, c := range old.Children {
			if c.Type == "----" {
				if item, err := freeform.Decode(c); err == nil && isManagedFreeform(item) {
					continue // one of kaid/vpch/kons, rebuilt below
				}
				ilst.Children = append(ilst.Children, c) // third-party freeform atom, preserved
				continue
			}
			if managedAtoms[c.Type] {
				continue // rebuilt below from meta
			}
			ilst.Children = append(ilst.Children, c)
		}
	}

	if meta.Title != "" {
		ilst.Children = append(ilst.Children, textAtom("\xa9nam", meta.Title))
	}
	if meta.Artist != "" {
		ilst.Children = append(ilst.Children, textAtom("\xa9ART", meta.Artist))
	}
	if meta.Album != "" {
		ilst.Children = append(ilst.Children, textAtom("\xa9alb", meta.Album))
	}
	if meta.Year != "" {
		ilst.Children = append(ilst.Children, textAtom("\xa9day", meta.Year))
	}
	if meta.Genre != "" {
		ilst.Children = append(ilst.Children, textAtom("\xa9gen", meta.Genre))
	}
	if meta.Comment != "" {
		ilst.Children = append(ilst.Children, textAtom("\xa9cmt", meta.Comment))
	}
	if meta.Encoder != "" {
		ilst.Children = append(ilst.Children, textAtom("\xa9too", meta.Encoder))
	}
	if len(meta.CoverArt) > 0 {
		dt := dataTypeJPEG
		if meta.CoverMime == "image/png" {
			dt = dataTypePNG
		}
		ilst.Children = append(ilst.Children, dataAtom("covr", dt, meta.CoverArt))
	}
	if meta.MediaType > 0 {
		ilst.Children = append(ilst.Children, dataAtom("stik", dataTypeInteger, []byte{byte(meta.MediaType)}))
	}

	ilst.Children = append(ilst.Children, kaidItem)
	if vpchItem != nil {
		ilst.Children = append(ilst.Children, vpchItem)
	}
	if konsBox != nil {
		ilst.Children = append(ilst.Children, konsBox)
	}

	return ilst
}

// isManagedFreeform reports whether item is one of the three com.stems
// freeform atoms this package rebuilds on every save (kaid/vpch/kons); any
// other (namespace, name) pair belongs to a third party and must be
// preserved unchanged (§4.4, §4.9).
func isManagedFreeform(item freeform.Item) bool {
	return item.Match(freeformNamespace, kaidName) ||
		item.Match(freeformNamespace, vpchName) ||
		item.Match(freeformNamespace, konsName)
}

func textAtom(atomType, value string) *bmff.Box {
	return dataAtom(atomType, dataTypeUTF8, []byte(value))
}

func dataAtom(atomType string, dataType int, value []byte) *bmff.Box {
	data := make([]byte, 8+len(value))
	data[3] = byte(dataType)
	copy(data[8:], value)
	return &bmff.Box{
		Type:     atomType,
		Children: []*bmff.Box{{Type: "data", Payload: data}},
	}
}
