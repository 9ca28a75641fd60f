package karaoke

import (
	json "github.com/segmentio/encoding/json"
)

// StemColor is one of Traktor's fixed stem highlight colours.
type StemColor string

const (
	StemColorRed    StemColor = "#DC1C3C"
	StemColorOrange StemColor = "#DC7F1C"
	StemColorYellow StemColor = "#D1DC1C"
	StemColorGreen  StemColor = "#1CDC4B"
	StemColorBlue   StemColor = "#1C8CDC"
	StemColorPurple StemColor = "#8C1CDC"
)

var defaultStemColors = []StemColor{StemColorBlue, StemColorGreen, StemColorOrange, StemColorPurple}

// MasteringDSP mirrors the compressor/limiter parameter block Traktor
// expects in a stem file's mastering section. This core ships one fixed
// default; §4.5 states the user may not currently edit it.
type MasteringDSP struct {
	CompressorThresholdDB float64 `json:"compressor_threshold_db"`
	CompressorRatio       float64 `json:"compressor_ratio"`
	LimiterCeilingDB      float64 `json:"limiter_ceiling_db"`
}

// DefaultMasteringDSP is the fixed mastering profile every stem box is
// written with.
var DefaultMasteringDSP = MasteringDSP{
	CompressorThresholdDB: -18,
	CompressorRatio:       2.5,
	LimiterCeilingDB:      -0.3,
}

// StemEntry is one non-mixdown stem's colour label within the Traktor box.
type StemEntry struct {
	Name  string    `json:"name"`
	Color StemColor `json:"color"`
}

// StemBox is the decoded `moov/udta/stem` Traktor NI profile payload.
type StemBox struct {
	Mastering MasteringDSP `json:"mastering"`
	Stems     []StemEntry  `json:"stems"`
}

// BuildStemBox constructs the default Traktor stem box for sources, in
// audio.sources role order, excluding the mixdown stem (stem 0 in the
// Traktor convention is implicitly the mixdown and carries no colour
// label of its own).
func BuildStemBox(sources []Source) StemBox {
	box := StemBox{Mastering: DefaultMasteringDSP}
	i := 0
	for _, s := range sources {
		if s.Role == RoleMixdown {
			continue
		}
		color := defaultStemColors[i%len(defaultStemColors)]
		box.Stems = append(box.Stems, StemEntry{Name: s.Role.String(), Color: color})
		i++
	}
	return box
}

// EncodeStemBox marshals box as the raw JSON payload of the `stem` box.
func EncodeStemBox(box StemBox) ([]byte, error) {
	return json.Marshal(box)
}

// DecodeStemBox parses the raw JSON payload of the `stem` box.
func DecodeStemBox(data []byte) (StemBox, error) {
	var box StemBox
	if err := json.Unmarshal(data, &box); err != nil {
		return StemBox{}, err
	}
	return box, nil
}
