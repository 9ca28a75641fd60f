// Package freeform implements the iTunes-style freeform ("----") metadata
// atom codec: encoding a (namespace, name, value) triplet as a mean/name/data
// box triplet, and decoding it back.
package freeform

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/stemsapp/kai/pkg/bmff"
)

// Data type codes used in the data box's type field. These mirror the
// iTunes metadata atom convention; custom application atoms use either
// UTF8 for JSON/text payloads or Binary for raw byte streams.
const (
	DataTypeBinary = 0
	DataTypeUTF8   = 1
)

// Item is a decoded freeform atom.
type Item struct {
	Namespace string
	Name      string
	DataType  uint32
	Value     []byte
}

// ErrNotFreeform is returned by Decode when given a box that is not a
// well-formed "----" atom.
var ErrNotFreeform = errors.New("freeform: not a well-formed freeform atom")

// Encode builds a "----" box from namespace, name, and a typed value.
func Encode(item Item) *bmff.Box {
	mean := make([]byte, 4+len(item.Namespace))
	copy(mean[4:], item.Namespace)

	name := make([]byte, 4+len(item.Name))
	copy(name[4:], item.Name)

	data := make([]byte, 8+len(item.Value))
	binary.BigEndian.PutUint32(data[0:4], item.DataType)
	copy(data[8:], item.Value)

	return &bmff.Box{
		Type: "----",
		Children: []*bmff.Box{
			{Type: "mean", Payload: mean},
			{Type: "name", Payload: name},
			{Type: "data", Payload: data},
		},
	}
}

// Decode reads the mean/name/data children of a "----" box.
func Decode(box *bmff.Box) (Item, error) {
	if box == nil || box.Type != "----" {
		return Item{}, errors.WithStack(ErrNotFreeform)
	}

	mean := box.Find("mean")
	name := box.Find("name")
	data := box.Find("data")
	if mean == nil || name == nil || data == nil {
		return Item{}, errors.WithStack(ErrNotFreeform)
	}
	if len(mean.Payload) < 4 || len(name.Payload) < 4 || len(data.Payload) < 8 {
		return Item{}, errors.WithStack(ErrNotFreeform)
	}

	return Item{
		Namespace: string(mean.Payload[4:]),
		Name:      string(name.Payload[4:]),
		DataType:  binary.BigEndian.Uint32(data.Payload[0:4]),
		Value:     data.Payload[8:],
	}, nil
}

// DecodeAll decodes every "----" child of container (typically an ilst box),
// skipping and reporting boxes that fail to decode rather than aborting.
func DecodeAll(container *bmff.Box) (items []Item, malformed int) {
	for _, c := range container.Children {
		if c.Type != "----" {
			continue
		}
		item, err := Decode(c)
		if err != nil {
			malformed++
			continue
		}
		items = append(items, item)
	}
	return items, malformed
}

// Match reports whether item identifies the given namespace and name.
func (item Item) Match(namespace, name string) bool {
	return item.Namespace == namespace && item.Name == name
}
