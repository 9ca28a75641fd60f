package freeform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsapp/kai/pkg/bmff"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	item := Item{
		Namespace: "com.stems",
		Name:      "kaid",
		DataType:  DataTypeUTF8,
		Value:     []byte(`{"song_id":"abc"}`),
	}

	box := Encode(item)
	assert.Equal(t, "----", box.Type)

	got, err := Decode(box)
	require.NoError(t, err)
	assert.Equal(t, item, got)
}

func TestEncodeDecodeBinaryValue(t *testing.T) {
	item := Item{Namespace: "com.stems", Name: "vpch", DataType: DataTypeBinary, Value: []byte{1, 2, 3, 4}}
	box := Encode(item)

	got, err := Decode(box)
	require.NoError(t, err)
	assert.Equal(t, item, got)
}

func TestDecodeRejectsIncompleteAtom(t *testing.T) {
	box := &bmff.Box{Type: "----", Children: []*bmff.Box{
		{Type: "mean", Payload: []byte{0, 0, 0, 0, 'c', 'o', 'm'}},
	}}
	_, err := Decode(box)
	assert.ErrorIs(t, err, ErrNotFreeform)
}

func TestDecodeAllSkipsUnrelatedAndMalformed(t *testing.T) {
	good := Encode(Item{Namespace: "com.stems", Name: "kaid", DataType: DataTypeUTF8, Value: []byte("x")})
	bad := &bmff.Box{Type: "----", Children: []*bmff.Box{{Type: "mean", Payload: []byte{0, 0, 0, 0}}}}
	other := &bmff.Box{Type: "mvhd", Payload: []byte{1, 2, 3}}

	container := &bmff.Box{Type: "ilst", Children: []*bmff.Box{good, bad, other}}
	items, malformed := DecodeAll(container)
	require.Len(t, items, 1)
	assert.Equal(t, 1, malformed)
	assert.True(t, items[0].Match("com.stems", "kaid"))
}
