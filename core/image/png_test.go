package image

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diego740/Analizador-Metadatos/core"
)

var (
	ihdrData = []byte{0, 0, 0, 1, 0, 0, 0, 1, 8, 2, 0, 0, 0} // 1x1 RGB
	idatData = []byte{0x78, 0x9C, 0x62, 0x00, 0x01, 0x00, 0x00, 0x05, 0x00, 0x01}
)

func buildPNG(chunks []pngChunk) []byte {
	var out bytes.Buffer
	out.Write(pngSignature)
	for _, c := range chunks {
		writePNGChunk(&out, c)
	}
	return out.Bytes()
}

func fixturePNG() []byte {
	return buildPNG([]pngChunk{
		{typ: "IHDR", data: ihdrData},
		{typ: "tEXt", data: []byte("Author\x00Diego")},
		{typ: "tEXt", data: []byte("Software\x00editor 2.1")},
		{typ: "tIME", data: []byte{0x07, 0xE8, 6, 1, 10, 30, 0}}, // 2024-06-01
		{typ: "IDAT", data: idatData},
		{typ: "IEND"},
	})
}

func TestPNG_Decode(t *testing.T) {
	m, err := New(core.KindPNG).Decode(fixturePNG())
	require.NoError(t, err)

	author, ok := m.Get("Author")
	require.True(t, ok)
	assert.Equal(t, "Diego", author.Value)
	assert.Equal(t, core.OriginText, author.Origin)
	assert.True(t, author.Writable)

	mtime, ok := m.Get("ModificationTime")
	require.True(t, ok)
	assert.Equal(t, "2024-06-01 10:30:00", mtime.Value)
	assert.Equal(t, core.OriginDerived, mtime.Origin)
}

func TestPNG_DecodeEXIFChunk(t *testing.T) {
	src := core.NewMetadata(core.KindPNG)
	src.Set(core.Field{Key: "Make", Value: "Canon", Origin: core.OriginEXIF})
	data := buildPNG([]pngChunk{
		{typ: "IHDR", data: ihdrData},
		{typ: "eXIf", data: buildEXIF(src, false)},
		{typ: "IDAT", data: idatData},
		{typ: "IEND"},
	})

	m, err := New(core.KindPNG).Decode(data)
	require.NoError(t, err)
	make_, ok := m.Get("Make")
	require.True(t, ok)
	assert.Equal(t, "Canon", make_.Value)
	assert.Equal(t, core.OriginEXIF, make_.Origin)
}

func TestPNG_DecodeMalformed(t *testing.T) {
	data := append(append([]byte{}, pngSignature...), 0xFF, 0xFF, 0xFF, 0xFF, 'I', 'H', 'D', 'R')
	_, err := New(core.KindPNG).Decode(data)
	assert.ErrorIs(t, err, core.ErrMalformedContainer)
}

func TestPNG_EncodeUnmodifiedIsVerbatim(t *testing.T) {
	data := fixturePNG()
	codec := New(core.KindPNG)
	m, err := codec.Decode(data)
	require.NoError(t, err)

	out, err := codec.Encode(m)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestPNG_WipeKeepsImageChunks(t *testing.T) {
	codec := New(core.KindPNG)
	m, err := codec.Decode(fixturePNG())
	require.NoError(t, err)

	out, err := codec.Encode(core.Wipe(m))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "Diego")
	assert.Contains(t, string(out), string(idatData))

	clean, err := codec.Decode(out)
	require.NoError(t, err)
	assert.Equal(t, 0, clean.Len())
}

func TestPNG_SetCustomKeepsEXIF(t *testing.T) {
	data := buildPNG([]pngChunk{
		{typ: "IHDR", data: ihdrData},
		{typ: "eXIf", data: exifWithOrientation(map[string]string{"Make": "Canon"}, false)},
		{typ: "IDAT", data: idatData},
		{typ: "IEND"},
	})

	codec := New(core.KindPNG)
	m, err := codec.Decode(data)
	require.NoError(t, err)

	next, err := core.SetCustom(m, map[string]string{"Author": "Diego"})
	require.NoError(t, err)
	out, err := codec.Encode(next)
	require.NoError(t, err)

	m2, err := codec.Decode(out)
	require.NoError(t, err)
	make_, ok := m2.Get("Make")
	require.True(t, ok, "a text edit keeps the eXIf chunk")
	assert.Equal(t, "Canon", make_.Value)
	_, ok = m2.Get("Orientation")
	assert.True(t, ok, "non-writable tags survive too")
	author, ok := m2.Get("Author")
	require.True(t, ok)
	assert.Equal(t, "Diego", author.Value)
}

func TestPNG_SetCustomWritesTextChunks(t *testing.T) {
	codec := New(core.KindPNG)
	m, err := codec.Decode(fixturePNG())
	require.NoError(t, err)

	// PNG text chunks take arbitrary keywords.
	next, err := core.SetCustom(m, map[string]string{"Comment": "vacaciones", "Author": "Ana"})
	require.NoError(t, err)
	out, err := codec.Encode(next)
	require.NoError(t, err)

	m2, err := codec.Decode(out)
	require.NoError(t, err)
	author, _ := m2.Get("Author")
	assert.Equal(t, "Ana", author.Value)
	comment, ok := m2.Get("Comment")
	require.True(t, ok)
	assert.Equal(t, "vacaciones", comment.Value)
	software, ok := m2.Get("Software")
	require.True(t, ok)
	assert.Equal(t, "editor 2.1", software.Value, "merge keeps prior text chunks")

	// tEXt must precede the image data.
	assert.Less(t, bytes.Index(out, []byte("Author")), bytes.Index(out, []byte("IDAT")))
}
