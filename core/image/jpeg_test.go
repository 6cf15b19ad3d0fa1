package image

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diego740/Analizador-Metadatos/core"
)

var (
	jfifPayload = []byte("JFIF\x00\x01\x02\x00\x00\x01\x00\x01\x00\x00")
	scanBytes   = []byte{0xFF, 0xDA, 0x00, 0x04, 0x00, 0x00, 0x12, 0x34, 0x56, 0x78, 0xFF, 0xD9}
)

func exifSegment(t *testing.T, fields map[string]string) []byte {
	t.Helper()
	m := core.NewMetadata(core.KindJPEG)
	for k, v := range fields {
		m.Set(core.Field{Key: k, Value: v, Origin: core.OriginEXIF, Writable: true})
	}
	seg := buildEXIF(m, true)
	require.NotNil(t, seg)
	return seg
}

func buildJPEG(segments []jpegSegment) []byte {
	var out bytes.Buffer
	out.Write([]byte{0xFF, 0xD8})
	for _, s := range segments {
		out.Write([]byte{0xFF, s.marker})
		binary.Write(&out, binary.BigEndian, uint16(len(s.data)+2))
		out.Write(s.data)
	}
	out.Write(scanBytes)
	return out.Bytes()
}

func fixtureJPEG(t *testing.T) []byte {
	return buildJPEG([]jpegSegment{
		{marker: 0xE0, data: jfifPayload},
		{marker: 0xE1, data: exifSegment(t, map[string]string{"Make": "Canon", "Model": "EOS R5"})},
		{marker: 0xFE, data: []byte("shot on holiday")},
		{marker: 0xDB, data: bytes.Repeat([]byte{0x10}, 64)},
	})
}

func TestJPEG_Decode(t *testing.T) {
	m, err := New(core.KindJPEG).Decode(fixtureJPEG(t))
	require.NoError(t, err)
	assert.False(t, m.Modified())

	make_, ok := m.Get("Make")
	require.True(t, ok)
	assert.Equal(t, "Canon", make_.Value)
	assert.Equal(t, core.OriginEXIF, make_.Origin)
	assert.True(t, make_.Writable)

	comment, ok := m.Get("Comment")
	require.True(t, ok)
	assert.Equal(t, "shot on holiday", comment.Value)
	assert.Equal(t, core.OriginText, comment.Origin)
}

func TestJPEG_DecodeMalformed(t *testing.T) {
	// Truncated before any SOS marker.
	_, err := New(core.KindJPEG).Decode([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x05, 0x01})
	assert.ErrorIs(t, err, core.ErrMalformedContainer)
}

func TestJPEG_EncodeUnmodifiedIsVerbatim(t *testing.T) {
	data := fixtureJPEG(t)
	codec := New(core.KindJPEG)
	m, err := codec.Decode(data)
	require.NoError(t, err)

	out, err := codec.Encode(m)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestJPEG_WipeDropsSegmentsKeepsScan(t *testing.T) {
	codec := New(core.KindJPEG)
	m, err := codec.Decode(fixtureJPEG(t))
	require.NoError(t, err)

	out, err := codec.Encode(core.Wipe(m))
	require.NoError(t, err)

	assert.True(t, bytes.HasSuffix(out, scanBytes), "scan data is copied verbatim")
	assert.NotContains(t, string(out), "Canon")
	assert.NotContains(t, string(out), "shot on holiday")

	clean, err := codec.Decode(out)
	require.NoError(t, err)
	assert.Equal(t, 0, clean.Len())

	// Structural segments survive.
	assert.Contains(t, string(out), string(jfifPayload))
}

func TestJPEG_SetCustomRoundTrip(t *testing.T) {
	codec := New(core.KindJPEG)
	m, err := codec.Decode(fixtureJPEG(t))
	require.NoError(t, err)

	next, err := core.SetCustom(m, map[string]string{"Artist": "Diego", "DateTimeOriginal": "2024-06-01 10:30:00"})
	require.NoError(t, err)
	out, err := codec.Encode(next)
	require.NoError(t, err)

	m2, err := codec.Decode(out)
	require.NoError(t, err)
	artist, ok := m2.Get("Artist")
	require.True(t, ok)
	assert.Equal(t, "Diego", artist.Value)
	dto, ok := m2.Get("DateTimeOriginal")
	require.True(t, ok)
	assert.Equal(t, "2024:06:01 10:30:00", dto.Value, "dates take EXIF colon form")
	make_, ok := m2.Get("Make")
	require.True(t, ok)
	assert.Equal(t, "Canon", make_.Value, "merge keeps prior EXIF fields")
}

func TestJPEG_SetCustomKeepsCameraTags(t *testing.T) {
	data := buildJPEG([]jpegSegment{
		{marker: 0xE0, data: jfifPayload},
		{marker: 0xE1, data: exifWithOrientation(map[string]string{"Make": "Canon"}, true)},
	})

	codec := New(core.KindJPEG)
	m, err := codec.Decode(data)
	require.NoError(t, err)

	next, err := core.SetCustom(m, map[string]string{"Artist": "Diego"})
	require.NoError(t, err)
	out, err := codec.Encode(next)
	require.NoError(t, err)

	m2, err := codec.Decode(out)
	require.NoError(t, err)
	_, ok := m2.Get("Orientation")
	assert.True(t, ok, "non-writable tags survive unrelated edits")
	make_, ok := m2.Get("Make")
	require.True(t, ok)
	assert.Equal(t, "Canon", make_.Value)
	artist, ok := m2.Get("Artist")
	require.True(t, ok)
	assert.Equal(t, "Diego", artist.Value)
}

func TestJPEG_DecodeXMPAndPrecedence(t *testing.T) {
	packet := []byte(`<x:xmpmeta xmlns:x="adobe:ns:meta/">` +
		`<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">` +
		`<rdf:Description xmlns:dc="http://purl.org/dc/elements/1.1/">` +
		`<dc:creator><rdf:Seq><rdf:li>Ana</rdf:li></rdf:Seq></dc:creator>` +
		`</rdf:Description></rdf:RDF></x:xmpmeta>`)
	data := buildJPEG([]jpegSegment{
		{marker: 0xE0, data: jfifPayload},
		{marker: 0xE1, data: exifSegment(t, map[string]string{"Make": "Canon"})},
		{marker: 0xE1, data: append(append([]byte{}, xmpPrefix...), packet...)},
	})

	codec := New(core.KindJPEG)
	codec.Precedence = []core.Origin{core.OriginXMP, core.OriginEXIF, core.OriginIPTC}
	m, err := codec.Decode(data)
	require.NoError(t, err)

	creator, ok := m.Get("xmp:creator")
	require.True(t, ok)
	assert.Equal(t, "Ana", creator.Value)
	assert.Equal(t, core.OriginXMP, creator.Origin)
	_, ok = m.Get("Make")
	assert.True(t, ok, "lower-precedence structures still decode")
}

func TestIPTC_Datasets(t *testing.T) {
	// One 8BIM resource holding caption and two keywords.
	var iim bytes.Buffer
	writeDataset := func(ds byte, val string) {
		iim.Write([]byte{0x1C, 2, ds})
		binary.Write(&iim, binary.BigEndian, uint16(len(val)))
		iim.WriteString(val)
	}
	writeDataset(120, "playa al atardecer")
	writeDataset(25, "playa")
	writeDataset(25, "verano")

	var res bytes.Buffer
	res.WriteString("8BIM")
	binary.Write(&res, binary.BigEndian, uint16(0x0404))
	res.Write([]byte{0x00, 0x00}) // empty padded name
	binary.Write(&res, binary.BigEndian, uint32(iim.Len()))
	res.Write(iim.Bytes())

	m := core.NewMetadata(core.KindJPEG)
	decodeIPTC(res.Bytes(), m)

	caption, ok := m.Get("IPTC:Caption")
	require.True(t, ok)
	assert.Equal(t, "playa al atardecer", caption.Value)
	keywords, ok := m.Get("IPTC:Keywords")
	require.True(t, ok)
	assert.Equal(t, "playa; verano", keywords.Value)
}
