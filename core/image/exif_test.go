package image

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diego740/Analizador-Metadatos/core"
)

func TestBuildEXIF_RoundTrip(t *testing.T) {
	src := core.NewMetadata(core.KindJPEG)
	src.Set(core.Field{Key: "Make", Value: "Canon", Origin: core.OriginEXIF})
	src.Set(core.Field{Key: "Artist", Value: "Diego García", Origin: core.OriginEXIF})
	src.Set(core.Field{Key: "DateTimeOriginal", Value: "2024:06:01 10:30:00", Origin: core.OriginEXIF})
	src.Set(core.Field{Key: "UserComment", Value: "vacaciones", Origin: core.OriginEXIF})

	raw := buildEXIF(src, true)
	require.NotNil(t, raw)
	assert.True(t, bytes.HasPrefix(raw, exifHeader))

	m := core.NewMetadata(core.KindJPEG)
	decodeEXIF(raw, m)

	for _, want := range []struct{ key, val string }{
		{"Make", "Canon"},
		{"Artist", "Diego García"},
		{"DateTimeOriginal", "2024:06:01 10:30:00"},
		{"UserComment", "vacaciones"},
	} {
		f, ok := m.Get(want.key)
		require.True(t, ok, "missing %s", want.key)
		assert.Equal(t, want.val, f.Value)
		assert.Equal(t, core.OriginEXIF, f.Origin)
		assert.True(t, f.Writable)
	}
}

func TestBuildEXIF_EmptyModel(t *testing.T) {
	m := core.NewMetadata(core.KindJPEG)
	assert.Nil(t, buildEXIF(m, true))

	// Fields from other structures never leak into the EXIF block.
	m.Set(core.Field{Key: "xmp:title", Value: "t", Origin: core.OriginXMP})
	m.Set(core.Field{Key: "IPTC:Caption", Value: "c", Origin: core.OriginIPTC})
	assert.Nil(t, buildEXIF(m, true))
}

func TestBuildEXIF_WithoutHeader(t *testing.T) {
	src := core.NewMetadata(core.KindWebP)
	src.Set(core.Field{Key: "Software", Value: "analizador", Origin: core.OriginEXIF})

	raw := buildEXIF(src, false)
	require.NotNil(t, raw)
	assert.True(t, bytes.HasPrefix(raw, []byte("II")), "bare TIFF stream, little-endian")
}

// exifWithOrientation serialises a TIFF carrying the given writable fields
// plus a non-writable Orientation tag (0x0112, SHORT, value 1).
func exifWithOrientation(fields map[string]string, withHeader bool) []byte {
	src := core.NewMetadata(core.KindJPEG)
	for k, v := range fields {
		src.Set(core.Field{Key: k, Value: v, Origin: core.OriginEXIF})
	}
	ifd0, sub := collectEXIFEntries(src)
	ifd0 = append(ifd0, exifEntry{tag: 0x0112, typ: 3, count: 1, val: []byte{1, 0}})
	return serializeTIFF(binary.LittleEndian, withHeader, ifd0, sub, nil)
}

func TestPatchEXIF_KeepsUnmanagedTags(t *testing.T) {
	orig := exifWithOrientation(map[string]string{"Make": "Canon"}, true)
	require.NotNil(t, orig)

	m := core.NewMetadata(core.KindJPEG)
	names := decodeEXIF(orig, m)
	require.Contains(t, names, uint16(0x0112))
	m.ResetModified()

	// An unrelated edit keeps the camera tag and the prior writable field.
	m.Set(core.Field{Key: "Artist", Value: "Diego", Writable: true})
	patched := patchEXIF(orig, names, m, true)
	require.NotNil(t, patched)

	m2 := core.NewMetadata(core.KindJPEG)
	decodeEXIF(patched, m2)
	orient, ok := m2.Get("Orientation")
	require.True(t, ok, "non-writable tags survive unrelated edits")
	assert.Equal(t, "1", orient.Value)
	make_, ok := m2.Get("Make")
	require.True(t, ok)
	assert.Equal(t, "Canon", make_.Value)
	artist, ok := m2.Get("Artist")
	require.True(t, ok)
	assert.Equal(t, "Diego", artist.Value)
}

func TestPatchEXIF_DropsRemovedFields(t *testing.T) {
	orig := exifWithOrientation(map[string]string{"Make": "Canon"}, false)

	m := core.NewMetadata(core.KindJPEG)
	names := decodeEXIF(orig, m)
	m.ResetModified()
	require.True(t, m.Delete("Orientation"))

	patched := patchEXIF(orig, names, m, false)
	require.NotNil(t, patched)

	m2 := core.NewMetadata(core.KindJPEG)
	decodeEXIF(patched, m2)
	_, ok := m2.Get("Orientation")
	assert.False(t, ok, "deleted fields drop their tags")
	_, ok = m2.Get("Make")
	assert.True(t, ok)
}

func TestPatchEXIF_NilForWipedModel(t *testing.T) {
	orig := exifWithOrientation(map[string]string{"Make": "Canon"}, true)

	m := core.NewMetadata(core.KindJPEG)
	names := decodeEXIF(orig, m)
	wiped := core.Wipe(m)
	assert.Nil(t, patchEXIF(orig, names, wiped, true))
}

func TestDecodeEXIF_GarbageIsIgnored(t *testing.T) {
	m := core.NewMetadata(core.KindJPEG)
	decodeEXIF([]byte("Exif\x00\x00not a tiff stream"), m)
	assert.Equal(t, 0, m.Len())
}

func TestIsWritableEXIFKey(t *testing.T) {
	assert.True(t, isWritableEXIFKey("Make"))
	assert.True(t, isWritableEXIFKey("datetimeoriginal"))
	assert.False(t, isWritableEXIFKey("FNumber"))
}
