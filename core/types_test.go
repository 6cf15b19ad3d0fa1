package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_SetAndGet(t *testing.T) {
	m := NewMetadata(KindPDF)
	m.Set(Field{Key: "Title", Value: "Informe", Origin: OriginInfo, Writable: true})
	m.Set(Field{Key: "Author", Value: "Diego", Origin: OriginInfo, Writable: true})

	f, ok := m.Get("title") // lookup is case-insensitive
	require.True(t, ok)
	assert.Equal(t, "Title", f.Key)
	assert.Equal(t, "Informe", f.Value)
	assert.Equal(t, 2, m.Len())
}

func TestMetadata_OverwriteKeepsPositionAndCasing(t *testing.T) {
	m := NewMetadata(KindPDF)
	m.Set(Field{Key: "Title", Value: "v1"})
	m.Set(Field{Key: "Author", Value: "a"})
	m.Set(Field{Key: "TITLE", Value: "v2"})

	require.Equal(t, 2, m.Len())
	fields := m.Fields()
	assert.Equal(t, "Title", fields[0].Key)
	assert.Equal(t, "v2", fields[0].Value)
}

func TestMetadata_OverwriteKeepsOrigin(t *testing.T) {
	m := NewMetadata(KindJPEG)
	m.Set(Field{Key: "Make", Value: "Canon", Origin: OriginEXIF})
	m.Set(Field{Key: "Make", Value: "Nikon"}) // no origin on the update

	f, _ := m.Get("Make")
	assert.Equal(t, OriginEXIF, f.Origin)
	assert.Equal(t, "Nikon", f.Value)
}

func TestMetadata_Delete(t *testing.T) {
	m := NewMetadata(KindPNG)
	m.Set(Field{Key: "A", Value: "1"})
	m.Set(Field{Key: "B", Value: "2"})
	m.Set(Field{Key: "C", Value: "3"})

	require.True(t, m.Delete("b"))
	assert.False(t, m.Delete("b"))
	assert.Equal(t, 2, m.Len())

	// Remaining fields stay addressable after index reshuffle.
	f, ok := m.Get("C")
	require.True(t, ok)
	assert.Equal(t, "3", f.Value)
}

func TestMetadata_CloneIsIndependent(t *testing.T) {
	m := NewMetadata(KindOOXML)
	m.Set(Field{Key: "Title", Value: "orig"})

	c := m.Clone()
	c.Set(Field{Key: "Title", Value: "changed"})
	c.Set(Field{Key: "Extra", Value: "x"})

	f, _ := m.Get("Title")
	assert.Equal(t, "orig", f.Value)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, c.Len())
}

func TestMetadata_ModifiedFlag(t *testing.T) {
	m := NewMetadata(KindPDF)
	m.Set(Field{Key: "Title", Value: "x"})
	assert.True(t, m.Modified())

	m.ResetModified()
	assert.False(t, m.Modified())

	m.Clear()
	assert.True(t, m.Modified())
	assert.Equal(t, 0, m.Len())
}

func TestCanWrite(t *testing.T) {
	assert.True(t, CanWrite(KindPDF, "AnythingGoes")) // freeform
	assert.True(t, CanWrite(KindOOXML, "Author"))
	assert.True(t, CanWrite(KindOOXML, "author")) // case-insensitive
	assert.False(t, CanWrite(KindOOXML, "Bogus"))
	assert.True(t, CanWrite(KindJPEG, "Artist"))
	assert.False(t, CanWrite(KindGIF, "Comment")) // wipe-only format
	assert.False(t, CanWrite(KindTIFF, "Make"))   // analyze-only format
}

func TestMIMEForExtension(t *testing.T) {
	assert.Equal(t, "application/pdf", MIMEForExtension(".pdf"))
	assert.Equal(t, "image/jpeg", MIMEForExtension(".jpeg"))
	assert.Equal(t, "", MIMEForExtension(".txt"))
}
