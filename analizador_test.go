package analizador_test

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analizador "github.com/Diego740/Analizador-Metadatos"
	"github.com/Diego740/Analizador-Metadatos/core"
)

// minimalJPEG is a bare marker stream: SOI, SOS, two entropy bytes, EOI.
var minimalJPEG = []byte{0xFF, 0xD8, 0xFF, 0xDA, 0x00, 0x04, 0x00, 0x00, 0x12, 0x34, 0xFF, 0xD9}

func buildPDF(info map[string]string) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	var offsets []int
	addObj := func(body string) {
		offsets = append(offsets, b.Len())
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	addObj("<< /Type /Catalog /Pages 2 0 R >>")
	addObj("<< /Type /Pages /Kids [] /Count 0 >>")
	infoNum := 0
	if len(info) > 0 {
		var d strings.Builder
		d.WriteString("<<")
		for k, v := range info {
			fmt.Fprintf(&d, " /%s (%s)", k, v)
		}
		d.WriteString(" >>")
		addObj(d.String())
		infoNum = len(offsets)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R", len(offsets)+1)
	if infoNum > 0 {
		fmt.Fprintf(&b, " /Info %d 0 R", infoNum)
	}
	fmt.Fprintf(&b, " >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return []byte(b.String())
}

func buildDocx(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"[Content_Types].xml": "<Types></Types>",
		"word/document.xml":   "<document/>",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestPipeline_DetectTrustsContentOnly(t *testing.T) {
	pipe := analizador.New(analizador.Config{})

	sig, err := pipe.Detect(minimalJPEG)
	require.NoError(t, err)
	assert.Equal(t, core.KindJPEG, sig.Kind)

	// A lying extension is reported, never trusted.
	v, err := pipe.VerifyExtension(".pdf", minimalJPEG)
	require.NoError(t, err)
	assert.False(t, v.Matches)
	assert.Equal(t, core.KindJPEG, v.DetectedKind)
	assert.Equal(t, ".jpg", v.SuggestedExt)
}

func TestPipeline_EmptyInput(t *testing.T) {
	pipe := analizador.New(analizador.Config{})

	_, err := pipe.Detect(nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
	_, err = pipe.Analyze([]byte{})
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
	_, err = pipe.Wipe([]byte{})
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestPipeline_SizeLimit(t *testing.T) {
	pipe := analizador.New(analizador.Config{MaxInputSize: 4})
	_, err := pipe.Detect([]byte("%PDF-1.4\n"))
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestPipeline_AnalyzeAndWipePDF(t *testing.T) {
	pipe := analizador.New(analizador.Config{})
	data := buildPDF(map[string]string{"Title": "Informe", "Author": "Diego"})

	m, err := pipe.Analyze(data)
	require.NoError(t, err)
	title, ok := m.Get("Title")
	require.True(t, ok)
	assert.Equal(t, "Informe", title.Value)

	out, err := pipe.Wipe(data)
	require.NoError(t, err)
	clean, err := pipe.Analyze(out)
	require.NoError(t, err)
	assert.False(t, clean.HasOrigin(core.OriginInfo))
}

func TestPipeline_WipeRefusedForAnalyzeOnlyFormat(t *testing.T) {
	pipe := analizador.New(analizador.Config{})
	tiff := []byte{0x49, 0x49, 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00}
	_, err := pipe.Wipe(tiff)
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestPipeline_SetCustomOnDocx(t *testing.T) {
	pipe := analizador.New(analizador.Config{})
	data := buildDocx(t)

	out, err := pipe.SetCustom(data, map[string]string{"Author": "Diego"})
	require.NoError(t, err)

	m, err := pipe.Analyze(out)
	require.NoError(t, err)
	author, ok := m.Get("Author")
	require.True(t, ok)
	assert.Equal(t, "Diego", author.Value)

	_, err = pipe.SetCustom(data, map[string]string{"NotAProperty": "x"})
	assert.ErrorIs(t, err, core.ErrUnsupportedField)
}

func TestPipeline_TemplateOnPDF(t *testing.T) {
	pipe := analizador.New(analizador.Config{})
	data := buildPDF(map[string]string{"Title": "Borrador", "Producer": "word"})

	out, err := pipe.ApplyTemplate(data, map[string]string{"Title": "Final", "Author": "ACME"})
	require.NoError(t, err)

	m, err := pipe.Analyze(out)
	require.NoError(t, err)
	title, _ := m.Get("Title")
	assert.Equal(t, "Final", title.Value)
	_, hasProducer := m.Get("Producer")
	assert.False(t, hasProducer, "template replaces the whole field set")
}

func TestPipeline_UnmodifiedRoundTrip(t *testing.T) {
	pipe := analizador.New(analizador.Config{})
	data := buildPDF(map[string]string{"Title": "Informe"})

	m, err := pipe.Analyze(data)
	require.NoError(t, err)
	out, err := pipe.Encode(m)
	require.NoError(t, err)
	assert.Equal(t, data, out, "no mutation means byte-identical output")
}
