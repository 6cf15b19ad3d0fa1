// Package image implements the raster-image metadata codec: JPEG, PNG,
// WebP, and GIF with full read and write support, TIFF and HEIC as
// analyze-only formats.
package image

import (
	"bytes"
	"fmt"

	"github.com/Diego740/Analizador-Metadatos/core"
)

// Codec is the FormatCodec variant for raster images. One instance handles
// one kind, fixed at construction.
type Codec struct {
	kind core.Kind

	// Precedence orders the metadata structures for key collisions: the
	// first origin listed wins. Empty means EXIF, then IPTC, then XMP.
	Precedence []core.Origin
}

// New returns the codec for an image kind. Unknown kinds yield a codec
// whose Decode fails with ErrUnsupportedFormat.
func New(kind core.Kind) *Codec {
	return &Codec{kind: kind}
}

func (c *Codec) precedence() []core.Origin {
	if len(c.Precedence) > 0 {
		return c.Precedence
	}
	return []core.Origin{core.OriginEXIF, core.OriginIPTC, core.OriginXMP}
}

// Decode parses the container for c's kind into the canonical model.
func (c *Codec) Decode(data []byte) (*core.Metadata, error) {
	m := core.NewMetadata(c.kind)
	var err error
	switch c.kind {
	case core.KindJPEG:
		err = decodeJPEG(data, m, c.precedence())
	case core.KindPNG:
		err = decodePNG(data, m)
	case core.KindWebP:
		err = decodeWebP(data, m, c.precedence())
	case core.KindGIF:
		err = decodeGIF(data, m)
	case core.KindTIFF:
		err = decodeTIFF(data, m)
	case core.KindHEIC:
		err = decodeHEIC(data, m)
	default:
		return nil, fmt.Errorf("%w: no image codec for %s", core.ErrUnsupportedFormat, c.kind)
	}
	if err != nil {
		return nil, err
	}
	m.ResetModified()
	return m, nil
}

// Encode re-emits the container. Unmodified models return the source bytes
// verbatim; analyze-only kinds refuse mutation.
func (c *Codec) Encode(m *core.Metadata) ([]byte, error) {
	if m.Kind() != c.kind {
		return nil, fmt.Errorf("%w: cannot encode %s model as %s", core.ErrMalformedContainer, m.Kind(), c.kind)
	}
	switch c.kind {
	case core.KindJPEG:
		return encodeJPEG(m)
	case core.KindPNG:
		return encodePNG(m)
	case core.KindWebP:
		return encodeWebP(m)
	case core.KindGIF:
		return encodeGIF(m)
	case core.KindTIFF, core.KindHEIC:
		return encodeReadOnly(m)
	}
	return nil, fmt.Errorf("%w: no image codec for %s", core.ErrUnsupportedFormat, c.kind)
}

type rawPayload struct {
	raw []byte
}

func encodeReadOnly(m *core.Metadata) ([]byte, error) {
	pl, ok := m.Payload().(*rawPayload)
	if !ok {
		return nil, fmt.Errorf("%w: model carries no raw payload", core.ErrMalformedContainer)
	}
	if m.Modified() {
		return nil, fmt.Errorf("%w: %s supports analysis only", core.ErrUnsupportedFormat, m.Kind())
	}
	return append([]byte(nil), pl.raw...), nil
}

// decodeTIFF reads the file as one TIFF stream.
func decodeTIFF(data []byte, m *core.Metadata) error {
	decodeEXIF(data, m)
	m.SetPayload(&rawPayload{raw: data})
	return nil
}

// decodeHEIC scans the ISOBMFF container for an embedded Exif block rather
// than walking the item location tables; the Exif payload is a plain TIFF
// stream wherever it sits.
func decodeHEIC(data []byte, m *core.Metadata) error {
	if len(data) >= 12 {
		m.Set(core.Field{Key: "Brand", Value: string(bytes.TrimSpace(data[8:12])), Origin: core.OriginDerived})
	}
	if idx := bytes.Index(data, exifHeader); idx >= 0 {
		decodeEXIF(data[idx:], m)
	}
	m.SetPayload(&rawPayload{raw: data})
	return nil
}
