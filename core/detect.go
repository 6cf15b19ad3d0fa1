package core

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
)

// headerWindow is how many leading bytes the signature rules inspect.
const headerWindow = 16

// Detect sniffs the true container kind from content bytes, ignoring any
// claimed file name or extension. It fails with ErrUnsupportedFormat when
// the buffer is too short or no known signature matches.
//
// Rules are ordered so that more specific signatures are probed before
// generic ones: an OOXML document is a zip archive, so the zip rule must
// check for the [Content_Types].xml entry before rejecting the buffer as a
// plain archive.
func Detect(data []byte) (Signature, error) {
	if len(data) == 0 {
		return Signature{Kind: KindUnknown}, fmt.Errorf("%w: empty input", ErrUnsupportedFormat)
	}
	if len(data) < 4 {
		return Signature{Kind: KindUnknown}, fmt.Errorf("%w: %d bytes is too short to identify", ErrUnsupportedFormat, len(data))
	}

	b := data
	if len(b) > headerWindow {
		b = b[:headerWindow]
	}

	switch {
	// PDF: %PDF-
	case bytes.HasPrefix(b, []byte("%PDF-")):
		return Signature{Kind: KindPDF, MIME: "application/pdf", Confidence: 1.0}, nil

	// Zip local file header: PK\x03\x04. OOXML if the archive carries
	// [Content_Types].xml, otherwise unsupported.
	case bytes.HasPrefix(b, []byte("PK\x03\x04")):
		return detectZip(data)

	// JPEG: SOI marker FF D8 FF
	case b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF:
		return Signature{Kind: KindJPEG, MIME: "image/jpeg", Confidence: 1.0}, nil

	// PNG: 89 50 4E 47 0D 0A 1A 0A
	case bytes.HasPrefix(b, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return Signature{Kind: KindPNG, MIME: "image/png", Confidence: 1.0}, nil

	// GIF: GIF87a or GIF89a
	case bytes.HasPrefix(b, []byte("GIF87a")) || bytes.HasPrefix(b, []byte("GIF89a")):
		return Signature{Kind: KindGIF, MIME: "image/gif", Confidence: 1.0}, nil

	// WebP: RIFF????WEBP
	case len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP")):
		return Signature{Kind: KindWebP, MIME: "image/webp", Confidence: 1.0}, nil

	// TIFF: II 2A 00 (little-endian) or MM 00 2A (big-endian)
	case bytes.HasPrefix(b, []byte{0x49, 0x49, 0x2A, 0x00}) ||
		bytes.HasPrefix(b, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return Signature{Kind: KindTIFF, MIME: "image/tiff", Confidence: 1.0}, nil

	// HEIC/HEIF: ISOBMFF ftyp box with a heif-family brand
	case len(b) >= 12 && bytes.Equal(b[4:8], []byte("ftyp")):
		return detectFtyp(b)
	}

	return Signature{Kind: KindUnknown}, fmt.Errorf("%w: no known signature in header", ErrUnsupportedFormat)
}

// detectZip distinguishes OOXML packages from plain zip archives by probing
// the central directory for [Content_Types].xml.
func detectZip(data []byte) (Signature, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		// Recognised zip magic but unreadable directory: likely truncated.
		return Signature{Kind: KindUnknown}, fmt.Errorf("%w: zip archive with unreadable directory", ErrUnsupportedFormat)
	}

	hasTypes := false
	variant := ""
	for _, f := range zr.File {
		switch {
		case f.Name == "[Content_Types].xml":
			hasTypes = true
		case strings.HasPrefix(f.Name, "word/"):
			variant = "wordprocessingml.document"
		case strings.HasPrefix(f.Name, "xl/"):
			variant = "spreadsheetml.sheet"
		case strings.HasPrefix(f.Name, "ppt/"):
			variant = "presentationml.presentation"
		}
	}
	if !hasTypes {
		return Signature{Kind: KindUnknown}, fmt.Errorf("%w: zip archive without [Content_Types].xml", ErrUnsupportedFormat)
	}
	mime := "application/vnd.openxmlformats-officedocument"
	if variant != "" {
		mime += "." + variant
	}
	return Signature{Kind: KindOOXML, MIME: mime, Confidence: 1.0}, nil
}

var heifBrands = map[string]bool{
	"heic": true, "heix": true, "heim": true, "heis": true,
	"hevc": true, "mif1": true, "msf1": true, "heif": true,
}

func detectFtyp(b []byte) (Signature, error) {
	brand := strings.TrimSpace(string(b[8:12]))
	if heifBrands[brand] {
		return Signature{Kind: KindHEIC, MIME: "image/heic", Confidence: 0.9}, nil
	}
	return Signature{Kind: KindUnknown}, fmt.Errorf("%w: ISOBMFF brand %q is not a supported image", ErrUnsupportedFormat, brand)
}
