package image

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Diego740/Analizador-Metadatos/core"
	"github.com/Diego740/Analizador-Metadatos/core/xmp"
)

// WebP is a RIFF container. Metadata rides in EXIF and "XMP " chunks, which
// the extended format (VP8X) flags in its feature byte.

type riffChunk struct {
	fourCC string
	data   []byte
}

type webpPayload struct {
	raw       []byte
	chunks    []riffChunk
	exifNames map[uint16]string
}

const (
	vp8xEXIFFlag = 0x08
	vp8xXMPFlag  = 0x04
)

func decodeWebP(data []byte, m *core.Metadata, order []core.Origin) error {
	if len(data) < 12 {
		return fmt.Errorf("%w: truncated RIFF header", core.ErrMalformedContainer)
	}
	pl := &webpPayload{raw: data}
	pos := 12
	for pos+8 <= len(data) {
		fourCC := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		if pos+8+size > len(data) {
			return fmt.Errorf("%w: chunk %s overruns buffer", core.ErrMalformedContainer, fourCC)
		}
		pl.chunks = append(pl.chunks, riffChunk{fourCC: fourCC, data: data[pos+8 : pos+8+size]})
		pos += 8 + size
		if size%2 != 0 {
			pos++ // chunks are padded to even offsets
		}
	}

	for _, origin := range order {
		for _, c := range pl.chunks {
			switch {
			case origin == core.OriginEXIF && c.fourCC == "EXIF":
				pl.exifNames = decodeEXIF(c.data, m)
			case origin == core.OriginXMP && c.fourCC == "XMP ":
				xmp.Parse(c.data, m)
			}
		}
	}

	m.SetPayload(pl)
	return nil
}

// encodeWebP rebuilds the container: image chunks keep their bytes, the
// EXIF chunk is patched around the model, the XMP chunk is kept only while
// its fields survive. VP8X feature flags track what is present.
func encodeWebP(m *core.Metadata) ([]byte, error) {
	pl, ok := m.Payload().(*webpPayload)
	if !ok {
		return nil, fmt.Errorf("%w: model was not produced by the WebP codec", core.ErrMalformedContainer)
	}
	if !m.Modified() {
		return append([]byte(nil), pl.raw...), nil
	}

	var origEXIF, xmpData []byte
	for _, c := range pl.chunks {
		if c.fourCC == "EXIF" && origEXIF == nil {
			origEXIF = c.data
		}
		if c.fourCC == "XMP " && m.HasOrigin(core.OriginXMP) {
			xmpData = c.data
		}
	}
	exifData := patchEXIF(origEXIF, pl.exifNames, m, false)

	var body bytes.Buffer
	body.WriteString("WEBP")
	for _, c := range pl.chunks {
		if c.fourCC == "EXIF" || c.fourCC == "XMP " {
			continue
		}
		if c.fourCC == "VP8X" && len(c.data) >= 1 {
			patched := append([]byte(nil), c.data...)
			patched[0] &^= vp8xEXIFFlag | vp8xXMPFlag
			if exifData != nil {
				patched[0] |= vp8xEXIFFlag
			}
			if xmpData != nil {
				patched[0] |= vp8xXMPFlag
			}
			writeRIFFChunk(&body, riffChunk{fourCC: "VP8X", data: patched})
			continue
		}
		writeRIFFChunk(&body, c)
	}
	if exifData != nil {
		writeRIFFChunk(&body, riffChunk{fourCC: "EXIF", data: exifData})
	}
	if xmpData != nil {
		writeRIFFChunk(&body, riffChunk{fourCC: "XMP ", data: xmpData})
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

func writeRIFFChunk(out *bytes.Buffer, c riffChunk) {
	out.WriteString(c.fourCC)
	binary.Write(out, binary.LittleEndian, uint32(len(c.data)))
	out.Write(c.data)
	if len(c.data)%2 != 0 {
		out.WriteByte(0)
	}
}
