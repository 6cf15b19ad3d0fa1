package image

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"strings"

	"github.com/Diego740/Analizador-Metadatos/core"
)

// PNG is a chunk stream after an 8-byte signature. Text metadata lives in
// tEXt/zTXt/iTXt chunks, EXIF in eXIf, last-modified in tIME. Image data
// chunks are opaque and copied verbatim.

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

type pngChunk struct {
	typ  string
	data []byte
}

type pngPayload struct {
	raw       []byte
	chunks    []pngChunk
	exif      []byte // raw eXIf chunk data, patched on encode
	exifNames map[uint16]string
}

// pngMetaChunks are dropped when metadata is rewritten.
var pngMetaChunks = map[string]bool{
	"tEXt": true, "zTXt": true, "iTXt": true, "eXIf": true, "tIME": true,
}

func decodePNG(data []byte, m *core.Metadata) error {
	pl := &pngPayload{raw: data}
	pos := len(pngSignature)
	for pos < len(data) {
		if pos+8 > len(data) {
			return fmt.Errorf("%w: truncated chunk header", core.ErrMalformedContainer)
		}
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		typ := string(data[pos+4 : pos+8])
		if pos+12+length > len(data) {
			return fmt.Errorf("%w: chunk %s overruns buffer", core.ErrMalformedContainer, typ)
		}
		pl.chunks = append(pl.chunks, pngChunk{typ: typ, data: data[pos+8 : pos+8+length]})
		pos += 12 + length
		if typ == "IEND" {
			break
		}
	}

	for _, c := range pl.chunks {
		switch c.typ {
		case "tEXt":
			if key, val, ok := splitTextChunk(c.data); ok {
				setIfAbsent(m, core.Field{Key: key, Value: val, Origin: core.OriginText, Writable: true})
			}
		case "zTXt":
			if key, val, ok := inflateZTXt(c.data); ok {
				setIfAbsent(m, core.Field{Key: key, Value: val, Origin: core.OriginText, Writable: true})
			}
		case "iTXt":
			if key, val, ok := splitITXt(c.data); ok {
				setIfAbsent(m, core.Field{Key: key, Value: val, Origin: core.OriginText, Writable: true})
			}
		case "eXIf":
			pl.exif = c.data
			pl.exifNames = decodeEXIF(c.data, m)
		case "tIME":
			if len(c.data) == 7 {
				y := binary.BigEndian.Uint16(c.data[0:2])
				setIfAbsent(m, core.Field{
					Key: "ModificationTime",
					Value: fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
						y, c.data[2], c.data[3], c.data[4], c.data[5], c.data[6]),
					Origin: core.OriginDerived,
				})
			}
		}
	}

	m.SetPayload(pl)
	return nil
}

func splitTextChunk(data []byte) (string, string, bool) {
	i := bytes.IndexByte(data, 0)
	if i <= 0 {
		return "", "", false
	}
	return string(data[:i]), string(data[i+1:]), true
}

func inflateZTXt(data []byte) (string, string, bool) {
	i := bytes.IndexByte(data, 0)
	if i <= 0 || i+2 >= len(data) || data[i+1] != 0 { // method 0 = zlib
		return "", "", false
	}
	zr, err := zlib.NewReader(bytes.NewReader(data[i+2:]))
	if err != nil {
		return "", "", false
	}
	defer zr.Close()
	val, err := io.ReadAll(io.LimitReader(zr, 1<<20))
	if err != nil {
		return "", "", false
	}
	return string(data[:i]), string(val), true
}

// splitITXt handles uncompressed iTXt only; compressed payloads are left to
// the wipe path, which drops the chunk whole.
func splitITXt(data []byte) (string, string, bool) {
	i := bytes.IndexByte(data, 0)
	if i <= 0 || i+2 >= len(data) {
		return "", "", false
	}
	if data[i+1] != 0 { // compression flag
		return "", "", false
	}
	rest := data[i+3:] // skip compression method
	j := bytes.IndexByte(rest, 0)
	if j < 0 {
		return "", "", false
	}
	rest = rest[j+1:] // skip language tag
	k := bytes.IndexByte(rest, 0)
	if k < 0 {
		return "", "", false
	}
	return string(data[:i]), string(rest[k+1:]), true
}

// encodePNG rebuilds the chunk stream: structural chunks keep their bytes,
// text fields become tEXt chunks and surviving EXIF fields a patched eXIf
// chunk, inserted before the first IDAT.
func encodePNG(m *core.Metadata) ([]byte, error) {
	pl, ok := m.Payload().(*pngPayload)
	if !ok {
		return nil, fmt.Errorf("%w: model was not produced by the PNG codec", core.ErrMalformedContainer)
	}
	if !m.Modified() {
		return append([]byte(nil), pl.raw...), nil
	}

	var texts []pngChunk
	for _, f := range m.Fields() {
		if f.Origin != core.OriginText && f.Origin != "" {
			continue
		}
		key := sanitizeTextKey(f.Key)
		if key == "" {
			continue
		}
		body := append([]byte(key), 0)
		body = append(body, f.Value...)
		texts = append(texts, pngChunk{typ: "tEXt", data: body})
	}

	// An eXIf chunk is patched around the model when the source had one;
	// new fields on EXIF-less files go to tEXt only.
	var exifData []byte
	if pl.exif != nil {
		exifData = patchEXIF(pl.exif, pl.exifNames, m, false)
	}

	var out bytes.Buffer
	out.Write(pngSignature)
	inserted := false
	for _, c := range pl.chunks {
		if pngMetaChunks[c.typ] {
			continue
		}
		if c.typ == "IDAT" && !inserted {
			if exifData != nil {
				writePNGChunk(&out, pngChunk{typ: "eXIf", data: exifData})
			}
			for _, t := range texts {
				writePNGChunk(&out, t)
			}
			inserted = true
		}
		writePNGChunk(&out, c)
	}
	return out.Bytes(), nil
}

func writePNGChunk(out *bytes.Buffer, c pngChunk) {
	binary.Write(out, binary.BigEndian, uint32(len(c.data)))
	out.WriteString(c.typ)
	out.Write(c.data)
	crc := crc32.NewIEEE()
	crc.Write([]byte(c.typ))
	crc.Write(c.data)
	binary.Write(out, binary.BigEndian, crc.Sum32())
}

// sanitizeTextKey fits a field key into the tEXt keyword rules: Latin-1,
// 1-79 bytes, no NULs.
func sanitizeTextKey(key string) string {
	key = strings.Map(func(r rune) rune {
		if r == 0 || r > 0xFF {
			return -1
		}
		return r
	}, key)
	if len(key) > 79 {
		key = key[:79]
	}
	return strings.TrimSpace(key)
}
