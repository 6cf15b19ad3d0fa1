package image

import (
	"fmt"
	"strconv"

	"github.com/Diego740/Analizador-Metadatos/core"
)

// GIF metadata is limited to comment extension blocks. Decoding walks the
// block structure without touching the LZW image data; wiping copies every
// block except comments.

type gifPayload struct {
	raw []byte
}

func decodeGIF(data []byte, m *core.Metadata) error {
	if len(data) < 13 {
		return fmt.Errorf("%w: truncated GIF header", core.ErrMalformedContainer)
	}
	m.Set(core.Field{Key: "GIFVersion", Value: string(data[3:6]), Origin: core.OriginDerived})
	w := int(data[6]) | int(data[7])<<8
	h := int(data[8]) | int(data[9])<<8
	m.Set(core.Field{Key: "Dimensions", Value: strconv.Itoa(w) + "x" + strconv.Itoa(h), Origin: core.OriginDerived})

	comments, err := walkGIF(data, nil)
	if err != nil {
		return err
	}
	for i, c := range comments {
		key := "Comment"
		if i > 0 {
			key = fmt.Sprintf("Comment_%d", i+1)
		}
		m.Set(core.Field{Key: key, Value: c, Origin: core.OriginText})
	}

	m.SetPayload(&gifPayload{raw: data})
	return nil
}

// encodeGIF supports wipe only: comment blocks are omitted, everything else
// is copied verbatim.
func encodeGIF(m *core.Metadata) ([]byte, error) {
	pl, ok := m.Payload().(*gifPayload)
	if !ok {
		return nil, fmt.Errorf("%w: model was not produced by the GIF codec", core.ErrMalformedContainer)
	}
	if !m.Modified() {
		return append([]byte(nil), pl.raw...), nil
	}
	out := make([]byte, 0, len(pl.raw))
	if _, err := walkGIF(pl.raw, func(b []byte) { out = append(out, b...) }); err != nil {
		return nil, err
	}
	return out, nil
}

// walkGIF walks the block structure, returning the comment texts. When keep
// is non-nil every byte range except comment extensions is forwarded to it.
func walkGIF(data []byte, keep func([]byte)) ([]string, error) {
	malformed := func(what string) error {
		return fmt.Errorf("%w: %s", core.ErrMalformedContainer, what)
	}

	pos := 13 // header + logical screen descriptor
	if len(data) < pos {
		return nil, malformed("truncated header")
	}
	flags := data[10]
	if flags&0x80 != 0 { // global color table
		pos += 3 * (1 << ((flags & 0x07) + 1))
	}
	if pos > len(data) {
		return nil, malformed("truncated global color table")
	}
	if keep != nil {
		keep(data[:pos])
	}

	skipSubBlocks := func() error {
		for {
			if pos >= len(data) {
				return malformed("truncated sub-blocks")
			}
			size := int(data[pos])
			pos++
			if size == 0 {
				return nil
			}
			if pos+size > len(data) {
				return malformed("sub-block overruns buffer")
			}
			pos += size
		}
	}

	var comments []string
	for pos < len(data) {
		start := pos
		switch data[pos] {
		case 0x3B: // trailer
			if keep != nil {
				keep(data[pos:])
			}
			return comments, nil
		case 0x21: // extension
			if pos+2 > len(data) {
				return nil, malformed("truncated extension")
			}
			label := data[pos+1]
			pos += 2
			if label == 0xFE { // comment
				var text []byte
				for {
					if pos >= len(data) {
						return nil, malformed("truncated comment")
					}
					size := int(data[pos])
					pos++
					if size == 0 {
						break
					}
					if pos+size > len(data) {
						return nil, malformed("comment overruns buffer")
					}
					text = append(text, data[pos:pos+size]...)
					pos += size
				}
				comments = append(comments, string(text))
				continue // comment bytes are never forwarded
			}
			if err := skipSubBlocks(); err != nil {
				return nil, err
			}
			if keep != nil {
				keep(data[start:pos])
			}
		case 0x2C: // image descriptor
			if pos+10 > len(data) {
				return nil, malformed("truncated image descriptor")
			}
			lflags := data[pos+9]
			pos += 10
			if lflags&0x80 != 0 { // local color table
				pos += 3 * (1 << ((lflags & 0x07) + 1))
			}
			if pos >= len(data) {
				return nil, malformed("truncated local color table")
			}
			pos++ // LZW minimum code size
			if err := skipSubBlocks(); err != nil {
				return nil, err
			}
			if keep != nil {
				keep(data[start:pos])
			}
		default:
			return nil, malformed(fmt.Sprintf("unknown block 0x%02X at offset %d", data[pos], pos))
		}
	}
	return nil, malformed("missing trailer")
}
