package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Diego740/Analizador-Metadatos/core"
	"github.com/Diego740/Analizador-Metadatos/core/xmp"
)

// A JPEG file is a marker stream: SOI, a run of length-prefixed segments,
// then SOS followed by entropy-coded scan data. Metadata rides in APPn and
// COM segments before the scan; the scan itself is opaque and copied
// verbatim.

type jpegSegment struct {
	marker byte
	data   []byte // payload without marker and length prefix
}

type jpegPayload struct {
	raw       []byte
	segments  []jpegSegment
	scan      []byte // SOS marker through EOF
	exifSeg   []byte // raw APP1 EXIF payload, patched on encode
	exifNames map[uint16]string
	xmpSeg    []byte // raw APP1 XMP payload, re-emitted on encode
	iptcSeg   []byte // raw APP13 payload
}

var (
	xmpPrefix  = []byte("http://ns.adobe.com/xap/1.0/\x00")
	iptcPrefix = []byte("Photoshop 3.0\x00")
)

// jpegMetaMarkers are segments removed when metadata is rewritten. APP2
// (ICC profiles) and APP14 (Adobe color transform) are kept: stripping them
// changes how decoders render the pixels.
var jpegMetaMarkers = map[byte]bool{
	0xE1: true, // APP1: EXIF, XMP
	0xEC: true, // APP12: Ducky
	0xED: true, // APP13: Photoshop / IPTC
	0xFE: true, // COM
}

func decodeJPEG(data []byte, m *core.Metadata, order []core.Origin) error {
	pl := &jpegPayload{raw: data}
	pos := 2 // past SOI
	for pos+2 <= len(data) {
		if data[pos] != 0xFF {
			return fmt.Errorf("%w: expected marker at offset %d", core.ErrMalformedContainer, pos)
		}
		marker := data[pos+1]
		if marker == 0xDA { // SOS: scan data follows, no more segments
			pl.scan = data[pos:]
			break
		}
		if marker == 0xD8 || marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7) {
			pos += 2
			continue
		}
		if pos+4 > len(data) {
			return fmt.Errorf("%w: truncated segment header", core.ErrMalformedContainer)
		}
		length := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		if length < 2 || pos+2+length > len(data) {
			return fmt.Errorf("%w: segment length overruns buffer at offset %d", core.ErrMalformedContainer, pos)
		}
		body := data[pos+4 : pos+2+length]
		pl.segments = append(pl.segments, jpegSegment{marker: marker, data: body})
		switch {
		case marker == 0xE1 && bytes.HasPrefix(body, exifHeader) && pl.exifSeg == nil:
			pl.exifSeg = body
		case marker == 0xE1 && bytes.HasPrefix(body, xmpPrefix) && pl.xmpSeg == nil:
			pl.xmpSeg = body
		case marker == 0xED && bytes.HasPrefix(body, iptcPrefix) && pl.iptcSeg == nil:
			pl.iptcSeg = body
		}
		pos += 2 + length
	}
	if pl.scan == nil {
		return fmt.Errorf("%w: no scan data", core.ErrMalformedContainer)
	}

	// Decode structures in precedence order: earlier ones win key
	// collisions via setIfAbsent.
	for _, origin := range order {
		switch {
		case origin == core.OriginEXIF && pl.exifSeg != nil:
			pl.exifNames = decodeEXIF(pl.exifSeg, m)
		case origin == core.OriginIPTC && pl.iptcSeg != nil:
			decodeIPTC(pl.iptcSeg[len(iptcPrefix):], m)
		case origin == core.OriginXMP && pl.xmpSeg != nil:
			xmp.Parse(pl.xmpSeg[len(xmpPrefix):], m)
		}
	}
	for _, s := range pl.segments {
		if s.marker == 0xFE {
			setIfAbsent(m, core.Field{Key: "Comment", Value: string(s.data), Origin: core.OriginText})
		}
	}

	m.SetPayload(pl)
	return nil
}

// encodeJPEG rebuilds the marker stream. Structural segments keep their
// original order and bytes; metadata segments are re-derived from the
// model and inserted after any leading APP0.
func encodeJPEG(m *core.Metadata) ([]byte, error) {
	pl, ok := m.Payload().(*jpegPayload)
	if !ok {
		return nil, fmt.Errorf("%w: model was not produced by the JPEG codec", core.ErrMalformedContainer)
	}
	if !m.Modified() {
		return append([]byte(nil), pl.raw...), nil
	}

	var meta []jpegSegment
	if exifData := patchEXIF(pl.exifSeg, pl.exifNames, m, true); exifData != nil {
		meta = append(meta, jpegSegment{marker: 0xE1, data: exifData})
	}
	if pl.xmpSeg != nil && m.HasOrigin(core.OriginXMP) {
		meta = append(meta, jpegSegment{marker: 0xE1, data: pl.xmpSeg})
	}
	if pl.iptcSeg != nil && m.HasOrigin(core.OriginIPTC) {
		meta = append(meta, jpegSegment{marker: 0xED, data: pl.iptcSeg})
	}
	if f, ok := m.Get("Comment"); ok && f.Value != "" {
		meta = append(meta, jpegSegment{marker: 0xFE, data: []byte(f.Value)})
	}

	var out bytes.Buffer
	out.Write([]byte{0xFF, 0xD8})
	inserted := false
	insert := func() {
		for _, s := range meta {
			writeJPEGSegment(&out, s)
		}
		inserted = true
	}
	for i, s := range pl.segments {
		if jpegMetaMarkers[s.marker] {
			continue
		}
		// Metadata goes right after a leading APP0 (JFIF) block.
		if !inserted && !(i == 0 && s.marker == 0xE0) {
			insert()
		}
		writeJPEGSegment(&out, s)
	}
	if !inserted {
		insert()
	}
	out.Write(pl.scan)
	return out.Bytes(), nil
}

func writeJPEGSegment(out *bytes.Buffer, s jpegSegment) {
	out.Write([]byte{0xFF, s.marker})
	binary.Write(out, binary.BigEndian, uint16(len(s.data)+2))
	out.Write(s.data)
}

// iptcFieldNames maps record-2 dataset numbers to display names.
var iptcFieldNames = map[byte]string{
	5:   "ObjectName",
	25:  "Keywords",
	55:  "DateCreated",
	80:  "By-line",
	90:  "City",
	101: "Country",
	105: "Headline",
	110: "Credit",
	115: "Source",
	116: "CopyrightNotice",
	120: "Caption",
}

// decodeIPTC walks the Photoshop 8BIM resource blocks for resource 0x0404
// and extracts record-2 datasets.
func decodeIPTC(data []byte, m *core.Metadata) {
	pos := 0
	for pos+12 <= len(data) {
		if !bytes.Equal(data[pos:pos+4], []byte("8BIM")) {
			break
		}
		resID := binary.BigEndian.Uint16(data[pos+4 : pos+6])
		pos += 6
		nameLen := int(data[pos])
		pos += 1 + nameLen
		if (1+nameLen)%2 != 0 {
			pos++ // name is padded to even length
		}
		if pos+4 > len(data) {
			break
		}
		size := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+size > len(data) {
			break
		}
		if resID == 0x0404 {
			decodeIPTCDatasets(data[pos:pos+size], m)
		}
		pos += size
		if size%2 != 0 {
			pos++
		}
	}
}

func decodeIPTCDatasets(data []byte, m *core.Metadata) {
	keywords := []string{}
	pos := 0
	for pos+5 <= len(data) {
		if data[pos] != 0x1C {
			break
		}
		record := data[pos+1]
		dataset := data[pos+2]
		size := int(binary.BigEndian.Uint16(data[pos+3 : pos+5]))
		pos += 5
		if pos+size > len(data) {
			break
		}
		val := string(data[pos : pos+size])
		pos += size
		if record != 2 {
			continue
		}
		name, ok := iptcFieldNames[dataset]
		if !ok || val == "" {
			continue
		}
		if dataset == 25 { // repeated keyword datasets join into one field
			keywords = append(keywords, val)
			continue
		}
		setIfAbsent(m, core.Field{Key: "IPTC:" + name, Value: val, Origin: core.OriginIPTC})
	}
	if len(keywords) > 0 {
		setIfAbsent(m, core.Field{Key: "IPTC:Keywords", Value: strings.Join(keywords, "; "), Origin: core.OriginIPTC})
	}
}
