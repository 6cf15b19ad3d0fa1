// Package pdf implements the PDF metadata codec.
//
// Decoding walks the trailer chain from startxref to locate the document
// information dictionary and any XMP packet. Encoding never rewrites the
// document body: it appends a PDF incremental update (a replacement Info
// object, a cross-reference section for it, and a new trailer chained to
// the previous one), so every content object stays byte-identical to the
// source. XMP packets are blanked in place at their original offsets.
//
// Documents using cross-reference streams (PDF 1.5+) are readable, but
// mutation is refused: a classic xref section may not be appended to a
// stream-xref file, and this codec does not synthesize xref streams.
package pdf

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/Diego740/Analizador-Metadatos/core"
	"github.com/Diego740/Analizador-Metadatos/core/xmp"
)

// Codec is the FormatCodec variant for PDF containers.
type Codec struct{}

// payload is the opaque raw-container handle: the original bytes plus the
// structural facts encoding needs to append an update.
type payload struct {
	data    []byte
	size    int64 // trailer /Size
	root    ref
	id      []any // trailer /ID, re-emitted on update
	prev    int64 // offset of the newest existing xref section
	info    ref   // zero ref when the document has no Info dict
	hasInfo bool
	classic bool // classic xref table vs cross-reference stream
	xmpAt   int  // XMP packet range in data, -1 when absent
	xmpEnd  int

	// hadInfoFields and hadXMPFields record whether decoding yielded any
	// fields from those structures, so encoding can tell "already clean"
	// apart from "wiped just now".
	hadInfoFields bool
	hadXMPFields  bool
}

const maxTrailerChain = 32

// Decode extracts the Info dictionary and XMP packet into the canonical
// model, holding everything else as the raw payload.
func (Codec) Decode(data []byte) (*core.Metadata, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: missing %%PDF- header", core.ErrMalformedContainer)
	}

	pl := &payload{data: data, xmpAt: -1}
	m := core.NewMetadata(core.KindPDF)

	if len(data) >= 8 {
		m.Set(core.Field{Key: "PDFVersion", Value: string(data[5:8]), Origin: core.OriginDerived})
	}

	start, err := findStartXref(data)
	if err != nil {
		return nil, err
	}
	pl.prev = start

	if err := readTrailerChain(data, start, pl); err != nil {
		return nil, err
	}
	if pl.root == (ref{}) {
		return nil, fmt.Errorf("%w: trailer has no /Root entry", core.ErrMalformedContainer)
	}

	if pl.hasInfo {
		d, err := findObjectDict(data, pl.info)
		if err == nil {
			for _, k := range d.keys {
				v, _ := d.get(k)
				if s, ok := renderInfoValue(v); ok {
					m.Set(core.Field{Key: k, Value: s, Origin: core.OriginInfo, Writable: true})
				}
			}
		}
		// Info object inside an object stream is simply not listed; the
		// document stays analyzable and a mutation replaces it wholesale.
	}

	pl.hadInfoFields = m.HasOrigin(core.OriginInfo)

	if s, e := findXMPPacket(data); s >= 0 {
		pl.xmpAt, pl.xmpEnd = s, e
		xmp.Parse(data[s:e], m)
	}
	pl.hadXMPFields = m.HasOrigin(core.OriginXMP)

	m.SetPayload(pl)
	m.ResetModified()
	return m, nil
}

// Encode re-emits the container. An unmodified model returns the source
// bytes verbatim; otherwise an incremental update is appended.
func (Codec) Encode(m *core.Metadata) ([]byte, error) {
	pl, ok := m.Payload().(*payload)
	if !ok {
		return nil, fmt.Errorf("%w: model was not produced by the PDF codec", core.ErrMalformedContainer)
	}
	if m.Kind() != core.KindPDF {
		return nil, fmt.Errorf("%w: cannot encode %s model as PDF", core.ErrMalformedContainer, m.Kind())
	}
	if !m.Modified() {
		return append([]byte(nil), pl.data...), nil
	}
	// A clean document stays clean: when the model holds nothing to write
	// and decoding found nothing removable, appending an update would only
	// grow the file on every repeated wipe.
	if !hasWritableFields(m) && !pl.hadInfoFields && !pl.hadXMPFields {
		return append([]byte(nil), pl.data...), nil
	}
	if !pl.classic {
		return nil, fmt.Errorf("%w: document uses cross-reference streams, incremental update not supported", core.ErrMalformedContainer)
	}

	out := append([]byte(nil), pl.data...)

	// Blank the XMP packet in place when its fields are gone: same length,
	// so every recorded offset in the xref stays valid.
	if pl.xmpAt >= 0 && !m.HasOrigin(core.OriginXMP) {
		blankXMP(out[pl.xmpAt:pl.xmpEnd])
	}

	infoBody := buildInfoDict(m)
	objNum, objGen := pl.info.num, pl.info.gen
	size := pl.size
	if !pl.hasInfo {
		objNum, objGen = int(size), 0
		size++
	}

	if out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	objOff := len(out)
	out = append(out, []byte(fmt.Sprintf("%d %d obj\n%s\nendobj\n", objNum, objGen, infoBody))...)

	xrefOff := len(out)
	var b bytes.Buffer
	b.WriteString("xref\n0 1\n0000000000 65535 f \n")
	fmt.Fprintf(&b, "%d 1\n%010d %05d n \n", objNum, objOff, objGen)
	b.WriteString("trailer\n<< /Size ")
	b.WriteString(strconv.FormatInt(size, 10))
	fmt.Fprintf(&b, " /Root %d %d R", pl.root.num, pl.root.gen)
	fmt.Fprintf(&b, " /Prev %d", pl.prev)
	fmt.Fprintf(&b, " /Info %d %d R", objNum, objGen)
	if idStr := renderID(pl.id); idStr != "" {
		b.WriteString(" /ID ")
		b.WriteString(idStr)
	}
	b.WriteString(" >>\nstartxref\n")
	b.WriteString(strconv.Itoa(xrefOff))
	b.WriteString("\n%%EOF\n")
	out = append(out, b.Bytes()...)

	return out, nil
}

// hasWritableFields reports whether the model carries anything the encoder
// would persist: Info entries, XMP properties, or freshly set keys.
func hasWritableFields(m *core.Metadata) bool {
	for _, f := range m.Fields() {
		switch f.Origin {
		case core.OriginInfo, core.OriginXMP, "":
			return true
		}
	}
	return false
}

// buildInfoDict serialises the model's Info fields in insertion order.
// A wiped model yields an empty dictionary.
func buildInfoDict(m *core.Metadata) string {
	var b strings.Builder
	b.WriteString("<<")
	for _, f := range m.Fields() {
		if f.Origin != core.OriginInfo && f.Origin != "" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(encodeName(f.Key))
		b.WriteByte(' ')
		b.WriteString(encodeTextString(f.Value))
	}
	b.WriteString(" >>")
	return b.String()
}

func findStartXref(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("%w: no startxref marker", core.ErrMalformedContainer)
	}
	p := &parser{data: data, pos: idx + len("startxref")}
	v, err := p.parseObject()
	if err != nil {
		return 0, fmt.Errorf("%w: unreadable startxref offset", core.ErrMalformedContainer)
	}
	off, ok := v.(int64)
	if !ok || off < 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("%w: startxref offset out of range", core.ErrMalformedContainer)
	}
	return off, nil
}

// readTrailerChain walks trailer dictionaries from the newest backwards,
// filling structural facts the first time each appears.
func readTrailerChain(data []byte, off int64, pl *payload) error {
	first := true
	for i := 0; i < maxTrailerChain && off >= 0 && off < int64(len(data)); i++ {
		d, classic, err := readTrailerAt(data, int(off))
		if err != nil {
			return err
		}
		if first {
			pl.classic = classic
		}
		if d.has("Encrypt") {
			return fmt.Errorf("%w: document is encrypted", core.ErrMalformedContainer)
		}
		if pl.size == 0 {
			if n, ok := d.intVal("Size"); ok {
				pl.size = n
			}
		}
		if pl.root == (ref{}) {
			if r, ok := d.m["Root"].(ref); ok {
				pl.root = r
			}
		}
		if !pl.hasInfo {
			if r, ok := d.m["Info"].(ref); ok {
				pl.info = r
				pl.hasInfo = true
			}
		}
		if pl.id == nil {
			if arr, ok := d.m["ID"].([]any); ok {
				pl.id = arr
			}
		}
		first = false
		prev, ok := d.intVal("Prev")
		if !ok {
			return nil
		}
		off = prev
	}
	return nil
}

// readTrailerAt parses the trailer dictionary reachable from one xref
// offset: either the dict after a classic "xref" table, or the stream
// dictionary of a cross-reference stream object.
func readTrailerAt(data []byte, off int) (*dict, bool, error) {
	p := &parser{data: data, pos: off}
	p.skipWS()

	if bytes.HasPrefix(p.peek(4), []byte("xref")) {
		rel := bytes.Index(data[off:], []byte("trailer"))
		if rel < 0 {
			return nil, true, fmt.Errorf("%w: xref section without trailer", core.ErrMalformedContainer)
		}
		tp := &parser{data: data, pos: off + rel + len("trailer")}
		d, err := tp.parseDict()
		if err != nil {
			return nil, true, fmt.Errorf("%w: unreadable trailer dictionary: %v", core.ErrMalformedContainer, err)
		}
		return d, true, nil
	}

	// Cross-reference stream: "N G obj << ... >> stream".
	if _, err := p.parseObject(); err != nil { // object number
		return nil, false, fmt.Errorf("%w: unreadable cross-reference table", core.ErrMalformedContainer)
	}
	if _, err := p.parseObject(); err != nil { // generation
		return nil, false, fmt.Errorf("%w: unreadable cross-reference table", core.ErrMalformedContainer)
	}
	p.skipWS()
	if !bytes.HasPrefix(p.peek(3), []byte("obj")) {
		return nil, false, fmt.Errorf("%w: unreadable cross-reference table", core.ErrMalformedContainer)
	}
	p.pos += 3
	d, err := p.parseDict()
	if err != nil {
		return nil, false, fmt.Errorf("%w: unreadable cross-reference stream dictionary: %v", core.ErrMalformedContainer, err)
	}
	return d, false, nil
}

// findObjectDict locates "N G obj" in the raw bytes (the last occurrence
// wins, since incremental updates append newer generations) and parses the
// dictionary that follows.
func findObjectDict(data []byte, r ref) (*dict, error) {
	pat := []byte(fmt.Sprintf("%d %d obj", r.num, r.gen))
	idx := len(data)
	for {
		idx = bytes.LastIndex(data[:idx], pat)
		if idx < 0 {
			return nil, fmt.Errorf("object %d %d not found", r.num, r.gen)
		}
		if idx == 0 || isWhitespace(data[idx-1]) {
			break
		}
	}
	p := &parser{data: data, pos: idx + len(pat)}
	d, err := p.parseDict()
	if err != nil {
		return nil, err
	}
	return d, nil
}

// renderInfoValue flattens an Info entry to its display string. Streams,
// arrays, and references are not Info-style values and are skipped.
func renderInfoValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case name:
		return string(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func renderID(id []any) string {
	if len(id) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('[')
	for _, v := range id {
		s, ok := v.(string)
		if !ok {
			return ""
		}
		b.WriteByte('<')
		for i := 0; i < len(s); i++ {
			fmt.Fprintf(&b, "%02X", s[i])
		}
		b.WriteByte('>')
	}
	b.WriteByte(']')
	return b.String()
}

// findXMPPacket locates an XMP packet by its xpacket markers, falling back
// to the bare xmpmeta element.
func findXMPPacket(data []byte) (int, int) {
	start := bytes.Index(data, []byte("<?xpacket begin="))
	if start < 0 {
		start = bytes.Index(data, []byte("<x:xmpmeta"))
		if start < 0 {
			return -1, -1
		}
		end := bytes.Index(data[start:], []byte("</x:xmpmeta>"))
		if end < 0 {
			return -1, -1
		}
		return start, start + end + len("</x:xmpmeta>")
	}
	rel := bytes.Index(data[start:], []byte("<?xpacket end="))
	if rel < 0 {
		return -1, -1
	}
	close := bytes.IndexByte(data[start+rel:], '>')
	if close < 0 {
		return -1, -1
	}
	return start, start + rel + close + 1
}

// blankXMP overwrites a packet region with an empty, length-preserving
// packet so recorded stream offsets and lengths stay valid.
func blankXMP(dst []byte) {
	const head = `<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?><x:xmpmeta xmlns:x="adobe:ns:meta/"></x:xmpmeta>`
	const tail = `<?xpacket end="w"?>`
	for i := range dst {
		dst[i] = ' '
	}
	if len(dst) >= len(head)+len(tail) {
		copy(dst, head)
		copy(dst[len(dst)-len(tail):], tail)
	}
}
