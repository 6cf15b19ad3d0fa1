package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/Diego740/Analizador-Metadatos/core"
)

// exifHeader prefixes the TIFF structure inside a JPEG APP1 segment. PNG
// eXIf chunks and WebP EXIF chunks carry the bare TIFF stream.
var exifHeader = []byte("Exif\x00\x00")

const (
	exifIFDPointer    = 0x8769
	gpsIFDPointer     = 0x8825
	interopIFDPointer = 0xA005
	userCommentTag    = 0x9286
)

// ifd0Tags are the writable text tags stored in the root IFD.
var ifd0Tags = map[string]uint16{
	"ImageDescription": 0x010E,
	"Make":             0x010F,
	"Model":            0x0110,
	"Software":         0x0131,
	"DateTime":         0x0132,
	"Artist":           0x013B,
	"Copyright":        0x8298,
}

// subIFDTags are the writable tags that live in the Exif sub-IFD.
var subIFDTags = map[string]uint16{
	"DateTimeOriginal":  0x9003,
	"DateTimeDigitized": 0x9004,
	"UserComment":       userCommentTag,
}

var writableTagIDs = func() map[uint16]bool {
	ids := make(map[uint16]bool, len(ifd0Tags)+len(subIFDTags))
	for _, id := range ifd0Tags {
		ids[id] = true
	}
	for _, id := range subIFDTags {
		ids[id] = true
	}
	return ids
}()

func isWritableEXIFKey(key string) bool {
	for k := range ifd0Tags {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	for k := range subIFDTags {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// decodeEXIF reads a TIFF stream (with or without the Exif header) into the
// model. Tag values become fields tagged OriginEXIF; GPS coordinates are
// collapsed into decimal degrees plus a maps link. The returned map records
// which tag id produced which field key, so re-encoding can tell a removed
// field apart from a tag that never entered the model.
func decodeEXIF(data []byte, m *core.Metadata) map[uint16]string {
	data = bytes.TrimPrefix(data, exifHeader)
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	names := make(map[uint16]string)
	x.Walk(exifWalker{m: m, names: names})

	if lat, long, err := x.LatLong(); err == nil {
		setIfAbsent(m, core.Field{Key: "GPSPosition",
			Value:  fmt.Sprintf("%.6f, %.6f", lat, long),
			Origin: core.OriginDerived})
		setIfAbsent(m, core.Field{Key: "GPSMapsLink",
			Value:  fmt.Sprintf("https://www.google.com/maps?q=%.6f,%.6f", lat, long),
			Origin: core.OriginDerived})
	}
	return names
}

type exifWalker struct {
	m     *core.Metadata
	names map[uint16]string
}

// skippedEXIFFields are structural or binary tags with no display value.
var skippedEXIFFields = map[string]bool{
	"MakerNote":                        true,
	"ComponentsConfiguration":          true,
	"ExifIFDPointer":                   true,
	"GPSInfoIFDPointer":                true,
	"InteroperabilityIFDPointer":       true,
	"ThumbJPEGInterchangeFormat":       true,
	"ThumbJPEGInterchangeFormatLength": true,
}

func (w exifWalker) Walk(fname exif.FieldName, tag *tiff.Tag) error {
	key := string(fname)
	if skippedEXIFFields[key] || strings.HasPrefix(key, "GPS") {
		return nil // GPS tags surface as the derived decimal position
	}

	var val string
	switch tag.Type {
	case tiff.DTAscii:
		s, err := tag.StringVal()
		if err != nil {
			return nil
		}
		val = strings.TrimRight(s, "\x00")
	case tiff.DTUndefined:
		if key != "UserComment" {
			return nil
		}
		raw := tag.Val
		if len(raw) > 8 {
			raw = raw[8:] // drop the character-code prefix
		}
		val = strings.TrimRight(string(raw), "\x00 ")
	default:
		val = strings.Trim(tag.String(), `"`)
	}
	val = strings.TrimSpace(val)
	if val == "" || len(val) > 256 {
		return nil
	}

	w.names[tag.Id] = key
	setIfAbsent(w.m, core.Field{
		Key:      key,
		Value:    val,
		Origin:   core.OriginEXIF,
		Writable: isWritableEXIFKey(key),
	})
	return nil
}

// setIfAbsent inserts f only when no field with the same key exists, so
// earlier (higher-precedence) structures win collisions.
func setIfAbsent(m *core.Metadata, f core.Field) {
	if _, ok := m.Get(f.Key); ok {
		return
	}
	m.Set(f)
}

func hasKey(m *core.Metadata, key string) bool {
	_, ok := m.Get(key)
	return ok
}

type exifEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	val   []byte // raw value bytes; includes NUL terminator for ASCII
}

// collectEXIFEntries gathers the model's writable EXIF text fields: IFD0 for
// the text tags, the Exif sub-IFD for date and comment tags.
func collectEXIFEntries(m *core.Metadata) (ifd0, sub []exifEntry) {
	for _, f := range m.Fields() {
		if f.Origin != core.OriginEXIF && f.Origin != "" {
			continue
		}
		if id, ok := lookupTag(ifd0Tags, f.Key); ok {
			val := append([]byte(f.Value), 0)
			ifd0 = append(ifd0, exifEntry{tag: id, typ: 2, count: uint32(len(val)), val: val})
			continue
		}
		if id, ok := lookupTag(subIFDTags, f.Key); ok {
			if id == userCommentTag {
				val := append([]byte("ASCII\x00\x00\x00"), f.Value...)
				sub = append(sub, exifEntry{tag: id, typ: 7, count: uint32(len(val)), val: val})
			} else {
				val := append([]byte(f.Value), 0)
				sub = append(sub, exifEntry{tag: id, typ: 2, count: uint32(len(val)), val: val})
			}
		}
	}
	return ifd0, sub
}

// buildEXIF serialises the model's writable EXIF text fields into a fresh
// little-endian TIFF stream. withHeader controls the JPEG-style Exif prefix.
func buildEXIF(m *core.Metadata, withHeader bool) []byte {
	ifd0, sub := collectEXIFEntries(m)
	return serializeTIFF(binary.LittleEndian, withHeader, ifd0, sub, nil)
}

// patchEXIF rewrites the original TIFF stream around the model. Writable
// text tags come from the model; every other tag keeps its original bytes,
// so an unrelated edit does not disturb camera fields such as Orientation
// or ExposureTime. A tag that was decoded into a field (per names) is
// dropped once that field is gone from the model. The GPS sub-IFD follows
// the derived GPSPosition field. Returns nil when nothing remains.
func patchEXIF(orig []byte, names map[uint16]string, m *core.Metadata, withHeader bool) []byte {
	ifd0, sub := collectEXIFEntries(m)
	keepGPS := hasKey(m, "GPSPosition") || hasKey(m, "GPSMapsLink")
	if len(orig) == 0 {
		return serializeTIFF(binary.LittleEndian, withHeader, ifd0, sub, nil)
	}
	if len(ifd0) == 0 && len(sub) == 0 && !m.HasOrigin(core.OriginEXIF) && !keepGPS {
		return nil
	}

	raw := bytes.TrimPrefix(orig, exifHeader)
	t, err := tiff.Decode(bytes.NewReader(raw))
	if err != nil || len(t.Dirs) == 0 {
		return serializeTIFF(binary.LittleEndian, withHeader, ifd0, sub, nil)
	}

	keep := func(tag *tiff.Tag) bool {
		if writableTagIDs[tag.Id] {
			return false // the model governs these
		}
		if key, ok := names[tag.Id]; ok && !hasKey(m, key) {
			return false // its field was removed
		}
		return true
	}
	copyTag := func(tag *tiff.Tag) exifEntry {
		return exifEntry{tag: tag.Id, typ: uint16(tag.Type), count: tag.Count, val: tag.Val}
	}

	var subOff, gpsOff int64 = -1, -1
	for _, tag := range t.Dirs[0].Tags {
		switch tag.Id {
		case exifIFDPointer:
			if v, err := tag.Int64(0); err == nil {
				subOff = v
			}
		case gpsIFDPointer:
			if v, err := tag.Int64(0); err == nil {
				gpsOff = v
			}
		default:
			if keep(tag) {
				ifd0 = append(ifd0, copyTag(tag))
			}
		}
	}
	for _, tag := range decodeIFDAt(raw, subOff, t.Order) {
		if tag.Id != interopIFDPointer && keep(tag) {
			sub = append(sub, copyTag(tag))
		}
	}
	var gps []exifEntry
	if keepGPS {
		for _, tag := range decodeIFDAt(raw, gpsOff, t.Order) {
			gps = append(gps, copyTag(tag))
		}
	}
	return serializeTIFF(t.Order, withHeader, ifd0, sub, gps)
}

// decodeIFDAt reads one IFD's entries at a TIFF-relative offset.
func decodeIFDAt(raw []byte, off int64, order binary.ByteOrder) []*tiff.Tag {
	if off <= 0 || off >= int64(len(raw)) {
		return nil
	}
	r := bytes.NewReader(raw)
	if _, err := r.Seek(off, io.SeekStart); err != nil {
		return nil
	}
	d, _, err := tiff.DecodeDir(r, order)
	if err != nil || d == nil {
		return nil
	}
	return d.Tags
}

// serializeTIFF writes a TIFF stream: IFD0, then the Exif and GPS sub-IFDs,
// then the value area. Entries inside each IFD are sorted by tag id as the
// TIFF layout requires. Returns nil when every IFD is empty.
func serializeTIFF(order binary.ByteOrder, withHeader bool, ifd0, sub, gps []exifEntry) []byte {
	if len(ifd0) == 0 && len(sub) == 0 && len(gps) == 0 {
		return nil
	}

	n0 := len(ifd0)
	if len(sub) > 0 {
		n0++ // pointer entry
	}
	if len(gps) > 0 {
		n0++
	}

	ifd0Start := uint32(8)
	next := ifd0Start + uint32(2+12*n0+4)
	subStart, gpsStart := uint32(0), uint32(0)
	if len(sub) > 0 {
		subStart = next
		next += uint32(2 + 12*len(sub) + 4)
	}
	if len(gps) > 0 {
		gpsStart = next
		next += uint32(2 + 12*len(gps) + 4)
	}
	dataStart := next

	pointer := func(id uint16, at uint32) exifEntry {
		val := make([]byte, 4)
		order.PutUint32(val, at)
		return exifEntry{tag: id, typ: 4, count: 1, val: val}
	}
	if len(sub) > 0 {
		ifd0 = append(ifd0, pointer(exifIFDPointer, subStart))
	}
	if len(gps) > 0 {
		ifd0 = append(ifd0, pointer(gpsIFDPointer, gpsStart))
	}
	for _, es := range [][]exifEntry{ifd0, sub, gps} {
		es := es
		sort.Slice(es, func(i, j int) bool { return es[i].tag < es[j].tag })
	}

	var values bytes.Buffer
	writeIFD := func(out *bytes.Buffer, es []exifEntry) {
		binary.Write(out, order, uint16(len(es)))
		for _, e := range es {
			binary.Write(out, order, e.tag)
			binary.Write(out, order, e.typ)
			binary.Write(out, order, e.count)
			if len(e.val) <= 4 {
				inline := make([]byte, 4)
				copy(inline, e.val)
				out.Write(inline)
				continue
			}
			binary.Write(out, order, dataStart+uint32(values.Len()))
			values.Write(e.val)
		}
		binary.Write(out, order, uint32(0)) // next IFD
	}

	var out bytes.Buffer
	if withHeader {
		out.Write(exifHeader)
	}
	if order == binary.ByteOrder(binary.BigEndian) {
		out.WriteString("MM")
	} else {
		out.WriteString("II")
	}
	binary.Write(&out, order, uint16(0x2A))
	binary.Write(&out, order, ifd0Start)
	writeIFD(&out, ifd0)
	if len(sub) > 0 {
		writeIFD(&out, sub)
	}
	if len(gps) > 0 {
		writeIFD(&out, gps)
	}
	out.Write(values.Bytes())
	return out.Bytes()
}

func lookupTag(tags map[string]uint16, key string) (uint16, bool) {
	for k, id := range tags {
		if strings.EqualFold(k, key) {
			return id, true
		}
	}
	return 0, false
}
