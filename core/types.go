// Package core defines the shared types, the canonical metadata model, and
// the format registry for the metadata analyzer.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure taxonomy. Codecs and the pipeline wrap
// these with context via fmt.Errorf("...: %w", ...).
var (
	// ErrUnsupportedFormat means sniffing failed or no codec exists for the
	// detected kind.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrMalformedContainer means the kind was recognised but the container
	// is structurally invalid, corrupt, or encrypted.
	ErrMalformedContainer = errors.New("malformed container")
	// ErrUnsupportedField means a mutation referenced a key the target
	// format cannot represent.
	ErrUnsupportedField = errors.New("unsupported field")
)

// Kind identifies a container format.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindOOXML Kind = "ooxml"
	KindJPEG  Kind = "jpeg"
	KindPNG   Kind = "png"
	KindWebP  Kind = "webp"
	KindGIF   Kind = "gif"
	KindTIFF  Kind = "tiff"
	KindHEIC  Kind = "heic"

	KindUnknown Kind = "unknown"
)

// Origin labels the structure a field was decoded from, so encoding can
// target the correct segment.
type Origin string

const (
	OriginInfo    Origin = "PDF Info"
	OriginXMP     Origin = "XMP"
	OriginEXIF    Origin = "EXIF"
	OriginIPTC    Origin = "IPTC"
	OriginCore    Origin = "Core Properties"
	OriginApp     Origin = "App Properties"
	OriginText    Origin = "Text Chunk"
	OriginDerived Origin = "Derived"
)

// Field is a single metadata key-value pair.
type Field struct {
	Key      string // canonical field name (e.g. "Title", "Artist")
	Value    string
	Origin   Origin
	Writable bool // whether the codec can write this field back
}

func (f Field) String() string {
	return fmt.Sprintf("%s=%q (%s)", f.Key, f.Value, f.Origin)
}

// Metadata is the format-neutral model every codec decodes into and encodes
// from. Keys are unique case-insensitively; insertion order is preserved so
// re-serialisation and display are deterministic.
type Metadata struct {
	kind     Kind
	fields   []Field
	index    map[string]int
	payload  any // codec-owned raw container handle, opaque to callers
	modified bool
}

// NewMetadata returns an empty model tagged with the codec kind that owns it.
func NewMetadata(kind Kind) *Metadata {
	return &Metadata{kind: kind, index: make(map[string]int)}
}

// Kind reports which codec variant produced this instance. It is fixed at
// decode time; encoding always targets the same kind.
func (m *Metadata) Kind() Kind { return m.kind }

// Len returns the number of fields.
func (m *Metadata) Len() int { return len(m.fields) }

// Fields returns the fields in insertion order. The slice is a copy.
func (m *Metadata) Fields() []Field {
	out := make([]Field, len(m.fields))
	copy(out, m.fields)
	return out
}

// Get looks a field up by key, case-insensitively.
func (m *Metadata) Get(key string) (Field, bool) {
	i, ok := m.index[strings.ToLower(key)]
	if !ok {
		return Field{}, false
	}
	return m.fields[i], true
}

// Set inserts f, or overwrites the value of an existing field with the same
// key (matched case-insensitively). An overwrite keeps the field's position
// and original key casing; setting never duplicates a key.
func (m *Metadata) Set(f Field) {
	norm := strings.ToLower(f.Key)
	if i, ok := m.index[norm]; ok {
		f.Key = m.fields[i].Key
		if f.Origin == "" {
			f.Origin = m.fields[i].Origin
		}
		m.fields[i] = f
	} else {
		m.index[norm] = len(m.fields)
		m.fields = append(m.fields, f)
	}
	m.modified = true
}

// Delete removes a field by key. Reports whether it was present.
func (m *Metadata) Delete(key string) bool {
	norm := strings.ToLower(key)
	i, ok := m.index[norm]
	if !ok {
		return false
	}
	m.fields = append(m.fields[:i], m.fields[i+1:]...)
	delete(m.index, norm)
	for k, j := range m.index {
		if j > i {
			m.index[k] = j - 1
		}
	}
	m.modified = true
	return true
}

// Clear drops every field, leaving kind and payload untouched.
func (m *Metadata) Clear() {
	m.fields = nil
	m.index = make(map[string]int)
	m.modified = true
}

// Clone returns an independent copy of the field set. The payload handle is
// shared: the model never mutates it, only codecs interpret it.
func (m *Metadata) Clone() *Metadata {
	c := &Metadata{
		kind:     m.kind,
		fields:   make([]Field, len(m.fields)),
		index:    make(map[string]int, len(m.index)),
		payload:  m.payload,
		modified: m.modified,
	}
	copy(c.fields, m.fields)
	for k, v := range m.index {
		c.index[k] = v
	}
	return c
}

// Modified reports whether any field was set, deleted, or cleared since
// decode. Codecs reproduce the source bytes verbatim when it is false.
func (m *Metadata) Modified() bool { return m.modified }

// ResetModified clears the dirty flag. Codecs call it at the end of Decode
// so that fields populated during decoding do not count as mutations.
func (m *Metadata) ResetModified() { m.modified = false }

// Payload returns the codec-owned raw container handle.
func (m *Metadata) Payload() any { return m.payload }

// SetPayload attaches the raw container handle. Codec use only.
func (m *Metadata) SetPayload(p any) { m.payload = p }

// HasOrigin reports whether any field came from the given structure.
func (m *Metadata) HasOrigin(o Origin) bool {
	for _, f := range m.fields {
		if f.Origin == o {
			return true
		}
	}
	return false
}

// Summary returns a short string of key fields for quick display.
func (m *Metadata) Summary() string {
	for _, f := range m.fields {
		if f.Key == "Title" || f.Key == "Make" || f.Key == "Author" {
			return f.Key + ": " + f.Value
		}
	}
	return string(m.kind)
}

// Codec decodes a container's metadata into the canonical model and encodes
// a (possibly mutated) model back into a valid container of the same kind,
// preserving all non-metadata payload bytes.
type Codec interface {
	Decode(data []byte) (*Metadata, error)
	Encode(m *Metadata) ([]byte, error)
}

// Signature is the result of sniffing a byte buffer.
type Signature struct {
	Kind       Kind
	MIME       string
	Confidence float64 // 1.0 for exact magic, lower for heuristic matches
}

// Verification is the result of checking a claimed extension against the
// sniffed content.
type Verification struct {
	ClaimedExt   string
	DetectedKind Kind
	Matches      bool
	SuggestedExt string
}

// FormatInfo describes what the codec for a kind supports.
type FormatInfo struct {
	Name           string
	Extensions     []string // canonical extension first
	MIMETypes      []string
	CanWipe        bool
	CanEdit        bool
	WritableFields []string // names the codec can write back
	Freeform       bool     // accepts arbitrary keys (PDF Info, PNG tEXt)
	Notes          string
}

var exifWritableFields = []string{
	"Make", "Model", "Software", "Artist", "Copyright",
	"ImageDescription", "UserComment", "DateTime",
	"DateTimeOriginal", "DateTimeDigitized",
}

var formatInfo = map[Kind]FormatInfo{
	KindPDF: {
		Name:       "PDF",
		Extensions: []string{".pdf"},
		MIMETypes:  []string{"application/pdf"},
		CanWipe:    true,
		CanEdit:    true,
		Freeform:   true,
		Notes:      "Info dict and XMP stream. Mutation appends an incremental update.",
	},
	KindOOXML: {
		Name:       "OOXML",
		Extensions: []string{".docx", ".xlsx", ".pptx", ".docm", ".xlsm", ".pptm"},
		MIMETypes: []string{
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		},
		CanWipe: true,
		CanEdit: true,
		WritableFields: []string{
			"Title", "Subject", "Author", "Keywords", "Description",
			"LastModifiedBy", "Category", "ContentStatus", "Company", "Manager",
		},
		Notes: "OPC ZIP container. Reads docProps/core.xml and docProps/app.xml.",
	},
	KindJPEG: {
		Name:           "JPEG",
		Extensions:     []string{".jpg", ".jpeg"},
		MIMETypes:      []string{"image/jpeg"},
		CanWipe:        true,
		CanEdit:        true,
		WritableFields: exifWritableFields,
		Notes:          "EXIF, XMP, IPTC segments. Edit writes EXIF text fields.",
	},
	KindPNG: {
		Name:       "PNG",
		Extensions: []string{".png"},
		MIMETypes:  []string{"image/png"},
		CanWipe:    true,
		CanEdit:    true,
		Freeform:   true,
		Notes:      "tEXt, iTXt, eXIf, tIME chunks. Edit writes tEXt keywords.",
	},
	KindWebP: {
		Name:           "WebP",
		Extensions:     []string{".webp"},
		MIMETypes:      []string{"image/webp"},
		CanWipe:        true,
		CanEdit:        true,
		WritableFields: exifWritableFields,
		Notes:          "EXIF and XMP chunks in RIFF container.",
	},
	KindGIF: {
		Name:       "GIF",
		Extensions: []string{".gif"},
		MIMETypes:  []string{"image/gif"},
		CanWipe:    true,
		Notes:      "Comment extensions. Wipe removes all comment blocks.",
	},
	KindTIFF: {
		Name:       "TIFF",
		Extensions: []string{".tiff", ".tif"},
		MIMETypes:  []string{"image/tiff"},
		Notes:      "IFD-based metadata. Analyze only.",
	},
	KindHEIC: {
		Name:       "HEIC/HEIF",
		Extensions: []string{".heic", ".heif"},
		MIMETypes:  []string{"image/heic", "image/heif"},
		Notes:      "EXIF embedded in ISOBMFF container. Analyze only.",
	},
}

// InfoFor returns the capability record for a kind.
func InfoFor(kind Kind) (FormatInfo, bool) {
	info, ok := formatInfo[kind]
	return info, ok
}

// Kinds lists every registered kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindPDF, KindOOXML, KindJPEG, KindPNG, KindWebP, KindGIF, KindTIFF, KindHEIC}
}

// CanWrite reports whether a kind's codec can persist the given key.
func CanWrite(kind Kind, key string) bool {
	info, ok := formatInfo[kind]
	if !ok || !info.CanEdit {
		return false
	}
	if info.Freeform {
		return true
	}
	for _, k := range info.WritableFields {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// MIMEForExtension maps a lowercase extension to the MIME type expected for
// it, or "" when unknown.
func MIMEForExtension(ext string) string {
	for _, info := range formatInfo {
		for i, e := range info.Extensions {
			if e == ext {
				if i < len(info.MIMETypes) {
					return info.MIMETypes[i]
				}
				return info.MIMETypes[0]
			}
		}
	}
	return ""
}
