// Package ooxml implements the metadata codec for Office Open XML packages
// (.docx, .xlsx, .pptx and their macro-enabled variants).
//
// Metadata lives in two OPC parts, docProps/core.xml and docProps/app.xml.
// Encoding rewrites only those parts; every other zip entry is copied with
// its original compressed bytes, so document content, media, and styles
// survive byte-for-byte.
package ooxml

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Diego740/Analizador-Metadatos/core"
)

// Codec is the FormatCodec variant for OOXML containers.
type Codec struct{}

type payload struct {
	data    []byte
	hasCore bool
	hasApp  bool
}

const (
	corePartName = "docProps/core.xml"
	appPartName  = "docProps/app.xml"
	typesName    = "[Content_Types].xml"
)

// coreProps mirrors docProps/core.xml. Go's xml decoder matches on local
// names, so the cp:/dc:/dcterms: prefixes need no namespace plumbing here.
type coreProps struct {
	Title          string `xml:"title"`
	Subject        string `xml:"subject"`
	Creator        string `xml:"creator"`
	Keywords       string `xml:"keywords"`
	Description    string `xml:"description"`
	LastModifiedBy string `xml:"lastModifiedBy"`
	Revision       string `xml:"revision"`
	Created        string `xml:"created"`
	Modified       string `xml:"modified"`
	Category       string `xml:"category"`
	ContentStatus  string `xml:"contentStatus"`
}

// appProps mirrors docProps/app.xml.
type appProps struct {
	Application string `xml:"Application"`
	AppVersion  string `xml:"AppVersion"`
	Company     string `xml:"Company"`
	Manager     string `xml:"Manager"`
	Template    string `xml:"Template"`
	TotalTime   string `xml:"TotalTime"`
	Pages       string `xml:"Pages"`
	Words       string `xml:"Words"`
	Characters  string `xml:"Characters"`
	Lines       string `xml:"Lines"`
	Paragraphs  string `xml:"Paragraphs"`
	Slides      string `xml:"Slides"`
}

// Decode reads the package's property parts into the canonical model.
func (Codec) Decode(data []byte) (*core.Metadata, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable zip directory: %v", core.ErrMalformedContainer, err)
	}

	pl := &payload{data: data}
	m := core.NewMetadata(core.KindOOXML)

	hasTypes := false
	for _, f := range zr.File {
		switch f.Name {
		case typesName:
			hasTypes = true
		case corePartName:
			pl.hasCore = true
		case appPartName:
			pl.hasApp = true
		}
	}
	if !hasTypes {
		return nil, fmt.Errorf("%w: zip package without %s", core.ErrMalformedContainer, typesName)
	}

	if pl.hasCore {
		var cp coreProps
		if err := readPart(zr, corePartName, &cp); err != nil {
			return nil, err
		}
		setCore(m, &cp)
	}
	if pl.hasApp {
		var ap appProps
		if err := readPart(zr, appPartName, &ap); err != nil {
			return nil, err
		}
		setApp(m, &ap)
	}

	m.SetPayload(pl)
	m.ResetModified()
	return m, nil
}

func readPart(zr *zip.Reader, part string, dst any) error {
	rc, err := zr.Open(part)
	if err != nil {
		return fmt.Errorf("%w: cannot open %s: %v", core.ErrMalformedContainer, part, err)
	}
	defer rc.Close()
	if err := xml.NewDecoder(rc).Decode(dst); err != nil {
		return fmt.Errorf("%w: cannot parse %s: %v", core.ErrMalformedContainer, part, err)
	}
	return nil
}

func setCore(m *core.Metadata, cp *coreProps) {
	set := func(key, val string, writable bool) {
		if val != "" {
			m.Set(core.Field{Key: key, Value: val, Origin: core.OriginCore, Writable: writable})
		}
	}
	set("Title", cp.Title, true)
	set("Subject", cp.Subject, true)
	set("Author", cp.Creator, true)
	set("Keywords", cp.Keywords, true)
	set("Description", cp.Description, true)
	set("LastModifiedBy", cp.LastModifiedBy, true)
	set("Category", cp.Category, true)
	set("ContentStatus", cp.ContentStatus, true)
	set("Revision", cp.Revision, false)
	set("Created", cp.Created, false)
	set("Modified", cp.Modified, false)
}

func setApp(m *core.Metadata, ap *appProps) {
	set := func(key, val string, writable bool) {
		if val != "" {
			m.Set(core.Field{Key: key, Value: val, Origin: core.OriginApp, Writable: writable})
		}
	}
	set("Company", ap.Company, true)
	set("Manager", ap.Manager, true)
	set("Application", ap.Application, false)
	set("AppVersion", ap.AppVersion, false)
	set("Template", ap.Template, false)
	set("TotalTime", ap.TotalTime, false)
	set("Pages", ap.Pages, false)
	set("Words", ap.Words, false)
	set("Characters", ap.Characters, false)
	set("Lines", ap.Lines, false)
	set("Paragraphs", ap.Paragraphs, false)
	set("Slides", ap.Slides, false)
}

// Encode re-emits the package, replacing only the property parts. An
// unmodified model returns the source bytes verbatim.
func (Codec) Encode(m *core.Metadata) ([]byte, error) {
	pl, ok := m.Payload().(*payload)
	if !ok {
		return nil, fmt.Errorf("%w: model was not produced by the OOXML codec", core.ErrMalformedContainer)
	}
	if m.Kind() != core.KindOOXML {
		return nil, fmt.Errorf("%w: cannot encode %s model as OOXML", core.ErrMalformedContainer, m.Kind())
	}
	if !m.Modified() {
		return append([]byte(nil), pl.data...), nil
	}

	zr, err := zip.NewReader(bytes.NewReader(pl.data), int64(len(pl.data)))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable zip directory: %v", core.ErrMalformedContainer, err)
	}

	coreXML := buildCoreXML(m)
	appXML := buildAppXML(m)
	needCore := !pl.hasCore
	needApp := !pl.hasApp && hasAppFields(m)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		switch f.Name {
		case corePartName:
			if err := writePart(zw, f.Name, coreXML); err != nil {
				return nil, err
			}
		case appPartName:
			if err := writePart(zw, f.Name, appXML); err != nil {
				return nil, err
			}
		case typesName:
			if needCore || needApp {
				patched, err := patchContentTypes(f, needCore, needApp)
				if err != nil {
					return nil, err
				}
				if err := writePart(zw, f.Name, patched); err != nil {
					return nil, err
				}
				continue
			}
			if err := copyRaw(zw, f); err != nil {
				return nil, err
			}
		default:
			if err := copyRaw(zw, f); err != nil {
				return nil, err
			}
		}
	}
	if needCore {
		if err := writePart(zw, corePartName, coreXML); err != nil {
			return nil, err
		}
	}
	if needApp {
		if err := writePart(zw, appPartName, appXML); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	return buf.Bytes(), nil
}

// copyRaw transfers an entry without recompressing it.
func copyRaw(zw *zip.Writer, f *zip.File) error {
	rc, err := f.OpenRaw()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	hdr := f.FileHeader
	w, err := zw.CreateRaw(&hdr)
	if err != nil {
		return fmt.Errorf("copy %s: %w", f.Name, err)
	}
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("copy %s: %w", f.Name, err)
	}
	return nil
}

func writePart(zw *zip.Writer, part string, body []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: part, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("create %s: %w", part, err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write %s: %w", part, err)
	}
	return nil
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\r\n"

// coreElements maps model keys to their core.xml element, in the order the
// schema lists them.
var coreElements = []struct{ key, elem string }{
	{"Title", "dc:title"},
	{"Subject", "dc:subject"},
	{"Author", "dc:creator"},
	{"Keywords", "cp:keywords"},
	{"Description", "dc:description"},
	{"LastModifiedBy", "cp:lastModifiedBy"},
	{"Revision", "cp:revision"},
	{"Created", "dcterms:created"},
	{"Modified", "dcterms:modified"},
	{"Category", "cp:category"},
	{"ContentStatus", "cp:contentStatus"},
}

// buildCoreXML serialises the model's core-property fields. A wiped model
// yields an empty coreProperties element, which Office treats as a document
// without author data.
func buildCoreXML(m *core.Metadata) []byte {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<cp:coreProperties` +
		` xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"` +
		` xmlns:dc="http://purl.org/dc/elements/1.1/"` +
		` xmlns:dcterms="http://purl.org/dc/terms/"` +
		` xmlns:dcterms1="http://purl.org/dc/dcmitype/"` +
		` xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">`)
	for _, ce := range coreElements {
		f, ok := m.Get(ce.key)
		if !ok || f.Value == "" {
			continue
		}
		if f.Origin != core.OriginCore && f.Origin != "" {
			continue
		}
		if strings.HasPrefix(ce.elem, "dcterms:") {
			fmt.Fprintf(&b, `<%s xsi:type="dcterms:W3CDTF">%s</%s>`, ce.elem, escapeXML(f.Value), ce.elem)
			continue
		}
		fmt.Fprintf(&b, "<%s>%s</%s>", ce.elem, escapeXML(f.Value), ce.elem)
	}
	b.WriteString(`</cp:coreProperties>`)
	return []byte(b.String())
}

var appElements = []struct{ key, elem string }{
	{"Template", "Template"},
	{"TotalTime", "TotalTime"},
	{"Pages", "Pages"},
	{"Words", "Words"},
	{"Characters", "Characters"},
	{"Lines", "Lines"},
	{"Paragraphs", "Paragraphs"},
	{"Slides", "Slides"},
	{"Application", "Application"},
	{"AppVersion", "AppVersion"},
	{"Company", "Company"},
	{"Manager", "Manager"},
}

func buildAppXML(m *core.Metadata) []byte {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Properties` +
		` xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties"` +
		` xmlns:vt="http://schemas.openxmlformats.org/officeDocument/2006/docPropsVTypes">`)
	for _, ae := range appElements {
		f, ok := m.Get(ae.key)
		if !ok || f.Value == "" {
			continue
		}
		if f.Origin != core.OriginApp && f.Origin != "" {
			continue
		}
		fmt.Fprintf(&b, "<%s>%s</%s>", ae.elem, escapeXML(f.Value), ae.elem)
	}
	b.WriteString(`</Properties>`)
	return []byte(b.String())
}

// hasAppFields reports whether any model field belongs in app.xml.
func hasAppFields(m *core.Metadata) bool {
	for _, ae := range appElements {
		if f, ok := m.Get(ae.key); ok && f.Value != "" {
			if f.Origin == core.OriginApp || f.Origin == "" {
				return true
			}
		}
	}
	return false
}

// patchContentTypes registers property parts the package lacked, inserting
// Overrides before the closing Types tag.
func patchContentTypes(f *zip.File, addCore, addApp bool) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	body := buf.String()
	idx := strings.LastIndex(body, "</Types>")
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s has no Types element", core.ErrMalformedContainer, typesName)
	}
	var overrides string
	if addCore && !strings.Contains(body, "/"+corePartName) {
		overrides += `<Override PartName="/` + corePartName +
			`" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>`
	}
	if addApp && !strings.Contains(body, "/"+appPartName) {
		overrides += `<Override PartName="/` + appPartName +
			`" ContentType="application/vnd.openxmlformats-officedocument.extended-properties+xml"/>`
	}
	return []byte(body[:idx] + overrides + body[idx:]), nil
}

func escapeXML(s string) string {
	var b bytes.Buffer
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return strconv.Quote(s)
	}
	return b.String()
}
