// Package xmp parses XMP packets into the canonical metadata model. PDF
// documents embed packets in a metadata stream; images carry them in APP1
// segments or RIFF chunks. The same walker serves all of them.
package xmp

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/Diego740/Analizador-Metadatos/core"
)

// rdfContainers are RDF structure elements whose names never identify a
// property.
var rdfContainers = map[string]bool{
	"xmpmeta": true, "RDF": true, "Description": true,
	"Alt": true, "Bag": true, "Seq": true, "li": true, "xpacket": true,
}

// Parse walks a packet and records each property element's text as a
// read-only field keyed "xmp:<name>", keeping whatever the model already
// holds for a key. Unparseable input yields no fields.
func Parse(data []byte, m *core.Metadata) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var stack []string
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			val := strings.TrimSpace(string(t))
			if val == "" {
				continue
			}
			// Nearest ancestor that is a property, not RDF plumbing.
			for i := len(stack) - 1; i >= 0; i-- {
				if !rdfContainers[stack[i]] {
					key := "xmp:" + stack[i]
					if _, ok := m.Get(key); !ok {
						m.Set(core.Field{Key: key, Value: val, Origin: core.OriginXMP})
					}
					break
				}
			}
		}
	}
}
