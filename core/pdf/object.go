package pdf

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf16"
)

// Minimal PDF object reader: just enough of ISO 32000 syntax to walk a
// trailer or information dictionary. Values surface as Go types (string,
// int64, float64, name, ref, []any, *dict), mirroring the object model of
// a structural PDF parser rather than the document semantics.

type name string

type ref struct {
	num, gen int
}

// dict preserves key insertion order for deterministic field listings.
type dict struct {
	keys []string
	m    map[string]any
}

func newDict() *dict { return &dict{m: make(map[string]any)} }

func (d *dict) set(k string, v any) {
	if _, ok := d.m[k]; !ok {
		d.keys = append(d.keys, k)
	}
	d.m[k] = v
}

func (d *dict) get(k string) (any, bool) {
	v, ok := d.m[k]
	return v, ok
}

func (d *dict) has(k string) bool {
	_, ok := d.m[k]
	return ok
}

func (d *dict) intVal(k string) (int64, bool) {
	v, _ := d.get(k)
	switch t := v.(type) {
	case int64:
		return t, true
	case float64:
		return int64(t), true
	}
	return 0, false
}

type parser struct {
	data []byte
	pos  int
}

func isWhitespace(c byte) bool {
	switch c {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (p *parser) skipWS() {
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if isWhitespace(c) {
			p.pos++
			continue
		}
		if c == '%' { // comment runs to end of line
			for p.pos < len(p.data) && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
				p.pos++
			}
			continue
		}
		break
	}
}

func (p *parser) peek(n int) []byte {
	end := p.pos + n
	if end > len(p.data) {
		end = len(p.data)
	}
	return p.data[p.pos:end]
}

// parseObject reads the next object at the cursor.
func (p *parser) parseObject() (any, error) {
	p.skipWS()
	if p.pos >= len(p.data) {
		return nil, fmt.Errorf("unexpected end of data")
	}
	c := p.data[p.pos]
	switch {
	case c == '/':
		return p.parseName()
	case c == '(':
		return p.parseString()
	case c == '<':
		if bytes.HasPrefix(p.peek(2), []byte("<<")) {
			return p.parseDict()
		}
		return p.parseHexString()
	case c == '[':
		return p.parseArray()
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumberOrRef()
	case bytes.HasPrefix(p.peek(4), []byte("true")):
		p.pos += 4
		return true, nil
	case bytes.HasPrefix(p.peek(5), []byte("false")):
		p.pos += 5
		return false, nil
	case bytes.HasPrefix(p.peek(4), []byte("null")):
		p.pos += 4
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected byte %q at offset %d", c, p.pos)
}

func (p *parser) parseDict() (*dict, error) {
	p.skipWS()
	if !bytes.HasPrefix(p.peek(2), []byte("<<")) {
		return nil, fmt.Errorf("expected dictionary at offset %d", p.pos)
	}
	p.pos += 2
	d := newDict()
	for {
		p.skipWS()
		if bytes.HasPrefix(p.peek(2), []byte(">>")) {
			p.pos += 2
			return d, nil
		}
		if p.pos >= len(p.data) {
			return nil, fmt.Errorf("unterminated dictionary")
		}
		if p.data[p.pos] != '/' {
			return nil, fmt.Errorf("dictionary key is not a name at offset %d", p.pos)
		}
		key, err := p.parseName()
		if err != nil {
			return nil, err
		}
		val, err := p.parseObject()
		if err != nil {
			return nil, err
		}
		d.set(string(key), val)
	}
}

func (p *parser) parseName() (name, error) {
	p.pos++ // /
	var out []byte
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && p.pos+2 < len(p.data) {
			if v, err := strconv.ParseUint(string(p.data[p.pos+1:p.pos+3]), 16, 8); err == nil {
				out = append(out, byte(v))
				p.pos += 3
				continue
			}
		}
		out = append(out, c)
		p.pos++
	}
	return name(out), nil
}

func (p *parser) parseString() (string, error) {
	p.pos++ // (
	var out []byte
	depth := 1
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		switch c {
		case '\\':
			p.pos++
			if p.pos >= len(p.data) {
				return "", fmt.Errorf("unterminated string escape")
			}
			e := p.data[p.pos]
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '\r':
				if p.pos+1 < len(p.data) && p.data[p.pos+1] == '\n' {
					p.pos++
				}
			case '\n':
				// line continuation, emit nothing
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for n := 0; n < 2 && p.pos+1 < len(p.data); n++ {
						nx := p.data[p.pos+1]
						if nx < '0' || nx > '7' {
							break
						}
						val = val*8 + int(nx-'0')
						p.pos++
					}
					out = append(out, byte(val))
				} else {
					out = append(out, e)
				}
			}
			p.pos++
		case '(':
			depth++
			out = append(out, c)
			p.pos++
		case ')':
			depth--
			p.pos++
			if depth == 0 {
				return decodeTextBytes(out), nil
			}
			out = append(out, c)
		default:
			out = append(out, c)
			p.pos++
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *parser) parseHexString() (string, error) {
	p.pos++ // <
	var hexDigits []byte
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		p.pos++
		if c == '>' {
			if len(hexDigits)%2 != 0 {
				hexDigits = append(hexDigits, '0')
			}
			out := make([]byte, len(hexDigits)/2)
			for i := range out {
				v, err := strconv.ParseUint(string(hexDigits[i*2:i*2+2]), 16, 8)
				if err != nil {
					return "", fmt.Errorf("bad hex string: %w", err)
				}
				out[i] = byte(v)
			}
			return decodeTextBytes(out), nil
		}
		if isWhitespace(c) {
			continue
		}
		hexDigits = append(hexDigits, c)
	}
	return "", fmt.Errorf("unterminated hex string")
}

func (p *parser) parseArray() ([]any, error) {
	p.pos++ // [
	var out []any
	for {
		p.skipWS()
		if p.pos >= len(p.data) {
			return nil, fmt.Errorf("unterminated array")
		}
		if p.data[p.pos] == ']' {
			p.pos++
			return out, nil
		}
		v, err := p.parseObject()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// parseNumberOrRef reads a number, upgrading "N G R" to an indirect
// reference when the lookahead matches.
func (p *parser) parseNumberOrRef() (any, error) {
	start := p.pos
	isFloat := false
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if c == '.' {
			isFloat = true
		} else if !(c == '+' || c == '-' || (c >= '0' && c <= '9')) {
			break
		}
		p.pos++
	}
	tok := string(p.data[start:p.pos])
	if isFloat {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", tok)
		}
		return f, nil
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad number %q", tok)
	}

	// Lookahead for "G R" without committing the cursor.
	save := p.pos
	p.skipWS()
	genStart := p.pos
	for p.pos < len(p.data) && p.data[p.pos] >= '0' && p.data[p.pos] <= '9' {
		p.pos++
	}
	if p.pos > genStart {
		gen, _ := strconv.Atoi(string(p.data[genStart:p.pos]))
		p.skipWS()
		if p.pos < len(p.data) && p.data[p.pos] == 'R' {
			next := p.pos + 1
			if next >= len(p.data) || isWhitespace(p.data[next]) || isDelimiter(p.data[next]) {
				p.pos = next
				return ref{num: int(n), gen: gen}, nil
			}
		}
	}
	p.pos = save
	return n, nil
}

// decodeTextBytes turns raw PDF string bytes into a Go string, honouring a
// UTF-16BE byte order mark.
func decodeTextBytes(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		b = b[2:]
		u := make([]uint16, 0, len(b)/2)
		for i := 0; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	return string(b)
}

// encodeTextString renders a value as a PDF string object: a literal string
// when it is plain ASCII, otherwise a UTF-16BE hex string with BOM.
func encodeTextString(s string) string {
	plain := true
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			plain = false
			break
		}
		if r > 0x7E {
			plain = false
			break
		}
	}
	if plain {
		var b bytes.Buffer
		b.WriteByte('(')
		for i := 0; i < len(s); i++ {
			switch c := s[i]; c {
			case '(', ')', '\\':
				b.WriteByte('\\')
				b.WriteByte(c)
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				b.WriteByte(c)
			}
		}
		b.WriteByte(')')
		return b.String()
	}
	var b bytes.Buffer
	b.WriteString("<FEFF")
	for _, u := range utf16.Encode([]rune(s)) {
		fmt.Fprintf(&b, "%04X", u)
	}
	b.WriteByte('>')
	return b.String()
}

// encodeName renders a key as a PDF name, escaping delimiters and
// whitespace with #xx.
func encodeName(s string) string {
	var b bytes.Buffer
	b.WriteByte('/')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= 0x20 || c > 0x7E || isDelimiter(c) || c == '#' {
			fmt.Fprintf(&b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
