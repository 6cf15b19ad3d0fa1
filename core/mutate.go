package core

import (
	"fmt"
	"sort"
	"strings"
)

// Pure transformations over the canonical model. None of them touch the raw
// payload handle; the codec decides at encode time what an empty or changed
// field set means for the container structure.

// Wipe returns a copy of m with every field removed.
func Wipe(m *Metadata) *Metadata {
	out := m.Clone()
	out.Clear()
	return out
}

// ApplyTemplate returns a copy of m whose fields are replaced entirely by
// the template entries (full overwrite, not a merge), so repeated
// application is idempotent. Template keys are applied in sorted order for
// deterministic output. Fails with ErrUnsupportedField if any key is not
// writable for m's kind.
func ApplyTemplate(m *Metadata, template map[string]string) (*Metadata, error) {
	if err := checkWritable(m.Kind(), template); err != nil {
		return nil, err
	}
	out := m.Clone()
	out.Clear()
	for _, k := range sortedKeys(template) {
		out.Set(Field{Key: k, Value: template[k], Writable: true})
	}
	return out, nil
}

// SetCustom returns a copy of m with each override key inserted or
// overwritten; fields absent from overrides keep their prior values (merge
// semantics, distinct from ApplyTemplate). Fails with ErrUnsupportedField
// if any key is not writable for m's kind.
func SetCustom(m *Metadata, overrides map[string]string) (*Metadata, error) {
	if err := checkWritable(m.Kind(), overrides); err != nil {
		return nil, err
	}
	out := m.Clone()
	for _, k := range sortedKeys(overrides) {
		v := overrides[k]
		// EXIF dates use colon-separated form; accept ISO dates from callers.
		if isDateKey(k) && isImageKind(m.Kind()) {
			v = normalizeDateValue(v)
		}
		out.Set(Field{Key: k, Value: v, Writable: true})
	}
	return out, nil
}

func checkWritable(kind Kind, fields map[string]string) error {
	for _, k := range sortedKeys(fields) {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%w: empty key", ErrUnsupportedField)
		}
		if !CanWrite(kind, k) {
			return fmt.Errorf("%w: %q is not representable in %s", ErrUnsupportedField, k, kind)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isDateKey(key string) bool {
	return strings.Contains(strings.ToLower(key), "date")
}

func isImageKind(kind Kind) bool {
	switch kind {
	case KindJPEG, KindPNG, KindWebP, KindGIF, KindTIFF, KindHEIC:
		return true
	}
	return false
}

// normalizeDateValue rewrites a leading YYYY-MM-DD into the EXIF form
// YYYY:MM:DD, leaving anything else alone.
func normalizeDateValue(v string) string {
	if len(v) >= 10 && v[4] == '-' && v[7] == '-' {
		return v[:4] + ":" + v[5:7] + ":" + v[8:]
	}
	return v
}
