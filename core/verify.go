package core

import "strings"

// VerifyExtension checks a caller-claimed extension against the sniffed
// content. It never fails: when the content itself is unrecognisable the
// result carries KindUnknown and no suggestion. No side effects.
func VerifyExtension(claimedExt string, data []byte) Verification {
	ext := normalizeExt(claimedExt)
	v := Verification{ClaimedExt: ext, DetectedKind: KindUnknown}

	sig, err := Detect(data)
	if err != nil {
		return v
	}
	v.DetectedKind = sig.Kind

	info, ok := InfoFor(sig.Kind)
	if !ok {
		return v
	}
	for _, e := range info.Extensions {
		if e == ext {
			v.Matches = true
			v.SuggestedExt = ext
			return v
		}
	}
	v.SuggestedExt = info.Extensions[0]
	return v
}

// normalizeExt lowercases and ensures a leading dot, so "JPG", ".jpg" and
// "jpg" compare equal.
func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
