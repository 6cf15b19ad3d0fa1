// Package analizador is a metadata inspection and mutation core for PDF,
// Office Open XML, and raster-image containers. It works on byte buffers:
// detect a format, decode its metadata into one canonical model, transform
// the model, and encode it back without disturbing the document content.
package analizador

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Diego740/Analizador-Metadatos/core"
	"github.com/Diego740/Analizador-Metadatos/core/image"
	"github.com/Diego740/Analizador-Metadatos/core/ooxml"
	"github.com/Diego740/Analizador-Metadatos/core/pdf"
)

// Config tunes a Pipeline. The zero value is usable.
type Config struct {
	// MaxInputSize rejects buffers larger than this many bytes.
	// Zero means DefaultMaxInputSize.
	MaxInputSize int64

	// Precedence orders image metadata structures for key collisions:
	// the first origin listed wins. Empty means EXIF, then IPTC, then XMP.
	Precedence []core.Origin

	// Logger receives debug-level processing traces. Nil discards them.
	Logger *slog.Logger
}

// DefaultMaxInputSize bounds input buffers at 512 MiB.
const DefaultMaxInputSize = 512 << 20

func (c Config) defaults() Config {
	if c.MaxInputSize == 0 {
		c.MaxInputSize = DefaultMaxInputSize
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Pipeline composes sniffing, codecs, and mutation into the operations a
// caller needs. Instances are stateless and safe for concurrent use.
type Pipeline struct {
	cfg Config
}

// New returns a Pipeline with cfg's gaps filled by defaults.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg.defaults()}
}

// Detect sniffs the container kind from content bytes. The claimed file
// name or extension never participates.
func (p *Pipeline) Detect(data []byte) (core.Signature, error) {
	if err := p.checkSize(data); err != nil {
		return core.Signature{Kind: core.KindUnknown}, err
	}
	sig, err := core.Detect(data)
	if err != nil {
		return sig, err
	}
	p.cfg.Logger.Debug("detected format", "kind", sig.Kind, "mime", sig.MIME)
	return sig, nil
}

// Analyze decodes all metadata the container carries into the canonical
// model. The input buffer is not modified.
func (p *Pipeline) Analyze(data []byte) (*core.Metadata, error) {
	sig, err := p.Detect(data)
	if err != nil {
		return nil, err
	}
	codec, err := p.codecFor(sig.Kind)
	if err != nil {
		return nil, err
	}
	m, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}
	p.cfg.Logger.Debug("decoded metadata", "kind", m.Kind(), "fields", m.Len())
	return m, nil
}

// VerifyExtension checks a claimed extension against the sniffed content.
func (p *Pipeline) VerifyExtension(claimedExt string, data []byte) (core.Verification, error) {
	if err := p.checkSize(data); err != nil {
		return core.Verification{}, err
	}
	return core.VerifyExtension(claimedExt, data), nil
}

// Wipe removes every removable metadata field and re-encodes the
// container. Formats that cannot be wiped fail with ErrUnsupportedFormat.
func (p *Pipeline) Wipe(data []byte) ([]byte, error) {
	m, err := p.Analyze(data)
	if err != nil {
		return nil, err
	}
	if info, ok := core.InfoFor(m.Kind()); !ok || !info.CanWipe {
		return nil, fmt.Errorf("%w: %s supports analysis only", core.ErrUnsupportedFormat, m.Kind())
	}
	wiped := core.Wipe(m)
	out, err := p.encode(wiped)
	if err != nil {
		return nil, err
	}
	p.cfg.Logger.Debug("wiped metadata", "kind", m.Kind(), "removed", m.Len())
	return out, nil
}

// ApplyTemplate replaces the container's metadata with exactly the template
// fields. Unknown or non-writable keys fail with ErrUnsupportedField.
func (p *Pipeline) ApplyTemplate(data []byte, template map[string]string) ([]byte, error) {
	m, err := p.Analyze(data)
	if err != nil {
		return nil, err
	}
	next, err := core.ApplyTemplate(m, template)
	if err != nil {
		return nil, err
	}
	return p.encode(next)
}

// SetCustom merges the override fields into the container's metadata,
// keeping fields the overrides do not name.
func (p *Pipeline) SetCustom(data []byte, overrides map[string]string) ([]byte, error) {
	m, err := p.Analyze(data)
	if err != nil {
		return nil, err
	}
	next, err := core.SetCustom(m, overrides)
	if err != nil {
		return nil, err
	}
	return p.encode(next)
}

// Encode re-serialises a (possibly mutated) model produced by Analyze.
func (p *Pipeline) Encode(m *core.Metadata) ([]byte, error) {
	return p.encode(m)
}

func (p *Pipeline) encode(m *core.Metadata) ([]byte, error) {
	codec, err := p.codecFor(m.Kind())
	if err != nil {
		return nil, err
	}
	return codec.Encode(m)
}

func (p *Pipeline) checkSize(data []byte) error {
	if int64(len(data)) > p.cfg.MaxInputSize {
		return fmt.Errorf("%w: input of %d bytes exceeds limit of %d",
			core.ErrUnsupportedFormat, len(data), p.cfg.MaxInputSize)
	}
	return nil
}

// codecFor is the single switch binding kinds to codec variants.
func (p *Pipeline) codecFor(kind core.Kind) (core.Codec, error) {
	switch kind {
	case core.KindPDF:
		return pdf.Codec{}, nil
	case core.KindOOXML:
		return ooxml.Codec{}, nil
	case core.KindJPEG, core.KindPNG, core.KindWebP, core.KindGIF,
		core.KindTIFF, core.KindHEIC:
		c := image.New(kind)
		c.Precedence = p.cfg.Precedence
		return c, nil
	}
	return nil, fmt.Errorf("%w: no codec for %s", core.ErrUnsupportedFormat, kind)
}
