package core

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Printer handles all display output for the CLI.
type Printer struct {
	JSON    bool
	Verbose bool
	Writer  *os.File
}

// NewPrinter creates a default Printer writing to stdout.
func NewPrinter(jsonMode, verbose bool) *Printer {
	return &Printer{JSON: jsonMode, Verbose: verbose, Writer: os.Stdout}
}

// PrintMetadata renders a model to the configured output.
func (p *Printer) PrintMetadata(path string, m *Metadata) {
	if p.JSON {
		p.printJSON(path, m)
		return
	}
	p.printText(path, m)
}

func (p *Printer) printText(path string, m *Metadata) {
	fmt.Fprintf(p.Writer, "File  : %s\n", path)
	fmt.Fprintf(p.Writer, "Format: %s\n", m.Kind())
	if m.Len() == 0 {
		fmt.Fprintln(p.Writer, "(no metadata found)")
		return
	}
	fmt.Fprintln(p.Writer)

	// Group by origin, in first-seen order
	groups := make(map[Origin][]Field)
	order := []Origin{}
	seen := map[Origin]bool{}
	for _, f := range m.Fields() {
		if !seen[f.Origin] {
			seen[f.Origin] = true
			order = append(order, f.Origin)
		}
		groups[f.Origin] = append(groups[f.Origin], f)
	}

	for _, origin := range order {
		label := string(origin)
		if label == "" {
			label = "Other"
		}
		fmt.Fprintf(p.Writer, "── %s ──\n", label)
		for _, f := range groups[origin] {
			edit := ""
			if f.Writable {
				edit = " [editable]"
			}
			fmt.Fprintf(p.Writer, "  %-30s %s%s\n", f.Key+":", f.Value, edit)
		}
		fmt.Fprintln(p.Writer)
	}
}

func (p *Printer) printJSON(path string, m *Metadata) {
	type jsonField struct {
		Key      string `json:"key"`
		Value    string `json:"value"`
		Origin   string `json:"origin"`
		Editable bool   `json:"editable"`
	}
	type jsonOutput struct {
		FilePath string      `json:"file"`
		Format   string      `json:"format"`
		Fields   []jsonField `json:"fields"`
	}

	out := jsonOutput{
		FilePath: path,
		Format:   string(m.Kind()),
	}
	for _, f := range m.Fields() {
		out.Fields = append(out.Fields, jsonField{
			Key:      f.Key,
			Value:    f.Value,
			Origin:   string(f.Origin),
			Editable: f.Writable,
		})
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Fprintln(p.Writer, string(b))
}

// PrintVerification renders an extension check result.
func (p *Printer) PrintVerification(path string, v Verification) {
	if p.JSON {
		type jsonOutput struct {
			FilePath     string `json:"file"`
			ClaimedExt   string `json:"claimed_ext"`
			DetectedKind string `json:"detected_format"`
			Matches      bool   `json:"matches"`
			SuggestedExt string `json:"suggested_ext,omitempty"`
		}
		b, _ := json.MarshalIndent(jsonOutput{
			FilePath:     path,
			ClaimedExt:   v.ClaimedExt,
			DetectedKind: string(v.DetectedKind),
			Matches:      v.Matches,
			SuggestedExt: v.SuggestedExt,
		}, "", "  ")
		fmt.Fprintln(p.Writer, string(b))
		return
	}
	fmt.Fprintf(p.Writer, "File    : %s\n", path)
	fmt.Fprintf(p.Writer, "Claimed : %s\n", v.ClaimedExt)
	fmt.Fprintf(p.Writer, "Detected: %s\n", v.DetectedKind)
	switch {
	case v.DetectedKind == KindUnknown:
		color.New(color.FgYellow).Fprintln(p.Writer, "? content not recognised")
	case v.Matches:
		color.New(color.FgGreen).Fprintln(p.Writer, "✓ extension matches content")
	default:
		color.New(color.FgRed).Fprintf(p.Writer, "✗ mismatch, content suggests %s\n", v.SuggestedExt)
	}
}

// PrintSuccess prints a success message.
func (p *Printer) PrintSuccess(msg string) {
	color.New(color.FgGreen).Fprintln(p.Writer, "✓ "+msg)
}

// PrintInfo prints an info line (suppressed in JSON mode).
func (p *Printer) PrintInfo(msg string) {
	if !p.JSON {
		fmt.Fprintln(p.Writer, msg)
	}
}

// PrintError prints an error to stderr.
func PrintError(msg string) {
	color.New(color.FgRed).Fprintln(os.Stderr, "✗ Error: "+msg)
}

// ParseKV parses a "Key=Value" string.
func ParseKV(s string) (key, value string, ok bool) {
	idx := strings.Index(s, "=")
	if idx < 1 {
		return "", "", false
	}
	return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+1:]), true
}

// SuffixedPath inserts a suffix before the extension: report.pdf with
// "_clean" becomes report_clean.pdf.
func SuffixedPath(path, suffix string) string {
	dot := strings.LastIndex(path, ".")
	slash := strings.LastIndexAny(path, `/\`)
	if dot <= slash {
		return path + suffix
	}
	return path[:dot] + suffix + path[dot:]
}
