// Command analizador inspects, verifies, wipes, and rewrites document and
// image metadata.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	analizador "github.com/Diego740/Analizador-Metadatos"
	"github.com/Diego740/Analizador-Metadatos/core"
)

const usage = `Usage: analizador <command> [flags] <file>

Commands:
  view      show all metadata in a file
  verify    check the file extension against the real content
  wipe      remove all metadata (writes <name>_clean.<ext>)
  template  replace metadata with fields from a YAML template
  set       set individual fields, keeping the rest
  formats   list supported formats and their capabilities

Flags:
  -json            machine-readable output
  -v               verbose processing traces
  -out PATH        explicit output path for wipe/template/set
  -suffix S        output suffix when -out is not given
  -template PATH   YAML file with key: value pairs (template command)
  -set KEY=VALUE   field to write, repeatable (set command)
`

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd := os.Args[1]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	jsonMode := fs.Bool("json", false, "machine-readable output")
	verbose := fs.Bool("v", false, "verbose processing traces")
	outPath := fs.String("out", "", "output path")
	suffix := fs.String("suffix", "", "output suffix when -out is not given")
	tmplPath := fs.String("template", "", "YAML template file")
	var sets stringList
	fs.Var(&sets, "set", "KEY=VALUE field to write, repeatable")
	fs.Parse(os.Args[2:])

	printer := core.NewPrinter(*jsonMode, *verbose)
	pipe := analizador.New(analizador.Config{Logger: buildLogger(*verbose)})

	if cmd == "formats" {
		printFormats(printer)
		return
	}

	if fs.NArg() < 1 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	file := fs.Arg(0)
	data, err := os.ReadFile(file)
	if err != nil {
		core.PrintError(err.Error())
		os.Exit(1)
	}

	switch cmd {
	case "view":
		m, err := pipe.Analyze(data)
		if err != nil {
			exitWith(err)
		}
		printer.PrintMetadata(file, m)

	case "verify":
		v, err := pipe.VerifyExtension(filepath.Ext(file), data)
		if err != nil {
			exitWith(err)
		}
		printer.PrintVerification(file, v)

	case "wipe":
		out, err := pipe.Wipe(data)
		if err != nil {
			exitWith(err)
		}
		dst := resolveOut(file, *outPath, *suffix, "_clean")
		writeResult(printer, dst, out, "metadata wiped")

	case "template":
		if *tmplPath == "" {
			core.PrintError("template command needs -template PATH")
			os.Exit(2)
		}
		tmpl, err := loadTemplate(*tmplPath)
		if err != nil {
			exitWith(err)
		}
		out, err := pipe.ApplyTemplate(data, tmpl)
		if err != nil {
			exitWith(err)
		}
		dst := resolveOut(file, *outPath, *suffix, "_custom")
		writeResult(printer, dst, out, "template applied")

	case "set":
		if len(sets) == 0 {
			core.PrintError("set command needs at least one -set KEY=VALUE")
			os.Exit(2)
		}
		overrides := make(map[string]string, len(sets))
		for _, kv := range sets {
			k, v, ok := core.ParseKV(kv)
			if !ok {
				core.PrintError(fmt.Sprintf("invalid -set value %q, want KEY=VALUE", kv))
				os.Exit(2)
			}
			overrides[k] = v
		}
		out, err := pipe.SetCustom(data, overrides)
		if err != nil {
			exitWith(err)
		}
		dst := resolveOut(file, *outPath, *suffix, "_custom")
		writeResult(printer, dst, out, "fields updated")

	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func buildLogger(verbose bool) *slog.Logger {
	if !verbose {
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func loadTemplate(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tmpl := map[string]string{}
	if err := yaml.Unmarshal(raw, &tmpl); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	return tmpl, nil
}

func resolveOut(src, out, suffix, defaultSuffix string) string {
	if out != "" {
		return out
	}
	if suffix == "" {
		suffix = defaultSuffix
	}
	return core.SuffixedPath(src, suffix)
}

func writeResult(p *core.Printer, dst string, data []byte, msg string) {
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		core.PrintError(err.Error())
		os.Exit(1)
	}
	p.PrintSuccess(fmt.Sprintf("%s: %s", msg, dst))
}

func printFormats(p *core.Printer) {
	for _, kind := range core.Kinds() {
		info, _ := core.InfoFor(kind)
		caps := []string{"analyze"}
		if info.CanWipe {
			caps = append(caps, "wipe")
		}
		if info.CanEdit {
			caps = append(caps, "edit")
		}
		fmt.Fprintf(p.Writer, "%-10s %-28s %-60s %s\n",
			info.Name, strings.Join(info.Extensions, " "),
			core.MIMEForExtension(info.Extensions[0]), strings.Join(caps, ", "))
	}
}

func exitWith(err error) {
	core.PrintError(err.Error())
	switch {
	case errors.Is(err, core.ErrUnsupportedFormat):
		os.Exit(3)
	case errors.Is(err, core.ErrMalformedContainer):
		os.Exit(4)
	case errors.Is(err, core.ErrUnsupportedField):
		os.Exit(5)
	}
	os.Exit(1)
}
