// Package scanner reads the "### BEGIN INIT INFO" / "### END INIT INFO"
// comment block out of an init script, and merges it with an optional
// override file carrying the same field set.
package scanner

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	cerrors "insservgo/errors"
)

// Field is one LSB header value: Present distinguishes "declared but
// empty" from "never declared at all".
type Field struct {
	Present bool
	Value   string
}

// Header holds every field recognized inside an INIT INFO block.
type Header struct {
	Provides         Field
	RequiredStart    Field
	RequiredStop     Field
	ShouldStart      Field
	ShouldStop       Field
	StartBefore      Field
	StopAfter        Field
	DefaultStart     Field
	DefaultStop      Field
	ShortDescription Field
	Description      Field

	// Found reports whether a BEGIN/END INIT INFO block was present at all.
	Found bool
}

const (
	beginMarker = "### BEGIN INIT INFO"
	endMarker   = "### END INIT INFO"
)

// fieldSetter assigns a parsed value to the right Header field.
var fieldSetters = map[string]func(*Header, string){
	"provides":          func(h *Header, v string) { h.Provides = Field{true, v} },
	"required-start":    func(h *Header, v string) { h.RequiredStart = Field{true, v} },
	"required-stop":     func(h *Header, v string) { h.RequiredStop = Field{true, v} },
	"should-start":      func(h *Header, v string) { h.ShouldStart = Field{true, v} },
	"should-stop":       func(h *Header, v string) { h.ShouldStop = Field{true, v} },
	"x-start-before":    func(h *Header, v string) { h.StartBefore = Field{true, v} },
	"x-stop-after":      func(h *Header, v string) { h.StopAfter = Field{true, v} },
	"default-start":     func(h *Header, v string) { h.DefaultStart = Field{true, v} },
	"default-stop":      func(h *Header, v string) { h.DefaultStop = Field{true, v} },
	"short-description": func(h *Header, v string) { h.ShortDescription = Field{true, v} },
	"description":       func(h *Header, v string) { h.Description = Field{true, v} },
}

// Scan reads an LSB header block from r. It returns a zero Header with
// Found=false if no BEGIN/END block is present at all (the script is
// non-LSB-conforming, not necessarily broken). A BEGIN with no matching END
// is reported as ErrBrokenHeader.
func Scan(r io.Reader) (*Header, error) {
	h := &Header{}
	sc := bufio.NewScanner(r)

	inBlock := false
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "### BEGIN INIT INFO") || trimmed == beginMarker {
			// A repeated BEGIN resets capture, matching the original
			// scanner's behavior of keeping only the last block found.
			*h = Header{Found: true}
			inBlock = true
			continue
		}
		if trimmed == endMarker {
			if !inBlock {
				continue
			}
			inBlock = false
			continue
		}
		if !inBlock {
			continue
		}

		parseHeaderLine(h, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if inBlock {
		return nil, cerrors.ErrBrokenHeader
	}
	return h, nil
}

// parseHeaderLine parses one "# Field-Name: value" line inside an active
// INIT INFO block. Lines that do not match "# name:" are silently ignored,
// matching the tolerant behavior of shell comment scanners.
func parseHeaderLine(h *Header, line string) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return
	}
	trimmed = strings.TrimPrefix(trimmed, "#")
	trimmed = strings.TrimSpace(trimmed)

	idx := strings.IndexByte(trimmed, ':')
	if idx < 0 {
		return
	}
	name := strings.ToLower(strings.TrimSpace(trimmed[:idx]))
	value := strings.TrimSpace(trimmed[idx+1:])

	setter, ok := fieldSetters[name]
	if !ok {
		return
	}
	setter(h, value)
}

// ScanFile opens path and scans its header block.
func ScanFile(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cerrors.WrapWithService(err, cerrors.ErrFilesystem, "scan", filepath.Base(path))
	}
	defer f.Close()
	return Scan(f)
}

// Merge overlays override's present fields onto h, in place: an override
// file always wins over the in-script header for whichever fields it
// actually declares.
func (h *Header) Merge(override *Header) {
	if override == nil {
		return
	}
	merge := func(dst *Field, src Field) {
		if src.Present {
			*dst = src
		}
	}
	merge(&h.Provides, override.Provides)
	merge(&h.RequiredStart, override.RequiredStart)
	merge(&h.RequiredStop, override.RequiredStop)
	merge(&h.ShouldStart, override.ShouldStart)
	merge(&h.ShouldStop, override.ShouldStop)
	merge(&h.StartBefore, override.StartBefore)
	merge(&h.StopAfter, override.StopAfter)
	merge(&h.DefaultStart, override.DefaultStart)
	merge(&h.DefaultStop, override.DefaultStop)
	merge(&h.ShortDescription, override.ShortDescription)
	merge(&h.Description, override.Description)
}

// LoadOverride looks for a file named scriptName under overrideDir and
// scans it if present. A missing override file is not an error: it
// returns (nil, nil).
func LoadOverride(overrideDir, scriptName string) (*Header, error) {
	if overrideDir == "" {
		return nil, nil
	}
	path := filepath.Join(overrideDir, scriptName)
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	return ScanFile(path)
}

// ResolveScriptName resolves symlinks in path and returns its basename,
// matching insserv's practice of treating a symlinked init script as its
// real underlying name for facility and dependency bookkeeping.
func ResolveScriptName(path string) (string, error) {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		real = path
	}
	return filepath.Base(real), nil
}

// SplitTokens splits a header value on whitespace, commas, semicolons and
// tabs, matching the delimiter set accepted by Required-Start/Provides/etc.
func SplitTokens(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		switch r {
		case ' ', '\t', ',', ';':
			return true
		}
		return false
	})
}
