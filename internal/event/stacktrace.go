package event

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxContextLineLen bounds, in characters, the source lines that may take
// part in a hash; longer lines are usually minified code.
const maxContextLineLen = 120

// minInAppRatio is the smallest share of in-app frames for which an in-app
// only stacktrace hash is still considered meaningful.
const minInAppRatio = 0.10

// Frame is one stack frame.
type Frame struct {
	path        string
	AbsPath     string
	Filename    string
	Module      string
	Package     string
	Function    string
	Symbol      string
	ContextLine string
	Lineno      *int64
	InApp       *bool
}

func parseFrame(path string, m map[string]any) *Frame {
	f := &Frame{
		path:        path,
		AbsPath:     stringField(m, "abs_path"),
		Filename:    stringField(m, "filename"),
		Module:      stringField(m, "module"),
		Package:     stringField(m, "package"),
		Function:    stringField(m, "function"),
		Symbol:      stringField(m, "symbol"),
		ContextLine: stringField(m, "context_line"),
		InApp:       boolField(m, "in_app"),
	}
	if n, ok := intField(m, "lineno"); ok {
		f.Lineno = &n
	}
	if f.Filename == "" && f.AbsPath != "" {
		f.Filename = f.AbsPath
	}
	return f
}

func (f *Frame) Kind() Kind   { return KindFrame }
func (f *Frame) Path() string { return f.path }

// Hash returns the module (or filename) followed by the most stable
// identifying attribute available: the source line, then the symbol or
// function name, then the line number.
func (f *Frame) Hash(opts HashOptions) []string {
	var out []string
	if f.Module != "" {
		out = append(out, normalizeModule(f.Module, opts.Platform))
	} else if f.Filename != "" && !f.isURL() {
		out = append(out, normalizeFilename(f.Filename, opts.Platform))
	}

	switch {
	case f.canUseContext():
		out = append(out, f.ContextLine)
	case len(out) == 0:
		// nothing anchors this frame, skip it entirely
		return nil
	case f.Symbol != "":
		out = append(out, f.Symbol)
	case f.Function != "":
		out = append(out, normalizeFunction(f.Function, opts.Platform))
	case f.Lineno != nil:
		out = append(out, strconv.FormatInt(*f.Lineno, 10))
	}
	return out
}

// isURL reports whether the frame's source was fetched over a URL. Parsing
// copies abs_path into Filename when filename is absent, so Filename is
// only consulted for frames built without an AbsPath.
func (f *Frame) isURL() bool {
	p := f.AbsPath
	if p == "" {
		p = f.Filename
	}
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") ||
		strings.HasPrefix(p, "file://")
}

func (f *Frame) canUseContext() bool {
	if f.ContextLine == "" || utf8.RuneCountInString(f.ContextLine) > maxContextLineLen {
		return false
	}
	if f.isURL() && f.Function == "" {
		return false
	}
	return true
}

func (f *Frame) inApp() bool {
	return f.InApp != nil && *f.InApp
}

// isRecursion reports whether f repeats prev exactly.
func (f *Frame) isRecursion(prev *Frame) bool {
	if prev == nil {
		return false
	}
	if f.AbsPath != prev.AbsPath || f.Filename != prev.Filename || f.Package != prev.Package || f.Module != prev.Module ||
		f.Function != prev.Function {
		return false
	}
	if (f.Lineno == nil) != (prev.Lineno == nil) {
		return false
	}
	return f.Lineno == nil || *f.Lineno == *prev.Lineno
}

// Stacktrace is an ordered list of frames, oldest call first.
type Stacktrace struct {
	path   string
	Frames []*Frame
}

func parseStacktrace(path string, m map[string]any) (*Stacktrace, error) {
	raw, ok := m["frames"]
	if !ok || raw == nil {
		return &Stacktrace{path: path}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, invalidSection(path, "frames must be a list")
	}
	st := &Stacktrace{path: path, Frames: make([]*Frame, 0, len(list))}
	for _, item := range list {
		fm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		st.Frames = append(st.Frames, parseFrame(path, fm))
	}
	return st, nil
}

func (s *Stacktrace) Kind() Kind   { return KindStacktrace }
func (s *Stacktrace) Path() string { return s.path }

// Hash concatenates the frame hashes. Frames repeated by recursion
// contribute once. In-app filtering only applies to processed data.
func (s *Stacktrace) Hash(opts HashOptions) []string {
	frames := s.Frames
	if opts.Processed && !opts.SystemFrames && len(frames) > 0 {
		total := len(frames)
		var app []*Frame
		for _, f := range frames {
			if f.inApp() {
				app = append(app, f)
			}
		}
		if len(app) > 0 {
			frames = app
		}
		if float64(len(frames))/float64(total) < minInAppRatio {
			return nil
		}
	}
	if len(frames) == 0 {
		return nil
	}

	// a lone URL frame without line information is VM noise
	if len(frames) == 1 && frames[0].Lineno == nil && frames[0].Function != "" && frames[0].isURL() {
		return nil
	}

	var out []string
	var prev *Frame
	for _, f := range frames {
		if f.isRecursion(prev) {
			continue
		}
		out = append(out, f.Hash(opts)...)
		prev = f
	}
	return out
}
