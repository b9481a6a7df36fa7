package hts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/nadzzz/htsbridge/internal/params"
)

// ModelFileError reports a model, tree or window file that could not be opened.
type ModelFileError struct {
	Path string
	Err  error
}

func (e *ModelFileError) Error() string {
	return fmt.Sprintf("cannot open model file %s: %v", e.Path, e.Err)
}

func (e *ModelFileError) Unwrap() error { return e.Err }

// OpenModels opens every path for reading. If any open fails, the files
// already opened are closed and a *ModelFileError is returned.
func OpenModels(paths ...string) ([]*os.File, error) {
	files := make([]*os.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			CloseAll(files)
			return nil, &ModelFileError{Path: p, Err: err}
		}
		files = append(files, f)
	}
	return files, nil
}

// CloseAll closes every file and returns the joined errors.
func CloseAll(files []*os.File) error {
	var errs []error
	for _, f := range files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Readers converts files to readers.
func Readers(files []*os.File) []io.Reader {
	rs := make([]io.Reader, len(files))
	for i, f := range files {
		rs[i] = f
	}
	return rs
}

// LabelSource is the label input of one call: *LabelFile or LabelLines.
type LabelSource interface {
	labelSource()
}

// LabelFile is an opened label file.
type LabelFile struct {
	Path string
	f    *os.File
}

func (*LabelFile) labelSource() {}

// Read reads from the underlying file.
func (l *LabelFile) Read(p []byte) (int, error) { return l.f.Read(p) }

// LabelLines is a sequence of literal label lines.
type LabelLines []string

func (LabelLines) labelSource() {}

// Reader joins the lines into a newline-terminated label stream.
func (l LabelLines) Reader() io.Reader {
	if len(l) == 0 {
		return strings.NewReader("")
	}
	return strings.NewReader(strings.Join(l, "\n") + "\n")
}

// OutputKind identifies an optional side output.
type OutputKind int

const (
	OutputRaw OutputKind = iota
	OutputDuration
	OutputLogF0
	OutputSpectrum
)

var outputKeys = map[OutputKind]string{
	OutputRaw:      KeyOutRaw,
	OutputDuration: KeyOutDuration,
	OutputLogF0:    KeyOutLogF0,
	OutputSpectrum: KeyOutSpectrum,
}

func (k OutputKind) String() string {
	switch k {
	case OutputRaw:
		return "raw"
	case OutputDuration:
		return "duration"
	case OutputLogF0:
		return "lf0"
	case OutputSpectrum:
		return "mgc"
	}
	return fmt.Sprintf("output(%d)", int(k))
}

// CallFiles owns the file handles of one synthesis call.
type CallFiles struct {
	// Label is nil when neither a label file nor literal lines were given.
	Label LabelSource

	// Outputs holds a writer for every requested side output.
	Outputs map[OutputKind]io.Writer

	files []*os.File
}

// OpenCallFiles opens the label input and side outputs named by the output
// parameter list. A label file takes precedence over literal lines. On error
// nothing is left open.
func OpenCallFiles(p params.List) (*CallFiles, error) {
	c := &CallFiles{Outputs: make(map[OutputKind]io.Writer)}

	if path := p.String(KeyLabelFile, ""); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening label file: %w", err)
		}
		c.files = append(c.files, f)
		c.Label = &LabelFile{Path: path, f: f}
	} else if lines, ok := p.Strings(KeyLabelString); ok {
		c.Label = LabelLines(lines)
	}

	kinds := make([]OutputKind, 0, len(outputKeys))
	for k := range outputKeys {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	for _, k := range kinds {
		path := p.String(outputKeys[k], "")
		if path == "" {
			continue
		}
		f, err := os.Create(path)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("creating %s output: %w", k, err)
		}
		c.files = append(c.files, f)
		c.Outputs[k] = f
	}
	return c, nil
}

// Close closes every handle opened for the call. It is safe to call twice.
func (c *CallFiles) Close() error {
	err := CloseAll(c.files)
	c.files = nil
	return err
}
