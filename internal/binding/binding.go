// Package binding adapts each engine API version to one capability set.
//
// A Binding owns one engine instance and its model set. The three variants
// differ only in how they load models and labels; lifecycle, pipeline stages
// and result extraction are shared. Resolve picks the variant for a call.
package binding

import (
	"errors"
	"fmt"
	"io"

	"github.com/nadzzz/htsbridge/internal/engine"
	"github.com/nadzzz/htsbridge/internal/hts"
)

var (
	// ErrUnsupportedVersion is returned when an engine does not provide the
	// operation set of the requested version.
	ErrUnsupportedVersion = errors.New("binding: engine does not implement version")

	// ErrStageOrder is returned when a pipeline stage is run out of order.
	ErrStageOrder = errors.New("binding: pipeline stage out of order")
)

// Stage is one ordered phase of the synthesis pipeline.
type Stage int

const (
	StageDuration Stage = iota
	StageParameter
	StageWaveform
)

// Stages lists the pipeline stages in the only valid order.
var Stages = []Stage{StageDuration, StageParameter, StageWaveform}

func (s Stage) String() string {
	switch s {
	case StageDuration:
		return "duration"
	case StageParameter:
		return "parameter"
	case StageWaveform:
		return "waveform"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Binding is the capability set every engine version is driven through.
type Binding interface {
	Version() engine.Version

	// Initialize allocates an empty model set and applies the scalar settings.
	Initialize(cfg hts.SynthesisConfig) error

	// Clear releases the model set.
	Clear() error

	// Refresh releases per-utterance state and keeps the model set.
	Refresh() error

	// LoadModels opens and loads every model, tree and window file named by
	// cfg. All files are opened before the engine sees any of them, and all
	// are closed before LoadModels returns.
	LoadModels(cfg hts.SynthesisConfig) error

	LoadLabel(src hts.LabelSource) error

	// Run executes one pipeline stage. Stages must run in Stages order after
	// each Initialize or Refresh.
	Run(stage Stage) error

	// Save writes one side output.
	Save(kind hts.OutputKind, w io.Writer) error

	Alignment() (engine.Alignment, error)

	// StealWaveform transfers the generated samples to the caller. The
	// engine no longer references them afterwards.
	StealWaveform() ([]int16, error)
}

// New wraps an engine instance in the binding for version v.
func New(v engine.Version, core engine.Core) (Binding, error) {
	switch v {
	case engine.V2_1:
		e, ok := core.(engine.V21)
		if !ok {
			return nil, fmt.Errorf("%w %s (%T)", ErrUnsupportedVersion, v, core)
		}
		return &v21{base: base{core: e}, api: e}, nil
	case engine.V2_1_1:
		e, ok := core.(engine.V211)
		if !ok {
			return nil, fmt.Errorf("%w %s (%T)", ErrUnsupportedVersion, v, core)
		}
		return &v211{base: base{core: e}, api: e}, nil
	case engine.V2_2:
		e, ok := core.(engine.V22)
		if !ok {
			return nil, fmt.Errorf("%w %s (%T)", ErrUnsupportedVersion, v, core)
		}
		return &v22{base: base{core: e}, api: e}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnsupportedVersion, v)
}

// base implements the version-independent operations.
type base struct {
	core engine.Core
	next Stage
}

func (b *base) initialize(cfg hts.SynthesisConfig) error {
	b.next = StageDuration
	if err := b.core.Initialize(engine.NumStreams); err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	settings := []struct {
		name  string
		apply func() error
	}{
		{"sampling rate", func() error { return b.core.SetSamplingRate(cfg.SamplingRate) }},
		{"frame period", func() error { return b.core.SetFperiod(cfg.Fperiod) }},
		{"alpha", func() error { return b.core.SetAlpha(cfg.Alpha) }},
		{"gamma", func() error { return b.core.SetGamma(cfg.Stage) }},
		{"beta", func() error { return b.core.SetBeta(cfg.Beta) }},
		{"msd threshold", func() error { return b.core.SetMSDThreshold(engine.StreamLogF0, cfg.UVThreshold) }},
	}
	for _, s := range settings {
		if err := s.apply(); err != nil {
			return fmt.Errorf("setting %s: %w", s.name, err)
		}
	}
	return nil
}

func (b *base) Clear() error {
	b.next = StageDuration
	return b.core.Clear()
}

func (b *base) Refresh() error {
	b.next = StageDuration
	return b.core.Refresh()
}

func (b *base) Run(stage Stage) error {
	if stage != b.next {
		return fmt.Errorf("%w: %s before %s", ErrStageOrder, stage, b.next)
	}
	var err error
	switch stage {
	case StageDuration:
		err = b.core.CreateSStream()
	case StageParameter:
		err = b.core.CreatePStream()
	case StageWaveform:
		err = b.core.CreateGStream()
	}
	if err != nil {
		return fmt.Errorf("%s stage: %w", stage, err)
	}
	b.next++
	return nil
}

func (b *base) Save(kind hts.OutputKind, w io.Writer) error {
	switch kind {
	case hts.OutputRaw:
		return b.core.SaveGeneratedSpeech(w)
	case hts.OutputDuration:
		return b.core.SaveLabel(w)
	case hts.OutputLogF0:
		return b.core.SaveGeneratedParameter(w, engine.StreamLogF0)
	case hts.OutputSpectrum:
		return b.core.SaveGeneratedParameter(w, engine.StreamSpectrum)
	}
	return fmt.Errorf("unknown output %s", kind)
}

func (b *base) Alignment() (engine.Alignment, error) {
	return b.core.Alignment()
}

func (b *base) StealWaveform() ([]int16, error) {
	return b.core.StealSpeech()
}

// loadLabelFile feeds a label file through the engine's stream reader.
func (b *base) loadLabelFile(f *hts.LabelFile) error {
	if err := b.core.LoadLabel(f); err != nil {
		return fmt.Errorf("loading label file %s: %w", f.Path, err)
	}
	return nil
}

// withModels opens every path, hands the readers to load and closes the files.
func withModels(paths []string, load func(r []io.Reader) error) error {
	files, err := hts.OpenModels(paths...)
	if err != nil {
		return err
	}
	defer hts.CloseAll(files)
	return load(hts.Readers(files))
}
