package binding

import (
	"fmt"
	"io"

	"github.com/nadzzz/htsbridge/internal/engine"
	"github.com/nadzzz/htsbridge/internal/hts"
)

// interpolation is the number of model sets loaded per stream.
const interpolation = 1

// v211 drives HTS-2.1.1 engines.
type v211 struct {
	base
	api engine.V211
}

func (b *v211) Version() engine.Version { return engine.V2_1_1 }

func (b *v211) Initialize(cfg hts.SynthesisConfig) error {
	return initializeBuffered(&b.base, b.api, cfg)
}

func (b *v211) LoadModels(cfg hts.SynthesisConfig) error {
	return loadInterpolated(b.api, cfg)
}

func (b *v211) LoadLabel(src hts.LabelSource) error {
	return loadLabelStrings(&b.base, b.api, src)
}

// initializeBuffered initializes and disables the engine's audio device buffer.
func initializeBuffered(b *base, e engine.V211, cfg hts.SynthesisConfig) error {
	if err := b.initialize(cfg); err != nil {
		return err
	}
	if err := e.SetAudioBufferSize(0); err != nil {
		return fmt.Errorf("setting audio buffer size: %w", err)
	}
	return nil
}

// loadInterpolated loads per-stream files through the 2.1.1 loaders.
func loadInterpolated(e engine.V211, cfg hts.SynthesisConfig) error {
	paths := []string{
		cfg.Duration.PDF, cfg.Duration.Tree,
		cfg.Spectrum.PDF, cfg.Spectrum.Tree, cfg.Spectrum.Windows[0], cfg.Spectrum.Windows[1], cfg.Spectrum.Windows[2],
		cfg.LogF0.PDF, cfg.LogF0.Tree, cfg.LogF0.Windows[0], cfg.LogF0.Windows[1], cfg.LogF0.Windows[2],
		cfg.GVSpectrum.PDF, cfg.GVSpectrum.Tree,
		cfg.GVLogF0.PDF, cfg.GVLogF0.Tree,
		cfg.GVSwitch,
	}
	return withModels(paths, func(r []io.Reader) error {
		if err := e.LoadDuration(r[0:1], r[1:2], interpolation); err != nil {
			return fmt.Errorf("loading duration model: %w", err)
		}
		if err := e.LoadParameter(r[2:3], r[3:4], r[4:7], engine.StreamSpectrum, false, interpolation); err != nil {
			return fmt.Errorf("loading spectrum model: %w", err)
		}
		if err := e.LoadParameter(r[7:8], r[8:9], r[9:12], engine.StreamLogF0, true, interpolation); err != nil {
			return fmt.Errorf("loading log-F0 model: %w", err)
		}
		if err := e.LoadGV(r[12:13], r[13:14], engine.StreamSpectrum, interpolation); err != nil {
			return fmt.Errorf("loading spectrum GV: %w", err)
		}
		if err := e.LoadGV(r[14:15], r[15:16], engine.StreamLogF0, interpolation); err != nil {
			return fmt.Errorf("loading log-F0 GV: %w", err)
		}
		if err := e.LoadGVSwitch(r[16]); err != nil {
			return fmt.Errorf("loading GV switch: %w", err)
		}
		return nil
	})
}

func loadLabelStrings(b *base, e engine.V211, src hts.LabelSource) error {
	switch l := src.(type) {
	case *hts.LabelFile:
		return b.loadLabelFile(l)
	case hts.LabelLines:
		if err := e.LoadLabelStrings(l); err != nil {
			return fmt.Errorf("loading %d label lines: %w", len(l), err)
		}
		return nil
	}
	return fmt.Errorf("unsupported label source %T", src)
}
