package binding

import (
	"fmt"
	"io"

	"github.com/nadzzz/htsbridge/internal/engine"
	"github.com/nadzzz/htsbridge/internal/hts"
)

// v21 drives HTS-2.1 engines. Streams carry two delta windows and global
// variance is a single untied pdf per stream.
type v21 struct {
	base
	api engine.V21
}

func (b *v21) Version() engine.Version { return engine.V2_1 }

func (b *v21) Initialize(cfg hts.SynthesisConfig) error {
	return b.initialize(cfg)
}

func (b *v21) LoadModels(cfg hts.SynthesisConfig) error {
	paths := []string{
		cfg.Duration.PDF, cfg.Duration.Tree,
		cfg.Spectrum.PDF, cfg.Spectrum.Tree, cfg.Spectrum.Windows[0], cfg.Spectrum.Windows[1],
		cfg.LogF0.PDF, cfg.LogF0.Tree, cfg.LogF0.Windows[0], cfg.LogF0.Windows[1],
		cfg.GVSpectrum.PDF, cfg.GVLogF0.PDF,
		cfg.GVSwitch,
	}
	return withModels(paths, func(r []io.Reader) error {
		if err := b.api.LoadDuration(r[0], r[1]); err != nil {
			return fmt.Errorf("loading duration model: %w", err)
		}
		if err := b.api.LoadParameter(r[2], r[3], r[4:6], engine.StreamSpectrum, false); err != nil {
			return fmt.Errorf("loading spectrum model: %w", err)
		}
		if err := b.api.LoadParameter(r[6], r[7], r[8:10], engine.StreamLogF0, true); err != nil {
			return fmt.Errorf("loading log-F0 model: %w", err)
		}
		if err := b.api.LoadGV(r[10], engine.StreamSpectrum); err != nil {
			return fmt.Errorf("loading spectrum GV: %w", err)
		}
		if err := b.api.LoadGV(r[11], engine.StreamLogF0); err != nil {
			return fmt.Errorf("loading log-F0 GV: %w", err)
		}
		if err := b.api.LoadGVSwitch(r[12]); err != nil {
			return fmt.Errorf("loading GV switch: %w", err)
		}
		return nil
	})
}

// LoadLabel reads literal lines through the stream reader: 2.1 engines have
// no string-list entry point.
func (b *v21) LoadLabel(src hts.LabelSource) error {
	switch l := src.(type) {
	case *hts.LabelFile:
		return b.loadLabelFile(l)
	case hts.LabelLines:
		if err := b.api.LoadLabel(l.Reader()); err != nil {
			return fmt.Errorf("loading %d label lines: %w", len(l), err)
		}
		return nil
	}
	return fmt.Errorf("unsupported label source %T", src)
}
