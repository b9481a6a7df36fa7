package binding

import (
	"fmt"
	"io"

	"github.com/nadzzz/htsbridge/internal/engine"
	"github.com/nadzzz/htsbridge/internal/hts"
)

// v22 drives HTS-2.2 engines, which also accept a single-file voice.
type v22 struct {
	base
	api engine.V22
}

func (b *v22) Version() engine.Version { return engine.V2_2 }

func (b *v22) Initialize(cfg hts.SynthesisConfig) error {
	return initializeBuffered(&b.base, b.api, cfg)
}

func (b *v22) LoadModels(cfg hts.SynthesisConfig) error {
	if cfg.VoiceFile == "" {
		return loadInterpolated(b.api, cfg)
	}
	return withModels([]string{cfg.VoiceFile}, func(r []io.Reader) error {
		if err := b.api.LoadVoice(r[0]); err != nil {
			return fmt.Errorf("loading voice %s: %w", cfg.VoiceFile, err)
		}
		return nil
	})
}

func (b *v22) LoadLabel(src hts.LabelSource) error {
	return loadLabelStrings(&b.base, b.api, src)
}
