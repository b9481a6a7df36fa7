package binding

import (
	"log/slog"

	"github.com/nadzzz/htsbridge/internal/engine"
	"github.com/nadzzz/htsbridge/internal/hts"
	"github.com/nadzzz/htsbridge/internal/params"
)

// Resolve chooses the engine version for an engine parameter list.
//
// An explicit -htsversion naming a supported version wins. Otherwise the
// version is inferred from the parameters present: -m belongs to the 2.2
// single-file voice convention and -dm3 to the 2.1.1 three-window
// convention. Anything else falls back to 2.1. Resolve never fails; an
// unrecognized tag is logged and inference proceeds.
func Resolve(p params.List) engine.Version {
	if tag := p.String(hts.KeyVersion, ""); tag != "" {
		if v := engine.Version(tag); v.Valid() {
			return v
		}
		slog.Warn("unrecognized engine version tag, inferring from parameters", "tag", tag)
	}
	switch {
	case p.Has(hts.KeyVoiceFile):
		return engine.V2_2
	case p.Has(hts.KeySpectrumWindow3):
		return engine.V2_1_1
	}
	return engine.V2_1
}
