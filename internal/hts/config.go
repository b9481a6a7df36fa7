// Package hts holds the engine-independent pieces of HTS synthesis: the
// per-call configuration extracted from host parameter lists, label inputs
// and side outputs, label-with-time handling and segment reconciliation.
package hts

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/nadzzz/htsbridge/internal/params"
)

// Engine parameter keys.
const (
	KeyVersion   = "-htsversion"
	KeyVoiceFile = "-m"

	KeyDurationPDF  = "-md"
	KeyDurationTree = "-td"
	KeySpectrumPDF  = "-mm"
	KeySpectrumTree = "-tm"
	KeyLogF0PDF     = "-mf"
	KeyLogF0Tree    = "-tf"

	KeySpectrumWindow1 = "-dm1"
	KeySpectrumWindow2 = "-dm2"
	KeySpectrumWindow3 = "-dm3"
	KeyLogF0Window1    = "-df1"
	KeyLogF0Window2    = "-df2"
	KeyLogF0Window3    = "-df3"

	KeyGVSpectrumPDF  = "-cm"
	KeyGVLogF0PDF     = "-cf"
	KeyGVSpectrumTree = "-em"
	KeyGVLogF0Tree    = "-ef"
	KeyGVSwitch       = "-k"

	KeySamplingRate = "-s"
	KeyFperiod      = "-p"
	KeyAlpha        = "-a"
	KeyStage        = "-g"
	KeyBeta         = "-b"
	KeyUVThreshold  = "-u"
)

// Output parameter keys.
const (
	KeyLabelFile   = "-labelfile"
	KeyLabelString = "-labelstring"
	KeyOutRaw      = "-or"
	KeyOutLogF0    = "-of"
	KeyOutSpectrum = "-om"
	KeyOutDuration = "-od"
)

// Defaults for numeric settings.
const (
	DefaultSamplingRate = 16000
	DefaultFperiod      = 80
	DefaultAlpha        = 0.42
	DefaultStage        = 0
	DefaultBeta         = 0.0
	DefaultUVThreshold  = 0.5
)

// defaultPaths maps each path-valued engine key to its conventional location.
var defaultPaths = map[string]string{
	KeyDurationPDF:     "hts/dur.pdf",
	KeyDurationTree:    "hts/tree-dur.inf",
	KeySpectrumPDF:     "hts/mgc.pdf",
	KeySpectrumTree:    "hts/tree-mgc.inf",
	KeyLogF0PDF:        "hts/lf0.pdf",
	KeyLogF0Tree:       "hts/tree-lf0.inf",
	KeySpectrumWindow1: "hts/mgc.win1",
	KeySpectrumWindow2: "hts/mgc.win2",
	KeySpectrumWindow3: "hts/mgc.win3",
	KeyLogF0Window1:    "hts/lf0.win1",
	KeyLogF0Window2:    "hts/lf0.win2",
	KeyLogF0Window3:    "hts/lf0.win3",
	KeyGVSpectrumPDF:   "hts/gv-mgc.pdf",
	KeyGVLogF0PDF:      "hts/gv-lf0.pdf",
	KeyGVSpectrumTree:  "hts/tree-gv-mgc.inf",
	KeyGVLogF0Tree:     "hts/tree-gv-lf0.inf",
	KeyGVSwitch:        "hts/gv-switch.inf",
}

// PathKeys returns every path-valued engine key that has a default, sorted.
func PathKeys() []string {
	keys := make([]string, 0, len(defaultPaths))
	for k := range defaultPaths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultPath returns the conventional path for a path-valued engine key.
func DefaultPath(key string) string {
	return defaultPaths[key]
}

// ModelFiles names a model and its decision tree.
type ModelFiles struct {
	PDF  string
	Tree string
}

// StreamFiles names the model, tree and delta windows of one parameter stream.
type StreamFiles struct {
	ModelFiles
	Windows [3]string
}

// SynthesisConfig is the immutable per-call snapshot of engine settings.
// It is derived from the engine parameter list on every call but only
// applied to the engine when the model set is (re)loaded.
type SynthesisConfig struct {
	SamplingRate int
	Fperiod      int
	Alpha        float64
	Stage        int
	Beta         float64
	UVThreshold  float64

	Duration ModelFiles
	Spectrum StreamFiles
	LogF0    StreamFiles

	GVSpectrum ModelFiles
	GVLogF0    ModelFiles
	GVSwitch   string

	// VoiceFile is a single-file voice (2.2 only). When set it replaces the
	// per-stream files.
	VoiceFile string
}

// Extract builds a SynthesisConfig from an engine parameter list. Absent keys
// take their documented defaults; unknown keys are ignored.
func Extract(p params.List) SynthesisConfig {
	path := func(key string) string { return p.String(key, defaultPaths[key]) }

	return SynthesisConfig{
		SamplingRate: int(p.Float(KeySamplingRate, DefaultSamplingRate)),
		Fperiod:      int(p.Float(KeyFperiod, DefaultFperiod)),
		Alpha:        p.Float(KeyAlpha, DefaultAlpha),
		Stage:        int(p.Float(KeyStage, DefaultStage)),
		Beta:         p.Float(KeyBeta, DefaultBeta),
		UVThreshold:  p.Float(KeyUVThreshold, DefaultUVThreshold),

		Duration: ModelFiles{PDF: path(KeyDurationPDF), Tree: path(KeyDurationTree)},
		Spectrum: StreamFiles{
			ModelFiles: ModelFiles{PDF: path(KeySpectrumPDF), Tree: path(KeySpectrumTree)},
			Windows:    [3]string{path(KeySpectrumWindow1), path(KeySpectrumWindow2), path(KeySpectrumWindow3)},
		},
		LogF0: StreamFiles{
			ModelFiles: ModelFiles{PDF: path(KeyLogF0PDF), Tree: path(KeyLogF0Tree)},
			Windows:    [3]string{path(KeyLogF0Window1), path(KeyLogF0Window2), path(KeyLogF0Window3)},
		},

		GVSpectrum: ModelFiles{PDF: path(KeyGVSpectrumPDF), Tree: path(KeyGVSpectrumTree)},
		GVLogF0:    ModelFiles{PDF: path(KeyGVLogF0PDF), Tree: path(KeyGVLogF0Tree)},
		GVSwitch:   path(KeyGVSwitch),

		VoiceFile: p.String(KeyVoiceFile, ""),
	}
}

// Validate rejects settings the engine cannot time frames with.
func (c SynthesisConfig) Validate() error {
	if c.SamplingRate <= 0 {
		return fmt.Errorf("invalid sampling rate %d (%s)", c.SamplingRate, KeySamplingRate)
	}
	if c.Fperiod <= 0 {
		return fmt.Errorf("invalid frame period %d (%s)", c.Fperiod, KeyFperiod)
	}
	return nil
}

// FrameRate returns the length of one frame in HTK 100ns units.
func (c SynthesisConfig) FrameRate() float64 {
	return float64(c.Fperiod) * 1e7 / float64(c.SamplingRate)
}

// Resolve returns a copy with every relative file path joined onto root.
func (c SynthesisConfig) Resolve(root string) SynthesisConfig {
	if root == "" {
		return c
	}
	join := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(root, *p)
		}
	}
	for _, m := range []*ModelFiles{&c.Duration, &c.Spectrum.ModelFiles, &c.LogF0.ModelFiles, &c.GVSpectrum, &c.GVLogF0} {
		join(&m.PDF)
		join(&m.Tree)
	}
	for i := range 3 {
		join(&c.Spectrum.Windows[i])
		join(&c.LogF0.Windows[i])
	}
	join(&c.GVSwitch)
	join(&c.VoiceFile)
	return c
}
