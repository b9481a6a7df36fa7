package hts

import (
	"path/filepath"
	"testing"

	"github.com/nadzzz/htsbridge/internal/params"
)

func TestExtract_Defaults(t *testing.T) {
	cfg := Extract(params.List{})

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"Duration.PDF", cfg.Duration.PDF, "hts/dur.pdf"},
		{"Duration.Tree", cfg.Duration.Tree, "hts/tree-dur.inf"},
		{"Spectrum.PDF", cfg.Spectrum.PDF, "hts/mgc.pdf"},
		{"Spectrum.Tree", cfg.Spectrum.Tree, "hts/tree-mgc.inf"},
		{"Spectrum.Windows[0]", cfg.Spectrum.Windows[0], "hts/mgc.win1"},
		{"Spectrum.Windows[1]", cfg.Spectrum.Windows[1], "hts/mgc.win2"},
		{"Spectrum.Windows[2]", cfg.Spectrum.Windows[2], "hts/mgc.win3"},
		{"LogF0.PDF", cfg.LogF0.PDF, "hts/lf0.pdf"},
		{"LogF0.Tree", cfg.LogF0.Tree, "hts/tree-lf0.inf"},
		{"LogF0.Windows[0]", cfg.LogF0.Windows[0], "hts/lf0.win1"},
		{"LogF0.Windows[1]", cfg.LogF0.Windows[1], "hts/lf0.win2"},
		{"LogF0.Windows[2]", cfg.LogF0.Windows[2], "hts/lf0.win3"},
		{"GVSpectrum.PDF", cfg.GVSpectrum.PDF, "hts/gv-mgc.pdf"},
		{"GVSpectrum.Tree", cfg.GVSpectrum.Tree, "hts/tree-gv-mgc.inf"},
		{"GVLogF0.PDF", cfg.GVLogF0.PDF, "hts/gv-lf0.pdf"},
		{"GVLogF0.Tree", cfg.GVLogF0.Tree, "hts/tree-gv-lf0.inf"},
		{"GVSwitch", cfg.GVSwitch, "hts/gv-switch.inf"},
		{"VoiceFile", cfg.VoiceFile, ""},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, c.got, c.want)
		}
	}

	if cfg.SamplingRate != 16000 || cfg.Fperiod != 80 || cfg.Stage != 0 {
		t.Errorf("int defaults: rate=%d fperiod=%d stage=%d", cfg.SamplingRate, cfg.Fperiod, cfg.Stage)
	}
	if cfg.Alpha != 0.42 || cfg.Beta != 0.0 || cfg.UVThreshold != 0.5 {
		t.Errorf("float defaults: alpha=%v beta=%v uv=%v", cfg.Alpha, cfg.Beta, cfg.UVThreshold)
	}
}

func TestExtract_EveryPathKeyHasDefault(t *testing.T) {
	for key, def := range defaultPaths {
		if def == "" {
			t.Errorf("%s has an empty default", key)
		}
		if DefaultPath(key) != def {
			t.Errorf("DefaultPath(%s) = %q", key, DefaultPath(key))
		}
	}
}

func TestExtract_Overrides(t *testing.T) {
	cfg := Extract(params.List{
		"-s":       48000,
		"-p":       "240",
		"-a":       0.55,
		"-g":       1,
		"-b":       0.4,
		"-u":       0.3,
		"-md":      "voice/dur.pdf",
		"-dm3":     "voice/mgc.win3",
		"-k":       "voice/gv-switch.inf",
		"-m":       "voice/slt.htsvoice",
		"-unknown": "ignored",
	})

	if cfg.SamplingRate != 48000 || cfg.Fperiod != 240 || cfg.Stage != 1 {
		t.Errorf("ints: %+v", cfg)
	}
	if cfg.Alpha != 0.55 || cfg.Beta != 0.4 || cfg.UVThreshold != 0.3 {
		t.Errorf("floats: %+v", cfg)
	}
	if cfg.Duration.PDF != "voice/dur.pdf" || cfg.Spectrum.Windows[2] != "voice/mgc.win3" {
		t.Errorf("paths: %+v", cfg)
	}
	if cfg.Duration.Tree != "hts/tree-dur.inf" {
		t.Errorf("unset path lost its default: %q", cfg.Duration.Tree)
	}
	if cfg.GVSwitch != "voice/gv-switch.inf" || cfg.VoiceFile != "voice/slt.htsvoice" {
		t.Errorf("gv/voice: %+v", cfg)
	}
}

func TestSynthesisConfig_FrameRate(t *testing.T) {
	cfg := Extract(nil)
	if got := cfg.FrameRate(); got != 50000 {
		t.Errorf("FrameRate() = %v, want 50000", got)
	}
}

func TestSynthesisConfig_Resolve(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "abs.pdf")
	cfg := Extract(params.List{"-mm": abs}).Resolve("/voices/slt")

	if cfg.Duration.PDF != "/voices/slt/hts/dur.pdf" {
		t.Errorf("Duration.PDF = %q", cfg.Duration.PDF)
	}
	if cfg.LogF0.Windows[1] != "/voices/slt/hts/lf0.win2" {
		t.Errorf("LogF0.Windows[1] = %q", cfg.LogF0.Windows[1])
	}
	if cfg.Spectrum.PDF != abs {
		t.Errorf("absolute path rewritten: %q", cfg.Spectrum.PDF)
	}
	if cfg.VoiceFile != "" {
		t.Errorf("empty voice file became %q", cfg.VoiceFile)
	}

	same := Extract(nil).Resolve("")
	if same.Duration.PDF != "hts/dur.pdf" {
		t.Errorf("empty root changed paths: %q", same.Duration.PDF)
	}
}

func TestSynthesisConfig_Validate(t *testing.T) {
	if err := Extract(params.List{}).Validate(); err != nil {
		t.Errorf("defaults rejected: %v", err)
	}
	for _, p := range []params.List{
		{KeySamplingRate: 0},
		{KeySamplingRate: -16000},
		{KeyFperiod: 0},
		{KeyFperiod: -80},
	} {
		if err := Extract(p).Validate(); err == nil {
			t.Errorf("Validate accepted %v", p)
		}
	}
}
