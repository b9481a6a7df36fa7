package binding

import (
	"bytes"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/nadzzz/htsbridge/internal/engine"
	"github.com/nadzzz/htsbridge/internal/engine/mock"
	"github.com/nadzzz/htsbridge/internal/hts"
	"github.com/nadzzz/htsbridge/internal/hts/htstest"
	"github.com/nadzzz/htsbridge/internal/params"
)

func newBinding(t *testing.T, v engine.Version) (Binding, *mock.Engine) {
	t.Helper()
	e := mock.New()
	b, err := New(v, e.As(v))
	if err != nil {
		t.Fatalf("New(%s): %v", v, err)
	}
	return b, e
}

func voiceConfig(t *testing.T) hts.SynthesisConfig {
	t.Helper()
	dir := htstest.WriteVoice(t, t.TempDir())
	return hts.Extract(params.List{hts.KeySamplingRate: 22050, hts.KeyFperiod: 110}).Resolve(dir)
}

func TestNew_RejectsMissingOperationSet(t *testing.T) {
	e := mock.New()
	if _, err := New(engine.V2_2, e.As(engine.V2_1)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("2.1 engine as 2.2: err = %v, want ErrUnsupportedVersion", err)
	}
	if _, err := New(engine.V2_1_1, e.As(engine.V2_1)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("2.1 engine as 2.1.1: err = %v, want ErrUnsupportedVersion", err)
	}
	if _, err := New("3.0", e.As(engine.V2_2)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("unknown version: err = %v, want ErrUnsupportedVersion", err)
	}
}

func TestInitialize_AppliesSettings(t *testing.T) {
	b, e := newBinding(t, engine.V2_1_1)
	cfg := voiceConfig(t)
	cfg.Alpha = 0.55
	cfg.Stage = 2
	cfg.Beta = 0.4
	cfg.UVThreshold = 0.3

	if err := b.Initialize(cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	rate, fperiod, alpha, gamma, beta, uv := e.Settings()
	if rate != 22050 || fperiod != 110 || alpha != 0.55 || gamma != 2 || beta != 0.4 || uv != 0.3 {
		t.Errorf("settings = %d %d %v %d %v %v", rate, fperiod, alpha, gamma, beta, uv)
	}
	if e.Count("set-audio-buffer-size") != 1 {
		t.Error("2.1.1 binding should disable the audio buffer")
	}
}

func TestInitialize_V21HasNoAudioBuffer(t *testing.T) {
	b, e := newBinding(t, engine.V2_1)
	if err := b.Initialize(voiceConfig(t)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if e.Count("set-audio-buffer-size") != 0 {
		t.Error("2.1 binding touched the audio buffer")
	}
}

func TestLoadModels_PerVersion(t *testing.T) {
	tests := []struct {
		version engine.Version
		files   int
	}{
		// dur pdf+tree, two streams with pdf+tree+2 windows, two GV pdfs, switch
		{engine.V2_1, 2 + 4 + 4 + 2 + 1},
		// three windows per stream and GV trees
		{engine.V2_1_1, 2 + 5 + 5 + 4 + 1},
		{engine.V2_2, 2 + 5 + 5 + 4 + 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.version), func(t *testing.T) {
			b, e := newBinding(t, tt.version)
			cfg := voiceConfig(t)
			if err := b.Initialize(cfg); err != nil {
				t.Fatalf("Initialize: %v", err)
			}
			if err := b.LoadModels(cfg); err != nil {
				t.Fatalf("LoadModels: %v", err)
			}
			if got := e.ModelLoads(); got != tt.files {
				t.Errorf("model files read = %d, want %d", got, tt.files)
			}
			if !e.Loaded() {
				t.Error("engine reports no models")
			}
		})
	}
}

func TestLoadModels_V22VoiceFile(t *testing.T) {
	b, e := newBinding(t, engine.V2_2)
	dir := t.TempDir()
	htstest.WriteFile(t, filepath.Join(dir, "voice.htsvoice"), "voice")
	cfg := hts.Extract(params.List{hts.KeyVoiceFile: "voice.htsvoice"}).Resolve(dir)

	if err := b.Initialize(cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := b.LoadModels(cfg); err != nil {
		t.Fatalf("LoadModels: %v", err)
	}
	if e.Count("load-voice") != 1 || e.Count("load-duration") != 0 {
		t.Errorf("calls = %v", e.Calls())
	}
}

func TestLoadModels_MissingFileLoadsNothing(t *testing.T) {
	b, e := newBinding(t, engine.V2_1_1)
	cfg := voiceConfig(t)
	cfg.GVSwitch = filepath.Join(t.TempDir(), "absent.inf")
	if err := b.Initialize(cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	err := b.LoadModels(cfg)
	var mfe *hts.ModelFileError
	if !errors.As(err, &mfe) {
		t.Fatalf("err = %v, want *hts.ModelFileError", err)
	}
	if mfe.Path != cfg.GVSwitch {
		t.Errorf("Path = %q, want %q", mfe.Path, cfg.GVSwitch)
	}
	if e.ModelLoads() != 0 {
		t.Errorf("engine read %d files before the failure was detected", e.ModelLoads())
	}
}

func TestLoadLabel_V21JoinsLines(t *testing.T) {
	b, e := newBinding(t, engine.V2_1)
	if err := b.LoadLabel(hts.LabelLines{"x^x-sil+a", "x^sil-a+x"}); err != nil {
		t.Fatalf("LoadLabel: %v", err)
	}
	if e.Count("load-label") != 1 || e.Count("load-label-strings") != 0 {
		t.Errorf("calls = %v", e.Calls())
	}
}

func TestLoadLabel_V211UsesStrings(t *testing.T) {
	b, e := newBinding(t, engine.V2_1_1)
	if err := b.LoadLabel(hts.LabelLines{"x^x-sil+a"}); err != nil {
		t.Fatalf("LoadLabel: %v", err)
	}
	if e.Count("load-label-strings") != 1 {
		t.Errorf("calls = %v", e.Calls())
	}
}

func runAll(t *testing.T, b Binding) {
	t.Helper()
	for _, s := range Stages {
		if err := b.Run(s); err != nil {
			t.Fatalf("Run(%s): %v", s, err)
		}
	}
}

func TestRun_EnforcesOrder(t *testing.T) {
	b, _ := newBinding(t, engine.V2_2)
	cfg := voiceConfig(t)
	if err := b.Initialize(cfg); err != nil {
		t.Fatal(err)
	}
	if err := b.LoadModels(cfg); err != nil {
		t.Fatal(err)
	}
	if err := b.LoadLabel(hts.LabelLines{"a", "b"}); err != nil {
		t.Fatal(err)
	}

	if err := b.Run(StageWaveform); !errors.Is(err, ErrStageOrder) {
		t.Fatalf("waveform first: err = %v, want ErrStageOrder", err)
	}
	runAll(t, b)
	if err := b.Run(StageDuration); !errors.Is(err, ErrStageOrder) {
		t.Fatalf("rerun without refresh: err = %v, want ErrStageOrder", err)
	}

	if err := b.Refresh(); err != nil {
		t.Fatal(err)
	}
	if err := b.LoadLabel(hts.LabelLines{"c"}); err != nil {
		t.Fatal(err)
	}
	runAll(t, b)
}

func TestSaveAndSteal(t *testing.T) {
	b, e := newBinding(t, engine.V2_1_1)
	cfg := voiceConfig(t)
	if err := b.Initialize(cfg); err != nil {
		t.Fatal(err)
	}
	if err := b.LoadModels(cfg); err != nil {
		t.Fatal(err)
	}
	if err := b.LoadLabel(hts.LabelLines{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	runAll(t, b)

	var raw, lf0, mgc, dur bytes.Buffer
	for kind, w := range map[hts.OutputKind]*bytes.Buffer{
		hts.OutputRaw: &raw, hts.OutputLogF0: &lf0, hts.OutputSpectrum: &mgc, hts.OutputDuration: &dur,
	} {
		if err := b.Save(kind, w); err != nil {
			t.Fatalf("Save(%s): %v", kind, err)
		}
	}
	calls := e.Calls()
	if !slices.Contains(calls, "save-parameter-0") || !slices.Contains(calls, "save-parameter-1") {
		t.Errorf("spectrum and log-F0 should write distinct streams: %v", calls)
	}
	// 2 labels * 10 frames * 110 samples * 2 bytes
	if raw.Len() != 2*10*110*2 {
		t.Errorf("raw output = %d bytes", raw.Len())
	}

	samples, err := b.StealWaveform()
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2*10*110 {
		t.Errorf("stole %d samples", len(samples))
	}
	if e.HasSpeech() {
		t.Error("engine still references the waveform")
	}
	again, _ := b.StealWaveform()
	if again != nil {
		t.Error("second steal returned samples")
	}
}
