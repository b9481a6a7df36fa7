package synth

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nadzzz/htsbridge/internal/engine"
	"github.com/nadzzz/htsbridge/internal/engine/mock"
	"github.com/nadzzz/htsbridge/internal/engine/remote"
	"github.com/nadzzz/htsbridge/internal/hts"
	"github.com/nadzzz/htsbridge/internal/hts/htstest"
	"github.com/nadzzz/htsbridge/internal/params"
	"github.com/nadzzz/htsbridge/internal/utterance"
)

type fixture struct {
	synth   *Synthesizer
	engines map[engine.Version]*mock.Engine
	params  params.List
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		engines: make(map[engine.Version]*mock.Engine),
		params:  htstest.Params(htstest.WriteVoice(t, t.TempDir())),
	}
	f.synth = New(func(v engine.Version) (engine.Core, error) {
		e := mock.New()
		f.engines[v] = e
		return e.As(v), nil
	})
	t.Cleanup(func() { _ = f.synth.Close() })
	return f
}

func labels(lines ...string) params.List {
	return params.List{hts.KeyLabelString: lines}
}

var silKA = []string{"x^x-sil+k", "x^sil-k+a", "sil^k-a+x"}

func TestSynthesize_CacheHitSkipsReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.synth.Synthesize(ctx, utterance.New("kal", "sil", "k", "a"), f.params, labels(silKA...)); err != nil {
		t.Fatalf("first call: %v", err)
	}
	e := f.engines[engine.V2_1_1]
	loads := e.ModelLoads()
	if loads == 0 {
		t.Fatal("first call loaded no models")
	}

	report, err := f.synth.Synthesize(ctx, utterance.New("kal", "sil", "k", "a"), f.params, labels(silKA...))
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !report.CacheHit {
		t.Error("second call with the same voice missed the cache")
	}
	if got := e.ModelLoads(); got != loads {
		t.Errorf("model files read on cache hit: %d -> %d", loads, got)
	}
	if e.Count("initialize") != 1 || e.Count("clear") != 0 {
		t.Errorf("calls = %v", e.Calls())
	}
}

func TestSynthesize_VoiceSwitchReloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, voice := range []string{"kal", "rab", "rab", "kal"} {
		if _, err := f.synth.Synthesize(ctx, utterance.New(voice, "sil", "k", "a"), f.params, labels(silKA...)); err != nil {
			t.Fatalf("voice %s: %v", voice, err)
		}
	}
	e := f.engines[engine.V2_1_1]
	if got := e.Count("initialize"); got != 3 {
		t.Errorf("initialize called %d times, want 3", got)
	}
	if got := e.Count("clear"); got != 2 {
		t.Errorf("clear called %d times, want 2", got)
	}
	if got, want := e.ModelLoads(), 3*len(htstest.ModelKeys); got != want {
		t.Errorf("model files read = %d, want %d", got, want)
	}
}

func TestSynthesize_EmptyVoiceNeverHits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for range 2 {
		report, err := f.synth.Synthesize(ctx, utterance.New("", "sil"), f.params, labels("x-sil+x"))
		if err != nil {
			t.Fatal(err)
		}
		if report.CacheHit {
			t.Error("anonymous voice hit the cache")
		}
	}
}

func TestSynthesize_NoSegments(t *testing.T) {
	f := newFixture(t)
	p := f.params.Merge(params.List{hts.KeySamplingRate: 48000})

	utt := utterance.New("kal")
	if _, err := f.synth.Synthesize(context.Background(), utt, p, nil); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if utt.Wave == nil || utt.Wave.Len() != 0 {
		t.Fatalf("wave = %+v, want empty", utt.Wave)
	}
	if utt.Wave.SampleRate != 48000 {
		t.Errorf("sample rate = %d, want 48000", utt.Wave.SampleRate)
	}
	for _, op := range []string{"create-sstream", "create-pstream", "create-gstream", "load-label-strings"} {
		if n := f.engines[engine.V2_1_1].Count(op); n != 0 {
			t.Errorf("%s ran %d times for an empty utterance", op, n)
		}
	}
}

func TestSynthesize_NoLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	utt := utterance.New("kal", "sil")
	_, err := f.synth.Synthesize(ctx, utt, f.params, params.List{})
	if !errors.Is(err, ErrNoLabel) {
		t.Fatalf("err = %v, want ErrNoLabel", err)
	}
	if utt.Wave != nil {
		t.Error("wave attached without a label")
	}

	// The engine is left refreshed with its models.
	e := f.engines[engine.V2_1_1]
	if !e.Loaded() {
		t.Error("models dropped after missing label")
	}
	report, err := f.synth.Synthesize(ctx, utterance.New("kal", "sil"), f.params, labels("x-sil+x"))
	if err != nil {
		t.Fatalf("call after missing label: %v", err)
	}
	if !report.CacheHit {
		t.Error("voice should still be cached")
	}
}

func TestSynthesize_ReconcilesSegments(t *testing.T) {
	f := newFixture(t)
	utt := utterance.New("kal", "sil", "k", "a")

	report, err := f.synth.Synthesize(context.Background(), utt, f.params, labels(silKA...))
	if err != nil {
		t.Fatal(err)
	}
	// 10 frames of 80 samples at 16kHz per label.
	want := []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond}
	for i, seg := range utt.Segments {
		if seg.End != want[i] {
			t.Errorf("segment %d (%s) end = %v, want %v", i, seg.Name, seg.End, want[i])
		}
	}
	if report.Matched != 3 || len(report.Warnings) != 0 {
		t.Errorf("report = %+v", report)
	}
	if utt.Wave.Len() != 3*10*80 || utt.Wave.SampleRate != 16000 || utt.Wave.Channels != 1 {
		t.Errorf("wave = %d samples @ %d Hz x%d", utt.Wave.Len(), utt.Wave.SampleRate, utt.Wave.Channels)
	}
	if f.engines[engine.V2_1_1].HasSpeech() {
		t.Error("engine kept a reference to the waveform")
	}
}

func TestSynthesize_MismatchContinues(t *testing.T) {
	f := newFixture(t)
	utt := utterance.New("kal", "sil", "k", "a")

	report, err := f.synth.Synthesize(context.Background(), utt, f.params, labels("x-sil+y", "x-t+y", "x-a+y"))
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Mismatches) != 1 || report.Mismatches[0].Index != 1 {
		t.Fatalf("mismatches = %+v", report.Mismatches)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], `"k"`) {
		t.Errorf("warnings = %v", report.Warnings)
	}
	if utt.Segments[0].End == 0 || utt.Segments[2].End == 0 {
		t.Error("matching segments were not timed")
	}
	if utt.Segments[1].End != 0 {
		t.Errorf("mismatched segment was timed: %v", utt.Segments[1].End)
	}
}

func TestSynthesize_LabelFrames(t *testing.T) {
	f := newFixture(t)
	f.synth = New(func(v engine.Version) (engine.Core, error) {
		e := mock.New()
		e.LabelFrames = []int{10, 10, 5}
		f.engines[v] = e
		return e.As(v), nil
	})

	report, err := f.synth.Synthesize(context.Background(), utterance.New("kal", "sil", "k", "a"), f.params, labels(silKA...))
	if err != nil {
		t.Fatal(err)
	}
	// rate = 80*1e7/16000 = 50000 HTK units per frame
	wantEnds := []time.Duration{500000 * 100, 1000000 * 100, 1250000 * 100}
	if len(report.Timed) != 3 || report.Timed[0].Start != 0 {
		t.Fatalf("timed = %+v", report.Timed)
	}
	for i, seg := range report.Timed {
		if seg.End != wantEnds[i] {
			t.Errorf("label %d end = %v, want %v", i, seg.End, wantEnds[i])
		}
	}
}

func TestSynthesize_MissingModelFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bad := f.params.Merge(params.List{hts.KeyDurationPDF: filepath.Join(t.TempDir(), "missing.pdf")})

	utt := utterance.New("kal", "sil")
	_, err := f.synth.Synthesize(ctx, utt, bad, labels("x-sil+x"))
	var mfe *hts.ModelFileError
	if !errors.As(err, &mfe) {
		t.Fatalf("err = %v, want *hts.ModelFileError", err)
	}
	e := f.engines[engine.V2_1_1]
	if e.Count("create-sstream") != 0 {
		t.Error("pipeline ran without models")
	}
	if e.Loaded() {
		t.Error("partial model set left active")
	}
	status := f.synth.Status()
	if len(status) != 1 || status[0].Loaded || status[0].Voice != "" {
		t.Errorf("status = %+v", status)
	}

	// The same voice name must reload rather than hit a stale marker.
	report, err := f.synth.Synthesize(ctx, utterance.New("kal", "sil"), f.params, labels("x-sil+x"))
	if err != nil {
		t.Fatal(err)
	}
	if report.CacheHit {
		t.Error("failed load was cached")
	}
}

func TestSynthesize_SideOutputs(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	out := labels(silKA...).Merge(params.List{
		hts.KeyOutRaw:      filepath.Join(dir, "out.raw"),
		hts.KeyOutDuration: filepath.Join(dir, "out.lab"),
		hts.KeyOutLogF0:    filepath.Join(dir, "out.lf0"),
		hts.KeyOutSpectrum: filepath.Join(dir, "out.mgc"),
	})

	utt := utterance.New("kal", "sil", "k", "a")
	if _, err := f.synth.Synthesize(context.Background(), utt, f.params, out); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "out.raw"))
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 2*utt.Wave.Len() {
		t.Errorf("raw output = %d bytes, want %d", len(raw), 2*utt.Wave.Len())
	}
	lab, err := os.ReadFile(filepath.Join(dir, "out.lab"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(lab), "\n"); got != 3 {
		t.Errorf("label output has %d lines", got)
	}
	for _, name := range []string{"out.lf0", "out.mgc"} {
		if st, err := os.Stat(filepath.Join(dir, name)); err != nil || st.Size() == 0 {
			t.Errorf("%s missing or empty: %v", name, err)
		}
	}
	calls := f.engines[engine.V2_1_1].Calls()
	if !containsAll(calls, "save-parameter-0", "save-parameter-1") {
		t.Errorf("calls = %v", calls)
	}
}

func TestSynthesize_LabelFileTakesPrecedence(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "utt.lab")
	htstest.WriteFile(t, path, "0 0 x-sil+x\n0 0 x-k+x\n")

	utt := utterance.New("kal", "sil", "k")
	out := params.List{hts.KeyLabelFile: path, hts.KeyLabelString: []string{"x-a+x"}}
	report, err := f.synth.Synthesize(context.Background(), utt, f.params, out)
	if err != nil {
		t.Fatal(err)
	}
	if report.Matched != 2 {
		t.Errorf("matched = %d, want 2", report.Matched)
	}
	if f.engines[engine.V2_1_1].Count("load-label") != 1 {
		t.Error("label file was not read")
	}
}

func TestSynthesize_DispatchesByVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p21 := f.params.Merge(params.List{hts.KeyVersion: "2.1"})
	report, err := f.synth.Synthesize(ctx, utterance.New("kal", "sil"), p21, labels("x-sil+x"))
	if err != nil {
		t.Fatal(err)
	}
	if report.Version != engine.V2_1 {
		t.Errorf("version = %s", report.Version)
	}
	if _, err := f.synth.Synthesize(ctx, utterance.New("kal", "sil"), f.params, labels("x-sil+x")); err != nil {
		t.Fatal(err)
	}

	status := f.synth.Status()
	if len(status) != 2 || status[0].Version != engine.V2_1 || status[1].Version != engine.V2_1_1 {
		t.Errorf("status = %+v", status)
	}
	// Each version keeps its own model set.
	if !status[0].Loaded || !status[1].Loaded {
		t.Error("switching versions dropped a model set")
	}
}

func TestSynthesize_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.synth.Synthesize(ctx, utterance.New("kal", "sil"), f.params, labels("x-sil+x")); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func containsAll(haystack []string, needles ...string) bool {
	for _, n := range needles {
		found := false
		for _, h := range haystack {
			if h == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestSynthesize_SettingsChangeReloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	call := func(p params.List) (*Report, *utterance.Utterance) {
		t.Helper()
		utt := utterance.New("kal", "sil", "k", "a")
		report, err := f.synth.Synthesize(ctx, utt, p, labels(silKA...))
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		return report, utt
	}

	call(f.params)
	p48 := f.params.Merge(params.List{hts.KeySamplingRate: 48000})
	report, utt := call(p48)
	if report.CacheHit {
		t.Error("changed sampling rate hit the cache")
	}
	e := f.engines[engine.V2_1_1]
	if rate, _, _, _, _, _ := e.Settings(); rate != 48000 {
		t.Errorf("engine rate = %d, want 48000", rate)
	}
	if utt.Wave.SampleRate != 48000 || report.SampleRate != 48000 {
		t.Errorf("wave rate = %d, report rate = %d", utt.Wave.SampleRate, report.SampleRate)
	}
	frames := 3 * mock.DefaultFramesPerLabel
	if got, want := utt.Wave.Len(), frames*hts.DefaultFperiod; got != want {
		t.Errorf("samples = %d, want %d", got, want)
	}
	frame := float64(hts.DefaultFperiod) * 1e7 / 48000
	want := time.Duration(int64(float64(frames)*frame)) * 100 * time.Nanosecond
	if got := utt.Segments[2].End; got != want {
		t.Errorf("last end = %v, want %v", got, want)
	}

	if report, _ := call(p48); !report.CacheHit {
		t.Error("repeated settings missed the cache")
	}
	if got := e.Count("initialize"); got != 2 {
		t.Errorf("initialize called %d times, want 2", got)
	}

	// Same voice name, models moved: reload from the new files.
	moved := htstest.Params(htstest.WriteVoice(t, t.TempDir())).Merge(params.List{hts.KeySamplingRate: 48000})
	if report, _ := call(moved); report.CacheHit {
		t.Error("changed model paths hit the cache")
	}
}

func TestSynthesize_InvalidTiming(t *testing.T) {
	f := newFixture(t)
	for _, p := range []params.List{
		{hts.KeySamplingRate: 0},
		{hts.KeyFperiod: -80},
	} {
		_, err := f.synth.Synthesize(context.Background(), utterance.New("kal", "sil"), f.params.Merge(p), labels("x-sil+x"))
		if err == nil {
			t.Errorf("Synthesize accepted %v", p)
		}
	}
	if len(f.engines) != 0 {
		t.Errorf("engines created for invalid settings: %d", len(f.engines))
	}
}

func TestSynthesize_LostEngineIsReplaced(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := htstest.Params(htstest.WriteVoice(t, t.TempDir()))

	var hosts []net.Conn
	s := New(func(v engine.Version) (engine.Core, error) {
		client, server := net.Pipe()
		hosts = append(hosts, server)
		go func() {
			_ = remote.Serve(ctx, server, func(v engine.Version) (engine.Core, error) { return mock.New().As(v), nil })
		}()
		sess, err := remote.NewSession(client, v, 5*time.Second)
		if err != nil {
			return nil, err
		}
		return sess.As(v), nil
	})
	defer s.Close()

	call := func() (*Report, error) {
		return s.Synthesize(context.Background(), utterance.New("kal", "sil", "k", "a"), p, labels(silKA...))
	}
	if _, err := call(); err != nil {
		t.Fatalf("first call: %v", err)
	}

	_ = hosts[0].Close()
	if _, err := call(); !errors.Is(err, engine.ErrEngineLost) {
		t.Fatalf("call on a lost engine = %v, want ErrEngineLost", err)
	}

	report, err := call()
	if err != nil {
		t.Fatalf("call after loss: %v", err)
	}
	if report.CacheHit {
		t.Error("fresh engine reported a cache hit")
	}
	if len(hosts) != 2 {
		t.Errorf("engines created = %d, want 2", len(hosts))
	}
	if st := s.Status(); len(st) != 1 || st[0].Loads != 1 {
		t.Errorf("status = %+v", st)
	}
}
