// Package synth runs HTS synthesis calls against cached engine bindings.
//
// A Synthesizer is the long-lived context of the host integration: it owns
// one engine binding per engine version, remembers which voice each
// binding's model set holds, and drives the ordered pipeline for each call.
// Calls are serialized.
package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nadzzz/htsbridge/internal/audio"
	"github.com/nadzzz/htsbridge/internal/binding"
	"github.com/nadzzz/htsbridge/internal/engine"
	"github.com/nadzzz/htsbridge/internal/hts"
	"github.com/nadzzz/htsbridge/internal/params"
	"github.com/nadzzz/htsbridge/internal/utterance"
)

// ErrNoLabel is returned when an utterance has segments but the call names
// neither a label file nor literal label lines.
var ErrNoLabel = errors.New("no input label specified")

// sideOutputs lists the optional outputs in the order they are written.
var sideOutputs = []hts.OutputKind{hts.OutputRaw, hts.OutputDuration, hts.OutputLogF0, hts.OutputSpectrum}

// Synthesizer is the synthesis context shared by every call.
type Synthesizer struct {
	mu      sync.Mutex
	factory engine.Factory
	slots   map[engine.Version]*slot
}

// slot is one engine binding and the voice its model set holds. cfg is the
// configuration the engine was last initialized with.
type slot struct {
	binding binding.Binding
	core    engine.Core
	loaded  bool
	voice   string
	cfg     hts.SynthesisConfig
	loads   int
	lastUse time.Time
}

// New creates a Synthesizer. Engines are created through factory the first
// time their version is needed and kept until Close.
func New(factory engine.Factory) *Synthesizer {
	return &Synthesizer{factory: factory, slots: make(map[engine.Version]*slot)}
}

// Report describes one completed call.
type Report struct {
	Version    engine.Version
	SampleRate int

	// CacheHit is true when the voice's models were already loaded.
	CacheHit bool

	// Timed is the engine's label-with-time output.
	Timed []hts.TimedSegment

	// Matched counts the segments whose end time was written.
	Matched    int
	Mismatches []hts.Mismatch

	// Warnings collects non-fatal problems: segment mismatches and failed
	// side outputs.
	Warnings []string
}

// Synthesize synthesizes utt with the given engine and output parameter
// lists. On success utt.Wave holds a mono waveform at the configured
// sampling rate and every reconciled segment carries its end time.
//
// The voice identity is utt.Voice. A call hits the cache only when the
// identity and the extracted configuration both match what the engine holds;
// an empty identity never hits.
func (s *Synthesizer) Synthesize(ctx context.Context, utt *utterance.Utterance, engineParams, outputParams params.List) (_ *Report, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version := binding.Resolve(engineParams)
	cfg := hts.Extract(engineParams)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := slog.With("version", version, "voice", utt.Voice)

	files, err := hts.OpenCallFiles(outputParams)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := files.Close(); err != nil {
			logger.Warn("closing call files", "error", err)
		}
	}()

	sl, err := s.slot(version)
	if err != nil {
		return nil, err
	}
	defer func() {
		if errors.Is(err, engine.ErrEngineLost) {
			s.drop(sl, logger)
		}
	}()
	hit, err := s.prepare(sl, utt.Voice, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer s.release(sl, logger)
	cfg = sl.cfg

	report := &Report{Version: version, SampleRate: cfg.SamplingRate, CacheHit: hit}

	if !utt.HasSegments() {
		logger.Debug("utterance has no segments, skipping synthesis")
		utt.Wave = audio.Empty(cfg.SamplingRate)
		return report, nil
	}

	if files.Label == nil {
		return nil, ErrNoLabel
	}
	b := sl.binding
	if err := b.LoadLabel(files.Label); err != nil {
		return nil, err
	}

	for _, stage := range binding.Stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.Run(stage); err != nil {
			return nil, err
		}
	}

	for _, kind := range sideOutputs {
		w, ok := files.Outputs[kind]
		if !ok {
			continue
		}
		if err := b.Save(kind, w); err != nil {
			logger.Warn("writing side output failed", "output", kind, "error", err)
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s output: %v", kind, err))
		}
	}

	timed, err := labelWithTime(b, cfg)
	if err != nil {
		return nil, err
	}
	report.Timed = timed

	samples, err := b.StealWaveform()
	if err != nil {
		return nil, fmt.Errorf("extracting waveform: %w", err)
	}
	utt.Wave = audio.NewMono(samples, cfg.SamplingRate)

	report.Matched, report.Mismatches = hts.Reconcile(utt.Segments, timed)
	for _, m := range report.Mismatches {
		logger.Warn("segment does not match engine label", "index", m.Index, "segment", m.Segment, "label", m.Label)
		report.Warnings = append(report.Warnings, m.String())
	}
	if len(timed) != len(utt.Segments) {
		logger.Debug("segment count differs from engine labels", "segments", len(utt.Segments), "labels", len(timed))
	}

	logger.Debug("synthesis complete",
		"samples", utt.Wave.Len(),
		"segments", len(utt.Segments),
		"matched", report.Matched,
		"cache_hit", hit,
	)
	return report, nil
}

// labelWithTime renders the engine's alignment as HTK label text and parses
// it back into timed segments.
func labelWithTime(b binding.Binding, cfg hts.SynthesisConfig) ([]hts.TimedSegment, error) {
	a, err := b.Alignment()
	if err != nil {
		return nil, fmt.Errorf("reading alignment: %w", err)
	}
	aligned, err := hts.Align(a, cfg.Fperiod, cfg.SamplingRate)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := hts.WriteLabels(&buf, aligned); err != nil {
		return nil, err
	}
	return hts.ParseLabels(&buf)
}

func (s *Synthesizer) slot(v engine.Version) (*slot, error) {
	if sl, ok := s.slots[v]; ok {
		return sl, nil
	}
	core, err := s.factory(v)
	if err != nil {
		return nil, fmt.Errorf("creating %s engine: %w", v, err)
	}
	b, err := binding.New(v, core)
	if err != nil {
		if c, ok := core.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}
	sl := &slot{binding: b, core: core}
	s.slots[v] = sl
	return sl, nil
}

// prepare makes sl hold voice's model set loaded with cfg. A cached voice
// with unchanged settings is only refreshed; anything else is cleared and
// reloaded from cfg. When loading fails the binding is cleared and holds no
// voice.
func (s *Synthesizer) prepare(sl *slot, voice string, cfg hts.SynthesisConfig, logger *slog.Logger) (bool, error) {
	sl.lastUse = time.Now()
	if sl.loaded && sl.voice != "" && sl.voice == voice && sl.cfg == cfg {
		if err := sl.binding.Refresh(); err != nil {
			return false, fmt.Errorf("refreshing engine: %w", err)
		}
		return true, nil
	}

	if sl.loaded {
		if sl.voice == voice {
			logger.Info("voice settings changed, reloading models")
		} else {
			logger.Info("voice changed, releasing models", "previous", sl.voice)
		}
		sl.loaded, sl.voice = false, ""
		if err := sl.binding.Clear(); err != nil {
			return false, fmt.Errorf("clearing engine: %w", err)
		}
	}

	start := time.Now()
	if err := sl.binding.Initialize(cfg); err != nil {
		return false, s.abandon(sl, err, logger)
	}
	if err := sl.binding.LoadModels(cfg); err != nil {
		return false, s.abandon(sl, err, logger)
	}
	sl.loaded, sl.voice, sl.cfg = true, voice, cfg
	sl.loads++
	logger.Info("voice models loaded", "duration", time.Since(start).String())
	return false, nil
}

// abandon clears a partially loaded binding and returns err.
func (s *Synthesizer) abandon(sl *slot, err error, logger *slog.Logger) error {
	if cerr := sl.binding.Clear(); cerr != nil {
		logger.Warn("clearing engine after failed load", "error", cerr)
	}
	sl.loaded, sl.voice = false, ""
	return err
}

// release leaves the binding refreshed with its models still loaded.
func (s *Synthesizer) release(sl *slot, logger *slog.Logger) {
	if err := sl.binding.Refresh(); err != nil {
		logger.Warn("refreshing engine", "error", err)
		if errors.Is(err, engine.ErrEngineLost) {
			s.drop(sl, logger)
		}
	}
}

// drop discards a slot whose engine is gone. The next call for its version
// creates a fresh engine and reloads the voice.
func (s *Synthesizer) drop(sl *slot, logger *slog.Logger) {
	v := sl.binding.Version()
	if s.slots[v] != sl {
		return
	}
	delete(s.slots, v)
	logger.Warn("engine lost, discarding binding", "previous_voice", sl.voice)
	if c, ok := sl.core.(io.Closer); ok {
		_ = c.Close()
	}
}

// SlotStatus describes one engine binding.
type SlotStatus struct {
	Version engine.Version `json:"version"`
	Voice   string         `json:"voice,omitempty"`
	Loaded  bool           `json:"loaded"`
	Loads   int            `json:"loads"`
	LastUse time.Time      `json:"last_use"`
}

// Status reports every binding created so far, oldest version first.
func (s *Synthesizer) Status() []SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SlotStatus, 0, len(s.slots))
	for v, sl := range s.slots {
		out = append(out, SlotStatus{Version: v, Voice: sl.voice, Loaded: sl.loaded, Loads: sl.loads, LastUse: sl.lastUse})
	}
	sort.Slice(out, func(i, j int) bool { return versionIndex(out[i].Version) < versionIndex(out[j].Version) })
	return out
}

func versionIndex(v engine.Version) int {
	for i, known := range engine.Versions {
		if v == known {
			return i
		}
	}
	return len(engine.Versions)
}

// Close clears every binding and closes engines that hold connections.
func (s *Synthesizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for v, sl := range s.slots {
		if sl.loaded {
			if err := sl.binding.Clear(); err != nil {
				errs = append(errs, fmt.Errorf("clearing %s engine: %w", v, err))
			}
		}
		if c, ok := sl.core.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s engine: %w", v, err))
			}
		}
		delete(s.slots, v)
	}
	return errors.Join(errs...)
}
