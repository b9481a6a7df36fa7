// Package dispatch turns transport requests into synthesis calls.
//
// The dispatcher looks up the requested voice, layers the request's
// parameter overrides on the voice definition, runs the synthesizer and
// packages the waveform and segment timings into a Result. Synthesis
// failures are reported in Result.Error; the sender always gets a result.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/htsbridge/internal/hts"
	"github.com/nadzzz/htsbridge/internal/params"
	"github.com/nadzzz/htsbridge/internal/synth"
	"github.com/nadzzz/htsbridge/internal/utterance"
	"github.com/nadzzz/htsbridge/internal/voice"
)

// Synthesizer runs one synthesis call.
type Synthesizer interface {
	Synthesize(ctx context.Context, utt *utterance.Utterance, engineParams, outputParams params.List) (*synth.Report, error)
}

// Catalog supplies the current voice catalog.
type Catalog interface {
	Catalog() *voice.Catalog
}

// fileKeys are output parameters naming server-side files.
var fileKeys = []string{hts.KeyLabelFile, hts.KeyOutRaw, hts.KeyOutDuration, hts.KeyOutLogF0, hts.KeyOutSpectrum}

// Options controls what requests may ask for.
type Options struct {
	// AllowFilePaths lets requests name server-side label files and side
	// output files. When false such requests are refused.
	AllowFilePaths bool
}

// Dispatcher is the request handler shared by every transport.
type Dispatcher struct {
	synth  Synthesizer
	voices Catalog
	opts   Options
}

// New creates a Dispatcher.
func New(s Synthesizer, voices Catalog, opts Options) *Dispatcher {
	return &Dispatcher{synth: s, voices: voices, opts: opts}
}

// Handle processes a single synthesis request.
// This function is passed as the transport.Handler to each transport.
func (d *Dispatcher) Handle(ctx context.Context, req *utterance.Request) (*utterance.Result, error) {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = start
	}
	logger := slog.With("request_id", req.ID, "voice", req.Voice)
	logger.Info("synthesis requested", "segments", len(req.Segments), "labels", len(req.Labels))

	result := &utterance.Result{RequestID: req.ID}

	v, err := d.voices.Catalog().Lookup(req.Voice)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	result.Voice = v.Name

	overrides, err := d.outputOverrides(req)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	engineParams, outputParams := v.Params(req.EngineParams, overrides)

	utt := utterance.New(v.Name, req.Segments...)
	report, err := d.synth.Synthesize(ctx, utt, engineParams, outputParams)
	if err != nil {
		result.Error = fmt.Sprintf("synthesis failed: %v", err)
		logger.Error("synthesis failed", "error", err)
		return result, nil
	}
	result.EngineVersion = string(report.Version)
	result.Warnings = report.Warnings

	wave := utt.Wave
	if req.SampleRate > 0 && req.SampleRate != wave.SampleRate {
		resampled, err := wave.Resample(req.SampleRate)
		if err != nil {
			result.Error = fmt.Sprintf("resampling to %d Hz: %v", req.SampleRate, err)
			logger.Error("resampling failed", "error", err)
			return result, nil
		}
		wave = resampled
	}
	result.SampleRate = wave.SampleRate
	result.Channels = wave.Channels
	result.NumSamples = wave.Len()

	switch req.Encoding {
	case utterance.EncodingPCM:
		result.SetAudioBytes(wave.PCM())
		result.ContentType = fmt.Sprintf("audio/L16;rate=%d;channels=%d", wave.SampleRate, wave.Channels)
	default:
		result.SetAudioBytes(wave.WAV())
		result.ContentType = "audio/wav"
	}

	result.Segments = make([]utterance.SegmentTiming, len(utt.Segments))
	for i, seg := range utt.Segments {
		result.Segments[i] = utterance.SegmentTiming{Name: seg.Name}
		if seg.End > 0 {
			end := seg.End.Seconds()
			result.Segments[i].End = &end
		}
	}

	logger.Info("synthesis complete",
		"duration", time.Since(start),
		"engine_version", report.Version,
		"samples", result.NumSamples,
		"cache_hit", report.CacheHit,
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// outputOverrides builds the output parameter overrides carried by req.
func (d *Dispatcher) outputOverrides(req *utterance.Request) (params.List, error) {
	out := params.List{}
	for k, v := range req.OutputParams {
		out[k] = v
	}
	if req.LabelFile != "" {
		out[hts.KeyLabelFile] = req.LabelFile
	}
	if len(req.Labels) > 0 {
		out[hts.KeyLabelString] = req.Labels
	}

	if !d.opts.AllowFilePaths {
		for _, key := range fileKeys {
			if out.Has(key) {
				return nil, fmt.Errorf("request may not name server files (%s)", key)
			}
		}
	}
	return out, nil
}
