// Package utterance defines the host-side data flowing through htsbridge:
// the utterance being synthesized and the request/result types exchanged
// with transports.
package utterance

import (
	"encoding/base64"
	"time"

	"github.com/nadzzz/htsbridge/internal/audio"
	"github.com/nadzzz/htsbridge/internal/params"
)

// Segment is one entry of the caller's segment sequence. Synthesis never
// creates or removes segments; it only writes End.
type Segment struct {
	// Name is the context-independent phone name (e.g. "sil", "k").
	Name string

	// End is the segment end time from utterance start. Zero until reconciled.
	End time.Duration
}

// Utterance is the unit of synthesis.
type Utterance struct {
	// Voice names the voice the host has selected for this utterance.
	Voice string

	// Segments is the caller's ordered phone sequence.
	Segments []*Segment

	// Wave is attached by synthesis.
	Wave *audio.Buffer
}

// New creates an utterance with one segment per phone name.
func New(voice string, phones ...string) *Utterance {
	u := &Utterance{Voice: voice, Segments: make([]*Segment, len(phones))}
	for i, p := range phones {
		u.Segments[i] = &Segment{Name: p}
	}
	return u
}

// HasSegments reports whether there is anything to synthesize.
func (u *Utterance) HasSegments() bool {
	return len(u.Segments) > 0
}

// Encoding selects the audio container returned to callers.
type Encoding string

const (
	// EncodingWAV returns a RIFF/WAVE file.
	EncodingWAV Encoding = "wav"

	// EncodingPCM returns headerless 16-bit little-endian samples.
	EncodingPCM Encoding = "pcm"
)

// Request is a synthesis request from any transport.
type Request struct {
	// ID is a unique identifier for this request (UUID). Assigned when empty.
	ID string `json:"id"`

	// Voice selects a voice definition from the catalog. Empty selects the default voice.
	Voice string `json:"voice,omitempty"`

	// Segments lists the context-independent phone names of the utterance.
	Segments []string `json:"segments"`

	// Labels holds literal full-context label lines.
	Labels []string `json:"labels,omitempty"`

	// LabelFile is a label file path readable by the server. Takes precedence over Labels.
	LabelFile string `json:"label_file,omitempty"`

	// EngineParams overrides entries of the voice's engine parameter list (e.g. {"-s": 48000}).
	EngineParams params.List `json:"engine_params,omitempty" swaggertype:"object"`

	// OutputParams overrides entries of the voice's output parameter list (e.g. {"-or": "/tmp/out.raw"}).
	OutputParams params.List `json:"output_params,omitempty" swaggertype:"object"`

	// SampleRate resamples the returned audio. Zero keeps the engine rate.
	SampleRate int `json:"sample_rate,omitempty"`

	// Encoding of the returned audio: "wav" (default) or "pcm".
	Encoding Encoding `json:"encoding,omitempty"`

	// Timestamp is when the request was received.
	Timestamp time.Time `json:"timestamp"`
}

// SegmentTiming reports a reconciled segment.
type SegmentTiming struct {
	Name string `json:"name"`

	// End is the segment end in seconds. Absent when the segment was not reconciled.
	End *float64 `json:"end,omitempty"`
}

// Result is the outcome of a synthesis request.
type Result struct {
	// RequestID is the original request ID.
	RequestID string `json:"request_id"`

	// Voice is the voice that was used.
	Voice string `json:"voice,omitempty"`

	// EngineVersion is the engine API version the request was dispatched to.
	EngineVersion string `json:"engine_version,omitempty"`

	// SampleRate of Audio in Hz.
	SampleRate int `json:"sample_rate,omitempty"`

	// Channels of Audio (always 1).
	Channels int `json:"channels,omitempty"`

	// NumSamples is the number of sample frames synthesized.
	NumSamples int `json:"num_samples"`

	// Audio is the synthesized audio, base64-encoded.
	Audio string `json:"audio,omitempty"`

	// ContentType is the MIME type of Audio.
	ContentType string `json:"content_type,omitempty"`

	// Segments echoes the request segments with their reconciled end times.
	Segments []SegmentTiming `json:"segments,omitempty"`

	// Warnings lists non-fatal problems (segment name mismatches).
	Warnings []string `json:"warnings,omitempty"`

	// Error is set if synthesis failed.
	Error string `json:"error,omitempty"`
}

// SetAudioBytes base64-encodes raw audio bytes into Audio.
func (r *Result) SetAudioBytes(data []byte) {
	if len(data) > 0 {
		r.Audio = base64.StdEncoding.EncodeToString(data)
	}
}

// AudioBytes decodes Audio.
func (r *Result) AudioBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.Audio)
}
