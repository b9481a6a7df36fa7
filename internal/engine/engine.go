// Package engine defines the operation sets exposed by the external HTS
// synthesis engine, one per supported API version.
//
// The engine is opaque: duration modelling, parameter generation and
// vocoding happen on the other side of these interfaces. Every version shares
// the Core lifecycle and pipeline operations; they differ in how models and
// labels are loaded. Model and label inputs are passed as readers so that the
// caller owns file opening and closing.
package engine

import (
	"errors"
	"io"
)

// Version identifies an engine API generation by its HTS release tag.
type Version string

// Supported engine API versions.
const (
	V2_1   Version = "2.1"
	V2_1_1 Version = "2.1.1"
	V2_2   Version = "2.2"
)

// Versions lists the supported versions, oldest first.
var Versions = []Version{V2_1, V2_1_1, V2_2}

// Valid reports whether v is one of the supported versions.
func (v Version) Valid() bool {
	switch v {
	case V2_1, V2_1_1, V2_2:
		return true
	}
	return false
}

// Stream indices used when initialising the engine with two streams.
const (
	StreamSpectrum = 0
	StreamLogF0    = 1
	NumStreams     = 2
)

// ErrNoSpeech is returned by save operations before the waveform stage ran.
var ErrNoSpeech = errors.New("engine: no generated speech")

// ErrEngineLost is returned by every call on an engine whose backing
// connection failed. The engine must be discarded and recreated.
var ErrEngineLost = errors.New("engine: connection lost")

// Alignment is the engine's state-level timing after duration modelling.
type Alignment struct {
	// NumStates is the number of emitting states per label.
	NumStates int

	// Labels holds the context-dependent label strings in input order.
	Labels []string

	// StateDurations holds len(Labels)*NumStates durations in frames.
	StateDurations []int
}

// Core is the part of the operation set common to every version.
type Core interface {
	// Initialize allocates an empty model set for nstream streams.
	Initialize(nstream int) error

	// Clear releases the loaded model set and all per-utterance buffers.
	Clear() error

	// Refresh releases per-utterance buffers and keeps the loaded models.
	Refresh() error

	SetSamplingRate(rate int) error
	SetFperiod(frames int) error
	SetAlpha(alpha float64) error
	SetGamma(stage int) error
	SetBeta(beta float64) error
	SetMSDThreshold(stream int, threshold float64) error

	// LoadLabel reads a full-context label file.
	LoadLabel(r io.Reader) error

	CreateSStream() error
	CreatePStream() error
	CreateGStream() error

	SaveGeneratedSpeech(w io.Writer) error
	SaveLabel(w io.Writer) error
	SaveGeneratedParameter(w io.Writer, stream int) error

	// Alignment reports the state durations produced by CreateSStream.
	Alignment() (Alignment, error)

	// StealSpeech hands the generated waveform to the caller and clears the
	// engine's own reference in the same step. A second call returns nil.
	StealSpeech() ([]int16, error)
}

// V21 is the HTS-2.1 operation set. Global variance has no decision trees and
// labels can only be read from a stream.
type V21 interface {
	Core
	LoadDuration(pdf, tree io.Reader) error
	LoadParameter(pdf, tree io.Reader, windows []io.Reader, stream int, msd bool) error
	LoadGV(pdf io.Reader, stream int) error
	LoadGVSwitch(r io.Reader) error
}

// V211 is the HTS-2.1.1 operation set: interpolated model sets, GV trees and
// literal label lines.
type V211 interface {
	Core
	LoadDuration(pdfs, trees []io.Reader, interpolation int) error
	LoadParameter(pdfs, trees, windows []io.Reader, stream int, msd bool, interpolation int) error
	LoadGV(pdfs, trees []io.Reader, stream int, interpolation int) error
	LoadGVSwitch(r io.Reader) error
	LoadLabelStrings(lines []string) error
	SetAudioBufferSize(size int) error
}

// V22 is the HTS-2.2 operation set. It extends V211 with single-file voices.
type V22 interface {
	V211
	LoadVoice(r io.Reader) error
}
