// Package mock provides an in-memory engine backend.
//
// It implements every version's operation set with deterministic behaviour:
// each label lasts a fixed number of frames, the waveform is a ramp of
// fperiod samples per frame, and every lifecycle call is recorded so tests can
// assert what the synthesis layer did.
package mock

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/nadzzz/htsbridge/internal/engine"
)

func init() {
	engine.Backends.Register("mock", func(options map[string]string, v engine.Version) (engine.Core, error) {
		e := New()
		if s := options["frames_per_label"]; s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("mock: invalid frames_per_label %q", s)
			}
			e.FramesPerLabel = n
		}
		return e.As(v), nil
	})
}

// Defaults used when a field is left zero.
const (
	DefaultNumStates      = 5
	DefaultFramesPerLabel = 10
)

// Engine is the shared state behind every version wrapper.
type Engine struct {
	// NumStates is the number of emitting states per label.
	NumStates int

	// FramesPerLabel is used for every label not covered by LabelFrames.
	FramesPerLabel int

	// LabelFrames overrides the frame count of the i-th label.
	LabelFrames []int

	mu          sync.Mutex
	calls       []string
	modelLoads  int
	initialized bool
	models      bool
	nstream     int

	rate    int
	fperiod int
	alpha   float64
	gamma   int
	beta    float64
	msd     map[int]float64
	bufSize int

	labels    []string
	durations []int
	stage     int
	speech    []int16
	frames    int
}

// New creates an engine with default timing.
func New() *Engine {
	return &Engine{
		NumStates:      DefaultNumStates,
		FramesPerLabel: DefaultFramesPerLabel,
		msd:            make(map[int]float64),
	}
}

// As returns a wrapper exposing the operation set of version v.
func (e *Engine) As(v engine.Version) engine.Core {
	switch v {
	case engine.V2_1:
		return V21{e}
	case engine.V2_1_1:
		return V211{e}
	default:
		return V22{V211{e}}
	}
}

// Calls returns the recorded operation names in call order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Count returns how many times op was called.
func (e *Engine) Count(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == op {
			n++
		}
	}
	return n
}

// ModelLoads returns the number of model files read so far.
func (e *Engine) ModelLoads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modelLoads
}

// Loaded reports whether a model set is present.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.models
}

// Settings returns the scalar settings most recently applied.
func (e *Engine) Settings() (rate, fperiod int, alpha float64, gamma int, beta, uv float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate, e.fperiod, e.alpha, e.gamma, e.beta, e.msd[engine.StreamLogF0]
}

// HasSpeech reports whether the engine still holds a waveform.
func (e *Engine) HasSpeech() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speech != nil
}

func (e *Engine) record(op string) {
	e.calls = append(e.calls, op)
}

func (e *Engine) Initialize(nstream int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("initialize")
	if nstream <= 0 {
		return fmt.Errorf("mock: invalid stream count %d", nstream)
	}
	e.initialized = true
	e.nstream = nstream
	return nil
}

func (e *Engine) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("clear")
	e.initialized = false
	e.models = false
	e.resetUtterance()
	return nil
}

func (e *Engine) Refresh() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("refresh")
	e.resetUtterance()
	return nil
}

func (e *Engine) resetUtterance() {
	e.labels = nil
	e.durations = nil
	e.stage = 0
	e.speech = nil
	e.frames = 0
}

func (e *Engine) set(op string, apply func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record(op)
	if !e.initialized {
		return fmt.Errorf("mock: %s before initialize", op)
	}
	apply()
	return nil
}

func (e *Engine) SetSamplingRate(rate int) error {
	return e.set("set-sampling-rate", func() { e.rate = rate })
}

func (e *Engine) SetFperiod(frames int) error {
	return e.set("set-fperiod", func() { e.fperiod = frames })
}

func (e *Engine) SetAlpha(alpha float64) error {
	return e.set("set-alpha", func() { e.alpha = alpha })
}

func (e *Engine) SetGamma(stage int) error {
	return e.set("set-gamma", func() { e.gamma = stage })
}

func (e *Engine) SetBeta(beta float64) error {
	return e.set("set-beta", func() { e.beta = beta })
}

func (e *Engine) SetMSDThreshold(stream int, threshold float64) error {
	return e.set("set-msd-threshold", func() { e.msd[stream] = threshold })
}

// load reads every model input to the end, as a real engine parses them.
func (e *Engine) load(op string, inputs ...io.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record(op)
	if !e.initialized {
		return fmt.Errorf("mock: %s before initialize", op)
	}
	for i, r := range inputs {
		if r == nil {
			return fmt.Errorf("mock: %s: input %d is nil", op, i)
		}
		if _, err := io.Copy(io.Discard, r); err != nil {
			return fmt.Errorf("mock: %s: %w", op, err)
		}
		e.modelLoads++
	}
	e.models = true
	return nil
}

func (e *Engine) LoadLabel(r io.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("load-label")
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("mock: reading label: %w", err)
	}
	return e.setLabels(lines)
}

func (e *Engine) loadLabelStrings(lines []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("load-label-strings")
	return e.setLabels(lines)
}

// setLabels keeps the last field of each non-blank line, so both bare labels
// and HTK "start end label" lines are accepted.
func (e *Engine) setLabels(lines []string) error {
	e.labels = e.labels[:0]
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		e.labels = append(e.labels, fields[len(fields)-1])
	}
	if len(e.labels) == 0 {
		return errors.New("mock: empty label")
	}
	return nil
}

func (e *Engine) advance(op string, want int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record(op)
	if e.stage != want-1 {
		return fmt.Errorf("mock: %s out of order (stage %d)", op, e.stage)
	}
	switch want {
	case 1:
		if !e.models {
			return fmt.Errorf("mock: %s without models", op)
		}
		if len(e.labels) == 0 {
			return fmt.Errorf("mock: %s without label", op)
		}
		e.durations = e.stateDurations()
	case 3:
		e.speech = e.generate()
	}
	e.stage = want
	return nil
}

func (e *Engine) CreateSStream() error { return e.advance("create-sstream", 1) }
func (e *Engine) CreatePStream() error { return e.advance("create-pstream", 2) }
func (e *Engine) CreateGStream() error { return e.advance("create-gstream", 3) }

func (e *Engine) stateDurations() []int {
	n := e.NumStates
	if n <= 0 {
		n = DefaultNumStates
	}
	durations := make([]int, 0, len(e.labels)*n)
	e.frames = 0
	for i := range e.labels {
		frames := e.FramesPerLabel
		if i < len(e.LabelFrames) {
			frames = e.LabelFrames[i]
		}
		e.frames += frames
		base, extra := frames/n, frames%n
		for s := 0; s < n; s++ {
			d := base
			if s < extra {
				d++
			}
			durations = append(durations, d)
		}
	}
	return durations
}

func (e *Engine) generate() []int16 {
	speech := make([]int16, e.frames*e.fperiod)
	for i := range speech {
		speech[i] = int16(i%256) * 64
	}
	return speech
}

func (e *Engine) SaveGeneratedSpeech(w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("save-speech")
	if e.speech == nil {
		return engine.ErrNoSpeech
	}
	return binary.Write(w, binary.LittleEndian, e.speech)
}

func (e *Engine) SaveLabel(w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("save-label")
	if e.stage < 1 {
		return errors.New("mock: no durations")
	}
	rate := float64(e.fperiod) * 1e7 / float64(e.rate)
	n := len(e.durations) / len(e.labels)
	frame := 0
	for i, label := range e.labels {
		d := 0
		for _, sd := range e.durations[i*n : (i+1)*n] {
			d += sd
		}
		if _, err := fmt.Fprintf(w, "%d %d %s\n", int(float64(frame)*rate), int(float64(frame+d)*rate), label); err != nil {
			return err
		}
		frame += d
	}
	return nil
}

func (e *Engine) SaveGeneratedParameter(w io.Writer, stream int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("save-parameter-" + strconv.Itoa(stream))
	if e.stage < 2 {
		return errors.New("mock: no generated parameters")
	}
	if stream < 0 || stream >= e.nstream {
		return fmt.Errorf("mock: no stream %d", stream)
	}
	var buf bytes.Buffer
	for f := 0; f < e.frames; f++ {
		v := float32(stream) + float32(math.Log(float64(f+1)))
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (e *Engine) Alignment() (engine.Alignment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stage < 1 {
		return engine.Alignment{}, errors.New("mock: no durations")
	}
	return engine.Alignment{
		NumStates:      len(e.durations) / len(e.labels),
		Labels:         append([]string(nil), e.labels...),
		StateDurations: append([]int(nil), e.durations...),
	}, nil
}

func (e *Engine) StealSpeech() ([]int16, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("steal-speech")
	s := e.speech
	e.speech = nil
	return s, nil
}

// V21 exposes the HTS-2.1 operation set.
type V21 struct{ *Engine }

func (m V21) LoadDuration(pdf, tree io.Reader) error {
	return m.load("load-duration", pdf, tree)
}

func (m V21) LoadParameter(pdf, tree io.Reader, windows []io.Reader, stream int, msd bool) error {
	return m.load("load-parameter", append([]io.Reader{pdf, tree}, windows...)...)
}

func (m V21) LoadGV(pdf io.Reader, stream int) error {
	return m.load("load-gv", pdf)
}

func (m V21) LoadGVSwitch(r io.Reader) error {
	return m.load("load-gv-switch", r)
}

// V211 exposes the HTS-2.1.1 operation set.
type V211 struct{ *Engine }

func (m V211) LoadDuration(pdfs, trees []io.Reader, interpolation int) error {
	return m.load("load-duration", concat(pdfs, trees)...)
}

func (m V211) LoadParameter(pdfs, trees, windows []io.Reader, stream int, msd bool, interpolation int) error {
	return m.load("load-parameter", concat(pdfs, trees, windows)...)
}

func (m V211) LoadGV(pdfs, trees []io.Reader, stream int, interpolation int) error {
	return m.load("load-gv", concat(pdfs, trees)...)
}

func (m V211) LoadGVSwitch(r io.Reader) error {
	return m.load("load-gv-switch", r)
}

func (m V211) LoadLabelStrings(lines []string) error {
	return m.loadLabelStrings(lines)
}

func (m V211) SetAudioBufferSize(size int) error {
	return m.set("set-audio-buffer-size", func() { m.bufSize = size })
}

// V22 exposes the HTS-2.2 operation set.
type V22 struct{ V211 }

func (m V22) LoadVoice(r io.Reader) error {
	return m.load("load-voice", r)
}

func concat(groups ...[]io.Reader) []io.Reader {
	var out []io.Reader
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
