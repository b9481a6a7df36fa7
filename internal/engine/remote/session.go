package remote

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/nadzzz/htsbridge/internal/audio"
	"github.com/nadzzz/htsbridge/internal/engine"
)

// Defaults for the remote backend options.
const (
	DefaultDialTimeout = 10 * time.Second
	DefaultCallTimeout = 60 * time.Second
)

func init() {
	engine.Backends.Register("remote", func(options map[string]string, v engine.Version) (engine.Core, error) {
		endpoint := options["endpoint"]
		if endpoint == "" {
			return nil, fmt.Errorf("remote: no endpoint configured")
		}
		dialTimeout, err := durationOption(options, "dial_timeout", DefaultDialTimeout)
		if err != nil {
			return nil, err
		}
		callTimeout, err := durationOption(options, "call_timeout", DefaultCallTimeout)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		s, err := Dial(ctx, endpoint, v, callTimeout)
		if err != nil {
			return nil, err
		}
		return s.As(v), nil
	})
}

func durationOption(options map[string]string, key string, def time.Duration) (time.Duration, error) {
	s := options[key]
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("remote: invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

// Error is a failure reported by the engine host.
type Error struct {
	Op      string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine host: %s: %s", e.Op, e.Message)
}

// Session is one connection to an engine host. It owns one engine instance on
// the host side; calls are serialized.
//
// A failed send or read leaves the stream at an unknown position, so the
// session closes its connection and every later call returns an error
// wrapping engine.ErrEngineLost.
type Session struct {
	mu      sync.Mutex
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
	lost    error
}

// Dial connects to the engine host at endpoint and opens an engine of
// version v. callTimeout bounds every subsequent call; zero disables it.
func Dial(ctx context.Context, endpoint string, v engine.Version, callTimeout time.Duration) (*Session, error) {
	endpoint = strings.TrimPrefix(endpoint, "tcp://")

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to engine host: %w", err)
	}
	s, err := NewSession(conn, v, callTimeout)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	slog.Debug("engine host session opened", "endpoint", endpoint, "version", v)
	return s, nil
}

// NewSession opens an engine of version v over an established connection.
func NewSession(conn net.Conn, v engine.Version, callTimeout time.Duration) (*Session, error) {
	s := &Session{conn: conn, r: bufio.NewReader(conn), timeout: callTimeout}
	if _, _, err := s.call(typeHello, helloRequest{Version: string(v)}, nil); err != nil {
		return nil, err
	}
	return s, nil
}

// As returns a wrapper exposing the operation set of version v.
func (s *Session) As(v engine.Version) engine.Core {
	switch v {
	case engine.V2_1:
		return V21{s}
	case engine.V2_1_1:
		return V211{s}
	default:
		return V22{V211{s}}
	}
}

// Close ends the session. The host discards the engine.
func (s *Session) Close() error {
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (s *Session) call(typ string, data any, payload []byte) (*event, []byte, error) {
	req, err := newEvent(typ, data)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lost != nil {
		return nil, nil, s.lost
	}
	if s.timeout > 0 {
		_ = s.conn.SetDeadline(time.Now().Add(s.timeout))
	}
	if err := writeEvent(s.conn, req, payload); err != nil {
		return nil, nil, s.fail(fmt.Errorf("sending %s: %w", typ, err))
	}
	reply, replyPayload, err := readEvent(s.r)
	if err != nil {
		return nil, nil, s.fail(fmt.Errorf("reading reply to %s: %w", typ, err))
	}

	switch reply.Type {
	case typeOK:
		return reply, replyPayload, nil
	case typeError:
		var e errorReply
		_ = reply.decode(&e)
		if e.Text == engine.ErrNoSpeech.Error() {
			return nil, nil, engine.ErrNoSpeech
		}
		return nil, nil, &Error{Op: typ, Message: e.Text}
	}
	return nil, nil, s.fail(fmt.Errorf("unexpected reply %q to %s", reply.Type, typ))
}

// fail closes the connection and makes err the result of every later call.
// s.mu must be held.
func (s *Session) fail(err error) error {
	s.lost = fmt.Errorf("%w: %w", engine.ErrEngineLost, err)
	_ = s.conn.Close()
	slog.Warn("engine host session lost", "remote", s.conn.RemoteAddr().String(), "error", err)
	return s.lost
}

func (s *Session) do(typ string, data any) error {
	_, _, err := s.call(typ, data, nil)
	return err
}

func (s *Session) Initialize(nstream int) error {
	return s.do(typeInitialize, initializeRequest{NStream: nstream})
}

func (s *Session) Clear() error   { return s.do(typeClear, nil) }
func (s *Session) Refresh() error { return s.do(typeRefresh, nil) }

func (s *Session) set(name string, stream int, value float64) error {
	return s.do(typeSet, setRequest{Name: name, Stream: stream, Value: value})
}

func (s *Session) SetSamplingRate(rate int) error { return s.set(setSamplingRate, 0, float64(rate)) }
func (s *Session) SetFperiod(frames int) error    { return s.set(setFperiod, 0, float64(frames)) }
func (s *Session) SetAlpha(alpha float64) error   { return s.set(setAlpha, 0, alpha) }
func (s *Session) SetGamma(stage int) error       { return s.set(setGamma, 0, float64(stage)) }
func (s *Session) SetBeta(beta float64) error     { return s.set(setBeta, 0, beta) }

func (s *Session) SetMSDThreshold(stream int, threshold float64) error {
	return s.set(setMSDThreshold, stream, threshold)
}

func (s *Session) LoadLabel(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading label: %w", err)
	}
	_, _, err = s.call(typeLabel, nil, data)
	return err
}

func (s *Session) CreateSStream() error { return s.do(typeCreate, createRequest{Stage: "sstream"}) }
func (s *Session) CreatePStream() error { return s.do(typeCreate, createRequest{Stage: "pstream"}) }
func (s *Session) CreateGStream() error { return s.do(typeCreate, createRequest{Stage: "gstream"}) }

func (s *Session) save(w io.Writer, req saveRequest) error {
	_, payload, err := s.call(typeSave, req, nil)
	if err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func (s *Session) SaveGeneratedSpeech(w io.Writer) error {
	return s.save(w, saveRequest{What: "speech"})
}

func (s *Session) SaveLabel(w io.Writer) error {
	return s.save(w, saveRequest{What: "label"})
}

func (s *Session) SaveGeneratedParameter(w io.Writer, stream int) error {
	return s.save(w, saveRequest{What: "parameter", Stream: stream})
}

func (s *Session) Alignment() (engine.Alignment, error) {
	reply, _, err := s.call(typeAlignment, nil, nil)
	if err != nil {
		return engine.Alignment{}, err
	}
	var a alignmentReply
	if err := reply.decode(&a); err != nil {
		return engine.Alignment{}, err
	}
	return engine.Alignment{NumStates: a.NumStates, Labels: a.Labels, StateDurations: a.StateDurations}, nil
}

func (s *Session) StealSpeech() ([]int16, error) {
	reply, payload, err := s.call(typeStealSpeech, nil, nil)
	if err != nil {
		return nil, err
	}
	var st stealReply
	if err := reply.decode(&st); err != nil {
		return nil, err
	}
	if !st.Present {
		return nil, nil
	}
	return audio.DecodePCM(payload), nil
}

// load reads every input and sends them as one payload.
func (s *Session) load(req loadRequest, groups ...[]io.Reader) error {
	var payload bytes.Buffer
	req.Groups = make([][]int, len(groups))
	for g, readers := range groups {
		sizes := make([]int, 0, len(readers))
		for _, r := range readers {
			n, err := io.Copy(&payload, r)
			if err != nil {
				return fmt.Errorf("reading %s input: %w", req.Kind, err)
			}
			sizes = append(sizes, int(n))
		}
		req.Groups[g] = sizes
	}
	_, _, err := s.call(typeLoad, req, payload.Bytes())
	return err
}

// V21 exposes the HTS-2.1 operation set of a session.
type V21 struct{ *Session }

func (s V21) LoadDuration(pdf, tree io.Reader) error {
	return s.load(loadRequest{Kind: loadDuration}, []io.Reader{pdf}, []io.Reader{tree})
}

func (s V21) LoadParameter(pdf, tree io.Reader, windows []io.Reader, stream int, msd bool) error {
	return s.load(loadRequest{Kind: loadParameter, Stream: stream, MSD: msd},
		[]io.Reader{pdf}, []io.Reader{tree}, windows)
}

func (s V21) LoadGV(pdf io.Reader, stream int) error {
	return s.load(loadRequest{Kind: loadGV, Stream: stream}, []io.Reader{pdf})
}

func (s V21) LoadGVSwitch(r io.Reader) error {
	return s.load(loadRequest{Kind: loadGVSwitch}, []io.Reader{r})
}

// V211 exposes the HTS-2.1.1 operation set of a session.
type V211 struct{ *Session }

func (s V211) LoadDuration(pdfs, trees []io.Reader, interpolation int) error {
	return s.load(loadRequest{Kind: loadDuration, Interpolation: interpolation}, pdfs, trees)
}

func (s V211) LoadParameter(pdfs, trees, windows []io.Reader, stream int, msd bool, interpolation int) error {
	return s.load(loadRequest{Kind: loadParameter, Stream: stream, MSD: msd, Interpolation: interpolation},
		pdfs, trees, windows)
}

func (s V211) LoadGV(pdfs, trees []io.Reader, stream int, interpolation int) error {
	return s.load(loadRequest{Kind: loadGV, Stream: stream, Interpolation: interpolation}, pdfs, trees)
}

func (s V211) LoadGVSwitch(r io.Reader) error {
	return s.load(loadRequest{Kind: loadGVSwitch}, []io.Reader{r})
}

func (s V211) LoadLabelStrings(lines []string) error {
	return s.do(typeLabelLines, labelLinesRequest{Lines: lines})
}

func (s V211) SetAudioBufferSize(size int) error {
	return s.set(setAudioBufferSize, 0, float64(size))
}

// V22 exposes the HTS-2.2 operation set of a session.
type V22 struct{ V211 }

func (s V22) LoadVoice(r io.Reader) error {
	return s.load(loadRequest{Kind: loadVoice}, []io.Reader{r})
}
