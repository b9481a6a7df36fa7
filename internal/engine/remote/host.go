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

	"github.com/nadzzz/htsbridge/internal/audio"
	"github.com/nadzzz/htsbridge/internal/engine"
)

// ListenAndServe accepts engine host connections on addr until ctx is
// cancelled. Each connection gets its own engine from factory.
func ListenAndServe(ctx context.Context, addr string, factory engine.Factory) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	slog.Info("engine host listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		go func() {
			if err := Serve(ctx, conn, factory); err != nil {
				slog.Warn("engine host connection failed", "remote", conn.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

// Serve answers requests on one connection until the peer disconnects or ctx
// is cancelled. The connection is closed on return.
func Serve(ctx context.Context, conn net.Conn, factory engine.Factory) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	h := &host{factory: factory}
	r := bufio.NewReader(conn)
	for {
		req, payload, err := readEvent(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		data, reply, err := h.handle(req, payload)
		var resp event
		if err != nil {
			slog.Debug("engine host request failed", "type", req.Type, "error", err)
			resp, _ = newEvent(typeError, errorReply{Text: err.Error()})
			reply = nil
		} else if resp, err = newEvent(typeOK, data); err != nil {
			return err
		}
		if err := writeEvent(conn, resp, reply); err != nil {
			return fmt.Errorf("writing reply to %s: %w", req.Type, err)
		}
	}
}

// host holds the engine of one connection.
type host struct {
	factory engine.Factory
	version engine.Version
	core    engine.Core
}

func (h *host) handle(req *event, payload []byte) (any, []byte, error) {
	if req.Type == typeHello {
		var hello helloRequest
		if err := req.decode(&hello); err != nil {
			return nil, nil, err
		}
		v := engine.Version(hello.Version)
		if !v.Valid() {
			return nil, nil, fmt.Errorf("unsupported version %q", hello.Version)
		}
		core, err := h.factory(v)
		if err != nil {
			return nil, nil, err
		}
		h.version, h.core = v, core
		return nil, nil, nil
	}
	if h.core == nil {
		return nil, nil, errors.New("no engine: send hts-hello first")
	}

	switch req.Type {
	case typeInitialize:
		var r initializeRequest
		if err := req.decode(&r); err != nil {
			return nil, nil, err
		}
		return nil, nil, h.core.Initialize(r.NStream)
	case typeClear:
		return nil, nil, h.core.Clear()
	case typeRefresh:
		return nil, nil, h.core.Refresh()
	case typeSet:
		var r setRequest
		if err := req.decode(&r); err != nil {
			return nil, nil, err
		}
		return nil, nil, h.set(r)
	case typeLoad:
		var r loadRequest
		if err := req.decode(&r); err != nil {
			return nil, nil, err
		}
		groups, err := splitGroups(payload, r.Groups)
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, h.load(r, groups)
	case typeLabel:
		return nil, nil, h.core.LoadLabel(bytes.NewReader(payload))
	case typeLabelLines:
		e, ok := h.core.(engine.V211)
		if !ok {
			return nil, nil, fmt.Errorf("version %s has no label string loader", h.version)
		}
		var r labelLinesRequest
		if err := req.decode(&r); err != nil {
			return nil, nil, err
		}
		return nil, nil, e.LoadLabelStrings(r.Lines)
	case typeCreate:
		var r createRequest
		if err := req.decode(&r); err != nil {
			return nil, nil, err
		}
		return nil, nil, h.create(r.Stage)
	case typeSave:
		var r saveRequest
		if err := req.decode(&r); err != nil {
			return nil, nil, err
		}
		out, err := h.save(r)
		return nil, out, err
	case typeAlignment:
		a, err := h.core.Alignment()
		if err != nil {
			return nil, nil, err
		}
		return alignmentReply{NumStates: a.NumStates, Labels: a.Labels, StateDurations: a.StateDurations}, nil, nil
	case typeStealSpeech:
		samples, err := h.core.StealSpeech()
		if err != nil {
			return nil, nil, err
		}
		if samples == nil {
			return stealReply{}, nil, nil
		}
		return stealReply{Present: true}, audio.NewMono(samples, 0).PCM(), nil
	}
	return nil, nil, fmt.Errorf("unknown request %q", req.Type)
}

func (h *host) set(r setRequest) error {
	switch r.Name {
	case setSamplingRate:
		return h.core.SetSamplingRate(int(r.Value))
	case setFperiod:
		return h.core.SetFperiod(int(r.Value))
	case setAlpha:
		return h.core.SetAlpha(r.Value)
	case setGamma:
		return h.core.SetGamma(int(r.Value))
	case setBeta:
		return h.core.SetBeta(r.Value)
	case setMSDThreshold:
		return h.core.SetMSDThreshold(r.Stream, r.Value)
	case setAudioBufferSize:
		e, ok := h.core.(engine.V211)
		if !ok {
			return fmt.Errorf("version %s has no audio buffer", h.version)
		}
		return e.SetAudioBufferSize(int(r.Value))
	}
	return fmt.Errorf("unknown setting %q", r.Name)
}

func (h *host) create(stage string) error {
	switch stage {
	case "sstream":
		return h.core.CreateSStream()
	case "pstream":
		return h.core.CreatePStream()
	case "gstream":
		return h.core.CreateGStream()
	}
	return fmt.Errorf("unknown stage %q", stage)
}

func (h *host) save(r saveRequest) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch r.What {
	case "speech":
		err = h.core.SaveGeneratedSpeech(&buf)
	case "label":
		err = h.core.SaveLabel(&buf)
	case "parameter":
		err = h.core.SaveGeneratedParameter(&buf, r.Stream)
	default:
		err = fmt.Errorf("unknown output %q", r.What)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// splitGroups cuts payload into readers following the group sizes.
func splitGroups(payload []byte, sizes [][]int) ([][]io.Reader, error) {
	groups := make([][]io.Reader, len(sizes))
	off := 0
	for g, group := range sizes {
		for _, n := range group {
			if n < 0 || off+n > len(payload) {
				return nil, fmt.Errorf("load payload shorter than declared (%d bytes)", len(payload))
			}
			groups[g] = append(groups[g], bytes.NewReader(payload[off:off+n]))
			off += n
		}
	}
	if off != len(payload) {
		return nil, fmt.Errorf("load payload has %d trailing bytes", len(payload)-off)
	}
	return groups, nil
}

func (h *host) load(r loadRequest, groups [][]io.Reader) error {
	group := func(i int) []io.Reader {
		if i < len(groups) {
			return groups[i]
		}
		return nil
	}
	first := func(i int) io.Reader {
		if g := group(i); len(g) > 0 {
			return g[0]
		}
		return nil
	}

	if h.version == engine.V2_1 {
		e, ok := h.core.(engine.V21)
		if !ok {
			return fmt.Errorf("engine does not implement version %s", h.version)
		}
		switch r.Kind {
		case loadDuration:
			return e.LoadDuration(first(0), first(1))
		case loadParameter:
			return e.LoadParameter(first(0), first(1), group(2), r.Stream, r.MSD)
		case loadGV:
			return e.LoadGV(first(0), r.Stream)
		case loadGVSwitch:
			return e.LoadGVSwitch(first(0))
		}
		return fmt.Errorf("version %s cannot load %q", h.version, r.Kind)
	}

	e, ok := h.core.(engine.V211)
	if !ok {
		return fmt.Errorf("engine does not implement version %s", h.version)
	}
	switch r.Kind {
	case loadDuration:
		return e.LoadDuration(group(0), group(1), r.Interpolation)
	case loadParameter:
		return e.LoadParameter(group(0), group(1), group(2), r.Stream, r.MSD, r.Interpolation)
	case loadGV:
		return e.LoadGV(group(0), group(1), r.Stream, r.Interpolation)
	case loadGVSwitch:
		return e.LoadGVSwitch(first(0))
	case loadVoice:
		v, ok := h.core.(engine.V22)
		if !ok {
			return fmt.Errorf("version %s cannot load single-file voices", h.version)
		}
		return v.LoadVoice(first(0))
	}
	return fmt.Errorf("unknown load kind %q", r.Kind)
}
