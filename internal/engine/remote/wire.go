// Package remote drives an HTS engine hosted in another process.
//
// The engine host speaks the Wyoming framing used by local speech servers:
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>   (if payload_length > 0)
//
// Every engine operation is one request event answered by either "hts-ok"
// or "error". Model files, label streams and waveforms travel as payloads.
package remote

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Event types.
const (
	typeHello       = "hts-hello"
	typeInitialize  = "hts-initialize"
	typeClear       = "hts-clear"
	typeRefresh     = "hts-refresh"
	typeSet         = "hts-set"
	typeLoad        = "hts-load"
	typeLabel       = "hts-label"
	typeLabelLines  = "hts-label-strings"
	typeCreate      = "hts-create"
	typeSave        = "hts-save"
	typeAlignment   = "hts-alignment"
	typeStealSpeech = "hts-steal-speech"

	typeOK    = "hts-ok"
	typeError = "error"
)

// Frame limits. Payloads carry whole model files and waveforms.
const (
	maxEventJSON = 1 << 20
	maxPayload   = 512 << 20
)

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type helloRequest struct {
	Version string `json:"version"`
}

type initializeRequest struct {
	NStream int `json:"nstream"`
}

type setRequest struct {
	Name   string  `json:"name"`
	Stream int     `json:"stream,omitempty"`
	Value  float64 `json:"value"`
}

// loadRequest describes how the payload splits into model inputs. Groups
// holds one list of byte lengths per input group, in the order the load
// operation takes them.
type loadRequest struct {
	Kind          string  `json:"kind"`
	Stream        int     `json:"stream,omitempty"`
	MSD           bool    `json:"msd,omitempty"`
	Interpolation int     `json:"interpolation,omitempty"`
	Groups        [][]int `json:"groups"`
}

type labelLinesRequest struct {
	Lines []string `json:"lines"`
}

type createRequest struct {
	Stage string `json:"stage"`
}

type saveRequest struct {
	What   string `json:"what"`
	Stream int    `json:"stream,omitempty"`
}

type alignmentReply struct {
	NumStates      int      `json:"num_states"`
	Labels         []string `json:"labels"`
	StateDurations []int    `json:"state_durations"`
}

type stealReply struct {
	Present bool `json:"present"`
}

type errorReply struct {
	Text string `json:"text"`
}

// Load kinds.
const (
	loadDuration  = "duration"
	loadParameter = "parameter"
	loadGV        = "gv"
	loadGVSwitch  = "gv-switch"
	loadVoice     = "voice"
)

// Setting names.
const (
	setSamplingRate    = "sampling_rate"
	setFperiod         = "fperiod"
	setAlpha           = "alpha"
	setGamma           = "gamma"
	setBeta            = "beta"
	setMSDThreshold    = "msd_threshold"
	setAudioBufferSize = "audio_buffer_size"
)

func newEvent(typ string, data any) (event, error) {
	evt := event{Type: typ}
	if data == nil {
		return evt, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return evt, fmt.Errorf("marshalling %s data: %w", typ, err)
	}
	evt.Data = raw
	return evt, nil
}

func (e *event) decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decoding %s data: %w", e.Type, err)
	}
	return nil
}

// writeEvent sends one framed event.
func writeEvent(w io.Writer, evt event, payload []byte) error {
	jsonBytes, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	header := fmt.Sprintf("%d %d\n", len(jsonBytes), len(payload))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	if _, err := w.Write(jsonBytes); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// readEvent reads one framed event.
func readEvent(r *bufio.Reader) (*event, []byte, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	parts := strings.SplitN(strings.TrimSuffix(line, "\n"), " ", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid wyoming header: %q", line)
	}
	jsonLen, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || jsonLen < 0 {
		return nil, nil, fmt.Errorf("parsing json_length %q", parts[0])
	}
	if jsonLen > maxEventJSON {
		return nil, nil, fmt.Errorf("json_length %d exceeds %d bytes", jsonLen, maxEventJSON)
	}
	payloadLen, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || payloadLen < 0 {
		return nil, nil, fmt.Errorf("parsing payload_length %q", parts[1])
	}
	if payloadLen > maxPayload {
		return nil, nil, fmt.Errorf("payload_length %d exceeds %d bytes", payloadLen, maxPayload)
	}

	jsonBuf := make([]byte, jsonLen+1) // trailing newline
	if _, err := io.ReadFull(r, jsonBuf); err != nil {
		return nil, nil, fmt.Errorf("reading json: %w", err)
	}

	var evt event
	if err := json.Unmarshal(jsonBuf[:jsonLen], &evt); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	return &evt, payload, nil
}
