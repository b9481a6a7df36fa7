// Package http implements the HTTP/WebSocket transport for htsbridge.
//
// This transport exposes a REST endpoint for one-shot synthesis and a
// WebSocket endpoint that accepts a stream of requests over one connection.
// It is best suited for web clients and services that prefer HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/nadzzz/htsbridge/docs" // swagger spec
	"github.com/nadzzz/htsbridge/internal/transport"
	"github.com/nadzzz/htsbridge/internal/utterance"
)

// maxRequestBytes bounds request bodies and WebSocket messages.
const maxRequestBytes = 25 << 20

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	port     int
	server   *http.Server
	upgrader websocket.Upgrader
}

// New creates a new HTTP transport on the given port.
func New(port int) *Transport {
	return &Transport{
		port: port,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler returns the transport's routes bound to handler.
func (t *Transport) Handler(handler transport.Handler) http.Handler {
	mux := http.NewServeMux()

	// POST /synthesize: synthesizes one utterance.
	mux.HandleFunc("POST /synthesize", func(w http.ResponseWriter, r *http.Request) {
		t.handleSynthesize(w, r, handler)
	})

	// GET /ws: one request per text message, one result per reply.
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		t.handleWebSocket(w, r, handler)
	})

	// Swagger UI serving the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return mux
}

// Listen starts the HTTP server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	return t.Serve(ctx, lis, handler)
}

// Serve runs the HTTP server on an existing listener.
func (t *Transport) Serve(ctx context.Context, lis net.Listener, handler transport.Handler) error {
	t.server = &http.Server{
		Handler:           t.Handler(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

// handleSynthesize processes a POST /synthesize request.
//
// @Summary     Synthesize an utterance
// @Description Runs HTS synthesis for a segment sequence and its full-context labels.
// @Description With "Accept: audio/wav" or "Accept: audio/L16" the response body is the audio itself and
// @Description segment timings are omitted; otherwise a JSON result with base64 audio is returned.
// @Tags        synthesis
// @Accept      json
// @Produce     json
// @Produce     audio/wav
// @Param       request  body      utterance.Request  true  "Synthesis request"
// @Success     200  {object}  utterance.Result  "Synthesized audio and segment timings"
// @Failure     400  {string}  string  "Invalid request body"
// @Failure     422  {object}  utterance.Result  "Synthesis failed (audio responses only)"
// @Failure     500  {string}  string  "Internal processing error"
// @Router      /synthesize [post]
func (t *Transport) handleSynthesize(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	var req utterance.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	accept := r.Header.Get("Accept")
	wantAudio := accept == "audio/wav" || accept == "audio/L16"
	if wantAudio && req.Encoding == "" {
		req.Encoding = utterance.EncodingWAV
		if accept == "audio/L16" {
			req.Encoding = utterance.EncodingPCM
		}
	}

	result, err := handler(r.Context(), &req)
	if err != nil {
		slog.Error("synthesis request failed", "error", err)
		http.Error(w, "synthesis error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if !wantAudio {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
		return
	}

	if result.Error != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(result)
		return
	}
	data, err := result.AudioBytes()
	if err != nil {
		http.Error(w, "encoding audio: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("X-Htsbridge-Request-Id", result.RequestID)
	w.Header().Set("X-Htsbridge-Engine-Version", result.EngineVersion)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// handleWebSocket serves GET /ws. Each text message carries one JSON request
// and is answered with one JSON result, in order.
func (t *Transport) handleWebSocket(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxRequestBytes)

	logger := slog.With("remote", r.RemoteAddr)
	logger.Debug("websocket session opened")

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			_ = ws.WriteJSON(&utterance.Result{Error: "expected a text message with a JSON request"})
			continue
		}

		var req utterance.Request
		var result *utterance.Result
		if err := json.Unmarshal(data, &req); err != nil {
			result = &utterance.Result{Error: "invalid json: " + err.Error()}
		} else if result, err = handler(r.Context(), &req); err != nil {
			result = &utterance.Result{RequestID: req.ID, Error: "synthesis error: " + err.Error()}
		}

		if err := ws.WriteJSON(result); err != nil {
			logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}
