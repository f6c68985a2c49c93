package playback

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"vcrkit/fixture"
)

// Transport is an http.RoundTripper that never touches the network.
type Transport struct {
	Player *Player
}

func NewTransport(p *Player) *Transport {
	return &Transport{Player: p}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		req.Body.Close()
	}

	interaction, err := t.Player.Match(req)
	if err != nil {
		return nil, fmt.Errorf("playback failed: %w", err)
	}

	resp := &http.Response{
		Status:        statusText(&interaction.Response),
		StatusCode:    interaction.Response.Code,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        responseHeader(&interaction.Response),
		Body:          http.NoBody,
		ContentLength: int64(len(interaction.Response.Body.String)),
		Request:       req,
	}
	if resp.ContentLength > 0 {
		resp.Body = io.NopCloser(strings.NewReader(interaction.Response.Body.String))
	}
	return resp, nil
}

// Client returns an http.Client backed by the transport.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

// Handler serves recorded responses over HTTP. Unmatched requests receive
// the configured not-found response.
type Handler struct {
	Player *Player
}

func NewHandler(p *Player) *Handler {
	return &Handler{Player: p}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	interaction, err := h.Player.Match(r)
	if err != nil {
		h.Player.logger.Info("no recording for request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		h.sendNotFoundResponse(w)
		return
	}

	for key, values := range interaction.Response.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(interaction.Response.Code)

	if body := interaction.Response.Body.String; body != "" {
		if _, err := w.Write([]byte(body)); err != nil {
			h.Player.logger.Warn("failed to write response body", zap.Error(err))
		}
	}
}

func (h *Handler) sendNotFoundResponse(w http.ResponseWriter) {
	status := h.Player.notFound.Status
	if status == 0 {
		status = http.StatusNotFound
	}
	body := h.Player.notFound.Body
	if body == nil {
		body = map[string]interface{}{"error": "Recording not found"}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Player.logger.Warn("failed to encode not found response", zap.Error(err))
	}
}

func statusText(resp *fixture.NestedResponse) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.Code, http.StatusText(resp.Code))
}

func responseHeader(resp *fixture.NestedResponse) http.Header {
	h := make(http.Header, len(resp.Headers))
	for key, values := range resp.Headers {
		for _, v := range values {
			h.Add(key, v)
		}
	}
	return h
}
