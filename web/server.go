package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"vcrkit/config"
	"vcrkit/export"
	"vcrkit/logger"
	"vcrkit/runner"
	"vcrkit/storage"
)

type Server struct {
	config     *config.Config
	database   *storage.Database
	runner     *runner.Runner
	exporter   *export.ExportManager
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]bool
	clientsMux sync.Mutex
	broadcast  chan []byte
	startOnce  sync.Once
}

type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type sanitizeRequest struct {
	Root   string `json:"root"`
	DryRun bool   `json:"dry_run"`
}

type convertRequest struct {
	Paths []string `json:"paths"`
}

type runDetail struct {
	Run   *storage.Run      `json:"run"`
	Files []storage.RunFile `json:"files"`
}

func NewServer(cfg *config.Config, db *storage.Database, log *zap.Logger) *Server {
	log = logger.OrNop(log).Named("web")
	return &Server{
		config:   cfg,
		database: db,
		runner:   runner.New(cfg, db, log),
		exporter: export.NewExportManager(cfg, db),
		logger:   log,
		upgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 64),
	}
}

// Handler returns the routed service and starts the broadcast loop.
func (s *Server) Handler() http.Handler {
	s.startOnce.Do(func() { go s.handleBroadcast() })

	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRunDetail)
	mux.HandleFunc("/api/sanitize", s.handleSanitize)
	mux.HandleFunc("/api/convert", s.handleConvert)
	mux.HandleFunc("/api/clear", s.handleClear)
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.config.Server.ListenHost, s.config.Server.ListenPort)
	srv := &http.Server{
		Addr:              address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting web service", zap.String("address", "http://"+address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>vcrkit</title>
</head>
<body>
    <h1>vcrkit</h1>
    <p>Cassette conversion and sanitization runs.</p>
    <ul>
        <li><a href="/api/runs">/api/runs</a></li>
    </ul>
    <pre id="events"></pre>
    <script>
        const ws = new WebSocket("ws://" + location.host + "/ws");
        ws.onmessage = (e) => {
            document.getElementById("events").textContent += e.data + "\n";
        };
    </script>
</body>
</html>`

	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(html))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	s.clientsMux.Lock()
	s.clients[conn] = true
	s.clientsMux.Unlock()

	s.logger.Debug("websocket client connected", zap.String("remote", r.RemoteAddr))

	defer func() {
		s.clientsMux.Lock()
		delete(s.clients, conn)
		s.clientsMux.Unlock()
		s.logger.Debug("websocket client disconnected")
	}()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) handleBroadcast() {
	for message := range s.broadcast {
		s.clientsMux.Lock()
		for client := range s.clients {
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("websocket write error", zap.Error(err))
				client.Close()
				delete(s.clients, client)
			}
		}
		s.clientsMux.Unlock()
	}
}

// BroadcastEvent sends an event to all connected WebSocket clients. Events
// are dropped when the queue is full.
func (s *Server) BroadcastEvent(eventType string, data interface{}) {
	message := Message{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		s.logger.Warn("failed to marshal broadcast message", zap.Error(err))
		return
	}

	select {
	case s.broadcast <- messageBytes:
	default:
	}
}

func (s *Server) broadcastRunEvent(e runner.Event) {
	s.BroadcastEvent(e.Type, e)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.database.ListRuns(limit)
	if err != nil {
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}

	writeJSON(w, http.StatusOK, runs)
}

// handleRunDetail serves /api/runs/{id} and /api/runs/{id}/export.
func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	switch {
	case action == "export" && r.Method == http.MethodGet:
		report, err := s.exporter.BuildReport(id)
		if err != nil {
			writeRunError(w, err)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=run-%s.json", id))
		writeJSON(w, http.StatusOK, report)

	case action == "" && r.Method == http.MethodGet:
		run, err := s.database.GetRun(id)
		if err != nil {
			writeRunError(w, err)
			return
		}
		files, err := s.database.GetRunFiles(id)
		if err != nil {
			http.Error(w, "Failed to get run files", http.StatusInternalServerError)
			return
		}
		if files == nil {
			files = []storage.RunFile{}
		}
		writeJSON(w, http.StatusOK, runDetail{Run: run, Files: files})

	case action == "" && r.Method == http.MethodDelete:
		if !s.allowMutation(w, r) {
			return
		}
		if err := s.database.DeleteRun(id); err != nil {
			writeRunError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})

	case action == "" || action == "export":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.allowMutation(w, r) {
		return
	}

	var req sanitizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Root == "" {
		http.Error(w, "root is required", http.StatusBadRequest)
		return
	}

	result, err := s.runner.Sanitize(r.Context(), req.Root, req.DryRun, s.broadcastRunEvent)
	if err != nil {
		status := http.StatusInternalServerError
		if result.Report == nil {
			// Missing or empty root.
			status = http.StatusBadRequest
		} else if errors.Is(err, context.Canceled) {
			status = http.StatusRequestTimeout
		}
		writeJSON(w, status, map[string]interface{}{"error": err.Error(), "run_id": result.RunID, "report": result.Report})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.allowMutation(w, r) {
		return
	}

	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Paths) == 0 {
		http.Error(w, "paths are required", http.StatusBadRequest)
		return
	}

	result := s.runner.Convert(req.Paths, s.broadcastRunEvent)
	status := http.StatusOK
	if result.Report.Failed > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.allowMutation(w, r) {
		return
	}

	if err := s.database.ClearAllRuns(); err != nil {
		http.Error(w, "Failed to clear runs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// allowMutation rejects browser requests from other origins and request
// bodies that are not JSON.
func (s *Server) allowMutation(w http.ResponseWriter, r *http.Request) bool {
	if !sameOrigin(r) {
		s.logger.Warn("rejected cross-origin request",
			zap.String("origin", r.Header.Get("Origin")),
			zap.String("path", r.URL.Path),
		)
		http.Error(w, "Cross-origin requests are not allowed", http.StatusForbidden)
		return false
	}

	if r.Method == http.MethodDelete {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return false
	}
	return true
}

// sameOrigin accepts requests without an Origin header, such as curl or the
// CLI, and browser requests from the service's own host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func writeRunError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrRunNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	http.Error(w, "Failed to get run", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
