package web

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/cjeanneret/DoorSnap/internal/debug"
	"github.com/cjeanneret/DoorSnap/internal/logic/capture"
)

const maxBodyBytes = 1 << 20

// CaptureRequest is the body of POST /capture.
type CaptureRequest struct {
	Profile string `json:"profile"`
}

// RunCaptureFunc takes one snapshot for profile.
// It is called from the POST /capture handler in a goroutine.
type RunCaptureFunc func(ctx context.Context, profile string) (*capture.Result, error)

// FormConfig holds default values for the capture form (from config).
type FormConfig struct {
	Profile string `json:"profile"`
	Folder  string `json:"folder"`
	Bucket  string `json:"bucket"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	RunCapture   RunCaptureFunc
	FormDefaults FormConfig

	mu      sync.Mutex
	running bool
	last    *capture.Result
	lastErr string

	// ctx bounds background captures; Server.Run cancels it on shutdown. Guarded by mu.
	ctx      context.Context
	inflight sync.WaitGroup

	staticFS fs.FS
	done     func() // test hook, called when a background capture ends
}

// NewHandlers creates handlers with the given dependencies.
// If runCapture is nil, POST /capture will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, runCapture RunCaptureFunc, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:  broadcaster,
		RunCapture:   runCapture,
		FormDefaults: formDefaults,
		ctx:          context.Background(),
		staticFS:     staticFS,
	}
}

// Wait blocks until the background capture, if any, has returned.
func (h *Handlers) Wait() {
	h.inflight.Wait()
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.FormDefaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCapture handles POST /capture to start a snapshot.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CaptureRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Profile == "" {
		req.Profile = h.FormDefaults.Profile
	}
	if err := capture.ValidateProfile(req.Profile); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.RunCapture == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		http.Error(w, "capture already in progress", http.StatusConflict)
		return
	}
	h.running = true
	h.inflight.Add(1)
	ctx := h.ctx
	h.mu.Unlock()

	go h.run(ctx, req.Profile)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "profile": req.Profile})
}

func (h *Handlers) run(ctx context.Context, profile string) {
	defer h.inflight.Done()
	res, err := h.RunCapture(ctx, profile)

	h.mu.Lock()
	h.running = false
	h.last = res
	h.lastErr = ""
	if err != nil {
		h.lastErr = err.Error()
	}
	h.mu.Unlock()

	switch {
	case err != nil:
		h.Broadcaster.Broadcast("error", "Capture failed: "+err.Error())
		debug.Errorf("capture failed: %v", err)
	case !res.OK():
		h.Broadcaster.Broadcast("warn", "Snapshot incomplete: "+res.Err().Error())
	default:
		h.Broadcaster.Broadcast("info", "Snapshot "+res.Profile+" complete")
	}

	if h.done != nil {
		h.done()
	}
}

// lastResponse is the body of GET /last.
type lastResponse struct {
	Running bool            `json:"running"`
	Result  *capture.Result `json:"result,omitempty"`
	OK      bool            `json:"ok"`
	Errors  []string        `json:"errors,omitempty"`
}

// HandleLast returns the outcome of the most recent capture, 204 if none ran yet.
func (h *Handlers) HandleLast(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	resp := lastResponse{Running: h.running, Result: h.last}
	lastErr := h.lastErr
	h.mu.Unlock()

	if resp.Result == nil && lastErr == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if lastErr != "" {
		resp.Errors = append(resp.Errors, lastErr)
	}
	if resp.Result != nil {
		resp.OK = resp.Result.OK()
		if err := resp.Result.Err(); err != nil {
			resp.Errors = append(resp.Errors, errorList(err)...)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func errorList(err error) []string {
	var out []string
	for _, e := range multierr.Errors(err) {
		out = append(out, e.Error())
	}
	return out
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
