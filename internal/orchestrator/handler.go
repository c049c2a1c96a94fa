package orchestrator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"vlcsync/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// maxCommandBody bounds a POST /cmd body.
const maxCommandBody = 64 << 10

// CommandResponse is the JSON answer to a submitted batch.
type CommandResponse struct {
	Result  string `json:"result"`
	BatchID string `json:"batch_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Handler exposes orchestrator HTTP endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
	uiPage  string

	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests). uiPage is
// the path of the control page served on GET /.
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics, uiPage string) *Handler {
	h := &Handler{svc: svc, log: log, metrics: m, uiPage: uiPage}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// AllowOrigins lets browser pages served from other origins (such as
// "http://control.local:3000") open /ws. Same-origin requests and clients
// that send no Origin header are always allowed.
func (h *Handler) AllowOrigins(origins ...string) {
	if h.allowedOrigins == nil {
		h.allowedOrigins = make(map[string]bool, len(origins))
	}
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			h.allowedOrigins[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if h.allowedOrigins[strings.ToLower(origin)] {
		return true
	}
	h.log.Warn("websocket origin rejected", slog.String("origin", origin), slog.String("host", r.Host))
	return false
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Index)
	r.Get("/cmd", h.Cmd)
	r.Post("/cmd", h.Cmd)
	r.Get("/ws", h.WS)
	r.Route("/instances", func(r chi.Router) {
		r.Get("/", h.Instances)
		r.Get("/{index}", h.Instance)
	})
}

// Index handles GET /. The page is read on every request so it can be
// edited while the orchestrator runs.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	page, err := os.ReadFile(h.uiPage)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			h.log.Error("read ui page failed", slog.String("path", h.uiPage), slog.String("error", err.Error()))
		}
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

// Cmd handles GET|POST /cmd?command=play,sleep 1,pause.
// A POST may carry the batch as a form value or as the raw body.
func (h *Handler) Cmd(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("command")
	if raw == "" && r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxCommandBody)
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, CommandResponse{Result: "error", Error: err.Error()})
			return
		}
		raw = r.PostForm.Get("command")
	}

	b, err := h.svc.Submit(raw)
	if err != nil {
		h.log.Info("command rejected", slog.String("command", raw), slog.String("error", err.Error()))
		writeJSON(w, submitStatus(err), CommandResponse{Result: "error", Error: err.Error()})
		return
	}

	h.log.Info("command batch accepted", slog.String("batch_id", b.ID), slog.String("command", b.Raw))
	writeJSON(w, http.StatusOK, CommandResponse{Result: "OK", BatchID: b.ID})
}

// Instances handles GET /instances.
func (h *Handler) Instances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Instances())
}

// Instance handles GET /instances/{index}.
func (h *Handler) Instance(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	st, ok := h.svc.Instance(index)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// WS handles GET /ws. Every text frame is one batch; each gets a
// CommandResponse frame back.
func (h *Handler) WS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	remote := r.RemoteAddr
	h.log.Info("websocket client connected", slog.String("remote", remote))
	defer h.log.Info("websocket client disconnected", slog.String("remote", remote))

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		resp := CommandResponse{Result: "OK"}
		b, err := h.svc.Submit(string(data))
		if err != nil {
			resp = CommandResponse{Result: "error", Error: err.Error()}
			h.metrics.IncErrors()
		} else {
			resp.BatchID = b.ID
			h.log.Info("command batch accepted", slog.String("batch_id", b.ID), slog.String("command", b.Raw), slog.String("source", "websocket"))
		}
		if err := conn.WriteJSON(resp); err != nil {
			h.log.Debug("websocket write failed", slog.String("error", err.Error()))
			return
		}
	}
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, ErrEmptyBatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
