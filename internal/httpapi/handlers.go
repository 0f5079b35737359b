package httpapi

import (
	"encoding/json"
	"net/http"

	"reelfeed/internal/feedctl"
	"reelfeed/internal/middleware"
	"reelfeed/pkg/types"
)

// Controller is the slice of feedctl the handlers need; tests stub it.
type Controller interface {
	Start(deepLinkID string)
	SetActiveIndex(i int)
	MarkSeen(itemID string)
	PlaybackEvent(itemID string, kind feedctl.PlaybackEventKind)
	Background()
	Snapshot() types.Snapshot
	Subscribe() (<-chan types.Snapshot, func())
}

type Handlers struct {
	ctl Controller
}

func NewHandlers(ctl Controller) *Handlers { return &Handlers{ctl: ctl} }

// Register mounts all /v1 feed routes.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/feed/start", cors(h.StartFeed))
	mux.HandleFunc("/v1/feed/active", cors(h.SetActive))
	mux.HandleFunc("/v1/feed/seen", cors(h.MarkSeen))
	mux.HandleFunc("/v1/feed/playback", cors(h.Playback))
	mux.HandleFunc("/v1/feed/background", cors(h.Background))
	mux.HandleFunc("/v1/feed/state", cors(h.State))
	mux.HandleFunc("/v1/feed/events", h.Events) // websocket, no preflight
}

func cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.EnableCORS(w)
		if r.Method == http.MethodOptions {
			return
		}
		next(w, r)
	}
}

func (h *Handlers) StartFeed(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DeepLinkID string `json:"deepLinkId"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&in) // empty body means plain open
	}
	h.ctl.Start(in.DeepLinkID)
	writeJSON(w, h.ctl.Snapshot())
}

func (h *Handlers) SetActive(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if in.Index < 0 {
		http.Error(w, "index must be >= 0", http.StatusBadRequest)
		return
	}
	h.ctl.SetActiveIndex(in.Index)
	writeJSON(w, map[string]any{"ok": true})
}

func (h *Handlers) MarkSeen(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ItemID string `json:"itemId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.ItemID == "" {
		http.Error(w, "itemId required", http.StatusBadRequest)
		return
	}
	h.ctl.MarkSeen(in.ItemID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Playback(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ItemID string `json:"itemId"`
		Event  string `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.ItemID == "" {
		http.Error(w, "itemId & event required", http.StatusBadRequest)
		return
	}
	switch feedctl.PlaybackEventKind(in.Event) {
	case feedctl.EventBuffering, feedctl.EventSmoothStart, feedctl.EventEnded:
		h.ctl.PlaybackEvent(in.ItemID, feedctl.PlaybackEventKind(in.Event))
	default:
		http.Error(w, "unknown event", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Background(w http.ResponseWriter, r *http.Request) {
	h.ctl.Background()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.ctl.Snapshot())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
