package dashboard

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/xm-labs/orderbook-aggregator/internal/config"
	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

// Handlers holds the HTTP handler dependencies for the dashboard mux.
type Handlers struct {
	cfg    config.DashboardConfig
	store  *snapshotStore
	hub    *Hub
	logger *slog.Logger
}

// NewHandlers constructs a Handlers.
func NewHandlers(cfg config.DashboardConfig, store *snapshotStore, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{cfg: cfg, store: store, hub: hub, logger: logger.With("component", "dashboard-handlers")}
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleSnapshot returns the last known Summary for ?pair=FIRST-SECOND.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	pair, err := parsePairParam(r.URL.Query().Get("pair"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.store.watch(r.Context(), pair)

	summary, ok := h.store.get(pair)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "subscribing, no summary yet"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		h.logger.Error("failed to encode snapshot", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// HandleWebSocket upgrades the connection and streams live Summary
// updates for ?pair=FIRST-SECOND.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	pair, err := parsePairParam(r.URL.Query().Get("pair"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req.Header.Get("Origin"), h.cfg, req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	h.store.watch(r.Context(), pair)
	client := NewClient(h.hub, conn, pair.String())

	if summary, ok := h.store.get(pair); ok {
		evt := Event{Type: "summary", Pair: pair.String(), Data: summary}
		if data, err := json.Marshal(evt); err == nil {
			select {
			case client.send <- data:
			default:
			}
		}
	}
}

func parsePairParam(raw string) (types.TradedPair, error) {
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return types.TradedPair{}, errInvalidPairParam
	}
	return types.NewTradedPair(parts[0], parts[1]), nil
}

var errInvalidPairParam = errors.New(`pair query param must be "FIRST-SECOND"`)

func isOriginAllowed(origin string, cfg config.DashboardConfig, reqHost string) bool {
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	normalized := normalizeOrigin(originURL.Scheme, originURL.Host)
	if normalized == "" {
		return false
	}

	if len(cfg.AllowedOrigins) > 0 {
		for _, allowed := range cfg.AllowedOrigins {
			u, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			if normalized == normalizeOrigin(u.Scheme, u.Host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(originURL.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	reqHostname := normalizeHost(reqHost)
	return reqHostname != "" && host == reqHostname
}

func normalizeOrigin(scheme, host string) string {
	if scheme == "" || host == "" {
		return ""
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}
