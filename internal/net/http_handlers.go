package net

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	"cliffhop/server"
	"cliffhop/server/internal/net/ws"
	"cliffhop/server/internal/telemetry"
)

// HTTPHandlerConfig wires the read-only introspection surface and the
// websocket entry point.
type HTTPHandlerConfig struct {
	ClientDir string
	Logger    telemetry.Logger
	Counters  *telemetry.Counters
}

// NewHTTPHandler builds the process mux: health, diagnostics, stage and
// session introspection, and the websocket route. Everything except /ws is
// read-only.
func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			nethttp.Error(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		payload := struct {
			Status     string                    `json:"status"`
			ServerTime int64                     `json:"serverTime"`
			Simulation server.DiagnosticsPayload `json:"simulation"`
			Telemetry  telemetry.Snapshot        `json:"telemetry"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Simulation: hub.Diagnostics(),
			Telemetry:  cfg.Counters.Snapshot(),
		}
		writeJSON(w, payload)
	})

	mux.HandleFunc("/stage", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			nethttp.Error(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		snapshot, ok := hub.LastSnapshot()
		if !ok {
			nethttp.Error(w, "no tick completed yet", nethttp.StatusServiceUnavailable)
			return
		}
		writeJSON(w, snapshot)
	})

	mux.HandleFunc("/sessions", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			nethttp.Error(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		type sessionSummary struct {
			ID        string `json:"id"`
			PlayerID  string `json:"playerId"`
			CreatedAt int64  `json:"createdAt"`
			ExpiresAt int64  `json:"expiresAt"`
			Verified  bool   `json:"verified,omitempty"`
		}
		all := hub.Sessions().Summaries()
		summaries := make([]sessionSummary, 0, len(all))
		for _, s := range all {
			summaries = append(summaries, sessionSummary{
				ID:        s.ID,
				PlayerID:  s.PlayerID,
				CreatedAt: s.CreatedAt.UnixMilli(),
				ExpiresAt: s.ExpiresAt.UnixMilli(),
				Verified:  s.Verified,
			})
		}
		writeJSON(w, struct {
			Count    int              `json:"count"`
			Sessions []sessionSummary `json:"sessions"`
		}{Count: len(summaries), Sessions: summaries})
	})

	wsHandler := ws.NewHandler(hub, ws.HandlerConfig{Logger: cfg.Logger})
	mux.HandleFunc("/ws", wsHandler.Handle)

	if cfg.ClientDir != "" {
		mux.Handle("/", nethttp.FileServer(nethttp.Dir(cfg.ClientDir)))
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
