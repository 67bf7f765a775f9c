package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"inkwell/cmd/internal/access"
	"inkwell/cmd/internal/auth/session"
)

const (
	wsSubprotocol = "inkwell.events.v1"

	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 8

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultPingEvery    = 30 * time.Second
)

// AccessVerifier validates the access token presented on the handshake.
type AccessVerifier interface {
	VerifyAccess(token string) (session.AccessClaims, error)
}

// WSGateway upgrades /notebooks/{id}/events to a WebSocket and streams note
// events to the client. Read-only: client frames are consumed solely to
// detect disconnects.
type WSGateway struct {
	log      *slog.Logger
	hub      *Hub
	verifier AccessVerifier
	resolver *access.Resolver

	devInsecure    bool
	originPatterns []string

	writeTimeout  time.Duration
	pingEvery     time.Duration
	sendQueueSize int
}

// NewWSGateway constructs a gateway with secure defaults.
func NewWSGateway(log *slog.Logger, hub *Hub, verifier AccessVerifier, resolver *access.Resolver) *WSGateway {
	if log == nil {
		log = slog.Default()
	}

	g := &WSGateway{
		log:      log,
		hub:      hub,
		verifier: verifier,
		resolver: resolver,
	}

	// Dev-only TLS knob; not an origin policy.
	g.devInsecure = envBoolWS("INKWELL_WS_DEV_INSECURE", false)
	g.originPatterns = envCSVWS("INKWELL_WS_ORIGIN_PATTERNS", "localhost,127.0.0.1")

	g.writeTimeout = envDurationWS("INKWELL_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.pingEvery = envDurationWS("INKWELL_WS_PING_INTERVAL", wsDefaultPingEvery)

	g.sendQueueSize = envIntWS("INKWELL_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	return g
}

// Register mounts the gateway route.
func (g *WSGateway) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /notebooks/{id}/events", g.HandleWS)
}

// HandleWS authenticates, authorizes, and runs the event stream loop.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")

	claims, err := g.verifier.VerifyAccess(handshakeToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if _, err := g.resolver.EnsureNotebook(r.Context(), claims.UserID, claims.Role, notebookID, access.PermRead); err != nil {
		switch {
		case errors.Is(err, access.ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		default:
			http.Error(w, "forbidden", http.StatusForbidden)
		}
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocol {
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := g.hub.Subscribe(notebookID, g.sendQueueSize)
	defer sub.Close()

	g.log.Debug("ws.subscribed", "notebook_id", notebookID, "user_id", claims.UserID)

	// Reader exists only to notice the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(g.pingEvery)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, g.writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		case ev := <-sub.C:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			wctx, wcancel := context.WithTimeout(ctx, g.writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			wcancel()
			if err != nil {
				g.log.Debug("ws.write.fail", "notebook_id", notebookID, "error", err)
				return
			}
		}
	}
}

// handshakeToken accepts the access token from the Authorization header or,
// for browser clients that cannot set headers on WebSocket upgrades, from the
// access_token query parameter.
func handshakeToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw != "" {
		parts := strings.SplitN(raw, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key, def string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		v = def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
