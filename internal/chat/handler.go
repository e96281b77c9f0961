package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"porthealth/internal/auth"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		// Clients are native apps, not browsers; origin checking is moot.
		return true
	},
}

// TokenVerifier turns the handshake credential into an identity.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// MessageSink is the durable append side of the message store.
type MessageSink interface {
	AppendMessage(ctx context.Context, from, to int64, content, room string) error
}

// Handler owns the per-connection protocol loop: authenticate the handshake,
// register the connection, decode inbound frames, persist then forward, and
// deregister on close.
type Handler struct {
	registry *Registry
	verifier TokenVerifier
	messages MessageSink
	logger   *zap.Logger
}

func NewHandler(registry *Registry, verifier TokenVerifier, messages MessageSink, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		verifier: verifier,
		messages: messages,
		logger:   logger,
	}
}

// ServeHTTP upgrades an incoming connection. The credential arrives as a
// token query parameter; a missing or invalid one rejects the connection
// before the upgrade. Rejections are not application errors and are not
// logged as such.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConn(ws)
	if err := h.registry.Register(identity.UserID, conn); err != nil {
		h.logger.Error("failed to register connection", zap.Error(err))
		_ = conn.Close()
		return
	}

	h.logger.Info("user connected",
		zap.Int64("user_id", identity.UserID),
		zap.String("role", string(identity.Role)),
		zap.String("conn_id", conn.ID()),
	)

	go h.readLoop(conn, identity)
}

// readLoop processes inbound frames in arrival order until the channel
// closes. Deregistration is guarded by connection identity, so a close
// racing a reconnect cannot evict the newer registration.
func (h *Handler) readLoop(conn *Conn, identity auth.Identity) {
	defer func() {
		h.registry.Unregister(identity.UserID, conn)
		_ = conn.Close()
		h.logger.Info("user disconnected",
			zap.Int64("user_id", identity.UserID),
			zap.String("conn_id", conn.ID()),
		)
	}()

	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Heartbeat keeps half-dead clinic Wi-Fi connections from lingering.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		msgType, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.Int64("user_id", identity.UserID), zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.handleFrame(conn, identity, data)
	}
}

// handleFrame validates one inbound frame and runs persist-then-forward.
// Malformed frames are dropped without closing the connection. Persistence
// failure is logged and does not stop the forward attempt; an offline
// recipient is a normal outcome.
func (h *Handler) handleFrame(conn *Conn, sender auth.Identity, data []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}
	if frame.To <= 0 || frame.Content == "" || frame.To == sender.UserID {
		return
	}

	doctorID, patientID := resolvePair(sender, frame.To)
	room := RoomKey(doctorID, patientID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.messages.AppendMessage(ctx, sender.UserID, frame.To, frame.Content, room); err != nil {
		h.logger.Error("failed to persist message",
			zap.Int64("from", sender.UserID),
			zap.Int64("to", frame.To),
			zap.String("room", room),
			zap.Error(err),
		)
	}

	out := ChatFrame{From: sender.UserID, Content: frame.Content, Room: room}
	if peer, ok := h.registry.Lookup(frame.To); ok {
		if err := peer.SendJSON(out); err != nil {
			h.logger.Warn("failed to forward message",
				zap.Int64("to", frame.To),
				zap.String("room", room),
				zap.Error(err),
			)
		}
	}
}

// resolvePair maps a sender and addressee onto the doctor/patient pair that
// names their room. A patient with a known assigned doctor always lands in
// that doctor's room; otherwise the addressee is assumed to be the doctor.
func resolvePair(sender auth.Identity, to int64) (doctorID, patientID int64) {
	if sender.Role == auth.RoleDoctor {
		return sender.UserID, to
	}
	if sender.DoctorID != 0 {
		return sender.DoctorID, sender.UserID
	}
	return to, sender.UserID
}
