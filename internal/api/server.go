package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"porthealth/internal/auth"
	"porthealth/internal/chat"
	"porthealth/internal/store"
)

// ChatStore is the read side of the message store the HTTP surface needs.
type ChatStore interface {
	History(ctx context.Context, a, b int64) ([]store.StoredMessage, error)
	RoomMessages(ctx context.Context, room string) ([]store.StoredMessage, error)
	Contacts(ctx context.Context, userID int64, role auth.Role) ([]store.Contact, error)
	Ping(ctx context.Context) error
}

// Server exposes the HTTP surface: the WebSocket endpoint, health, and the
// history/contacts reads that back the clients' chat views.
type Server struct {
	router   chi.Router
	store    ChatStore
	verifier chat.TokenVerifier
	logger   *zap.Logger
}

func NewServer(st ChatStore, verifier chat.TokenVerifier, wsHandler http.Handler, logger *zap.Logger) *Server {
	s := &Server{
		store:    st,
		verifier: verifier,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/ws", wsHandler)

	r.Route("/api", func(api chi.Router) {
		api.Use(s.authenticate)
		api.Get("/chat/contacts", s.handleContacts)
		api.Get("/chat/history", s.handleHistory)
		api.Get("/messages", s.handleRoomMessages)
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type contextKey struct{ name string }

var identityKey = &contextKey{"identity"}

// authenticate verifies the bearer token, or the token query parameter that
// clients reuse from their WebSocket handshake, and binds the identity to
// the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if header := r.Header.Get("Authorization"); header != "" {
			if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
				token = rest
			}
		}
		if token == "" {
			respondError(w, http.StatusUnauthorized, "no token provided")
			return
		}

		identity, err := s.verifier.Verify(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) auth.Identity {
	id, _ := r.Context().Value(identityKey).(auth.Identity)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	contacts, err := s.store.Contacts(r.Context(), identity.UserID, identity.Role)
	if err != nil {
		s.logger.Error("failed to fetch contacts", zap.Int64("user_id", identity.UserID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "server error fetching contacts")
		return
	}
	if contacts == nil {
		contacts = []store.Contact{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"contacts": contacts})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	contactID, err := strconv.ParseInt(r.URL.Query().Get("with"), 10, 64)
	if err != nil || contactID <= 0 {
		respondError(w, http.StatusBadRequest, "missing or invalid contact id")
		return
	}

	msgs, err := s.store.History(r.Context(), identity.UserID, contactID)
	if err != nil {
		s.logger.Error("failed to fetch chat history", zap.Int64("user_id", identity.UserID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "server error fetching chat history")
		return
	}
	if msgs == nil {
		msgs = []store.StoredMessage{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) handleRoomMessages(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		respondError(w, http.StatusBadRequest, "room parameter is required")
		return
	}

	msgs, err := s.store.RoomMessages(r.Context(), room)
	if err != nil {
		s.logger.Error("failed to fetch room messages", zap.String("room", room), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "server error fetching messages")
		return
	}
	if msgs == nil {
		msgs = []store.StoredMessage{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}
