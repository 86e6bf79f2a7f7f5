package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/amoralabs/amora/internal/chat"
	"github.com/amoralabs/amora/internal/config"
	"github.com/amoralabs/amora/internal/observability"
	"github.com/amoralabs/amora/internal/profile"
	"github.com/amoralabs/amora/internal/protocol"
)

// Exchanger drives one chat exchange to its paced completion.
type Exchanger interface {
	Exchange(ctx context.Context, userID, message string) (*chat.Result, error)
}

type Server struct {
	cfg      config.Config
	store    profile.Store
	exchange Exchanger
	hub      *chat.Hub
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, store profile.Store, exchange Exchanger, hub *chat.Hub, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		exchange: exchange,
		hub:      hub,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so another site cannot attach to a user's
				// turn-event feed if the service is exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/api/profile/{userId}", s.handleGetProfile)
	r.Post("/api/profile", s.handleUpsertProfile)
	r.Post("/api/chat/{userId}", s.handleChat)
	r.Get("/api/chat/{userId}/events", s.handleTurnEvents)
	r.Get("/api/perf/latency", s.handlePerfLatency)

	audioPrefix := strings.TrimRight(s.cfg.AudioPublicPath, "/")
	if audioPrefix == "" {
		audioPrefix = "/audio"
	}
	r.Handle(audioPrefix+"/*", http.StripPrefix(audioPrefix+"/", http.FileServer(http.Dir(s.cfg.AudioDir))))

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}

	p, err := s.store.Get(r.Context(), userID)
	if errors.Is(err, profile.ErrNotFound) {
		respondError(w, http.StatusNotFound, "profile_not_found", "Profile not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type upsertProfileRequest struct {
	UserID      string `json:"userId"`
	Name        string `json:"husbandName"`
	Personality string `json:"personality"`
	Age         int    `json:"age"`
	Gender      string `json:"gender"`
}

func (s *Server) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	var req upsertProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "userId is required")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "husbandName is required")
		return
	}

	p, err := s.store.Upsert(r.Context(), profile.Profile{
		UserID:      strings.TrimSpace(req.UserID),
		Name:        strings.TrimSpace(req.Name),
		Personality: strings.TrimSpace(req.Personality),
		Age:         req.Age,
		Gender:      strings.TrimSpace(req.Gender),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Message  string `json:"message"`
	AudioURL string `json:"audioUrl,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.exchange.Exchange(r.Context(), userID, req.Message)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrEmptyMessage):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case errors.Is(err, profile.ErrNotFound):
		respondError(w, http.StatusNotFound, "profile_not_found", "Profile not found")
		return
	case errors.Is(err, chat.ErrGenerationFailed):
		respondError(w, http.StatusInternalServerError, "generation_failed", "Server error")
		return
	case errors.Is(err, context.Canceled):
		// Client went away during the exchange; nothing left to write.
		return
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "Server error")
		return
	}

	respondJSON(w, http.StatusOK, chatResponse{Message: res.Reply, AudioURL: res.AudioURL})
}

// handleTurnEvents streams completed-turn envelopes for one user over a
// websocket. The feed carries the audio-artifact-arrived signal the
// voice client's state machine consumes.
func (s *Server) handleTurnEvents(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	if s.hub == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "turn events not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := s.hub.Subscribe(userID)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader only watches for close/error; clients send nothing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			data, err := protocol.Marshal(protocol.TypeTurnCompleted, protocol.TurnCompleted{
				TurnID:   evt.TurnID,
				Message:  evt.Reply,
				AudioURL: evt.AudioURL,
				TSMs:     evt.Timestamp.UnixMilli(),
			})
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
