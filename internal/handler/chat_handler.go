package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/domain"
	apperrors "github.com/jkindrix/coral/internal/errors"
	"github.com/jkindrix/coral/internal/middleware"
	"github.com/jkindrix/coral/internal/validation"
)

// Responder answers one chat turn.
type Responder interface {
	Respond(ctx context.Context, sessionID string, in domain.Input) (domain.Response, error)
}

// SessionRecorder counts minted session ids.
type SessionRecorder interface {
	RecordSessionMinted()
}

// ChatPaths are the routes that accept a chat turn. The last two are the
// names older widget builds post to.
var ChatPaths = []string{"/api/chat", "/api/cohereProxy", "/api/chatbotProxy"}

// ChatHandler serves the chat proxy endpoints.
type ChatHandler struct {
	engine           Responder
	recorder         SessionRecorder
	maxMessageLength int
	turnTimeout      time.Duration
	logger           *zap.Logger
}

// ChatHandlerConfig holds configuration for ChatHandler.
type ChatHandlerConfig struct {
	Engine           Responder
	Recorder         SessionRecorder
	MaxMessageLength int
	TurnTimeout      time.Duration
	Logger           *zap.Logger
}

// NewChatHandler creates a new ChatHandler with all required dependencies.
func NewChatHandler(cfg ChatHandlerConfig) *ChatHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	if cfg.Engine == nil {
		panic("engine is required")
	}
	return &ChatHandler{
		engine:           cfg.Engine,
		recorder:         cfg.Recorder,
		maxMessageLength: cfg.MaxMessageLength,
		turnTimeout:      cfg.TurnTimeout,
		logger:           cfg.Logger,
	}
}

// RegisterRoutes registers the chat routes on the router.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	for _, path := range ChatPaths {
		r.HandleFunc(path, h.HandleChat)
	}
	r.Post("/api/chat/sessions", h.HandleCreateSession)
}

// ChatResponse is the body of a successful turn.
type ChatResponse struct {
	Response string `json:"response"`
}

// SessionResponse is the body returned when a session id is minted.
type SessionResponse struct {
	SessionID string `json:"sessionId"`
}

// chatBody is the wire form of a turn. "message" is either the user's text
// or an event object such as {"event": "WELCOME"}.
type chatBody struct {
	Text      *string         `json:"text"`
	Message   json.RawMessage `json:"message"`
	Event     string          `json:"event"`
	SessionID string          `json:"sessionId"`
}

type eventBody struct {
	Event string `json:"event"`
}

// HandleChat handles POST /api/chat and its aliases.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r, http.MethodPost)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			JSONWithRequest(w, r, http.StatusRequestEntityTooLarge,
				apperrors.InvalidInput("request body too large").ToResponse())
			return
		}
		APIErrorWithRequest(w, r, apperrors.InvalidInput("could not read request body"))
		return
	}

	req, err := decodeChatRequest(body)
	if err != nil {
		APIErrorWithRequest(w, r, err)
		return
	}

	resp, err := h.respond(r.Context(), req)
	if err != nil {
		APIErrorWithRequest(w, r, err)
		return
	}
	JSONWithRequest(w, r, http.StatusOK, ChatResponse{Response: resp.Response})
}

// HandleCreateSession handles POST /api/chat/sessions for clients that
// cannot generate their own session ids.
func (h *ChatHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	if h.recorder != nil {
		h.recorder.RecordSessionMinted()
	}
	middleware.LoggerWithCorrelation(r.Context(), h.logger).Debug("session minted", zap.String("session_id", id))
	JSONWithRequest(w, r, http.StatusCreated, SessionResponse{SessionID: id})
}

// respond validates req and runs the turn under the turn timeout.
func (h *ChatHandler) respond(ctx context.Context, req validation.ChatRequest) (domain.Response, error) {
	in, err := validation.ValidateChatRequest(req, h.maxMessageLength)
	if err != nil {
		return domain.Response{}, err
	}

	ctx = middleware.WithSessionID(ctx, req.SessionID)
	if h.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.turnTimeout)
		defer cancel()
	}

	resp, err := h.engine.Respond(ctx, req.SessionID, in)
	if err != nil {
		log := middleware.LoggerWithCorrelation(ctx, h.logger)
		if apperrors.IsUserError(err) {
			log.Debug("chat turn rejected", zap.Error(err))
		} else {
			log.Error("chat turn failed", zap.Error(err))
		}
		return domain.Response{}, err
	}
	return resp, nil
}

// decodeChatRequest parses a turn body. An explicit "event" wins over any
// text; "text" wins over "message".
func decodeChatRequest(data []byte) (validation.ChatRequest, error) {
	var body chatBody
	if err := json.Unmarshal(data, &body); err != nil {
		return validation.ChatRequest{}, apperrors.InvalidInput("request body must be a JSON object")
	}

	req := validation.ChatRequest{
		SessionID: body.SessionID,
		Text:      body.Text,
		Event:     body.Event,
	}
	if req.Text != nil || req.Event != "" {
		return req, nil
	}

	msg := bytes.TrimSpace(body.Message)
	switch {
	case len(msg) == 0 || bytes.Equal(msg, []byte("null")):
	case msg[0] == '"':
		var text string
		if err := json.Unmarshal(msg, &text); err != nil {
			return validation.ChatRequest{}, apperrors.InvalidInput("message must be a string or an event object")
		}
		req.Text = &text
	case msg[0] == '{':
		var ev eventBody
		if err := json.Unmarshal(msg, &ev); err != nil {
			return validation.ChatRequest{}, apperrors.InvalidInput("message must be a string or an event object")
		}
		if ev.Event == "" {
			return validation.ChatRequest{}, apperrors.MissingField("message.event")
		}
		req.Event = ev.Event
	default:
		return validation.ChatRequest{}, apperrors.InvalidInput("message must be a string or an event object")
	}
	return req, nil
}
