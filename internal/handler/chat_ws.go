package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/jkindrix/coral/internal/errors"
	"github.com/jkindrix/coral/internal/middleware"
	"github.com/jkindrix/coral/internal/validation"
)

// Keep-alive timing for chat sockets.
const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsMaxFrameSize = middleware.MaxChatBodySize
)

// SocketRecorder tracks open sockets.
type SocketRecorder interface {
	WebSocketOpened()
	WebSocketClosed()
}

// ChatSocketHandler serves chat turns over a WebSocket. Each inbound frame
// carries the same JSON body as POST /api/chat; the session comes from the
// URL.
type ChatSocketHandler struct {
	chat     *ChatHandler
	recorder SocketRecorder
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewChatSocketHandler creates a socket handler that runs turns through chat.
// allowedOrigins follows the CORS list; "*" accepts any origin.
func NewChatSocketHandler(chat *ChatHandler, allowedOrigins []string, recorder SocketRecorder, logger *zap.Logger) *ChatSocketHandler {
	return &ChatSocketHandler{
		chat:     chat,
		recorder: recorder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.Named("ws"),
	}
}

// RegisterRoutes registers the socket route on the router.
func (h *ChatSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat/{sessionID}", h.HandleSocket)
}

type socketError struct {
	Error apperrors.ErrorDetail `json:"error"`
}

// HandleSocket upgrades the connection and answers turns until the client
// goes away.
func (h *ChatSocketHandler) HandleSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if len(sessionID) > validation.MaxSessionIDLength {
		APIErrorWithRequest(w, r, apperrors.InvalidInput("sessionId is too long"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.recorder != nil {
		h.recorder.WebSocketOpened()
		defer h.recorder.WebSocketClosed()
	}

	ctx, cancel := context.WithCancel(middleware.WithSessionID(r.Context(), sessionID))
	defer cancel()
	log := middleware.LoggerWithCorrelation(ctx, h.logger)
	log.Info("websocket connected")

	conn.SetReadLimit(wsMaxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	go h.pingLoop(ctx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", zap.Error(err))
			} else {
				log.Info("websocket closed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		if err := h.handleFrame(ctx, conn, sessionID, data); err != nil {
			log.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

// handleFrame runs one turn. Turn errors go back to the client as error
// frames; only a failed write ends the connection.
func (h *ChatSocketHandler) handleFrame(ctx context.Context, conn *websocket.Conn, sessionID string, data []byte) error {
	req, err := decodeChatRequest(data)
	if err == nil {
		if req.SessionID != "" && req.SessionID != sessionID {
			err = apperrors.InvalidInput("sessionId does not match the connection")
		}
		req.SessionID = sessionID
	}

	var reply interface{}
	if err == nil {
		resp, turnErr := h.chat.respond(ctx, req)
		if turnErr == nil {
			reply = ChatResponse{Response: resp.Response}
		}
		err = turnErr
	}
	if err != nil {
		reply = socketErrorFrom(err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(reply)
}

// pingLoop keeps the connection alive. WriteControl may run concurrently
// with WriteJSON.
func (h *ChatSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func socketErrorFrom(err error) socketError {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || !apperrors.IsUserError(err) {
		appErr = apperrors.New(apperrors.GetCode(err), "internal server error")
	}
	return socketError{Error: appErr.ToResponse().Error}
}

// originChecker accepts same-host requests and any origin on the list.
func originChecker(allowed []string) func(r *http.Request) bool {
	anyOrigin := false
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			anyOrigin = true
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || anyOrigin {
			return true
		}
		if set[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
