package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pigeonchat/pigeon/internal/media"
	"github.com/pigeonchat/pigeon/internal/model"
	"github.com/pigeonchat/pigeon/internal/realtime"
	"github.com/pigeonchat/pigeon/internal/store"
	"go.uber.org/zap"
)

// Delivery is the slice of the delivery protocol the REST layer invokes.
type Delivery interface {
	PushNew(ctx context.Context, msg *model.Message)
	StampFetched(msgs []model.Message, readerID string) []model.Message
}

// Handlers carries the REST and websocket endpoints.
type Handlers struct {
	db       *store.DB
	hub      *realtime.Hub
	delivery Delivery
	uploader media.Uploader
	auth     Authenticator
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandlers wires the HTTP surface.
func NewHandlers(db *store.DB, hub *realtime.Hub, d Delivery, up media.Uploader, auth Authenticator, logger *zap.Logger) *Handlers {
	return &Handlers{
		db:       db,
		hub:      hub,
		delivery: d,
		uploader: up,
		auth:     auth,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router builds the route table.
func (h *Handlers) Router(mediaDir string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/me", h.requireAuth(h.me)).Methods(http.MethodGet)
	r.HandleFunc("/conversation/{otherUserID}", h.requireAuth(h.getConversation)).Methods(http.MethodGet)
	r.HandleFunc("/conversation", h.requireAuth(h.getConversationSince)).Methods(http.MethodGet)
	r.HandleFunc("/conversation/{otherUserID}", h.requireAuth(h.sendMessage)).Methods(http.MethodPost)
	r.HandleFunc("/users", h.requireAuth(h.listUsers)).Methods(http.MethodGet)
	r.HandleFunc("/users/search", h.requireAuth(h.searchUsers)).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.requireAuth(h.serveWS)).Methods(http.MethodGet)
	r.PathPrefix("/media/").Handler(
		http.StripPrefix("/media/", http.FileServer(http.Dir(mediaDir))))
	return r
}

type registerRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

type registerResponse struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

// register creates an account and returns its bearer token. The token
// is shown exactly once; clients must keep it.
func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		h.writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	user, token, err := h.db.CreateUser(req.Username, req.DisplayName)
	if err != nil {
		h.logger.Warn("create user", zap.String("username", req.Username), zap.Error(err))
		h.writeError(w, http.StatusConflict, "username is taken")
		return
	}
	h.writeJSON(w, http.StatusCreated, registerResponse{User: *user, Token: token})
}

// me returns the identity behind the bearer token.
func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, userFrom(r.Context()))
}

// getConversation returns the full history with the caller's undelivered
// inbound messages stamped as a side effect.
func (h *Handlers) getConversation(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	other := mux.Vars(r)["otherUserID"]

	msgs, err := h.db.Conversation(user.ID, other)
	if err != nil {
		h.logger.Error("conversation query", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	msgs = h.delivery.StampFetched(msgs, user.ID)
	h.writeJSON(w, http.StatusOK, emptyIfNil(msgs))
}

// getConversationSince is the polling path: history filtered to creation
// time >= since, with the same stamping side effect.
func (h *Handlers) getConversationSince(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	other := r.URL.Query().Get("otherUserId")
	if other == "" {
		h.writeError(w, http.StatusBadRequest, "otherUserId is required")
		return
	}
	since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "since must be a unix ms timestamp")
		return
	}

	msgs, err := h.db.ConversationSince(user.ID, other, since)
	if err != nil {
		h.logger.Error("conversation query", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	msgs = h.delivery.StampFetched(msgs, user.ID)
	h.writeJSON(w, http.StatusOK, emptyIfNil(msgs))
}

type sendRequest struct {
	Text      string `json:"text"`
	ImageData string `json:"imageData"`
}

// sendMessage persists the message, kicks off the live push, and returns
// the persisted form without waiting for delivery confirmation.
func (h *Handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	receiver := mux.Vars(r)["otherUserID"]

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" && req.ImageData == "" {
		h.writeError(w, http.StatusBadRequest, "message must have text or an image")
		return
	}

	var imageURL string
	if req.ImageData != "" {
		url, err := h.uploader.Store(r.Context(), req.ImageData)
		if err != nil {
			h.logger.Error("store image", zap.Error(err))
			h.writeError(w, http.StatusBadRequest, "could not store image")
			return
		}
		imageURL = url
	}

	msg, err := h.db.InsertMessage(user.ID, receiver, req.Text, imageURL)
	if err != nil {
		h.logger.Error("insert message", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Detached from the request: the response does not wait for the ack
	// round-trip.
	go h.delivery.PushNew(context.Background(), msg)

	h.writeJSON(w, http.StatusCreated, msg)
}

func (h *Handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	users, err := h.db.ListUsers(user.ID)
	if err != nil {
		h.logger.Error("list users", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, emptyUsersIfNil(users))
}

func (h *Handlers) searchUsers(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	users, err := h.db.SearchUsers(r.URL.Query().Get("query"), user.ID)
	if err != nil {
		h.logger.Error("search users", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, emptyUsersIfNil(users))
}

// serveWS upgrades the connection and hands it to the hub, which owns
// presence for the connection's lifetime.
func (h *Handlers) serveWS(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	h.hub.Serve(user.ID, ws)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func emptyIfNil(msgs []model.Message) []model.Message {
	if msgs == nil {
		return []model.Message{}
	}
	return msgs
}

func emptyUsersIfNil(users []model.User) []model.User {
	if users == nil {
		return []model.User{}
	}
	return users
}
