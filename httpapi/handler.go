package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier"
	"github.com/opd-ai/courier/interfaces"
	"github.com/opd-ai/courier/lifecycle"
	"github.com/opd-ai/courier/messaging"
	"github.com/opd-ai/courier/qr"
)

// Channel is the part of *courier.Channel the HTTP adapter calls.
type Channel interface {
	State() courier.State
	QRChallenge() (*qr.Challenge, error)
	SendOne(ctx context.Context, target string, payload interfaces.Payload, opts courier.SendOptions) (*messaging.Receipt, error)
	SendBulk(ctx context.Context, targets []string, payload interfaces.Payload, opts courier.BulkOptions) (*messaging.BulkReport, error)
	QueryRegistration(ctx context.Context, target string) (*courier.Registration, error)
	Chats(ctx context.Context) ([]interfaces.Chat, error)
	ChatByID(ctx context.Context, id string) (*interfaces.Chat, error)
	GroupInviteCode(ctx context.Context, groupID string) (string, error)
	CreateGroup(ctx context.Context, name string, participants []string) (*interfaces.GroupCreation, error)
	Restart(ctx context.Context) (bool, error)
	ResetSession(ctx context.Context) error
	HealthCheck(ctx context.Context) courier.Health
	Stats() courier.Stats
}

// Handler routes REST requests to a messaging channel.
type Handler struct {
	channel Channel
}

// NewHandler creates a Handler.
func NewHandler(channel Channel) *Handler {
	return &Handler{channel: channel}
}

// Mount registers all API routes on the provided router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/api/v1/state", h.getState)
	r.Get("/api/v1/qr", h.getQR)
	r.Get("/api/v1/qr.png", h.getQRImage)
	r.Post("/api/v1/messages", h.sendMessage)
	r.Post("/api/v1/messages/bulk", h.sendBulk)
	r.Get("/api/v1/registrations/{target}", h.getRegistration)
	r.Get("/api/v1/chats", h.listChats)
	r.Get("/api/v1/chats/{id}", h.getChat)
	r.Post("/api/v1/groups", h.createGroup)
	r.Get("/api/v1/groups/{id}/invite-code", h.getInviteCode)
	r.Post("/api/v1/restart", h.restart)
	r.Post("/api/v1/session/reset", h.resetSession)
	r.Get("/api/v1/health", h.health)
	r.Get("/api/v1/stats", h.stats)
}

// NewRouter returns a chi router with request logging and the API mounted.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, logMiddleware, middleware.Recoverer)
	h.Mount(r)
	return r
}

func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.channel.State())
}

func (h *Handler) getQR(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.channel.QRChallenge()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render QR challenge", err.Error())
		return
	}
	if challenge == nil {
		writeError(w, http.StatusNotFound, "no QR challenge pending", h.channel.State().Phase.String())
		return
	}
	writeJSON(w, http.StatusOK, challenge)
}

func (h *Handler) getQRImage(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.channel.QRChallenge()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render QR challenge", err.Error())
		return
	}
	if challenge == nil {
		writeError(w, http.StatusNotFound, "no QR challenge pending", h.channel.State().Phase.String())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(challenge.PNG)
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.channel.SendOne(r.Context(), req.To, req.payload(), courier.SendOptions{
		QuotedMessageID: req.QuotedMessageID,
		LinkPreview:     req.LinkPreview,
		Lenient:         req.Lenient,
	})
	if err != nil {
		writeChannelError(w, "send failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) sendBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if !decode(w, r, &req) {
		return
	}
	opts := courier.BulkOptions{
		ContinueOnError: req.ContinueOnError,
		Lenient:         req.Lenient,
	}
	if req.PacingMs != nil {
		opts.Pacing = courier.Ptr(time.Duration(*req.PacingMs) * time.Millisecond)
	}

	report, err := h.channel.SendBulk(r.Context(), req.Targets, req.payload(), opts)
	if err != nil && report == nil {
		writeChannelError(w, "bulk send rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) getRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.channel.QueryRegistration(r.Context(), chi.URLParam(r, "target"))
	if err != nil {
		writeChannelError(w, "registration query failed", err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (h *Handler) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.channel.Chats(r.Context())
	if err != nil {
		writeChannelError(w, "failed to list chats", err)
		return
	}
	writeJSON(w, http.StatusOK, ChatListResponse{Chats: chats})
}

func (h *Handler) getChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.channel.ChatByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeChannelError(w, "failed to get chat", err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if !decode(w, r, &req) {
		return
	}
	created, err := h.channel.CreateGroup(r.Context(), req.Name, req.Participants)
	if err != nil {
		writeChannelError(w, "failed to create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getInviteCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.channel.GroupInviteCode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeChannelError(w, "failed to get invite code", err)
		return
	}
	writeJSON(w, http.StatusOK, InviteCodeResponse{Code: code})
}

func (h *Handler) restart(w http.ResponseWriter, r *http.Request) {
	started, err := h.channel.Restart(r.Context())
	if err != nil {
		writeChannelError(w, "restart failed", err)
		return
	}
	code := http.StatusOK
	if !started {
		code = http.StatusAccepted
	}
	writeJSON(w, code, RestartResponse{Started: started, State: h.channel.State()})
}

func (h *Handler) resetSession(w http.ResponseWriter, r *http.Request) {
	if err := h.channel.ResetSession(r.Context()); err != nil {
		writeChannelError(w, "session reset failed", err)
		return
	}
	writeJSON(w, http.StatusOK, h.channel.State())
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	health := h.channel.HealthCheck(r.Context())
	code := http.StatusOK
	if health.Status != courier.HealthHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.channel.Stats())
}

// statusFor maps channel errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case courier.IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, courier.ErrChannelNotReady), errors.Is(err, lifecycle.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, courier.ErrNoSessionStore):
		return http.StatusNotImplemented
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeChannelError(w http.ResponseWriter, message string, err error) {
	code := statusFor(err)
	logrus.WithFields(logrus.Fields{
		"function": "writeChannelError",
		"status":   code,
		"error":    err.Error(),
	}).Warn(message)
	writeError(w, code, message, err.Error())
}

func writeError(w http.ResponseWriter, code int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := ErrorResponse{Error: message}
	if details != "" {
		resp.Details = details
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// maxBodyBytes bounds request bodies; bulk requests carry target lists.
const maxBodyBytes = 4 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}
