package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	apierr "github.com/victorgomez09/supportportal/internal/auth"
	"github.com/victorgomez09/supportportal/internal/auth/middleware"
	"github.com/victorgomez09/supportportal/internal/auth/models"
	"github.com/victorgomez09/supportportal/internal/auth/roles"
	"github.com/victorgomez09/supportportal/internal/auth/validation"
	"github.com/victorgomez09/supportportal/internal/mail"
)

const maxBodyBytes = 1 << 20

// UserService is the account API exposed over HTTP.
type UserService interface {
	Login(ctx context.Context, username, password string) (*models.Identity, string, error)
	Register(ctx context.Context, profile models.Profile) (*models.Identity, *mail.Delivery, error)
	AddUser(ctx context.Context, changes models.AccountChanges) (*models.Identity, *mail.Delivery, error)
	Update(ctx context.Context, currentUsername string, changes models.AccountChanges) (*models.Identity, error)
	ResetPassword(ctx context.Context, email string) (*mail.Delivery, error)
	DeleteUser(ctx context.Context, username string) error
	FindUser(ctx context.Context, username string) (*models.Identity, error)
	ListUsers(ctx context.Context) ([]models.Identity, error)
}

type UserHandler struct {
	users        UserService
	roles        *roles.Table
	tokenHeader  string
	responseWait time.Duration
	logger       *zap.Logger
}

// Options configures a UserHandler.
type Options struct {
	TokenHeader  string        // Response header carrying the issued token.
	ResponseWait time.Duration // How long to wait for mail before answering.
}

func NewUserHandler(users UserService, table *roles.Table, opts Options, logger *zap.Logger) *UserHandler {
	if opts.TokenHeader == "" {
		opts.TokenHeader = middleware.DefaultTokenHeader
	}
	if table == nil {
		table = roles.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{
		users:        users,
		roles:        table,
		tokenHeader:  opts.TokenHeader,
		responseWait: opts.ResponseWait,
		logger:       logger,
	}
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type RegisterRequest struct {
	FirstName string `json:"firstName" validate:"required,max=64"`
	LastName  string `json:"lastName" validate:"required,max=64"`
	Username  string `json:"username" validate:"required,min=3,max=64,username"`
	Email     string `json:"email" validate:"required,email,max=254"`
}

type AccountRequest struct {
	CurrentUsername string `json:"currentUsername"`
	FirstName       string `json:"firstName" validate:"required,max=64"`
	LastName        string `json:"lastName" validate:"required,max=64"`
	Username        string `json:"username" validate:"required,min=3,max=64,username"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Role            string `json:"role" validate:"required"`
	Active          bool   `json:"active"`
	Locked          bool   `json:"locked"`
}

type UserResponse struct {
	*models.Identity
	MailStatus string `json:"mailStatus,omitempty"`
}

type MessageResponse struct {
	Message    string `json:"message"`
	MailStatus string `json:"mailStatus,omitempty"`
}

// Register mounts the user routes on mux.
func (h *UserHandler) Register(mux *http.ServeMux, auth *middleware.AuthMiddleware, loginLimiter *middleware.RateLimiter) {
	login := http.Handler(http.HandlerFunc(h.Login))
	if loginLimiter != nil {
		login = loginLimiter.Limit(login)
	}

	mux.Handle("POST /user/login", login)
	mux.HandleFunc("POST /user/register", h.RegisterUser)
	mux.HandleFunc("GET /user/resetPassword/{email}", h.ResetPassword)
	mux.Handle("POST /user/add", auth.RequireAuthority(models.AuthorityCreate, http.HandlerFunc(h.AddUser)))
	mux.Handle("POST /user/update", auth.RequireAuthority(models.AuthorityUpdate, http.HandlerFunc(h.UpdateUser)))
	mux.Handle("GET /user/find/{username}", auth.RequireAuthority(models.AuthorityRead, http.HandlerFunc(h.FindUser)))
	mux.Handle("GET /user/list", auth.RequireAuthority(models.AuthorityRead, http.HandlerFunc(h.ListUsers)))
	mux.Handle("DELETE /user/delete/{username}", auth.RequireAuthority(models.AuthorityDelete, http.HandlerFunc(h.DeleteUser)))
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	identity, token, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set(h.tokenHeader, token)
	w.Header().Set("Access-Control-Expose-Headers", h.tokenHeader)
	apierr.WriteJSON(w, http.StatusOK, identity)
}

func (h *UserHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	identity, delivery, err := h.users.Register(r.Context(), models.Profile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	apierr.WriteJSON(w, http.StatusCreated, UserResponse{Identity: identity, MailStatus: h.mailStatus(delivery)})
}

func (h *UserHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	changes, err := h.changes(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	identity, delivery, err := h.users.AddUser(r.Context(), changes)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	apierr.WriteJSON(w, http.StatusCreated, UserResponse{Identity: identity, MailStatus: h.mailStatus(delivery)})
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.CurrentUsername == "" {
		h.fail(w, r, fmt.Errorf("%w: the field 'currentUsername' is required", apierr.ErrValidation))
		return
	}

	changes, err := h.changes(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	identity, err := h.users.Update(r.Context(), req.CurrentUsername, changes)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	apierr.WriteJSON(w, http.StatusOK, UserResponse{Identity: identity})
}

func (h *UserHandler) FindUser(w http.ResponseWriter, r *http.Request) {
	identity, err := h.users.FindUser(r.Context(), r.PathValue("username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, identity)
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, users)
}

func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	email := r.PathValue("email")

	delivery, err := h.users.ResetPassword(r.Context(), email)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := h.mailStatus(delivery)
	if status == mail.StatusFailed {
		h.fail(w, r, apierr.ErrMailDeliveryFailed)
		return
	}

	apierr.WriteJSON(w, http.StatusOK, MessageResponse{
		Message:    "An email with a new password was sent to: " + email,
		MailStatus: status,
	})
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteUser(r.Context(), r.PathValue("username")); err != nil {
		h.fail(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}

func (h *UserHandler) changes(req AccountRequest) (models.AccountChanges, error) {
	role, err := h.roles.Parse(req.Role)
	if err != nil {
		return models.AccountChanges{}, err
	}
	return models.AccountChanges{
		Profile: models.Profile{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Username:  req.Username,
			Email:     req.Email,
		},
		Role:     role,
		IsActive: req.Active,
		IsLocked: req.Locked,
	}, nil
}

// mailStatus waits up to the response wait for the delivery outcome.
func (h *UserHandler) mailStatus(d *mail.Delivery) string {
	if d == nil {
		return ""
	}
	status, _ := d.Status(h.responseWait)
	return status
}

func (h *UserHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.fail(w, r, fmt.Errorf("%w: invalid request body", apierr.ErrValidation))
		return false
	}
	if err := validation.Struct(dst); err != nil {
		h.fail(w, r, err)
		return false
	}
	return true
}

func (h *UserHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	outcome := apierr.WriteError(w, err)
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("outcome", outcome.String()),
		zap.Error(err),
	}
	switch outcome {
	case apierr.Internal, apierr.Unavailable:
		h.logger.Error("Request failed", fields...)
	default:
		if errors.Is(err, apierr.ErrInvalidToken) || outcome == apierr.Unauthenticated {
			fields = append(fields, zap.String("reason", apierr.Reason(err)))
		}
		h.logger.Info("Request rejected", fields...)
	}
}
