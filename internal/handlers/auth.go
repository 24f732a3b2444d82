package handlers

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shorttrack/apiserver/internal/auth"
	"github.com/shorttrack/apiserver/types"
	log "github.com/sirupsen/logrus"
)

// Authenticator resolves session tokens to user ids.
type Authenticator interface {
	Authenticate(token string) (int64, error)
}

// AuthService is the slice of the authority the HTTP layer drives.
type AuthService interface {
	Authenticator
	Me(ctx context.Context, userID int64) (types.PublicUser, error)
	RequestEmailCode(ctx context.Context, email string) (auth.Dispatch, error)
	Register(ctx context.Context, in auth.RegisterInput) (auth.RegisterResult, error)
	ConfirmPhone(ctx context.Context, userID int64, phone, code string) (types.PublicUser, error)
	ResendPhoneCode(ctx context.Context, email string) (auth.Dispatch, error)
	Login(ctx context.Context, in auth.LoginInput) (auth.Session, error)
	RequestOTP(ctx context.Context, phone string) (auth.Dispatch, error)
	VerifyOTP(ctx context.Context, phone, code string) (auth.Session, error)
	RequestPasswordReset(ctx context.Context, email string) (auth.Dispatch, error)
	ConfirmPasswordReset(ctx context.Context, email, code, password string) error
	RequestMagicLink(ctx context.Context, email string) (auth.MagicLink, error)
	ConsumeMagicLink(ctx context.Context, token, email string) (auth.Session, error)
	SetupTOTP(ctx context.Context, userID int64) (auth.TOTPSetup, error)
	EnableTOTP(ctx context.Context, userID int64, code string) ([]string, error)
}

// AuthHandler exposes the authentication flows over HTTP.
type AuthHandler struct {
	auth AuthService
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{auth: svc}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, svc AuthService) {
	handler := NewAuthHandler(svc)
	requireAuth := RequireAuth(svc)

	r.Post("/email-code", handler.RequestEmailCode)
	r.Post("/register", handler.Register)
	r.Post("/confirm-phone", handler.ConfirmPhone)
	r.Post("/resend-phone-code", handler.ResendPhoneCode)
	r.Post("/login", handler.Login)
	r.Post("/request-otp", handler.RequestOTP)
	r.Post("/login-otp", handler.LoginOTP)
	r.Post("/forgot-password", handler.ForgotPassword)
	r.Post("/reset-password", handler.ResetPassword)
	r.Post("/forgot", handler.ForgotPassword)
	r.Post("/reset", handler.ResetPassword)
	r.Post("/sms/request", handler.RequestOTP)
	r.Post("/sms/verify", handler.LoginOTP)
	r.Route("/magic", func(r chi.Router) {
		r.Post("/request", handler.RequestMagicLink)
		r.Get("/consume", handler.ConsumeMagicLink)
	})
	r.Route("/totp", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/setup", handler.SetupTOTP)
		r.Post("/enable", handler.EnableTOTP)
	})
	r.With(requireAuth).Get("/me", handler.Me)
}

// RequireAuth enforces a bearer session token and injects the user id into
// the request context.
func RequireAuth(svc Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			userID, err := svc.Authenticate(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthError renders an authority failure. Internal causes are logged
// and never leave the process.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	authErr := auth.AsError(err)
	if authErr.Kind == auth.KindInternal {
		log.WithError(err).WithField("path", r.URL.Path).Error("auth request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, auth.HTTPStatus(authErr.Kind), ErrorResponse{Error: authErr.Message, Field: authErr.Field})
}

func (h *AuthHandler) RequestEmailCode(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.auth.RequestEmailCode(r.Context(), req.Email)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DispatchResponse{OK: true, Code: out.Code})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegisterResponse{OK: true, RegisterResult: result})
}

func (h *AuthHandler) ConfirmPhone(w http.ResponseWriter, r *http.Request) {
	var req ConfirmPhoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.auth.ConfirmPhone(r.Context(), req.UserID, req.Phone, req.Code)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{OK: true, User: user})
}

func (h *AuthHandler) ResendPhoneCode(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.auth.ResendPhoneCode(r.Context(), req.Email)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DispatchResponse{OK: true, Code: out.Code})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.auth.Login(r.Context(), req)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{OK: true, Session: session})
}

func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req PhoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.auth.RequestOTP(r.Context(), req.Phone)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DispatchResponse{OK: true, Code: out.Code})
}

func (h *AuthHandler) LoginOTP(w http.ResponseWriter, r *http.Request) {
	var req PhoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.auth.VerifyOTP(r.Context(), req.Phone, req.Code)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{OK: true, Session: session})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.auth.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DispatchResponse{OK: true, Code: out.Code})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.auth.ConfirmPasswordReset(r.Context(), req.Email, req.Code, req.Password); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (h *AuthHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	link, err := h.auth.RequestMagicLink(r.Context(), req.Email)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MagicLinkResponse{OK: true, URL: link.URL})
}

func (h *AuthHandler) ConsumeMagicLink(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	session, err := h.auth.ConsumeMagicLink(r.Context(), query.Get("token"), query.Get("email"))
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{OK: true, Session: session})
}

func (h *AuthHandler) SetupTOTP(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	setup, err := h.auth.SetupTOTP(r.Context(), userID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TOTPSetupResponse{
		OK:         true,
		OTPAuthURL: setup.OTPAuthURL,
		QR:         "data:image/png;base64," + base64.StdEncoding.EncodeToString(setup.QRPNG),
	})
}

func (h *AuthHandler) EnableTOTP(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	codes, err := h.auth.EnableTOTP(r.Context(), userID, req.Code)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BackupCodesResponse{OK: true, BackupCodes: codes})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.auth.Me(r.Context(), userID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{OK: true, User: user})
}

type EmailRequest struct {
	Email string `json:"email"`
}

type PhoneRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code,omitempty"`
}

type CodeRequest struct {
	Code string `json:"code"`
}

type ConfirmPhoneRequest struct {
	UserID int64  `json:"userId"`
	Phone  string `json:"phone"`
	Code   string `json:"code"`
}

type ResetPasswordRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

// DispatchResponse carries the plaintext code only when delivery is not
// configured.
type DispatchResponse struct {
	OK   bool   `json:"ok"`
	Code string `json:"code,omitempty"`
}

type RegisterResponse struct {
	OK bool `json:"ok"`
	auth.RegisterResult
}

type SessionResponse struct {
	OK bool `json:"ok"`
	auth.Session
}

type UserResponse struct {
	OK   bool             `json:"ok"`
	User types.PublicUser `json:"user"`
}

type MagicLinkResponse struct {
	OK  bool   `json:"ok"`
	URL string `json:"url,omitempty"`
}

type TOTPSetupResponse struct {
	OK         bool   `json:"ok"`
	OTPAuthURL string `json:"otpauthUrl"`
	QR         string `json:"qr"`
}

type BackupCodesResponse struct {
	OK          bool     `json:"ok"`
	BackupCodes []string `json:"backupCodes"`
}
