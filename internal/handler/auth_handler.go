package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"tprm-service/internal/identifier"
	"tprm-service/internal/model"
	"tprm-service/pkg/jwtutil"
	"tprm-service/pkg/logger"
	"tprm-service/prometheus"
)

// sessionTTL bounds the opaque session-token fallback.
const sessionTTL = 24 * time.Hour

// AuthHandler issues JWTs and session tokens.
type AuthHandler struct {
	db *gorm.DB
}

func NewAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{db: db}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token        string      `json:"token"`
	SessionToken string      `json:"session_token"`
	User         *model.User `json:"user"`
}

// Login authenticates by email and password, returning a JWT plus an opaque
// session token for clients that cannot carry JWTs.
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.AuthAttemptsCounter.Inc()

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "email and password are required")
	}

	var user model.User
	err := h.db.Where("email = ? AND is_active = ?", req.Email, true).First(&user).Error
	if err != nil {
		prometheus.AuthErrorsCounter.Inc()
		return c.JSON(http.StatusUnauthorized, Envelope{Success: false, Error: "invalid credentials"})
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		prometheus.AuthErrorsCounter.Inc()
		log.Warn("login rejected", zap.String("email", req.Email))
		return c.JSON(http.StatusUnauthorized, Envelope{Success: false, Error: "invalid credentials"})
	}

	token, err := jwtutil.GenerateToken(user.Email, user.Username, user.ID)
	if err != nil {
		return fail(c, err)
	}

	sessionToken, err := identifier.NewSessionToken()
	if err != nil {
		return fail(c, err)
	}
	session := model.Session{
		Token:     sessionToken,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(sessionTTL),
	}
	if err := h.db.Create(&session).Error; err != nil {
		return fail(c, err)
	}

	now := time.Now()
	h.db.Model(&user).Update("last_login_at", now)

	prometheus.AuthSuccessCounter.Inc()
	log.Info("login succeeded", zap.Uint("user_id", user.ID))
	return ok(c, loginResponse{Token: token, SessionToken: sessionToken, User: &user})
}
