package middleware

import (
	"net/http"
	"strings"
	"time"

	"tprm-service/internal/model"
	"tprm-service/pkg/jwtutil"
	"tprm-service/pkg/logger"
	"tprm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuthMiddleware authenticates the caller. A bearer JWT signed with the
// configured key is the primary credential; if signature validation fails the
// token is tried as an opaque session token against the session store.
func AuthMiddleware(db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			prometheus.AuthAttemptsCounter.Inc()

			tokenString := c.Request().Header.Get("Authorization")
			if tokenString == "" {
				log.Warn("Missing authorization token")
				prometheus.AuthErrorsCounter.Inc()
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "authentication required"})
			}

			if len(tokenString) > 7 && strings.EqualFold(tokenString[0:7], "Bearer ") {
				tokenString = tokenString[7:]
			}

			var userID uint
			var username string

			claims, err := jwtutil.ValidateToken(tokenString)
			if err == nil {
				userID = claims.UserID
				username = claims.Username
			} else {
				// Session-token fallback
				var session model.Session
				if dbErr := db.Where("token = ? AND expires_at > ?", tokenString, time.Now()).
					First(&session).Error; dbErr != nil {
					log.Warn("Invalid token", zap.Error(err))
					prometheus.AuthErrorsCounter.Inc()
					return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid token"})
				}
				var user model.User
				if dbErr := db.First(&user, session.UserID).Error; dbErr != nil {
					prometheus.AuthErrorsCounter.Inc()
					return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid token"})
				}
				userID = user.ID
				username = user.Username
			}

			prometheus.AuthSuccessCounter.Inc()

			c.Set("user_id", userID)
			c.Set("username", username)

			log = log.With(
				zap.Uint("user_id", userID),
				zap.String("username", username),
			)
			c.Set("logger", log)

			return next(c)
		}
	}
}
