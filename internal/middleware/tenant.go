package middleware

import (
	"net/http"

	"tprm-service/internal/model"
	"tprm-service/pkg/logger"
	"tprm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RequireTenantContext resolves the caller's tenant from the users table and
// binds it into the request context. Vendor users additionally get their
// vendor ID bound so downstream queries can be scoped.
func RequireTenantContext(db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			userID, ok := c.Get("user_id").(uint)
			if !ok || userID == 0 {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "authentication required"})
			}

			var user model.User
			if err := db.First(&user, userID).Error; err != nil {
				log.Warn("Authenticated user not found", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid token"})
			}

			if user.TenantID == nil || *user.TenantID == 0 {
				log.Warn("Missing tenant context")
				prometheus.TenantContextMissingCounter.Inc()
				return c.JSON(http.StatusForbidden, echo.Map{
					"success": false,
					"error":   "Tenant context not found",
				})
			}

			c.Set("tenant_id", *user.TenantID)
			if user.VendorID != nil {
				c.Set("vendor_id", *user.VendorID)
			}

			log = log.With(zap.Uint("tenant_id", *user.TenantID))
			if user.VendorID != nil {
				log = log.With(zap.Uint("vendor_id", *user.VendorID))
			}
			c.Set("logger", log)

			return next(c)
		}
	}
}

// TenantID returns the tenant bound to the request.
func TenantID(c echo.Context) uint {
	if id, ok := c.Get("tenant_id").(uint); ok {
		return id
	}
	return 0
}

// UserID returns the authenticated user ID.
func UserID(c echo.Context) uint {
	if id, ok := c.Get("user_id").(uint); ok {
		return id
	}
	return 0
}

// VendorID returns the caller's vendor binding, or nil for non-vendor users.
func VendorID(c echo.Context) *uint {
	if id, ok := c.Get("vendor_id").(uint); ok {
		return &id
	}
	return nil
}
