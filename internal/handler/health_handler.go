package handler

import (
	"net/http"
	"time"

	"tprm-service/pkg/database"
	"tprm-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HealthCheck reports service liveness. Pass ?check=db to also ping the
// database.
func HealthCheck(c echo.Context) error {
	response := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}

	if c.QueryParam("check") == "db" {
		sqlDB, err := database.GetDB().DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			logger.FromContext(c).Error("Database health check failed", zap.Error(err))
			response["status"] = "error"
			response["db_status"] = "error"
			return c.JSON(http.StatusServiceUnavailable, response)
		}
		response["db_status"] = "ok"
	}

	return c.JSON(http.StatusOK, response)
}
