package routes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/internal/logger"
	"ai-tutor-platform/middleware"
	"ai-tutor-platform/services"
	"ai-tutor-platform/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SetupExportRoutes mounts the operator-only exercise bank export.
func SetupExportRoutes(router *gin.Engine, cfg *config.Config, exports *services.ExportService) {
	group := router.Group("/api/export")
	group.Use(middleware.RequireOperatorKey(cfg))

	group.GET("/exercises", func(c *gin.Context) {
		course := c.Query("course")

		ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
		defer cancel()

		workbook, count, err := exports.ExerciseWorkbook(ctx, course)
		if err != nil {
			logger.Error("Exercise export failed", "course", course, "error", err)
			utils.RespondWithInternalError(c, "Could not build the export", nil)
			return
		}
		if count == 0 {
			utils.RespondWithNotFound(c, "No exercises match the export filter")
			return
		}

		filename := fmt.Sprintf("exercises_%s.xlsx", time.Now().Format("2006-01-02"))
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
		c.Data(http.StatusOK, xlsxContentType, workbook)
	})
}
