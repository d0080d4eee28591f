package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-tutor-platform/internal/ai"
	"ai-tutor-platform/internal/logger"
	"ai-tutor-platform/middleware"
	"ai-tutor-platform/models"
	"ai-tutor-platform/services"
	"ai-tutor-platform/utils"
)

// SetupTopicRoutes mounts the read side of the topic catalog.
func SetupTopicRoutes(router *gin.Engine, contexts *services.ContextService, auth *middleware.AuthMiddleware) {
	topics := router.Group("/api/topics")
	topics.Use(auth.RequireStudent())
	topics.Use(middleware.EnrichTrace())

	// The course comes from the token; the query parameter only covers
	// tokens minted without one.
	topics.GET("", func(c *gin.Context) {
		course := middleware.GetCourse(c)
		if course == "" {
			course = c.Query("course")
		}

		list, err := contexts.ListTopics(c.Request.Context(), course)
		if err != nil {
			logger.Error("Topic listing failed", "course", course, "error", err)
			utils.RespondWithInternalError(c, "Could not load topics", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"course": course,
			"topics": topicViews(list),
			"count":  len(list),
		})
	})

	// Memoized summary; a cache miss costs one engine call.
	topics.GET("/:topicID/summary", func(c *gin.Context) {
		topicID := c.Param("topicID")
		summary, err := contexts.GetTopicSummary(c.Request.Context(), topicID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTopicNotFound):
				utils.RespondWithNotFound(c, "Topic not found")
			case errors.Is(err, ai.ErrEngineUnavailable):
				utils.RespondWithBadGateway(c, "The summary engine is temporarily unavailable", nil)
			default:
				logger.Error("Topic summary failed", "topic_id", topicID, "error", err)
				utils.RespondWithInternalError(c, "Could not build the topic summary", nil)
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"topic_id": topicID, "summary": summary})
	})
}

func topicViews(topics []models.Topic) []gin.H {
	views := make([]gin.H, 0, len(topics))
	for _, t := range topics {
		views = append(views, gin.H{
			"id":          t.ID.Hex(),
			"name":        t.Name,
			"description": t.Description,
			"position":    t.Position,
		})
	}
	return views
}
