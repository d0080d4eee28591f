package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"ai-tutor-platform/internal/ai"
	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/internal/logger"
	"ai-tutor-platform/middleware"
	"ai-tutor-platform/models"
	"ai-tutor-platform/services"
	"ai-tutor-platform/utils"
)

// PracticeEnqueuer is the slice of the task client the practice surface
// needs. Both calls are fire and forget; the implementation logs failures
// and the student never waits on the queue.
type PracticeEnqueuer interface {
	EnqueueContextPrefetch(ctx context.Context, topicID string)
	EnqueueExerciseRefill(ctx context.Context, topicID, difficulty, studentID string)
}

type exerciseRequest struct {
	TopicID    string `json:"topic_id" binding:"required"`
	Difficulty string `json:"difficulty"`
}

type submitRequest struct {
	ExerciseID         string `json:"exercise_id" binding:"required"`
	Answer             string `json:"answer" binding:"required"`
	Methodology        string `json:"methodology"`
	SelectedProcedures []int  `json:"selected_procedures"`
	IsRetry            bool   `json:"is_retry"`
}

type prefetchRequest struct {
	TopicID    string `json:"topic_id" binding:"required"`
	Difficulty string `json:"difficulty"`
}

// SetupPracticeRoutes mounts the student practice surface. Everything here
// sits behind the JWT student identity plus the tighter generation rate
// limit, because each endpoint can end in a model call.
func SetupPracticeRoutes(router *gin.Engine, cfg *config.Config, rdb *redis.Client, exercises *services.ExerciseService, contexts *services.ContextService, quota *ai.QuotaKeeper, tasks PracticeEnqueuer, auth *middleware.AuthMiddleware) {
	practice := router.Group("/api/practice")
	practice.Use(auth.RequireStudent())
	practice.Use(middleware.EnrichTrace())
	practice.Use(middleware.GenerationRateLimit(rdb, cfg.GenLimitReqs, cfg.GenLimitWindow))

	// Session entry. Returns the course's topic list and fires the prefetch
	// tasks: context warms for the first topics, pool refills for the first
	// few topics across every difficulty. The tasks are detached from this
	// request; a full queue only costs the student the warm start.
	practice.POST("/session", func(c *gin.Context) {
		studentID := middleware.GetStudentID(c)
		course := middleware.GetCourse(c)

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		topics, err := contexts.ListTopics(ctx, course)
		if err != nil {
			logger.Error("Session topic lookup failed", "course", course, "error", err)
			utils.RespondWithInternalError(c, "Could not load the course topics", nil)
			return
		}

		contextWarms := 0
		for i, topic := range topics {
			if i >= cfg.PrefetchContextTopics {
				break
			}
			tasks.EnqueueContextPrefetch(ctx, topic.ID.Hex())
			contextWarms++
		}

		poolRefills := 0
		for i, topic := range topics {
			if i >= cfg.PrefetchExerciseTopics {
				break
			}
			for _, difficulty := range models.Difficulties {
				tasks.EnqueueExerciseRefill(ctx, topic.ID.Hex(), difficulty, studentID)
				poolRefills++
			}
		}

		resp := gin.H{
			"course":            course,
			"topics":            topicViews(topics),
			"context_prefetch":  contextWarms,
			"exercise_prefetch": poolRefills,
		}
		if quota != nil && quota.Limit() > 0 {
			if status, err := quota.Status(ctx, studentID); err != nil {
				logger.Warn("Quota status lookup failed", "student_id", studentID, "error", err)
			} else {
				resp["generation_quota"] = gin.H{
					"used":  status.GenerationsToday,
					"limit": quota.Limit(),
				}
			}
		}
		c.JSON(http.StatusOK, resp)
	})

	// One exercise for topic+difficulty: pool first, then a single
	// synchronous generation. The response never carries the solution,
	// methodology or expected procedure ids.
	practice.POST("/exercise", func(c *gin.Context) {
		var req exerciseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "topic_id is required", err.Error())
			return
		}

		studentID := middleware.GetStudentID(c)
		exercise, err := exercises.GetExercise(c.Request.Context(), studentID, req.TopicID, req.Difficulty)
		if err != nil {
			respondGenerationError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"exercise": studentExerciseView(exercise)})
	})

	// Grade a submission. The verdict includes the reference solution only
	// on a retry attempt.
	practice.POST("/submit", func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "exercise_id and answer are required", err.Error())
			return
		}

		studentID := middleware.GetStudentID(c)
		result, err := exercises.Evaluate(c.Request.Context(), studentID, req.ExerciseID, req.Answer, req.Methodology, req.SelectedProcedures, req.IsRetry)
		if err != nil {
			respondGenerationError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	})

	// Rolling prefetch right after a consumption, so the next request for
	// the same pool tends to hit.
	practice.POST("/prefetch", func(c *gin.Context) {
		var req prefetchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "topic_id is required", err.Error())
			return
		}
		difficulty := req.Difficulty
		if difficulty == "" {
			difficulty = models.DifficultyMedium
		}
		if !models.ValidDifficulty(difficulty) {
			utils.RespondWithBadRequest(c, "Unsupported difficulty", gin.H{"difficulty": difficulty})
			return
		}

		studentID := middleware.GetStudentID(c)
		tasks.EnqueueExerciseRefill(c.Request.Context(), req.TopicID, difficulty, studentID)
		c.JSON(http.StatusAccepted, gin.H{"queued": true})
	})

	practice.GET("/hint/:exerciseID", func(c *gin.Context) {
		exerciseID := c.Param("exerciseID")
		hint, err := exercises.GetHint(c.Request.Context(), exerciseID)
		if err != nil {
			respondGenerationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"exercise_id": exerciseID, "hint": hint})
	})

	practice.GET("/scheme/:exerciseID", func(c *gin.Context) {
		exerciseID := c.Param("exerciseID")
		scheme, err := exercises.GetScheme(c.Request.Context(), exerciseID)
		if err != nil {
			respondGenerationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"exercise_id": exerciseID, "scheme": scheme})
	})
}

// studentExerciseView strips the grading fields from an exercise before it
// goes to the student. Solution, methodology and the expected procedure ids
// stay server-side until evaluation.
func studentExerciseView(ex *models.Exercise) gin.H {
	procedures := ex.AvailableProcedures
	if procedures == nil {
		procedures = []models.Procedure{}
	}
	return gin.H{
		"id":                   ex.ID.Hex(),
		"topic_id":             ex.TopicID,
		"topic":                ex.Topic,
		"difficulty":           ex.Difficulty,
		"content":              ex.Content,
		"available_procedures": procedures,
		"from_pool":            ex.FromPool,
	}
}

// respondGenerationError maps pipeline errors onto the API error shape.
func respondGenerationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrTopicNotFound):
		utils.RespondWithNotFound(c, "Topic not found")
	case errors.Is(err, services.ErrExerciseNotFound):
		utils.RespondWithNotFound(c, "Exercise not found")
	case errors.Is(err, ai.ErrQuotaExceeded):
		utils.RespondWithTooManyRequests(c, "Daily generation limit reached. Pool exercises remain available.", secondsToUTCMidnight())
	case errors.Is(err, ai.ErrEngineUnavailable):
		utils.RespondWithBadGateway(c, "The exercise engine is temporarily unavailable", nil)
	default:
		logger.Error("Practice request failed", "error", err)
		utils.RespondWithInternalError(c, "Something went wrong processing the request", nil)
	}
}

// secondsToUTCMidnight is the Retry-After for quota rejections; the daily
// counter resets at the UTC day boundary.
func secondsToUTCMidnight() int {
	now := time.Now().UTC()
	midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return int(time.Until(midnight).Seconds()) + 1
}
