package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/internal/logger"
	"ai-tutor-platform/middleware"
	"ai-tutor-platform/models"
	"ai-tutor-platform/services"
	"ai-tutor-platform/utils"
)

type webSourceRequest struct {
	Title   string `json:"title"`
	Course  string `json:"course" binding:"required"`
	Subject string `json:"subject"`
	URL     string `json:"url" binding:"required,url"`
	Crawl   bool   `json:"crawl"`
}

type transcriptSourceRequest struct {
	Title    string                  `json:"title"`
	Course   string                  `json:"course" binding:"required"`
	Subject  string                  `json:"subject"`
	Captions []models.CaptionSegment `json:"captions" binding:"required,min=1"`
}

// SetupSourceRoutes mounts the ingestion surface. Every endpoint sits
// behind the operator key; students never touch sources directly.
func SetupSourceRoutes(router *gin.Engine, cfg *config.Config, sources *services.SourceService) {
	ops := router.Group("/api/sources")
	ops.Use(middleware.RequireOperatorKey(cfg))

	// Multipart PDF upload. The file is persisted under the storage dir
	// first so the worker can read it after this request is gone; the 202
	// means "queued", not "ingested".
	ops.POST("/pdf", func(c *gin.Context) {
		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithBadRequest(c, "Invalid multipart form", err.Error())
			return
		}

		course := strings.TrimSpace(c.PostForm("course"))
		if course == "" {
			utils.RespondWithBadRequest(c, "course is required", nil)
			return
		}
		subject := strings.TrimSpace(c.PostForm("subject"))

		file, header, err := c.Request.FormFile("pdf")
		if err != nil {
			utils.RespondWithBadRequest(c, "PDF file is required in field 'pdf'", nil)
			return
		}
		defer file.Close()

		if header.Size > cfg.MaxFileSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
				"PDF exceeds the upload limit", gin.H{"max_bytes": cfg.MaxFileSize})
			return
		}
		if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
			utils.RespondWithBadRequest(c, "Only .pdf files are accepted", nil)
			return
		}

		// Content sniff: %PDF magic bytes, then rewind for the copy.
		magic := make([]byte, 4)
		if _, err := io.ReadFull(file, magic); err != nil || string(magic) != "%PDF" {
			utils.RespondWithBadRequest(c, "File content is not a PDF", nil)
			return
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			utils.RespondWithInternalError(c, "Could not read the uploaded file", nil)
			return
		}

		title := strings.TrimSpace(c.PostForm("title"))
		if title == "" {
			title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
		}

		dir := filepath.Join(cfg.FileStorageDir, "pdfs")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("Storage dir creation failed", "dir", dir, "error", err)
			utils.RespondWithInternalError(c, "Could not store the uploaded file", nil)
			return
		}
		path := filepath.Join(dir, uuid.NewString()+".pdf")

		dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			logger.Error("Storage file creation failed", "path", path, "error", err)
			utils.RespondWithInternalError(c, "Could not store the uploaded file", nil)
			return
		}
		_, copyErr := io.Copy(dst, io.LimitReader(file, cfg.MaxFileSize))
		closeErr := dst.Close()
		if copyErr != nil || closeErr != nil {
			os.Remove(path)
			logger.Error("Storing uploaded PDF failed", "path", path, "copy_error", copyErr, "close_error", closeErr)
			utils.RespondWithInternalError(c, "Could not store the uploaded file", nil)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()
		source, err := sources.CreatePDFSource(ctx, title, course, subject, path)
		if err != nil {
			os.Remove(path)
			logger.Error("PDF source registration failed", "title", title, "error", err)
			utils.RespondWithInternalError(c, "Could not queue the PDF for ingestion", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"source":  source,
			"message": "PDF stored, ingestion queued",
		})
	})

	ops.POST("/web", func(c *gin.Context) {
		var req webSourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "course and a valid url are required", err.Error())
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()
		source, err := sources.CreateWebSource(ctx, req.Title, req.Course, req.Subject, req.URL, req.Crawl)
		if err != nil {
			logger.Error("Web source registration failed", "url", req.URL, "error", err)
			utils.RespondWithInternalError(c, "Could not queue the URL for ingestion", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"source":  source,
			"message": "URL registered, ingestion queued",
		})
	})

	ops.POST("/transcript", func(c *gin.Context) {
		var req transcriptSourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "course and at least one caption are required", err.Error())
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()
		source, err := sources.CreateTranscriptSource(ctx, req.Title, req.Course, req.Subject, req.Captions)
		if err != nil {
			logger.Error("Transcript source registration failed", "title", req.Title, "error", err)
			utils.RespondWithInternalError(c, "Could not queue the transcript for ingestion", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"source":  source,
			"message": "Transcript registered, ingestion queued",
		})
	})

	ops.GET("", func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()
		list, err := sources.ListSources(ctx, c.Query("course"))
		if err != nil {
			logger.Error("Source listing failed", "error", err)
			utils.RespondWithInternalError(c, "Could not list sources", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sources": list, "count": len(list)})
	})

	// Ingestion status poll. Completed sources report chunk and topic
	// counts; failed ones carry the error message.
	ops.GET("/:sourceID", func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()
		source, err := sources.GetSource(ctx, c.Param("sourceID"))
		if err != nil {
			respondSourceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"source": source})
	})

	ops.POST("/:sourceID/reingest", func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()
		if err := sources.Reingest(ctx, c.Param("sourceID")); err != nil {
			respondSourceError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "Re-ingestion queued"})
	})

	ops.DELETE("/:sourceID", func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()
		if err := sources.DeleteSource(ctx, c.Param("sourceID")); err != nil {
			respondSourceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Source and derived data removed"})
	})
}

func respondSourceError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrSourceNotFound) {
		utils.RespondWithNotFound(c, "Source not found")
		return
	}
	logger.Error("Source operation failed", "error", err)
	utils.RespondWithInternalError(c, "Source operation failed", nil)
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return utils.WithLongTimeout(c.Request.Context())
}
