// Package api provides the HTTP handlers and routes for the job module:
// uploads, settings, scheduling, polling and downloads.
package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	httpapi "github.com/mantonx/videoclipper/internal/api"
	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/history"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

// multipartOverhead is the allowance on top of the file size limit for
// the multipart envelope.
const multipartOverhead = 1 << 20

// HandlerConfig tunes an APIHandler.
type HandlerConfig struct {
	// MaxUploadBytes bounds request bodies on the upload route.
	MaxUploadBytes int64
	// StreamInterval is the push period of the job stream.
	StreamInterval time.Duration
	// HistoryLimit is the page size of the history route when the request
	// names none.
	HistoryLimit int
}

// APIHandler handles HTTP requests for the job module.
type APIHandler struct {
	service        JobService
	maxUploadBytes int64
	streamInterval time.Duration
	historyLimit   int
	reporter       joberrors.ErrorReporter
	logger         hclog.Logger

	upgrader  websocket.Upgrader
	closing   chan struct{}
	closeOnce sync.Once
}

// NewAPIHandler creates a new API handler. Panics in stream goroutines are
// sent to reporter.
func NewAPIHandler(service JobService, cfg HandlerConfig, reporter joberrors.ErrorReporter, logger hclog.Logger) *APIHandler {
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = time.Second
	}
	if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > history.MaxRecentLimit {
		cfg.HistoryLimit = history.DefaultRecentLimit
	}
	logger = logger.Named("api")
	if reporter == nil {
		reporter = joberrors.NewErrorReporter(logger.Named("errors"))
	}
	return &APIHandler{
		service:        service,
		maxUploadBytes: cfg.MaxUploadBytes,
		streamInterval: cfg.StreamInterval,
		historyLimit:   cfg.HistoryLimit,
		reporter:       reporter,
		logger:         logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		closing: make(chan struct{}),
	}
}

// Close ends every open job stream.
func (h *APIHandler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// Upload handles POST /api/upload
//
// Multipart field "file". Response:
//
//	{"job_id": "ab12cd34", "filename": "clip.mp4", "duration": 10.0, "width": 1920, "height": 1080}
func (h *APIHandler) Upload(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			httpapi.RespondWithError(c, joberrors.UploadError("upload", joberrors.ErrUploadTooLarge).WithField("file"))
			return
		}
		httpapi.RespondWithError(c, joberrors.UploadError("upload",
			fmt.Errorf("%w: no file uploaded", joberrors.ErrUploadRejected)).WithField("file"))
		return
	}

	file, err := header.Open()
	if err != nil {
		httpapi.RespondWithError(c, joberrors.StorageError("upload", err))
		return
	}
	defer file.Close()

	job, err := h.service.Upload(c.Request.Context(), header.Filename, file)
	if err != nil {
		httpapi.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":   job.ID,
		"filename": job.Filename,
		"duration": job.Metadata.Duration,
		"width":    job.Metadata.Width,
		"height":   job.Metadata.Height,
	})
}

// ListJobs handles GET /api/jobs
// Returns every job, newest first, with aggregate stats
func (h *APIHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"jobs":  h.service.Jobs(),
		"stats": h.service.Stats(c.Request.Context()),
	})
}

// GetStatus handles GET /api/status/:id
func (h *APIHandler) GetStatus(c *gin.Context) {
	job, err := h.service.Job(c.Param("id"))
	if err != nil {
		httpapi.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetSettings handles GET /api/settings/:id
func (h *APIHandler) GetSettings(c *gin.Context) {
	s, err := h.service.Settings(c.Param("id"))
	if err != nil {
		httpapi.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"settings": s,
		"options":  h.service.Options(),
	})
}

// UpdateSettings handles POST /api/settings/:id
//
// The body is a partial or full settings object; omitted fields keep their
// stored value. Framerate and speed may be numbers or numeric strings.
func (h *APIHandler) UpdateSettings(c *gin.Context) {
	var patch types.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil && !errors.Is(err, io.EOF) {
		var fieldErr *types.PatchFieldError
		if errors.As(err, &fieldErr) {
			httpapi.RespondWithError(c, joberrors.ValidationError("update_settings", fieldErr.Field,
				fmt.Errorf("%w: %s", fieldSentinel(fieldErr.Field), fieldErr.Err)))
			return
		}
		httpapi.RespondWithBadRequest(c, "Invalid settings: "+err.Error())
		return
	}

	s, err := h.service.UpdateSettings(c.Param("id"), patch)
	if err != nil {
		httpapi.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"settings": s,
	})
}

// fieldSentinel picks the error class a malformed settings field is
// reported under, matching what the resolver reports for a bad value.
func fieldSentinel(field string) error {
	switch field {
	case "speed":
		return joberrors.ErrInvalidSpeed
	case "trim_start", "trim_end":
		return joberrors.ErrInvalidTrimRange
	default:
		return joberrors.ErrInvalidOption
	}
}

// Process handles POST /api/process/:id
// Schedules the job; the transcode runs in the background
func (h *APIHandler) Process(c *gin.Context) {
	job, err := h.service.Process(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"job_id":  job.ID,
		"status":  job.Status,
		"queued":  job.Queued,
	})
}

// Cancel handles POST /api/cancel/:id
func (h *APIHandler) Cancel(c *gin.Context) {
	job, err := h.service.Cancel(c.Param("id"))
	if err != nil {
		httpapi.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"job_id":  job.ID,
		"status":  job.Status,
		"error":   job.Error,
	})
}

// Download handles GET /download/:ref
// Streams the artifact of a completed job; supports range requests
func (h *APIHandler) Download(c *gin.Context) {
	dl, err := h.service.OpenDownload(c.Param("ref"))
	if err != nil {
		httpapi.RespondWithError(c, err)
		return
	}
	defer dl.File.Close()

	c.Header("Content-Type", dl.ContentType)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Filename}))
	c.Header("Cache-Control", "no-cache")
	http.ServeContent(c.Writer, c.Request, dl.Filename, dl.Info.ModTime(), dl.File)
}

// History handles GET /api/history?limit=N
//
// N defaults to the configured history limit and must lie in
// [1, history.MaxRecentLimit].
func (h *APIHandler) History(c *gin.Context) {
	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > history.MaxRecentLimit {
			httpapi.RespondWithError(c, joberrors.ValidationError("history", "limit",
				fmt.Errorf("%w: limit must be an integer between 1 and %d", joberrors.ErrInvalidOption, history.MaxRecentLimit)))
			return
		}
		limit = n
	}

	records, err := h.service.History(c.Request.Context(), limit)
	if err != nil {
		httpapi.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}
