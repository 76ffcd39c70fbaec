package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"upload rejected", joberrors.UploadError("upload", joberrors.ErrUploadRejected), http.StatusBadRequest},
		{"unreadable media", joberrors.UploadError("probe", joberrors.ErrUnreadableMedia), http.StatusBadRequest},
		{"oversize", joberrors.UploadError("upload", joberrors.ErrUploadTooLarge), http.StatusRequestEntityTooLarge},
		{"invalid option", joberrors.ValidationError("resolve", "quality", joberrors.ErrInvalidOption), http.StatusBadRequest},
		{"invalid trim", joberrors.ValidationError("resolve", "trim_end", joberrors.ErrInvalidTrimRange), http.StatusBadRequest},
		{"invalid speed", joberrors.ValidationError("resolve", "speed", joberrors.ErrInvalidSpeed), http.StatusBadRequest},
		{"unknown job", joberrors.StateError("get", "x", joberrors.ErrUnknownJob), http.StatusNotFound},
		{"not found", joberrors.StorageError("download", joberrors.ErrNotFound), http.StatusNotFound},
		{"already processing", joberrors.StateError("start", "x", joberrors.ErrAlreadyProcessing), http.StatusConflict},
		{"not idle", joberrors.StateError("update_settings", "x", joberrors.ErrNotIdle), http.StatusConflict},
		{"shutting down", joberrors.New(joberrors.ErrorTypeResource, "start", joberrors.ErrShuttingDown), http.StatusServiceUnavailable},
		{"plain", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestRespondWithError_Body(t *testing.T) {
	router := gin.New()
	router.GET("/", func(c *gin.Context) {
		RespondWithError(c, joberrors.ValidationError("resolve", "trim_end",
			fmt.Errorf("%w: trim_end must be greater than trim_start", joberrors.ErrInvalidTrimRange)))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "InvalidTrimRange", body.Code)
	assert.Equal(t, "trim_end", body.Field)
	assert.Contains(t, body.Error, "trim_end must be greater")
}

func TestRespondWithError_HidesInternalDetails(t *testing.T) {
	router := gin.New()
	router.GET("/", func(c *gin.Context) {
		RespondWithError(c, errors.New("open /var/secret: permission denied"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "/var/secret")
	assert.Contains(t, w.Body.String(), `"code":"Internal"`)
}

func TestRespondWithBadRequest(t *testing.T) {
	router := gin.New()
	router.GET("/", func(c *gin.Context) { RespondWithBadRequest(c, "invalid request body") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"invalid request body","code":"BadRequest"}`, w.Body.String())
}

func TestErrorMiddleware_RecoversPanic(t *testing.T) {
	router := gin.New()
	router.Use(ErrorMiddleware())
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}
