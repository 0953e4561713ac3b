package scheduler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newswire/internal/logger"
	"newswire/internal/secrets"
	"newswire/pkg/middleware"
	"newswire/pkg/models"
)

func newTestRouter(t *testing.T, queue *fakeEnqueuer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := &fakeSourceRepo{byURL: map[string]models.Source{}}
	svc := newService(repo, &fakeParser{}, queue)
	h := NewHandler(svc, nil, logger.NopLogger())

	router := gin.New()
	auth := middleware.SharedSecretAuth(secrets.Static{Secret: "s3cret"}.CrawlerSecret)
	h.RegisterRoutes(router, auth)
	return router
}

func TestControlSurfaceRequiresAuth(t *testing.T) {
	router := newTestRouter(t, &fakeEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/enqueue?url=https://a.example.com/feed.xml", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitAccepted(t *testing.T) {
	queue := &fakeEnqueuer{}
	router := newTestRouter(t, queue)

	body, _ := json.Marshal(Submission{
		URL:   "https://example.com/article",
		Title: "A title",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submit", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer s3cret")
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, queue.messages, 1)
	assert.Equal(t, "https://example.com/article", queue.messages[0].ItemURL)
}

func TestSubmitMissingTitleRejected(t *testing.T) {
	router := newTestRouter(t, &fakeEnqueuer{})

	body, _ := json.Marshal(map[string]string{"url": "https://example.com/article"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submit", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer s3cret")
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnqueueMissingURL(t *testing.T) {
	router := newTestRouter(t, &fakeEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/enqueue", nil)
	req.Header.Set("Authorization", "Bearer s3cret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnqueueUnknownSource(t *testing.T) {
	router := newTestRouter(t, &fakeEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/enqueue?url=https://unknown.example.com/feed.xml", nil)
	req.Header.Set("Authorization", "Bearer s3cret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
