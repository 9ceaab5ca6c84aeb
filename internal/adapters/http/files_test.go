package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natlachat/natla/internal/app"
	"github.com/natlachat/natla/internal/config"
	"github.com/natlachat/natla/internal/store"
)

func newTestRouter(t *testing.T) (*gin.Engine, *store.Store, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	dir := t.TempDir()

	limiter := app.NewFixedWindowLimiter()
	hour := config.RateLimit{Limit: 100, Window: time.Hour}

	r := gin.New()
	auth := &AuthHandler{Store: st, Limiter: limiter, Limit: config.RateLimit{Limit: 2, Window: time.Hour}}
	r.POST("/auth/session", auth.CreateSession)

	files := &FileHandler{Store: st, Limiter: limiter, UploadLimit: hour, Dir: dir, MaxBytes: 1 << 20}
	r.POST("/upload", files.Upload)
	r.GET("/download/:fileId", files.Download)

	return r, st, dir
}

func TestCreateSession_IssuesTokenAndRateLimits(t *testing.T) {
	r, _, _ := newTestRouter(t)

	var token string
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/session", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.NotEmpty(t, body["userId"])
		token, _ = body["token"].(string)
		assert.Len(t, token, 64)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/session", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestUploadDownload_RoundTrip(t *testing.T) {
	r, st, dir := newTestRouter(t)

	sess, err := st.CreateSession()
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("merhaba"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		FileID   string `json:"fileId"`
		FileName string `json:"fileName"`
		Size     int64  `json:"size"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "notes.txt", body.FileName)
	assert.Equal(t, int64(7), body.Size)
	assert.FileExists(t, filepath.Join(dir, body.FileID))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/"+body.FileID+"?token="+sess.Token, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "merhaba", w.Body.String())
}

func TestUpload_RejectsInvalidToken(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDownload_UnknownFile(t *testing.T) {
	r, st, _ := newTestRouter(t)

	sess, err := st.CreateSession()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/missing?token="+sess.Token, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpload_FailedWriteCleansMetadata(t *testing.T) {
	gin.SetMode(gin.TestMode)

	st, err := store.Open(":memory:")
	require.NoError(t, err)

	// A regular file where the upload dir should be makes every byte
	// write fail after the metadata row exists.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	files := &FileHandler{
		Store:       st,
		Limiter:     app.NewFixedWindowLimiter(),
		UploadLimit: config.RateLimit{Limit: 100, Window: time.Hour},
		Dir:         filepath.Join(blocker, "uploads"),
		MaxBytes:    1 << 20,
	}
	r := gin.New()
	r.POST("/upload", files.Upload)

	sess, err := st.CreateSession()
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("merhaba"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSweepDir_RemovesOnlyExpired(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "old")
	fresh := filepath.Join(dir, "fresh")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))

	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))

	SweepDir(dir, 24*time.Hour)

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}
