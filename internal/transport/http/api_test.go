package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error domain.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error.Code
}

func TestCreateAndFetchMatch(t *testing.T) {
	env := newTestEnv(t, nil)
	router := env.server.Config.Handler

	w := doJSON(t, router, http.MethodPost, "/matches", map[string]any{"quizId": "quiz-1", "maxPlayers": 3})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var summary domain.MatchSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.MaxPlayers)
	assert.Equal(t, domain.StatusWaiting, summary.Status)
	assert.Len(t, summary.Code, 6)

	w = doJSON(t, router, http.MethodGet, "/matches/"+summary.MatchID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap domain.MatchSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, summary.Code, snap.Code)
	assert.Equal(t, 1, snap.TotalQuestions)

	w = doJSON(t, router, http.MethodGet, "/matches/code/"+summary.Code, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/matches", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Matches []domain.MatchSummary `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Matches, 1)

	w = doJSON(t, router, http.MethodPost, "/matches/"+summary.MatchID+"/cancel", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, router, http.MethodGet, "/matches/"+summary.MatchID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.ErrMatchNotFound.Code, errorCode(t, w))
}

func TestCreateMatchErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	router := env.server.Config.Handler

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{name: "missing quiz", body: map[string]any{}, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "unknown quiz", body: map[string]any{"quizId": "nope"}, wantStatus: http.StatusNotFound, wantCode: domain.ErrQuizNotFound.Code},
		{name: "bad settings", body: map[string]any{"quizId": "quiz-1", "minPlayers": 5, "maxPlayers": 2}, wantStatus: http.StatusBadRequest, wantCode: domain.ErrInvalidSettings.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/matches", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w))
		})
	}
}

func TestUnknownCodeIsNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	w := doJSON(t, env.server.Config.Handler, http.MethodGet, "/matches/code/ZZZZZZ", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.ErrCodeNotFound.Code, errorCode(t, w))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.service.CreateMatch(context.Background(), app.CreateMatchRequest{QuizID: "quiz-1"})
	require.NoError(t, err)
	conn := env.dial(t, "userId=u1&name=Alice")
	send(t, conn, domain.CommandPing, nil)
	readUntil(conn, t, domain.EventPong)

	w := doJSON(t, env.server.Config.Handler, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var health struct {
		Status   string `json:"status"`
		Matches  int    `json:"matches"`
		Sessions int    `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Matches)
	assert.Equal(t, 1, health.Sessions)
}

func TestRefreshQuiz(t *testing.T) {
	env := newTestEnv(t, nil)
	w := doJSON(t, env.server.Config.Handler, http.MethodPost, "/quizzes/quiz-1/refresh", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestStatusForKinds(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(domain.KindCapacity))
	assert.Equal(t, http.StatusConflict, statusFor(domain.KindState))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(domain.KindPersistence))
	assert.Equal(t, http.StatusInternalServerError, statusFor(domain.KindInternal))
}
