package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/galleryguard/galleryguard/internal/metrics"
	"github.com/galleryguard/galleryguard/internal/moderation"
)

func init() {
	metrics.Init()
}

type fakeChecker struct {
	verdict moderation.Verdict
	err     error
	lastID  string
}

func (c *fakeChecker) CheckPost(_ context.Context, postID string) (moderation.Verdict, error) {
	c.lastID = postID
	if c.err != nil {
		return moderation.Verdict{}, c.err
	}
	return c.verdict, nil
}

func postCheck(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/check_post_priority", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCheckPostReturnsVerdict(t *testing.T) {
	t.Parallel()
	checker := &fakeChecker{verdict: moderation.Verdict{ID: "abc", Unsafe: true}}
	srv := NewServer(checker, zap.NewNop())

	rec := postCheck(t, srv.Handler(), `{"id":"abc","link":"https://imgur.com/gallery/abc"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "abc", checker.lastID)
	require.Contains(t, rec.Body.String(), `"unsafe":true`)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestCheckPostRejectsBadJSON(t *testing.T) {
	t.Parallel()
	srv := NewServer(&fakeChecker{}, zap.NewNop())
	rec := postCheck(t, srv.Handler(), `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckPostRejectsMissingID(t *testing.T) {
	t.Parallel()
	srv := NewServer(&fakeChecker{}, zap.NewNop())
	rec := postCheck(t, srv.Handler(), `{"title":"no id"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckPostRejectsOversizedBody(t *testing.T) {
	t.Parallel()
	srv := NewServer(&fakeChecker{}, zap.NewNop())
	big := `{"id":"abc","description":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rec := postCheck(t, srv.Handler(), big)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckPostStageErrorBodies(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		body string
	}{
		{
			name: "upstream fetch failure",
			err:  &moderation.StageError{Stage: moderation.FailureUpstream, Err: errors.New("api down")},
			body: "Database Error(2)",
		},
		{
			name: "pipeline failure",
			err:  &moderation.StageError{Stage: moderation.FailurePipeline, Err: errors.New("boom")},
			body: "Database Error(3)",
		},
		{
			name: "lookup failure",
			err:  &moderation.StageError{Stage: moderation.FailureLookup, Err: errors.New("store down")},
			body: "Database Error(4)",
		},
		{
			name: "untagged error maps to lookup",
			err:  errors.New("mystery"),
			body: "Database Error(4)",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := NewServer(&fakeChecker{err: tc.err}, zap.NewNop())
			rec := postCheck(t, srv.Handler(), `{"id":"abc"}`)

			require.Equal(t, http.StatusInternalServerError, rec.Code)
			body, readErr := io.ReadAll(rec.Body)
			require.NoError(t, readErr)
			require.Equal(t, tc.body, string(body))
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	srv := NewServer(&fakeChecker{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodOptions, "/check_post_priority", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv := NewServer(&fakeChecker{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestRequestIDHeaderSet(t *testing.T) {
	t.Parallel()
	srv := NewServer(&fakeChecker{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
