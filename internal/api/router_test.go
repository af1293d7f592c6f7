package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/internal/auth"
	"mailtriage/internal/model"
	"mailtriage/internal/queue"
	"mailtriage/pkg/trace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeExchanger struct {
	cred     *model.Credential
	err      error
	gotCode  string
	disabled model.Provider
}

func (f *fakeExchanger) Exchange(ctx context.Context, p model.Provider, code string) (*model.Credential, error) {
	f.gotCode = code
	if f.err != nil {
		return nil, f.err
	}
	c := *f.cred
	c.Provider = p
	return &c, nil
}

func (f *fakeExchanger) AuthURL(p model.Provider, state string) (string, error) {
	return "https://login.example.test/" + string(p) + "?state=" + state, nil
}

func (f *fakeExchanger) Supports(p model.Provider) bool { return p != f.disabled }

type fakeQueue struct {
	jobs map[string]*model.Job
	err  error
	subs []queue.Submission
}

func (f *fakeQueue) Enqueue(ctx context.Context, sub queue.Submission) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.subs = append(f.subs, sub)
	return "job-1", nil
}

func (f *fakeQueue) Job(ctx context.Context, id string) (*model.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, queue.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeQueue) Ready() bool { return true }

type testServer struct {
	router *gin.Engine
	ex     *fakeExchanger
	q      *fakeQueue
	signer *auth.StateSigner
}

func newTestServer(t *testing.T, requireState bool, checks map[string]Check) *testServer {
	t.Helper()
	ex := &fakeExchanger{cred: &model.Credential{AccessToken: "at", RefreshToken: "rt"}}
	q := &fakeQueue{jobs: map[string]*model.Job{}}
	signer := auth.NewStateSigner("test-secret", time.Minute)
	log := zap.NewNop()
	router := NewRouter(
		NewAuthHandler(ex, signer, requireState, log),
		NewEmailHandler(q, log),
		checks,
		log,
	)
	return &testServer{router: router, ex: ex, q: q, signer: signer}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestWelcomeAndHealth(t *testing.T) {
	s := newTestServer(t, false, nil)

	w := s.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["message"])
	assert.NotEmpty(t, w.Header().Get(trace.HeaderName))

	w = s.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyz(t *testing.T) {
	s := newTestServer(t, false, map[string]Check{
		"mq": func(ctx context.Context) error { return errors.New("down") },
	})
	w := s.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "mq_not_ready", decode(t, w)["status"])

	s = newTestServer(t, false, map[string]Check{
		"mq": func(ctx context.Context) error { return nil },
	})
	w = s.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTraceHeaderIsEchoed(t *testing.T) {
	s := newTestServer(t, false, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(trace.HeaderName, "trace-abc")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, "trace-abc", w.Header().Get(trace.HeaderName))
}

func TestAuthRedirect(t *testing.T) {
	s := newTestServer(t, false, nil)

	w := s.do(http.MethodGet, "/auth/google", "")
	require.Equal(t, http.StatusFound, w.Code)
	loc := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "https://login.example.test/google?state="))

	state := strings.TrimPrefix(loc, "https://login.example.test/google?state=")
	assert.NoError(t, s.signer.Verify(state, model.ProviderGoogle))
	assert.Error(t, s.signer.Verify(state, model.ProviderOutlook))

	w = s.do(http.MethodGet, "/auth/yahoo", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthRedirectDisabledProvider(t *testing.T) {
	s := newTestServer(t, false, nil)
	s.ex.disabled = model.ProviderOutlook

	w := s.do(http.MethodGet, "/auth/outlook", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCallbackSuccess(t *testing.T) {
	for _, p := range []model.Provider{model.ProviderGoogle, model.ProviderOutlook} {
		t.Run(string(p), func(t *testing.T) {
			s := newTestServer(t, false, nil)
			w := s.do(http.MethodGet, "/auth/"+string(p)+"/callback?code=abc", "")
			require.Equal(t, http.StatusOK, w.Code)

			body := decode(t, w)
			assert.Equal(t, "Authentication successful", body["message"])
			token, ok := body["token"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "at", token["access_token"])
			assert.Equal(t, string(p), token["provider"])
			assert.Equal(t, "abc", s.ex.gotCode)
		})
	}
}

func TestCallbackMissingCode(t *testing.T) {
	s := newTestServer(t, false, nil)
	w := s.do(http.MethodGet, "/auth/google/callback", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallbackExchangeFailure(t *testing.T) {
	s := newTestServer(t, false, nil)
	s.ex.err = &auth.AuthError{Provider: model.ProviderOutlook, Op: "exchange", Err: errors.New("invalid_grant: code expired")}

	w := s.do(http.MethodGet, "/auth/outlook/callback?code=bad", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error retrieving access token", w.Body.String())
	assert.NotContains(t, w.Body.String(), "invalid_grant")
}

func TestCallbackState(t *testing.T) {
	s := newTestServer(t, false, nil)

	w := s.do(http.MethodGet, "/auth/google/callback?code=abc&state=forged", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	state, err := s.signer.Issue(model.ProviderGoogle)
	require.NoError(t, err)
	w = s.do(http.MethodGet, "/auth/google/callback?code=abc&state="+state, "")
	assert.Equal(t, http.StatusOK, w.Code)

	// 为其他提供商签发的 state 不能使用
	w = s.do(http.MethodGet, "/auth/outlook/callback?code=abc&state="+state, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallbackRequireState(t *testing.T) {
	s := newTestServer(t, true, nil)

	w := s.do(http.MethodGet, "/auth/google/callback?code=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.ex.gotCode)
}

func TestProcessEmail(t *testing.T) {
	s := newTestServer(t, false, nil)

	w := s.do(http.MethodPost, "/emails/process", `{"email":"a@example.com","subject":"Hi","body":"I am interested"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, "pending", body["status"])

	require.Len(t, s.q.subs, 1)
	assert.Equal(t, queue.Submission{From: "a@example.com", Subject: "Hi", Body: "I am interested"}, s.q.subs[0])
}

func TestProcessEmailBadRequest(t *testing.T) {
	s := newTestServer(t, false, nil)

	w := s.do(http.MethodPost, "/emails/process", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/emails/process", `{"subject":"Hi","body":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.q.subs)
}

func TestProcessEmailQueueErrors(t *testing.T) {
	s := newTestServer(t, false, nil)

	s.q.err = &queue.QueueError{Op: "enqueue", JobID: "x", Err: queue.ErrQueueFull}
	w := s.do(http.MethodPost, "/emails/process", `{"body":"hello"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s.q.err = &queue.QueueError{Op: "enqueue", JobID: "x", Err: errors.New("amqp: channel closed")}
	w = s.do(http.MethodPost, "/emails/process", `{"body":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "amqp")
}

func TestGetJob(t *testing.T) {
	s := newTestServer(t, false, nil)
	now := time.Now().UTC()
	s.q.jobs["done"] = &model.Job{
		ID:          "done",
		Status:      model.JobCompleted,
		SubmittedAt: now,
		FinishedAt:  &now,
		Result:      &model.Result{JobID: "done", Label: model.LabelNotInterested, RawModelText: "not interested"},
	}
	s.q.jobs["queued"] = &model.Job{ID: "queued", Status: model.JobPending, SubmittedAt: now}

	w := s.do(http.MethodGet, "/jobs/done", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "not_interested", body["label"])

	w = s.do(http.MethodGet, "/jobs/queued", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "pending", body["status"])
	_, hasLabel := body["label"]
	assert.False(t, hasLabel)

	w = s.do(http.MethodGet, "/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
