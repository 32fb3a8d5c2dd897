package executor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/webcron/internal/domain"
	"github.com/jonesrussell/webcron/internal/executor"
	"github.com/jonesrussell/webcron/internal/logger"
)

func newInvoker(opts ...executor.Option) *executor.Invoker {
	opts = append([]executor.Option{executor.WithBackoffBase(time.Millisecond)}, opts...)
	return executor.NewInvoker(logger.NewNoop(), opts...)
}

func testJob(url string) *domain.CronJob {
	return &domain.CronJob{
		ID:     "job-1",
		Name:   "ping",
		URL:    url,
		Method: http.MethodGet,
	}
}

func TestExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	entry := newInvoker().Execute(context.Background(), testJob(srv.URL), false)

	assert.Equal(t, domain.ExecutionSuccess, entry.Status)
	require.NotNil(t, entry.ResponseCode)
	assert.Equal(t, http.StatusOK, *entry.ResponseCode)
	require.NotNil(t, entry.ResponseBody)
	assert.Equal(t, `{"ok":true}`, *entry.ResponseBody)
	assert.Nil(t, entry.RetryCount)
	assert.False(t, entry.TriggeredManually)
	assert.GreaterOrEqual(t, entry.ExecutionTime, int64(0))
}

func TestExecuteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	entry := newInvoker().Execute(context.Background(), testJob(srv.URL), false)

	assert.Equal(t, domain.ExecutionSuccess, entry.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecuteExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	entry := newInvoker().Execute(context.Background(), testJob(srv.URL), false)

	assert.Equal(t, domain.ExecutionFailed, entry.Status)
	assert.Equal(t, int32(3), calls.Load())
	require.NotNil(t, entry.ResponseCode)
	assert.Equal(t, http.StatusServiceUnavailable, *entry.ResponseCode)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "HTTP 503: Service Unavailable")
	assert.Contains(t, *entry.ErrorMessage, "boom")
	require.NotNil(t, entry.RetryCount)
	assert.Equal(t, 2, *entry.RetryCount)
}

func TestExecuteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	entry := newInvoker().Execute(context.Background(), testJob(srv.URL), false)

	assert.Equal(t, domain.ExecutionFailed, entry.Status)
	assert.Equal(t, int32(1), calls.Load())
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "HTTP 404: Not Found")
	assert.Nil(t, entry.RetryCount)
}

func TestExecuteRetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	entry := newInvoker().Execute(context.Background(), testJob(srv.URL), false)

	assert.Equal(t, domain.ExecutionSuccess, entry.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExecuteConnectionRefused(t *testing.T) {
	// A closed server port refuses connections.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	entry := newInvoker().Execute(context.Background(), testJob(url), false)

	assert.Equal(t, domain.ExecutionFailed, entry.Status)
	assert.Nil(t, entry.ResponseCode)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "Network error: ECONNREFUSED")
	require.NotNil(t, entry.RetryCount)
	assert.Equal(t, 2, *entry.RetryCount)
}

func TestExecuteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	job := testJob(srv.URL)
	timeout := 1000
	job.RequestTimeout = &timeout

	entry := newInvoker(executor.WithMaxAttempts(1)).Execute(context.Background(), job, false)

	assert.Equal(t, domain.ExecutionFailed, entry.Status)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "Network error: ETIMEDOUT")
}

func TestExecuteMalformedURLNotRetried(t *testing.T) {
	job := testJob("http://bad url with spaces")
	job.Method = "GET"

	start := time.Now()
	entry := executor.NewInvoker(logger.NewNoop()).Execute(context.Background(), job, false)

	assert.Equal(t, domain.ExecutionFailed, entry.Status)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "Network error: EINVAL")
	// No backoff sleeps happened.
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecuteTruncatesLargeResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 20*1024)))
	}))
	defer srv.Close()

	entry := newInvoker().Execute(context.Background(), testJob(srv.URL), false)

	require.Equal(t, domain.ExecutionSuccess, entry.Status)
	require.NotNil(t, entry.ResponseBody)
	body := *entry.ResponseBody
	assert.True(t, strings.HasSuffix(body, domain.TruncationSuffix))
	assert.Len(t, body, domain.ResponseBodyLimit+len(domain.TruncationSuffix))
}

func TestExecuteSendsHeadersAndBody(t *testing.T) {
	var gotAuth, gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		raw := make([]byte, 256)
		n, _ := r.Body.Read(raw)
		gotBody = string(raw[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	job := testJob(srv.URL)
	job.Method = http.MethodPost
	job.Headers = `{"Authorization":"Bearer token"}`
	job.Body = `{"hello":"world"}`

	entry := newInvoker().Execute(context.Background(), job, true)

	assert.Equal(t, domain.ExecutionSuccess, entry.Status)
	assert.True(t, entry.TriggeredManually)
	assert.Equal(t, "Bearer token", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"hello":"world"}`, gotBody)
}

func TestExecuteRedirectCountsAsSuccess(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer srv.Close()

	entry := newInvoker().Execute(context.Background(), testJob(srv.URL), false)
	assert.Equal(t, domain.ExecutionSuccess, entry.Status)
}
