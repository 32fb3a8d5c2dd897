// Package executor implements the retrying HTTP invoker. One call to
// Execute performs a full attempt sequence for a job and yields exactly one
// execution log.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/webcron/internal/domain"
	"github.com/jonesrussell/webcron/internal/logger"
)

const (
	// DefaultMaxAttempts bounds one attempt sequence (1 initial + 2 retries).
	DefaultMaxAttempts = 3
	// DefaultBackoffBase is the delay before the first retry; each further
	// retry doubles it (1s, 2s, 4s).
	DefaultBackoffBase = time.Second
	// RequestBodyLimit caps the outgoing request body, in bytes.
	RequestBodyLimit = 10 * 1024
	// errorBodySnippetLimit caps the response-body excerpt embedded in
	// HTTP error messages.
	errorBodySnippetLimit = 200
)

// Invoker executes a job's HTTP request with retries, size caps and a
// per-request timeout.
type Invoker struct {
	logger      logger.Interface
	client      *http.Client
	maxAttempts int
	backoffBase time.Duration
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithClient overrides the HTTP client.
func WithClient(client *http.Client) Option {
	return func(inv *Invoker) { inv.client = client }
}

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(inv *Invoker) { inv.maxAttempts = n }
}

// WithBackoffBase overrides the base retry delay.
func WithBackoffBase(d time.Duration) Option {
	return func(inv *Invoker) { inv.backoffBase = d }
}

// NewInvoker creates a new HTTP invoker.
func NewInvoker(log logger.Interface, opts ...Option) *Invoker {
	inv := &Invoker{
		logger:      log,
		client:      &http.Client{},
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
	}

	for _, opt := range opts {
		opt(inv)
	}

	return inv
}

// attemptResult is the outcome of a single HTTP attempt.
type attemptResult struct {
	statusCode int
	body       string
	err        error
}

// Execute runs the attempt sequence for a job and returns the execution log
// to persist. It never returns an error: every outcome, including transport
// failures, is expressed in the log.
func (inv *Invoker) Execute(
	ctx context.Context, job *domain.CronJob, manual bool,
) *domain.ExecutionLog {
	start := time.Now()
	log := &domain.ExecutionLog{
		ID:                uuid.New().String(),
		JobID:             job.ID,
		ExecutedAt:        start.UTC(),
		TriggeredManually: manual,
	}

	headers, ok := domain.ParseHeaderMap(job.Headers)
	if !ok {
		inv.logger.Warn("Invalid job headers, sending without custom headers",
			"job_id", job.ID)
	}

	body, contentType := buildRequestBody(job)

	var last attemptResult
	retries := 0
	for attempt := 1; attempt <= inv.maxAttempts; attempt++ {
		last = inv.attempt(ctx, job, headers, body, contentType)

		if last.err == nil && !isRetryableStatus(last.statusCode) {
			break
		}
		if last.err != nil && !isRetryableError(last.err) {
			break
		}
		if attempt == inv.maxAttempts {
			break
		}

		delay := inv.backoffBase << (attempt - 1)
		inv.logger.Warn("Attempt failed, retrying",
			"job_id", job.ID,
			"attempt", attempt,
			"backoff", delay.String(),
			"status", last.statusCode,
			"error", last.err)
		if !sleepCtx(ctx, delay) {
			break
		}
		retries++
	}

	log.ExecutionTime = time.Since(start).Milliseconds()
	inv.finishLog(log, last, retries)
	return log
}

// finishLog fills the terminal outcome fields of the log from the last
// attempt.
func (inv *Invoker) finishLog(log *domain.ExecutionLog, last attemptResult, retries int) {
	if last.err != nil {
		log.Status = domain.ExecutionFailed
		msg := networkErrorMessage(last.err)
		log.ErrorMessage = &msg
		if retries > 0 {
			log.RetryCount = &retries
		}
		return
	}

	code := last.statusCode
	log.ResponseCode = &code

	if code >= http.StatusBadRequest {
		log.Status = domain.ExecutionFailed
		msg := httpErrorMessage(code, last.body)
		log.ErrorMessage = &msg
		if retries > 0 {
			log.RetryCount = &retries
		}
		return
	}

	log.Status = domain.ExecutionSuccess
	respBody := domain.TruncateBody(last.body)
	log.ResponseBody = &respBody
}

// attempt issues one HTTP request and reads a size-capped response.
func (inv *Invoker) attempt(
	ctx context.Context,
	job *domain.CronJob,
	headers map[string]string,
	body string,
	contentType string,
) attemptResult {
	reqCtx, cancel := context.WithTimeout(ctx, job.Timeout())
	defer cancel()

	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, job.Method, job.URL, reader)
	if err != nil {
		return attemptResult{err: &urlError{cause: err}}
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, doErr := inv.client.Do(req)
	if doErr != nil {
		return attemptResult{err: doErr}
	}
	defer resp.Body.Close()

	// Read one byte past the cap so TruncateBody can tell a full 10 KiB
	// payload from a truncated one.
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, domain.ResponseBodyLimit+1))
	if readErr != nil {
		return attemptResult{err: readErr}
	}

	return attemptResult{statusCode: resp.StatusCode, body: string(raw)}
}

// buildRequestBody prepares the outgoing body and content type. POST bodies
// that parse as JSON are sent as application/json; everything else goes out
// as plain text. The body is capped at RequestBodyLimit bytes.
func buildRequestBody(job *domain.CronJob) (string, string) {
	if job.Method != http.MethodPost || job.Body == "" {
		return "", ""
	}

	body := job.Body
	if len(body) > RequestBodyLimit {
		body = body[:RequestBodyLimit]
	}

	if json.Valid([]byte(body)) {
		return body, "application/json"
	}
	return body, "text/plain"
}

// urlError marks a malformed-URL failure, which is never retried.
type urlError struct {
	cause error
}

func (e *urlError) Error() string { return e.cause.Error() }
func (e *urlError) Unwrap() error { return e.cause }

// isRetryableStatus reports whether an HTTP status warrants a retry.
func isRetryableStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

// isRetryableError reports whether a transport error warrants a retry.
// Connection refusals, DNS failures, resets and timeouts are transient;
// malformed URLs are not.
func isRetryableError(err error) bool {
	var malformed *urlError
	return !errors.As(err, &malformed)
}

// networkErrorMessage composes the stable "Network error: <code>[ - <msg>]"
// taxonomy from a transport error.
func networkErrorMessage(err error) string {
	code := classifyNetworkError(err)
	msg := err.Error()
	if msg == "" {
		return "Network error: " + code
	}
	return "Network error: " + code + " - " + msg
}

// classifyNetworkError maps a transport error onto an OS-style error code.
func classifyNetworkError(err error) string {
	var malformed *urlError
	if errors.As(err, &malformed) {
		return "EINVAL"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "ENOTFOUND"
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return "ECONNREFUSED"
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return "ECONNRESET"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "ETIMEDOUT"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ETIMEDOUT"
	}

	return "ECONNERROR"
}

// httpErrorMessage composes the stable "HTTP <code>: <reason>[ - <body>]"
// taxonomy from a completed error response.
func httpErrorMessage(code int, body string) string {
	msg := "HTTP " + strconv.Itoa(code) + ": " + http.StatusText(code)
	body = strings.TrimSpace(body)
	if body != "" {
		if len(body) > errorBodySnippetLimit {
			body = body[:errorBodySnippetLimit]
		}
		msg += " - " + body
	}
	return msg
}

// sleepCtx sleeps for d unless the context is cancelled first. It returns
// false when the sleep was interrupted.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
