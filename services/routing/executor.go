package routing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/upb/maternal-assistant/services/providers"
)

const (
	// defaultMaxBodyBytes caps how much of a vendor response is read
	defaultMaxBodyBytes = 4 << 20

	maxReasonLength = 200
)

// Executor performs exactly one HTTP call per Execute and classifies the result.
// It never retries
type Executor struct {
	client       *http.Client
	maxBodyBytes int64
}

// NewExecutor creates an executor. A nil client gets a default one without a
// client-level timeout; every attempt is bounded by its own context instead
func NewExecutor(client *http.Client) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	return &Executor{
		client:       client,
		maxBodyBytes: defaultMaxBodyBytes,
	}
}

// Execute sends the wire request under a per-attempt timeout
func (e *Executor) Execute(ctx context.Context, d providers.Descriptor, adapter providers.Adapter, wire *providers.WireRequest, timeout time.Duration) providers.Outcome {
	if wire == nil {
		return providers.FatalFailure("invalid request: nothing to send", 0, nil)
	}

	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, wire.Method, wire.URL, bytes.NewReader(wire.Body))
	if err != nil {
		return providers.FatalFailure("invalid request: "+err.Error(), 0, err)
	}
	if wire.Header != nil {
		req.Header = wire.Header.Clone()
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBodyBytes))
	if err != nil {
		return classifyTransportError(ctx, attemptCtx, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result, err := adapter.Decode(body, d)
		if err != nil {
			return providers.FatalFailure("malformed response: "+err.Error(), resp.StatusCode, err)
		}
		result.Latency = time.Since(start)
		return providers.Succeeded(result)
	}

	reason := statusReason(resp.StatusCode, body)
	if retryableStatus(resp.StatusCode) {
		return providers.RetryableFailure(reason, resp.StatusCode, nil)
	}
	return providers.FatalFailure(reason, resp.StatusCode, nil)
}

// retryableStatus reports whether an HTTP status is worth another attempt
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func classifyTransportError(parent, attempt context.Context, err error) providers.Outcome {
	if parent.Err() != nil {
		return providers.RetryableFailure("cancelled", 0, parent.Err())
	}
	if errors.Is(attempt.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return providers.RetryableFailure("timeout", 0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return providers.RetryableFailure("timeout", 0, err)
	}
	return providers.RetryableFailure("network: "+err.Error(), 0, err)
}

// statusReason renders "<code> <status text>[: vendor message]"
func statusReason(code int, body []byte) string {
	reason := fmt.Sprintf("%d %s", code, strings.ToLower(http.StatusText(code)))
	if msg := vendorMessage(body); msg != "" {
		reason += ": " + msg
	}
	return reason
}

// vendorMessage pulls a human readable message out of the error bodies the
// supported vendors return
func vendorMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"error.message", "error", "message", "detail"} {
		r := gjson.GetBytes(body, path)
		if r.Exists() && r.Type == gjson.String && r.String() != "" {
			return truncate(r.String(), maxReasonLength)
		}
	}
	return ""
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
