package providers

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrMalformedResponse is returned by Decode when the vendor body does not
	// carry the expected text field.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrEncodeRequest is returned by Encode when the request body cannot be built.
	ErrEncodeRequest = errors.New("failed to encode provider request")
)

// Adapter converts a system instruction and prompt into one vendor's wire
// request and converts that vendor's success body back into a Result.
// Implementations are stateless and safe for concurrent use.
type Adapter interface {
	// Family returns the vendor family name (e.g., "openai", "anthropic")
	Family() string

	// Encode builds the HTTP request for a single attempt
	Encode(system, prompt string, d Descriptor) (*WireRequest, error)

	// Decode extracts the generated text and usage from a 2xx body
	Decode(body []byte, d Descriptor) (*Result, error)
}

// WireRequest is a fully-formed vendor request ready to be sent.
type WireRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Result is the vendor-independent answer of a successful call.
type Result struct {
	// Text is the generated reply, never empty
	Text string `json:"text"`

	// Provider that produced the answer
	Provider string `json:"provider"`

	// Model used for the completion
	Model string `json:"model"`

	// Usage statistics, nil when the vendor omits them
	Usage *Usage `json:"usage,omitempty"`

	// Citations returned by browsing vendors
	Citations []string `json:"citations,omitempty"`

	// Latency of the successful attempt
	Latency time.Duration `json:"latency"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewUsage builds a Usage, deriving the total when the vendor does not send one.
func NewUsage(prompt, completion, total int) *Usage {
	if total == 0 {
		total = prompt + completion
	}
	return &Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
	}
}

// OutcomeKind tags the result of a single attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryable
	OutcomeFatal
)

// String returns the label used in logs and metrics
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one attempt against one provider.
// Exactly one of Result (success) or Reason (failure) is meaningful.
type Outcome struct {
	Kind       OutcomeKind
	Result     *Result
	Reason     string
	StatusCode int
	Err        error
}

// Succeeded wraps a decoded result.
func Succeeded(r *Result) Outcome {
	return Outcome{Kind: OutcomeSuccess, Result: r}
}

// RetryableFailure marks a transient failure worth another attempt.
func RetryableFailure(reason string, statusCode int, err error) Outcome {
	return Outcome{Kind: OutcomeRetryable, Reason: reason, StatusCode: statusCode, Err: err}
}

// FatalFailure marks a failure that must not be retried against the same provider.
func FatalFailure(reason string, statusCode int, err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: reason, StatusCode: statusCode, Err: err}
}

// OK reports whether the attempt produced a result
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess && o.Result != nil
}

// Retryable reports whether the attempt may be repeated
func (o Outcome) Retryable() bool {
	return o.Kind == OutcomeRetryable
}

// Descriptor is the immutable per-vendor configuration built once at startup.
type Descriptor struct {
	// Name is the provider identifier used in fallback orders
	Name string

	// APIKey for authentication
	APIKey string

	// BaseURL for the API
	BaseURL string

	// Model identifier sent to the vendor
	Model string

	// MaxOutputTokens caps the response length
	MaxOutputTokens int

	// Temperature controls randomness
	Temperature float64
}

// HasCredential reports whether the descriptor carries a usable key.
// Blank keys and "demo-...-key" placeholders are not usable.
func (d Descriptor) HasCredential() bool {
	key := strings.TrimSpace(d.APIKey)
	if key == "" {
		return false
	}
	if strings.HasPrefix(key, "demo-") && strings.HasSuffix(key, "-key") {
		return false
	}
	return true
}

// Endpoint joins the base URL and a path without doubling slashes
func (d Descriptor) Endpoint(path string) string {
	return strings.TrimRight(d.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// JSONHeader returns a header set with the JSON content type already applied
func JSONHeader() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	return h
}
