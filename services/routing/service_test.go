package routing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/maternal-assistant/services/providers"
	"github.com/upb/maternal-assistant/services/providers/anthropic"
	"github.com/upb/maternal-assistant/services/providers/gemini"
	"github.com/upb/maternal-assistant/services/providers/openai"
	"github.com/upb/maternal-assistant/services/providers/perplexity"
)

// fakeCalls scripts outcomes per provider and records the call sequence
type fakeCalls struct {
	mu       sync.Mutex
	scripts  map[string][]providers.Outcome
	sequence []string
}

func (f *fakeCalls) call(ctx context.Context, d providers.Descriptor) providers.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequence = append(f.sequence, d.Name)
	script := f.scripts[d.Name]
	if len(script) == 0 {
		return providers.FatalFailure("unscripted", 0, nil)
	}
	o := script[0]
	if len(script) > 1 {
		f.scripts[d.Name] = script[1:]
	}
	return o
}

type recordingObserver struct {
	mu        sync.Mutex
	attempts  []string
	skips     []string
	exhausted int
}

func (r *recordingObserver) ObserveAttempt(provider string, o providers.Outcome, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, provider+":"+o.Kind.String())
}

func (r *recordingObserver) ObserveSkip(provider, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skips = append(r.skips, provider)
}

func (r *recordingObserver) ObserveExhausted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exhausted++
}

func descriptors(names ...string) []providers.Descriptor {
	out := make([]providers.Descriptor, 0, len(names))
	for _, n := range names {
		out = append(out, providers.Descriptor{Name: n, APIKey: n + "-secret", Model: n + "-model"})
	}
	return out
}

func success(provider string) providers.Outcome {
	return providers.Succeeded(&providers.Result{Text: "answer from " + provider, Provider: provider})
}

func newTestService(opts ...Option) *RoutingService {
	cfg := DefaultRoutingConfig()
	cfg.BaseDelay = time.Millisecond
	return NewRoutingService(cfg, nil, nil, zap.NewNop(), opts...)
}

func TestRoutingService_Dispatch(t *testing.T) {
	retry := providers.RetryableFailure("503 service unavailable", 503, nil)
	timeout := providers.RetryableFailure("timeout", 0, nil)
	unauthorized := providers.FatalFailure("401 unauthorized", 401, nil)
	malformed := providers.FatalFailure("malformed response: no choices", 200, providers.ErrMalformedResponse)

	tests := []struct {
		name         string
		order        []string
		scripts      map[string][]providers.Outcome
		wantProvider string
		wantSequence []string
		wantReason   string
	}{
		{
			name:         "first provider answers",
			order:        []string{"openai", "anthropic"},
			scripts:      map[string][]providers.Outcome{"openai": {success("openai")}},
			wantProvider: "openai",
			wantSequence: []string{"openai"},
		},
		{
			name:  "retryable twice then next provider",
			order: []string{"openai", "anthropic"},
			scripts: map[string][]providers.Outcome{
				"openai":    {retry, retry},
				"anthropic": {success("anthropic")},
			},
			wantProvider: "anthropic",
			wantSequence: []string{"openai", "openai", "anthropic"},
		},
		{
			name:  "timeout then success on same provider",
			order: []string{"openai", "anthropic"},
			scripts: map[string][]providers.Outcome{
				"openai": {timeout, success("openai")},
			},
			wantProvider: "openai",
			wantSequence: []string{"openai", "openai"},
		},
		{
			name:  "fatal skips retries but still falls back",
			order: []string{"openai", "anthropic", "gemini"},
			scripts: map[string][]providers.Outcome{
				"openai":    {unauthorized},
				"anthropic": {malformed},
				"gemini":    {success("gemini")},
			},
			wantProvider: "gemini",
			wantSequence: []string{"openai", "anthropic", "gemini"},
		},
		{
			name:  "all fail reports last reason",
			order: []string{"openai", "anthropic"},
			scripts: map[string][]providers.Outcome{
				"openai":    {retry, retry},
				"anthropic": {unauthorized},
			},
			wantSequence: []string{"openai", "openai", "anthropic"},
			wantReason:   "401 unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeCalls{scripts: tt.scripts}
			s := newTestService()

			result, err := s.Dispatch(context.Background(), descriptors(tt.order...), fake.call)

			assert.Equal(t, tt.wantSequence, fake.sequence)
			if tt.wantReason != "" {
				require.Error(t, err)
				assert.Nil(t, result)
				assert.True(t, errors.Is(err, ErrAllProvidersExhausted))

				var exhausted *ExhaustedError
				require.True(t, errors.As(err, &exhausted))
				assert.Equal(t, tt.wantReason, exhausted.Reason)
				assert.Equal(t, len(tt.wantSequence), exhausted.Attempts)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, result.Provider)
		})
	}
}

func TestRoutingService_Dispatch_SkipsMissingCredentials(t *testing.T) {
	order := descriptors("openai", "anthropic", "gemini")
	order[0].APIKey = ""
	order[2].APIKey = "demo-gemini-key"

	fake := &fakeCalls{scripts: map[string][]providers.Outcome{"anthropic": {success("anthropic")}}}
	observer := &recordingObserver{}
	s := newTestService(WithObserver(observer))

	result, err := s.Dispatch(context.Background(), order, fake.call)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", result.Provider)
	assert.Equal(t, []string{"anthropic"}, fake.sequence)
	assert.Equal(t, []string{"openai"}, observer.skips)
	assert.Equal(t, []string{"anthropic:success"}, observer.attempts)
}

func TestRoutingService_Dispatch_OnlyUnconfigured(t *testing.T) {
	order := descriptors("openai", "anthropic")
	order[0].APIKey = ""
	order[1].APIKey = ""

	fake := &fakeCalls{}
	observer := &recordingObserver{}
	s := newTestService(WithObserver(observer))

	_, err := s.Dispatch(context.Background(), order, fake.call)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "anthropic", exhausted.Provider)
	assert.Equal(t, "missing credential", exhausted.Reason)
	assert.Empty(t, fake.sequence)
	assert.Equal(t, 1, observer.exhausted)
}

func TestRoutingService_Dispatch_EmptyOrder(t *testing.T) {
	_, err := newTestService().Dispatch(context.Background(), nil, (&fakeCalls{}).call)
	assert.ErrorIs(t, err, ErrAllProvidersExhausted)
	assert.Contains(t, err.Error(), "no providers configured")
}

func TestRoutingService_Dispatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	call := func(ctx context.Context, d providers.Descriptor) providers.Outcome {
		calls++
		cancel()
		return providers.RetryableFailure("cancelled", 0, context.Canceled)
	}

	_, err := newTestService().Dispatch(ctx, descriptors("openai", "anthropic"), call)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrAllProvidersExhausted))
	assert.Equal(t, 1, calls)
}

func TestExhaustedError(t *testing.T) {
	cause := errors.New("boom")
	err := &ExhaustedError{Provider: "gemini", Reason: "timeout", Err: cause}

	assert.Equal(t, "all providers exhausted: last failure from gemini: timeout", err.Error())
	assert.ErrorIs(t, err, ErrAllProvidersExhausted)
	assert.ErrorIs(t, err, cause)
}

// vendorServer fakes a vendor that answers according to handler
func vendorServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func buildRegistry(t *testing.T, urls map[string]string) *providers.Registry {
	t.Helper()
	b := providers.NewRegistryBuilder().
		WithAdapter("openai", openai.NewAdapter()).
		WithAdapter("anthropic", anthropic.NewAdapter()).
		WithAdapter("gemini", gemini.NewAdapter()).
		WithAdapter("perplexity", perplexity.NewAdapter())
	for _, name := range []string{"openai", "anthropic", "gemini", "perplexity"} {
		b.WithProvider(providers.Descriptor{Name: name, APIKey: name + "-key-1", BaseURL: urls[name], Model: name + "-model"})
	}
	registry, err := b.Build()
	require.NoError(t, err)
	return registry
}

func TestRoutingService_Complete_FallsBackAcrossVendors(t *testing.T) {
	var openaiCalls int32
	openaiSrv := vendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&openaiCalls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	anthropicSrv := vendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		var req anthropic.MessagesRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "be kind", req.System)
		w.Write([]byte(`{"model":"claude","content":[{"type":"text","text":"Take it one day at a time."}],"usage":{"input_tokens":5,"output_tokens":8}}`))
	})

	registry := buildRegistry(t, map[string]string{"openai": openaiSrv.URL, "anthropic": anthropicSrv.URL})
	cfg := DefaultRoutingConfig()
	cfg.BaseDelay = time.Millisecond
	s := NewRoutingService(cfg, registry, NewExecutor(nil), zap.NewNop())

	result, err := s.Complete(context.Background(), "be kind", "I am tired", "")
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&openaiCalls))
	assert.Equal(t, "anthropic", result.Provider)
	assert.Equal(t, "Take it one day at a time.", result.Text)
	assert.Equal(t, 13, result.Usage.TotalTokens)
}

func TestRoutingService_Complete_PreferredFirst(t *testing.T) {
	var openaiCalls int32
	openaiSrv := vendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&openaiCalls, 1)
	})
	perplexitySrv := vendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"Per recent guidance..."}}],"citations":["https://acog.org"]}`))
	})

	registry := buildRegistry(t, map[string]string{"openai": openaiSrv.URL, "perplexity": perplexitySrv.URL})
	s := NewRoutingService(DefaultRoutingConfig(), registry, nil, zap.NewNop())

	result, err := s.Complete(context.Background(), "", "latest iron guidance", "perplexity")
	require.NoError(t, err)

	assert.Equal(t, "perplexity", result.Provider)
	assert.Equal(t, []string{"https://acog.org"}, result.Citations)
	assert.Equal(t, int32(0), atomic.LoadInt32(&openaiCalls))
}

func TestRoutingService_Complete_TimeoutThenSuccess(t *testing.T) {
	var calls int32
	srv := vendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"recovered"}}]}`))
	})

	registry := buildRegistry(t, map[string]string{"openai": srv.URL})
	cfg := RoutingConfig{
		DefaultOrder:   []string{"openai"},
		MaxAttempts:    2,
		AttemptTimeout: 60 * time.Millisecond,
		BaseDelay:      40 * time.Millisecond,
	}
	s := NewRoutingService(cfg, registry, nil, zap.NewNop())

	start := time.Now()
	result, err := s.Complete(context.Background(), "", "hello", "")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Text)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestRoutingService_Complete_AllVendorsDown(t *testing.T) {
	down := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }
	urls := map[string]string{}
	for _, name := range []string{"openai", "anthropic", "gemini", "perplexity"} {
		urls[name] = vendorServer(t, down).URL
	}

	cfg := DefaultRoutingConfig()
	cfg.BaseDelay = time.Millisecond
	observer := &recordingObserver{}
	s := NewRoutingService(cfg, buildRegistry(t, urls), nil, zap.NewNop(), WithObserver(observer))

	_, err := s.Complete(context.Background(), "", "hello", "")

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "perplexity", exhausted.Provider)
	assert.Equal(t, "502 bad gateway", exhausted.Reason)
	assert.Equal(t, 8, exhausted.Attempts)
	assert.Len(t, observer.attempts, 8)
	assert.Equal(t, 1, observer.exhausted)
}

func TestRoutingService_Complete_UnknownPreferred(t *testing.T) {
	srv := vendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"fine"}}]}`))
	})
	cfg := DefaultRoutingConfig()
	cfg.DefaultOrder = []string{"openai"}
	s := NewRoutingService(cfg, buildRegistry(t, map[string]string{"openai": srv.URL}), nil, zap.NewNop())

	result, err := s.Complete(context.Background(), "", "hi", "mistral")
	require.NoError(t, err)
	assert.Equal(t, "openai", result.Provider)
}

func TestRoutingService_ConfigIsCopied(t *testing.T) {
	order := []string{"openai", "anthropic"}
	s := NewRoutingService(RoutingConfig{DefaultOrder: order}, nil, nil, nil)
	order[0] = "gemini"

	cfg := s.Config()
	assert.Equal(t, []string{"openai", "anthropic"}, cfg.DefaultOrder)
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
}
