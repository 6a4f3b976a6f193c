package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/docupie/internal/schema"
)

const MockClientName = "mock"

// MockCompleter is a Completer for testing.
type MockCompleter struct {
	// Configurable behavior
	Latency   time.Duration
	Err       error // Returned from every call when set
	FailTimes int   // Fail the first N calls with Err (0 = always when Err is set)
	// Respond builds the response for a call. Defaults to echoing the image path.
	Respond func(args schema.CompletionArgs) string

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	calls        []schema.CompletionArgs
}

// NewMockCompleter creates a new mock completer with sensible defaults.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Name returns the client identifier.
func (c *MockCompleter) Name() string {
	return MockClientName
}

// Complete records the call and returns the configured response.
func (c *MockCompleter) Complete(ctx context.Context, args schema.CompletionArgs) (schema.CompletionResponse, error) {
	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.calls = append(c.calls, args)
	c.mu.Unlock()

	if c.Err != nil && (c.FailTimes == 0 || int(count) <= c.FailTimes) {
		return schema.CompletionResponse{}, c.Err
	}

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return schema.CompletionResponse{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return schema.CompletionResponse{}, err
	}

	content := fmt.Sprintf("mock response for %s", args.ImagePath)
	if c.Respond != nil {
		content = c.Respond(args)
	}

	return schema.CompletionResponse{
		Content:      content,
		InputTokens:  100,
		OutputTokens: len(content) / 4, // Rough estimate
	}, nil
}

// Calls returns a copy of the arguments of every call made.
func (c *MockCompleter) Calls() []schema.CompletionArgs {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schema.CompletionArgs, len(c.calls))
	copy(out, c.calls)
	return out
}

// RequestCount returns the number of requests made.
func (c *MockCompleter) RequestCount() int64 {
	return c.requestCount.Load()
}

// Reset resets the request counter and recorded calls.
func (c *MockCompleter) Reset() {
	c.requestCount.Store(0)
	c.mu.Lock()
	c.calls = nil
	c.mu.Unlock()
}

// Verify interface
var _ Completer = (*MockCompleter)(nil)
