package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Model:      "claude-sonnet-4-20250514",
		Timeout:    2 * time.Second,
		HTTPClient: srv.Client(),
	})
}

func TestCompleteSuccess(t *testing.T) {
	var gotBody []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing version header")
		}
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"content": [{"type": "text", "text": "ETA is 14 hours via I-20."}],
			"usage": {"input_tokens": 42, "output_tokens": 17}
		}`))
	})

	res, err := client.Complete(context.Background(), Request{
		Prompt:      "estimate transit time Atlanta to Dallas",
		MaxTokens:   256,
		Temperature: 0.3,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Content != "ETA is 14 hours via I-20." {
		t.Errorf("Content = %q", res.Content)
	}
	if res.InputTokens != 42 || res.OutputTokens != 17 {
		t.Errorf("usage = %d/%d", res.InputTokens, res.OutputTokens)
	}
	if res.TotalTokens() != 59 {
		t.Errorf("TotalTokens = %d", res.TotalTokens())
	}

	if got := gjson.GetBytes(gotBody, "model").String(); got != "claude-sonnet-4-20250514" {
		t.Errorf("request model = %q", got)
	}
	if got := gjson.GetBytes(gotBody, "max_tokens").Int(); got != 256 {
		t.Errorf("request max_tokens = %d", got)
	}
	if got := gjson.GetBytes(gotBody, "messages.0.content").String(); got == "" {
		t.Error("request prompt not sent")
	}
}

func TestCompleteRateLimitedIsRecoverable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	})

	_, err := client.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRecoverable(err) {
		t.Errorf("429 should be recoverable: %v", err)
	}
	if IsRejected(err) {
		t.Errorf("429 should not classify as rejected")
	}
}

func TestCompleteServerErrorIsRecoverable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 10})
	if !IsRecoverable(err) {
		t.Errorf("502 should be recoverable: %v", err)
	}
}

func TestCompleteAuthFailureIsTerminal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "invalid x-api-key"}}`))
	})

	_, err := client.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRecoverable(err) {
		t.Errorf("401 must not be retried: %v", err)
	}
	if !IsRejected(err) {
		t.Errorf("401 should classify as rejected")
	}
}

func TestCompleteMissingContentIsSchemaError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"usage": {"input_tokens": 1, "output_tokens": 1}}`))
	})

	_, err := client.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 10})
	if !IsSchemaError(err) {
		t.Fatalf("expected schema error, got %v", err)
	}
	if IsRecoverable(err) {
		t.Error("schema errors must not be retried")
	}
}

func TestCompleteMissingUsageIsSchemaError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": [{"type": "text", "text": "hi"}]}`))
	})

	_, err := client.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 10})
	if !IsSchemaError(err) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestCompleteUnconfigured(t *testing.T) {
	client := New(Config{BaseURL: "http://localhost:0", Model: "m"})
	if client.IsConfigured() {
		t.Error("client with no key reports configured")
	}
	_, err := client.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 10})
	if err == nil || IsRecoverable(err) {
		t.Errorf("unconfigured client must fail terminally, got %v", err)
	}
	if !IsRejected(err) {
		t.Error("unconfigured should classify as rejected")
	}
}

func TestCompleteTimeoutIsRecoverable(t *testing.T) {
	block := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	defer close(block)
	client.cfg.Timeout = 50 * time.Millisecond

	_, err := client.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 10})
	if err == nil {
		t.Fatal("expected timeout")
	}
	if !IsRecoverable(err) {
		t.Errorf("timeout should be recoverable: %v", err)
	}
}
