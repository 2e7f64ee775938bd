package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockProvider struct {
	name      string
	calls     int
	errs      []error
	responses []*Response
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Complete(ctx context.Context, _ *Prompt, _ *RequestOptions) (*Response, error) {
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	if len(m.responses) > 0 {
		resp := m.responses[0]
		m.responses = m.responses[1:]
		return resp, nil
	}
	return &Response{}, nil
}

func (m *mockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	return make([][]float32, len(texts)), nil
}

func TestNewFactory(t *testing.T) {
	f := NewFactory()
	if f == nil {
		t.Fatal("expected non-nil factory")
	}
	if len(f.constructors) != 0 {
		t.Fatalf("expected empty factory, got %d constructors", len(f.constructors))
	}
}

func TestFactoryCreate_Disabled(t *testing.T) {
	f := NewFactory()
	for _, name := range []string{"", "none"} {
		p, err := f.Create(ProviderConfig{Provider: name})
		if err != nil {
			t.Fatalf("provider %q: unexpected error: %v", name, err)
		}
		if p != nil {
			t.Fatalf("provider %q: expected nil provider", name)
		}
	}
}

func TestFactoryCreate_UnknownProvider(t *testing.T) {
	f := NewFactory()
	f.Register("openai", func(cfg ProviderConfig) (Provider, error) { return nil, nil })

	_, err := f.Create(ProviderConfig{Provider: "mystery", APIKey: "k"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestFactoryCreate_MissingAPIKey(t *testing.T) {
	f := NewFactory()
	f.Register("openai", func(cfg ProviderConfig) (Provider, error) { return &mockProvider{}, nil })

	if _, err := f.Create(ProviderConfig{Provider: "openai"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestFactoryCreate_ConstructorError(t *testing.T) {
	f := NewFactory()
	boom := errors.New("constructor failed")
	f.Register("failing", func(cfg ProviderConfig) (Provider, error) { return nil, boom })

	p, err := f.Create(ProviderConfig{Provider: "failing", APIKey: "k"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected constructor error, got: %v", err)
	}
	if p != nil {
		t.Fatal("expected nil provider on error")
	}
}

func TestFactoryCreate_WrapsRetry(t *testing.T) {
	f := NewFactory()
	inner := &mockProvider{name: "inner"}
	f.Register("test", func(cfg ProviderConfig) (Provider, error) { return inner, nil })

	p, err := f.Create(ProviderConfig{Provider: "test", APIKey: "k", MaxRetries: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	retry, ok := p.(*RetryProvider)
	if !ok {
		t.Fatalf("expected RetryProvider wrapper, got %T", p)
	}
	if retry.config.MaxRetries != 5 {
		t.Fatalf("expected 5 retries, got %d", retry.config.MaxRetries)
	}
	if retry.Name() != "inner" {
		t.Fatalf("expected wrapped provider name, got %q", retry.Name())
	}
}

func TestFactoryCreate_MinimalConfigStillWrapsRetry(t *testing.T) {
	f := NewFactory()
	f.Register("test", func(cfg ProviderConfig) (Provider, error) { return &mockProvider{name: "inner"}, nil })

	// Only the fields the CLI composition root sets.
	p, err := f.Create(ProviderConfig{Provider: "test", APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	retry, ok := p.(*RetryProvider)
	if !ok {
		t.Fatalf("expected RetryProvider wrapper, got %T", p)
	}
	if retry.config.MaxRetries != 3 {
		t.Fatalf("expected default 3 retries, got %d", retry.config.MaxRetries)
	}
	if retry.config.Timeout != 2*time.Minute {
		t.Fatalf("expected default timeout, got %v", retry.config.Timeout)
	}
}

func TestFactoryCreate_RetriesTransientFailures(t *testing.T) {
	inner := &mockProvider{
		name:      "flaky",
		errs:      []error{errors.New("status 503"), errors.New("status 503")},
		responses: []*Response{{Content: "recovered"}},
	}
	f := NewFactory()
	f.Register("flaky", func(cfg ProviderConfig) (Provider, error) { return inner, nil })

	p, err := f.Create(ProviderConfig{
		Provider:   "flaky",
		APIKey:     "k",
		Model:      "m",
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := p.Complete(context.Background(), &Prompt{}, nil)
	if err != nil {
		t.Fatalf("expected recovery after transient failures, got: %v", err)
	}
	if resp.Content != "recovered" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 calls (2 failures retried), got %d", inner.calls)
	}
}

func TestDefaultProviderConfig(t *testing.T) {
	cfg := DefaultProviderConfig()
	if cfg.Timeout != 2*time.Minute {
		t.Errorf("expected 2 minute timeout, got %v", cfg.Timeout)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("expected 3 max retries, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay != 1*time.Second {
		t.Errorf("expected 1 second retry delay, got %v", cfg.RetryDelay)
	}
}
