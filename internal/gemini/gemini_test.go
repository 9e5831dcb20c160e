package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"vista/internal/cache"
	"vista/internal/history"
	"vista/internal/imaging"
	"vista/internal/ratelimit"
)

func permissiveLimiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Options{
		Budgets: map[ratelimit.Model]ratelimit.Budget{
			ratelimit.ModelFlash: {PerMinute: 1000, PerDay: 10000},
		},
		Preferred: ratelimit.ModelFlash,
	})
}

func newTestClient(t *testing.T, enabled bool) *Client {
	t.Helper()
	c := NewClient(Options{APIKey: "test-key", MaxRetries: 3},
		cache.New(cache.Options{Enabled: enabled, TTL: time.Hour, MaxItems: 10}),
		permissiveLimiter(), nil)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	c.readFile = func(path string) ([]byte, error) {
		return []byte("raw-bytes-of-" + path), nil
	}
	return c
}

func TestFingerprintStable(t *testing.T) {
	img := []byte{1, 2, 3}

	a := Fingerprint("O que está na tela?", [][]byte{img})
	b := Fingerprint("o que  está na tela?", [][]byte{img}) // case and spacing normalized
	if a != b {
		t.Error("normalized questions must share a fingerprint")
	}

	c := Fingerprint("outra pergunta", [][]byte{img})
	if a == c {
		t.Error("different question, same fingerprint")
	}

	d := Fingerprint("O que está na tela?", [][]byte{{9, 9, 9}})
	if a == d {
		t.Error("different image content, same fingerprint")
	}

	e := Fingerprint("O que está na tela?", nil)
	if a == e {
		t.Error("with and without image must differ")
	}
}

func TestAskCachesAnswer(t *testing.T) {
	c := newTestClient(t, true)

	calls := 0
	c.complete = func(context.Context, ratelimit.Model, string, string, []imaging.Image) (string, error) {
		calls++
		return "há um editor de texto aberto", nil
	}

	// Ask needs decodable images; use none so the optimizer is skipped.
	first, err := c.Ask(context.Background(), "o que está na tela?", nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Ask(context.Background(), "o que está na tela?", nil)
	if err != nil {
		t.Fatal(err)
	}

	if first != second {
		t.Errorf("answers differ: %q vs %q", first, second)
	}
	if calls != 1 {
		t.Errorf("remote calls = %d, want 1 (second ask must be a cache hit)", calls)
	}
}

func TestAskDisabledCacheCallsEveryTime(t *testing.T) {
	c := newTestClient(t, false)

	calls := 0
	c.complete = func(context.Context, ratelimit.Model, string, string, []imaging.Image) (string, error) {
		calls++
		return "resposta", nil
	}

	c.Ask(context.Background(), "pergunta", nil)
	c.Ask(context.Background(), "pergunta", nil)

	if calls != 2 {
		t.Errorf("remote calls = %d, want 2 with cache disabled", calls)
	}
}

func TestAskRetriesWithBackoff(t *testing.T) {
	c := newTestClient(t, true)

	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	calls := 0
	c.complete = func(context.Context, ratelimit.Model, string, string, []imaging.Image) (string, error) {
		calls++
		if calls <= 2 {
			return "", errors.New("503 service unavailable")
		}
		return "finalmente", nil
	}

	answer, err := c.Ask(context.Background(), "pergunta difícil", nil)
	if err != nil {
		t.Fatal(err)
	}
	if answer != "finalmente" {
		t.Errorf("answer = %q", answer)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want exactly 3 (two retries)", calls)
	}
	if len(delays) != 2 {
		t.Fatalf("delays = %v, want 2 backoff sleeps", delays)
	}
	if delays[1] <= delays[0] {
		t.Errorf("backoff not increasing: %v", delays)
	}
}

func TestAskGivesUpAfterMaxRetries(t *testing.T) {
	c := newTestClient(t, true)

	calls := 0
	c.complete = func(context.Context, ratelimit.Model, string, string, []imaging.Image) (string, error) {
		calls++
		return "", errors.New("persistent failure")
	}

	_, err := c.Ask(context.Background(), "pergunta", nil)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want MaxRetries = 3", calls)
	}

	// The failure must not be cached.
	if c.cache.Len() != 0 {
		t.Error("failed requests must not populate the cache")
	}
}

func TestAskStripsNoiseBeforeCaching(t *testing.T) {
	c := newTestClient(t, true)
	c.complete = func(context.Context, ratelimit.Model, string, string, []imaging.Image) (string, error) {
		return `a *resposta* é "quarenta e dois"`, nil
	}

	answer, err := c.Ask(context.Background(), "pergunta", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := "a resposta é quarenta e dois"
	if answer != want {
		t.Errorf("answer = %q, want %q", answer, want)
	}
}

func TestAskReadFailureSurfaces(t *testing.T) {
	c := newTestClient(t, true)
	c.readFile = func(string) ([]byte, error) { return nil, errors.New("gone") }
	c.complete = func(context.Context, ratelimit.Model, string, string, []imaging.Image) (string, error) {
		t.Fatal("remote must not be called when capture files are unreadable")
		return "", nil
	}

	if _, err := c.Ask(context.Background(), "pergunta", []string{"missing.png"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestAskCancelledContext(t *testing.T) {
	c := newTestClient(t, true)
	c.complete = func(ctx context.Context, _ ratelimit.Model, _, _ string, _ []imaging.Image) (string, error) {
		return "", ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Ask(ctx, "pergunta", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

type fakeHistory struct {
	added []string
}

func (f *fakeHistory) Add(q, r string, _, _ []string) (string, error) {
	f.added = append(f.added, q)
	return "id", nil
}

func (f *fakeHistory) Recent(int) ([]history.Conversation, error) {
	return []history.Conversation{{Question: "pergunta anterior", Response: "resposta anterior"}}, nil
}

func TestAskRecordsHistoryAndContext(t *testing.T) {
	hist := &fakeHistory{}
	c := NewClient(Options{APIKey: "k", Language: "pt-BR"},
		cache.New(cache.Options{Enabled: true, TTL: time.Hour, MaxItems: 10}),
		permissiveLimiter(), hist)
	c.sleep = func(context.Context, time.Duration) error { return nil }

	var gotSystem string
	c.complete = func(_ context.Context, _ ratelimit.Model, system, _ string, _ []imaging.Image) (string, error) {
		gotSystem = system
		return "resposta", nil
	}

	if _, err := c.Ask(context.Background(), "nova pergunta", nil); err != nil {
		t.Fatal(err)
	}

	if len(hist.added) != 1 || hist.added[0] != "nova pergunta" {
		t.Errorf("history adds = %v", hist.added)
	}
	if !strings.Contains(gotSystem, "pergunta anterior") {
		t.Errorf("system prompt missing conversation context: %q", gotSystem)
	}
}

func TestBackoffCapped(t *testing.T) {
	if backoff(1) != 2*time.Second {
		t.Errorf("backoff(1) = %v", backoff(1))
	}
	if backoff(2) != 4*time.Second {
		t.Errorf("backoff(2) = %v", backoff(2))
	}
	if backoff(20) != maxBackoff {
		t.Errorf("backoff(20) = %v, want cap %v", backoff(20), maxBackoff)
	}
}
