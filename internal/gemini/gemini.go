// Package gemini is the remote analysis client: it fingerprints the
// request, consults the response cache, takes a rate-limiter permit,
// optimizes the captured images and calls the Gemini API through its
// OpenAI-compatible endpoint, retrying transient failures with
// exponential backoff.
package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	log "log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"vista/internal/cache"
	"vista/internal/history"
	"vista/internal/imaging"
	"vista/internal/ratelimit"
	"vista/internal/textproc"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

const maxBackoff = 30 * time.Second

type Options struct {
	APIKey          string
	BaseURL         string
	HTTPClient      *http.Client
	Language        string
	MaxOutputTokens int
	// MaxRetries is the total attempt budget for one request.
	MaxRetries     int
	CallTimeout    time.Duration
	HistoryContext int
	Constraints    imaging.Constraints
}

// HistoryStore is the slice of internal/history the client needs.
type HistoryStore interface {
	Add(question, response string, images, tags []string) (string, error)
	Recent(limit int) ([]history.Conversation, error)
}

type Client struct {
	api     openai.Client
	cache   *cache.Cache
	limiter *ratelimit.Limiter
	hist    HistoryStore // nil disables context and recording
	opts    Options

	// seams for tests
	complete func(ctx context.Context, model ratelimit.Model, system, question string, imgs []imaging.Image) (string, error)
	sleep    func(ctx context.Context, d time.Duration) error
	readFile func(path string) ([]byte, error)
}

func NewClient(opts Options, c *cache.Cache, l *ratelimit.Limiter, hist HistoryStore) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.HistoryContext <= 0 {
		opts.HistoryContext = 5
	}
	if opts.Constraints == (imaging.Constraints{}) {
		opts.Constraints = imaging.DefaultConstraints()
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(opts.BaseURL),
		option.WithMaxRetries(0), // backoff is ours
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	cl := &Client{
		api:      openai.NewClient(reqOpts...),
		cache:    c,
		limiter:  l,
		hist:     hist,
		opts:     opts,
		readFile: os.ReadFile,
	}
	cl.complete = cl.chatComplete
	cl.sleep = sleepCtx
	return cl
}

// Ask answers a question about the given screenshots. Cache hits return
// without any network traffic; misses go through the rate limiter and the
// retry loop. Cache and history failures degrade silently.
func (c *Client) Ask(ctx context.Context, question string, imagePaths []string) (string, error) {
	raws := make([][]byte, 0, len(imagePaths))
	for _, p := range imagePaths {
		raw, err := c.readFile(p)
		if err != nil {
			return "", fmt.Errorf("read screenshot %s: %w", p, err)
		}
		raws = append(raws, raw)
	}

	fp := Fingerprint(question, raws)

	if answer, ok := c.cache.Get(fp); ok {
		log.Debug("Cache hit", "fingerprint", fp[:12])
		c.record(question, answer, imagePaths)
		return answer, nil
	}

	imgs := make([]imaging.Image, 0, len(raws))
	for i, raw := range raws {
		img, err := imaging.Optimize(raw, c.opts.Constraints)
		if err != nil {
			return "", fmt.Errorf("optimize %s: %w", imagePaths[i], err)
		}
		imgs = append(imgs, img)
	}

	system := c.systemPrompt()

	var lastErr error
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff(attempt)
			log.Warn("Retrying after failure", "attempt", attempt+1, "delay", delay, "err", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		model, err := c.limiter.Wait(ctx)
		if err != nil {
			return "", err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		answer, err := c.complete(callCtx, model, system, question, imgs)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}

		answer = textproc.StripNoise(answer)
		c.cache.Put(fp, answer)
		c.record(question, answer, imagePaths)
		return answer, nil
	}

	return "", fmt.Errorf("remote call failed after %d attempts: %w", c.opts.MaxRetries, lastErr)
}

// Fingerprint derives the deterministic cache key: a hash over the
// normalized question and the content hash of each image. Identical
// inputs always map to the same fingerprint.
func Fingerprint(question string, images [][]byte) string {
	h := sha256.New()
	h.Write([]byte(normalize(question)))
	for _, img := range images {
		sum := sha256.Sum256(img)
		h.Write([]byte{0})
		h.Write(sum[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) systemPrompt() string {
	lang := c.opts.Language
	if lang == "" {
		lang = "pt-BR"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Responda no idioma %s, de forma clara e objetiva, sem cumprimentos iniciais. ", lang)
	b.WriteString("Você é um assistente de desktop que enxerga a tela do usuário através das imagens anexadas.")

	if c.hist == nil {
		return b.String()
	}
	recent, err := c.hist.Recent(c.opts.HistoryContext)
	if err != nil || len(recent) == 0 {
		return b.String()
	}

	b.WriteString("\nContexto da conversa:\n")
	for i := len(recent) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "Usuário: %s\nAssistente: %s\n", recent[i].Question, recent[i].Response)
	}
	return b.String()
}

func (c *Client) record(question, answer string, imagePaths []string) {
	if c.hist == nil {
		return
	}
	tags := textproc.Tags(question+" "+answer, 5)
	if _, err := c.hist.Add(question, answer, imagePaths, tags); err != nil {
		log.Warn("Failed to record conversation", "err", err)
	}
}

func (c *Client) chatComplete(ctx context.Context, model ratelimit.Model, system, question string, imgs []imaging.Image) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(question),
	}
	for _, img := range imgs {
		url := "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: url,
		}))
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(parts),
		},
		Temperature:         openai.Float(0.7),
		TopP:                openai.Float(1),
		MaxCompletionTokens: openai.Int(int64(c.opts.MaxOutputTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty message content")
	}
	return content, nil
}
