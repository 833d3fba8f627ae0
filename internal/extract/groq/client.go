package groq

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexus/internal"
	"nexus/internal/config"
	"nexus/internal/extract"
	"nexus/internal/template"
	"nexus/internal/util"
)

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.GroqTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.GroqRateLimitRPS),
		log:        log,
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	Stream         bool            `json:"stream"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) ExtractPage(ctx context.Context, page extract.PageInput, tpl template.Template) (*internal.PageRecord, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("extract.page.start",
		"req_id", rid,
		"model", c.cfg.GroqModel,
		"template", tpl.ID,
		"mode", string(tpl.Mode),
		"page", page.Number,
		"image_bytes", len(page.Image),
		"text_len", len(page.Text),
	)

	payload, err := c.buildRequest(page, tpl)
	if err != nil {
		return nil, err
	}

	content, err := c.postChat(ctx, payload)
	if err != nil {
		c.log.Error("extract.page.http_error",
			"req_id", rid, "page", page.Number, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	rec, err := extract.DecodePageRecord([]byte(content))
	if err != nil {
		c.log.Warn("extract.page.malformed",
			"req_id", rid, "page", page.Number, "error", err,
			"content", util.Truncate(content, 300),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil
	}

	c.log.Info("extract.page.ok",
		"req_id", rid,
		"page", page.Number,
		"invoice_id", rec.InvoiceID,
		"marking", rec.DocumentMarking,
		"items", len(rec.Items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

func (c *Client) buildRequest(page extract.PageInput, tpl template.Template) (*chatRequest, error) {
	msg := chatMessage{Role: "user"}
	switch tpl.Mode {
	case template.ModeText:
		msg.Content = tpl.Prompt + "\n\nTEXTO DE LA PÁGINA:\n" + page.Text
	default:
		if len(page.Image) == 0 {
			return nil, errors.New("vision template needs a rendered page image")
		}
		msg.Content = []contentPart{
			{Type: "text", Text: tpl.Prompt},
			{Type: "image_url", ImageURL: &imageURL{
				URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(page.Image),
			}},
		}
	}

	return &chatRequest{
		Model:          c.cfg.GroqModel,
		Messages:       []chatMessage{msg},
		Temperature:    0,
		MaxTokens:      4096,
		Stream:         false,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}, nil
}

func (c *Client) postChat(ctx context.Context, payload *chatRequest) (string, error) {
	if strings.TrimSpace(c.cfg.GroqAPIKey) == "" {
		return "", errors.New("missing GROQ_API_KEY")
	}

	blob, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	endpoint := strings.TrimRight(c.cfg.GroqBaseURL, "/") + "/chat/completions"

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts(); attempt++ {
		c.limiter.WaitTurn()
		if err := ctx.Err(); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(blob))
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.GroqAPIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if strings.Contains(string(body), "model_decommissioned") {
				return "", fmt.Errorf("groq model %q was decommissioned, set GROQ_MODEL to a current vision model", c.cfg.GroqModel)
			}
			if isRetryableStatus(resp.StatusCode) && attempt < c.maxAttempts() {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				time.Sleep(backoff)
				lastErr = fmt.Errorf("groq status %d", resp.StatusCode)
				continue
			}
			return "", fmt.Errorf("groq api error: status=%d body=%s", resp.StatusCode, util.Truncate(string(body), 400))
		}

		var cc chatResponse
		if err := json.Unmarshal(body, &cc); err != nil {
			return "", fmt.Errorf("decode groq response: %w", err)
		}
		if len(cc.Choices) == 0 {
			return "", errors.New("no choices in groq response")
		}
		return strings.TrimSpace(cc.Choices[0].Message.Content), nil
	}

	if lastErr == nil {
		lastErr = errors.New("groq request failed")
	}
	return "", lastErr
}

func (c *Client) maxAttempts() int {
	if c.cfg.GroqMaxAttempts <= 0 {
		return 1
	}
	return c.cfg.GroqMaxAttempts
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
