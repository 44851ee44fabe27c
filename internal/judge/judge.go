// Package judge asks an OpenAI-compatible model whether a captured page
// actually shows what a scenario claims it shows. It is an annotation layer
// for demo captures, not an assertion: runs pass or fail on deterministic
// checks regardless of the verdict.
package judge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"flowcheck/internal/entity"
)

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

func DefaultConfig(apiKey, model string) Config {
	return Config{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: "https://openrouter.ai/api/v1",
	}
}

type Judge struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Judge {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Judge{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		log:    log,
	}
}

// Verdict is the model's judgement of a captured page.
type Verdict struct {
	Success    bool     `json:"success"`
	Confidence float64  `json:"confidence"`
	Issues     []string `json:"issues"`
	Feedback   string   `json:"feedback"`
}

const systemPrompt = `You are reviewing an end-to-end UI verification run.
Given the expectation, the page's visible text, and a screenshot, decide
whether the page state satisfies the expectation.

Response format (MUST be valid JSON):
{
  "success": true/false,
  "confidence": 0.0-1.0,
  "issues": ["issue1", "issue2"],
  "feedback": "what looks wrong or missing"
}`

// Review judges a page snapshot against an expectation. The screenshot is
// optional; when present it is attached as an inline image.
func (j *Judge) Review(ctx context.Context, expectation string, page *entity.PageContent, shot *entity.Screenshot) (*Verdict, error) {
	userText := fmt.Sprintf("Expectation: %s\n\nURL: %s\nTitle: %s\n\nVisible text:\n%s",
		expectation, page.URL, page.Title, page.Text)

	userMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if shot != nil {
		userMsg.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: userText},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: fmt.Sprintf("data:image/%s;base64,%s", shot.Format,
						base64.StdEncoding.EncodeToString(shot.Data)),
				},
			},
		}
	} else {
		userMsg.Content = userText
	}

	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: j.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			userMsg,
		},
		Temperature: 0.0,
	})
	if err != nil {
		return nil, fmt.Errorf("judge request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("judge returned no choices")
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("judge response unparseable: %w", err)
	}

	j.log.Info("judge verdict",
		zap.Bool("success", verdict.Success),
		zap.Float64("confidence", verdict.Confidence),
		zap.Int("issues", len(verdict.Issues)))
	return verdict, nil
}

// parseVerdict extracts the JSON object from a response that may have prose
// around it.
func parseVerdict(s string) (*Verdict, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var v Verdict
	if err := json.Unmarshal([]byte(s[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &v, nil
}
