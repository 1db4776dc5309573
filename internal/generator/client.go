package generator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/examprep/backend/internal/config"
	"github.com/examprep/backend/internal/models"
)

// LLMClient is the interface every drafting backend satisfies.
type LLMClient interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error)
}

// LLMResponse holds the raw response content and token usage.
type LLMResponse struct {
	Content      string
	PromptTokens int
	OutputTokens int
}

// Generator drafts question explanations through an LLMClient.
type Generator struct {
	llm   LLMClient
	model string
}

// New picks the backend named in cfg. It returns nil when drafting is
// not configured.
func New(cfg config.GeneratorConfig) *Generator {
	switch cfg.Backend {
	case config.GeneratorCLI:
		log.Println("[generator] using Claude CLI at", cfg.CLIPath)
		return NewGenerator(NewCLIClient(cfg.CLIPath), "claude-cli")
	case config.GeneratorMock:
		log.Println("[generator] using mock drafts")
		return NewGenerator(NewMockClient(), "mock")
	case config.GeneratorAPI:
		log.Println("[generator] using Anthropic API:", cfg.Model)
		return NewGenerator(NewAPIClient(cfg.APIKey, cfg.Model), cfg.Model)
	}
	log.Println("[generator] explanation drafting disabled")
	return nil
}

func NewGenerator(llm LLMClient, model string) *Generator {
	return &Generator{llm: llm, model: model}
}

func (g *Generator) ModelName() string {
	return g.model
}

// DraftExplanation asks the model to explain why the question's
// correct options are right. Drafts that fail the quality checks are
// rejected; borderline ones come back marked "flagged".
func (g *Generator) DraftExplanation(ctx context.Context, q models.Question) (*models.ExplanationDraft, error) {
	start := time.Now()
	resp, err := g.llm.Generate(ctx, ExplanationSystemPrompt(), BuildExplanationPrompt(q))
	if err != nil {
		return nil, fmt.Errorf("draft explanation: %w", err)
	}

	text, err := ParseExplanation(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse explanation: %w", err)
	}

	score := ScoreExplanation(q, text)
	quality := ClassifyQuality(score)
	if quality == QualityReject {
		return nil, &ParseError{Errors: []string{fmt.Sprintf("draft failed quality checks (score %.2f)", score.Total())}}
	}

	log.Printf("[generator] drafted explanation for question %d: quality=%s tokens=%d/%d in %v",
		q.ID, quality, resp.PromptTokens, resp.OutputTokens, time.Since(start).Round(time.Millisecond))

	return &models.ExplanationDraft{
		QuestionID:  q.ID,
		Explanation: text,
		ModelUsed:   g.model,
		Quality:     quality,
	}, nil
}

// ── APIClient — Anthropic SDK ─────────────────────────────

type APIClient struct {
	client *anthropic.Client
	model  string
}

func NewAPIClient(apiKey, model string) *APIClient {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &APIClient{client: &client, model: model}
}

func (c *APIClient) Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   1024,
		Temperature: param.NewOpt(0.3),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}

	message, err := c.callWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	if responseText == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return &LLMResponse{
		Content:      responseText,
		PromptTokens: int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

func (c *APIClient) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt)) * time.Second
			log.Printf("[generator] retrying Anthropic API call in %v (attempt %d)", wait, attempt+1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			return message, nil
		}
		lastErr = err
		log.Printf("[generator] Anthropic API attempt %d failed: %v", attempt+1, err)
	}
	return nil, fmt.Errorf("anthropic API failed after retries: %w", lastErr)
}

// ── MockClient — local development ────────────────────────

// MockClient answers with a canned explanation built from the prompt.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error) {
	correct := "the marked option"
	if line := correctLine(userPrompt); line != "" {
		correct = line
	}
	content := fmt.Sprintf("```json\n{\"explanation\": %q}\n```",
		fmt.Sprintf("[Mock] The correct answer is %s. It matches the definition given in the question, while the remaining options describe related but different concepts.", correct))
	return &LLMResponse{
		Content:      content,
		PromptTokens: len(userPrompt) / 4,
		OutputTokens: len(content) / 4,
	}, nil
}
