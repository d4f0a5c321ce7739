package groq

import (
	"context"
	"fmt"
	"strings"

	"github.com/conneroisu/groq-go"

	"deckcraft/internal/deck"
	"deckcraft/pkg/prompts"
)

const DefaultModel = "llama-3.3-70b-versatile"

// Client rewrites loose style descriptions into concrete visual briefs.
type Client struct {
	client  *groq.Client
	model   groq.ChatModel
	prompts *prompts.Prompts
}

func NewClient(apiKey, model string, p *prompts.Prompts) (*Client, error) {
	client, err := groq.NewClient(apiKey)
	if err != nil {
		return nil, fmt.Errorf("create groq client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client:  client,
		model:   groq.ChatModel(model),
		prompts: p,
	}, nil
}

func (c *Client) RefineStyle(ctx context.Context, d *deck.Deck) (string, error) {
	prompt, err := c.prompts.RenderRefine(prompts.RefineParams{
		Style:      d.Style,
		DeckName:   d.Name,
		SlideTypes: slideTypes(d.Slides),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	content, err := c.generate(ctx, c.prompts.Style.System, prompt)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(content), `"`), nil
}

func (c *Client) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.ChatCompletion(ctx, groq.ChatCompletionRequest{
		Model: c.model,
		Messages: []groq.ChatCompletionMessage{
			{Role: groq.RoleSystem, Content: systemPrompt},
			{Role: groq.RoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty response")
	}

	return content, nil
}

func slideTypes(slides []deck.Slide) string {
	types := make([]string, len(slides))
	for i, s := range slides {
		types[i] = string(s.Type)
	}
	return strings.Join(types, ", ")
}
