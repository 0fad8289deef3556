package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const generationModel = "gemini-2.0-flash"

// Completer wraps the Gemini generation API for structured and free-text
// completions.
type Completer struct {
	client *genai.Client
	model  string
}

func NewCompleter(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Completer, error) {
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Completer{client: client, model: generationModel}, nil
}

// CompleteJSON asks the model for a JSON-object response.
func (c *Completer) CompleteJSON(ctx context.Context, system, user string) ([]byte, error) {
	m := c.newModel(system)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0.1)
	m.SetMaxOutputTokens(500)

	text, err := c.generate(ctx, m, user)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// CompleteText returns a plain-text completion.
func (c *Completer) CompleteText(ctx context.Context, system, user string) (string, error) {
	m := c.newModel(system)
	m.SetTemperature(0.2)
	m.SetMaxOutputTokens(400)

	return c.generate(ctx, m, user)
}

func (c *Completer) newModel(system string) *genai.GenerativeModel {
	m := c.client.GenerativeModel(c.model)
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return m
}

func (c *Completer) generate(ctx context.Context, m *genai.GenerativeModel, user string) (string, error) {
	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty completion response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func (c *Completer) Close() error {
	return c.client.Close()
}
