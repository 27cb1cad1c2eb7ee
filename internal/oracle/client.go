// Package oracle wraps the vision-language model used to classify video
// frames and detect programming concepts. The model is a fallible black box:
// transport and parse failures surface as errors that callers degrade into
// conservative defaults, never as aborts.
package oracle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Judgment is the structured classification of a single frame.
type Judgment struct {
	SegmentType   string  `json:"segment_type"`
	HasCode       bool    `json:"has_code"`
	CodeContent   string  `json:"code_content"`
	LearningTopic string  `json:"learning_topic"`
	Confidence    float64 `json:"confidence"`
	Language      string  `json:"language"`
	CodeComplete  bool    `json:"code_complete"`
}

// ConceptJudgment is one concept the model detected in transcript/code text.
type ConceptJudgment struct {
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Timestamps  []float64 `json:"timestamps"`
	Confidence  float64   `json:"confidence"`
	Description string    `json:"description"`
}

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	cli   *openai.Client
	model string
}

// New creates a Client. baseURL may be empty to use the default OpenAI
// endpoint; set it to target a compatible proxy or local gateway.
func New(apiKey, baseURL, model string) *Client {
	if baseURL == "" {
		return &Client{cli: openai.NewClient(apiKey), model: model}
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{cli: openai.NewClientWithConfig(cfg), model: model}
}

// ClassifyFrame submits one JPEG frame for classification.
func (c *Client) ClassifyFrame(ctx context.Context, jpeg []byte, timestamp float64) (Judgment, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.1,
		MaxTokens:   8192,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: classifyPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}

	resp, err := c.cli.CreateChatCompletion(ctx, req)
	if err != nil {
		return Judgment{}, fmt.Errorf("classifying frame at %.2fs: %w", timestamp, err)
	}
	if len(resp.Choices) == 0 {
		return Judgment{}, fmt.Errorf("classifying frame at %.2fs: empty response", timestamp)
	}

	var j Judgment
	raw := stripFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return Judgment{}, fmt.Errorf("parsing judgment at %.2fs: %w", timestamp, err)
	}
	if j.SegmentType != "code" && j.SegmentType != "learning" {
		return Judgment{}, fmt.Errorf("parsing judgment at %.2fs: unknown segment type %q", timestamp, j.SegmentType)
	}
	return j, nil
}

// DetectConcepts submits transcript/code text and returns the detected
// concepts. The returned slice may be empty.
func (c *Client) DetectConcepts(ctx context.Context, text string) ([]ConceptJudgment, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.2,
		MaxTokens:   4096,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: conceptPrompt + "\n\n" + text,
			},
		},
	}

	resp, err := c.cli.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("detecting concepts: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("detecting concepts: empty response")
	}

	var out struct {
		Concepts []ConceptJudgment `json:"concepts"`
	}
	raw := stripFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parsing concepts: %w", err)
	}
	return out.Concepts, nil
}

// stripFences removes a surrounding markdown code fence, which some models
// emit despite being asked for bare JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
