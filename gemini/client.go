// Package gemini adapts Google's generative-language SDK to the chat
// service's Provider contract. It owns session setup, history conversion,
// incremental delivery, and the classification of SDK failures into typed
// upstream errors; callers never see raw SDK error text.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"geminichat"
)

// Client talks to the generative-language API. A fresh SDK client is built
// per call with the credential handed in by the rotation layer, so the
// adapter itself holds no secrets.
type Client struct {
	model        string
	systemPrompt string
	endpoint     string
}

// Option customizes a Client.
type Option func(*Client)

// WithEndpoint points the client at an alternate API endpoint, useful for
// local proxies and tests.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// NewClient builds an adapter for the given model. The system prompt, when
// non-empty, is attached to every chat session as a system instruction.
func NewClient(model, systemPrompt string, opts ...Option) *Client {
	c := &Client{model: model, systemPrompt: systemPrompt}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ geminichat.Provider = (*Client)(nil)

// Generate runs a single-shot chat exchange and returns the full reply.
func (c *Client) Generate(ctx context.Context, apiKey string, history []geminichat.Turn, message string) (*geminichat.Reply, error) {
	client, err := genai.NewClient(ctx, c.clientOptions(apiKey)...)
	if err != nil {
		return nil, Classify(fmt.Errorf("creating Google AI client: %w", err))
	}
	defer client.Close()

	cs := c.startSession(client, history)
	resp, err := cs.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return nil, Classify(err)
	}

	text, safety, err := candidateText(resp)
	if err != nil {
		return nil, Classify(err)
	}
	return c.buildReply(text, safety, resp.UsageMetadata), nil
}

// Stream runs a chat exchange delivering text incrementally. Every chunk's
// text is forwarded to emit in arrival order; the full text is accumulated
// for the returned reply. An emit failure aborts the drain.
func (c *Client) Stream(ctx context.Context, apiKey string, history []geminichat.Turn, message string, emit func(chunk string) error) (*geminichat.Reply, error) {
	client, err := genai.NewClient(ctx, c.clientOptions(apiKey)...)
	if err != nil {
		return nil, Classify(fmt.Errorf("creating Google AI client: %w", err))
	}
	defer client.Close()

	cs := c.startSession(client, history)
	iter := cs.SendMessageStream(ctx, genai.Text(message))

	var full strings.Builder
	var usage *genai.UsageMetadata
	safety := ""
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, Classify(err)
		}
		if resp.UsageMetadata != nil {
			usage = resp.UsageMetadata
		}
		text, chunkSafety, err := chunkText(resp)
		if err != nil {
			return nil, Classify(err)
		}
		if chunkSafety != "" {
			safety = chunkSafety
		}
		if text == "" {
			continue
		}
		full.WriteString(text)
		if err := emit(text); err != nil {
			return nil, fmt.Errorf("delivering chunk: %w", err)
		}
	}
	return c.buildReply(full.String(), safety, usage), nil
}

// ListModels reports the models available to the given credential.
func (c *Client) ListModels(ctx context.Context, apiKey string) ([]geminichat.ModelInfo, error) {
	client, err := genai.NewClient(ctx, c.clientOptions(apiKey)...)
	if err != nil {
		return nil, Classify(fmt.Errorf("creating Google AI client: %w", err))
	}
	defer client.Close()

	var models []geminichat.ModelInfo
	it := client.ListModels(ctx)
	for {
		mi, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, Classify(err)
		}
		models = append(models, geminichat.ModelInfo{
			Name:             mi.Name,
			DisplayName:      mi.DisplayName,
			Description:      mi.Description,
			SupportedActions: mi.SupportedGenerationMethods,
		})
	}
	return models, nil
}

func (c *Client) clientOptions(apiKey string) []option.ClientOption {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	return opts
}

// startSession prepares a chat session with the system instruction and the
// prior conversation turns.
func (c *Client) startSession(client *genai.Client, history []geminichat.Turn) *genai.ChatSession {
	model := client.GenerativeModel(c.model)
	if c.systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(c.systemPrompt)},
		}
	}
	cs := model.StartChat()
	cs.History = convertHistory(history)
	return cs
}

func (c *Client) buildReply(text, safety string, usage *genai.UsageMetadata) *geminichat.Reply {
	reply := &geminichat.Reply{
		Text:      text,
		Model:     c.model,
		Safety:    safety,
		Timestamp: time.Now().UTC(),
	}
	if usage != nil {
		reply.TokensUsed = int(usage.TotalTokenCount)
	}
	return reply
}

// convertHistory maps conversation turns onto the SDK's content structure.
// Roles are already validated upstream to the user/model pair the API knows.
func convertHistory(history []geminichat.Turn) []*genai.Content {
	var contents []*genai.Content
	for _, turn := range history {
		parts := make([]genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			parts = append(parts, genai.Text(p))
		}
		contents = append(contents, &genai.Content{
			Role:  turn.Role,
			Parts: parts,
		})
	}
	return contents
}

// candidateText extracts the text of the first candidate plus a safety
// annotation when the candidate finished for a non-STOP reason. An empty
// candidate list is an error: blocked prompts carry their block reason so
// classification can file them as safety rejections. A candidate with no
// content is tolerated only when a finish reason explains it.
func candidateText(resp *genai.GenerateContentResponse) (string, string, error) {
	if len(resp.Candidates) == 0 {
		if reason, blocked := blockReason(resp); blocked {
			return "", "", fmt.Errorf("prompt blocked by safety filter: %s", reason)
		}
		return "", "", fmt.Errorf("no response candidates returned")
	}
	cand := resp.Candidates[0]
	safety := finishAnnotation(cand)
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		if safety != "" {
			return "", safety, nil
		}
		return "", "", fmt.Errorf("no content in response")
	}
	return partsText(cand), safety, nil
}

// chunkText is the tolerant variant for streamed responses: chunks without
// candidates or content (usage-only trailers, finish markers) yield empty
// text instead of an error. A safety block still fails the stream.
func chunkText(resp *genai.GenerateContentResponse) (string, string, error) {
	if len(resp.Candidates) == 0 {
		if reason, blocked := blockReason(resp); blocked {
			return "", "", fmt.Errorf("prompt blocked by safety filter: %s", reason)
		}
		return "", "", nil
	}
	cand := resp.Candidates[0]
	safety := finishAnnotation(cand)
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", safety, nil
	}
	return partsText(cand), safety, nil
}

func partsText(cand *genai.Candidate) string {
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String()
}

func finishAnnotation(cand *genai.Candidate) string {
	if cand.FinishReason != genai.FinishReasonUnspecified && cand.FinishReason != genai.FinishReasonStop {
		return cand.FinishReason.String()
	}
	return ""
}

func blockReason(resp *genai.GenerateContentResponse) (string, bool) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return resp.PromptFeedback.BlockReason.String(), true
	}
	return "", false
}
