package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	flowerrors "github.com/randalmurphal/mindflow/pkg/flowgraph/errors"
)

const geminiProvider = "gemini"

// DefaultGeminiModel is used when neither the client nor the request names one.
const DefaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is the subset of *genai.Models used by Gemini.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements Client on the Gemini API.
type Gemini struct {
	models contentGenerator
	model  string
}

// GeminiOption configures Gemini.
type GeminiOption func(*Gemini)

// WithGeminiModel sets the default model.
func WithGeminiModel(model string) GeminiOption {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// NewGemini creates a client authenticated with apiKey.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, NewError(geminiProvider, "connect", flowerrors.Permanent(errors.New("api key is required"), "gemini config"))
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewError(geminiProvider, "connect", err)
	}
	return newGemini(client.Models, opts...), nil
}

func newGemini(models contentGenerator, opts ...GeminiOption) *Gemini {
	g := &Gemini{models: models, model: DefaultGeminiModel}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Complete implements Client.
func (g *Gemini) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := g.model
	if req.Model != "" {
		model = req.Model
	}

	resp, err := g.models.GenerateContent(ctx, model, toGenAIContents(req.Messages), toGenAIConfig(req))
	if err != nil {
		return nil, NewError(geminiProvider, "complete", classifyGenAIError(ctx, err))
	}

	out := fromGenAIResponse(resp)
	if out.Model == "" {
		out.Model = model
	}
	out.Duration = time.Since(start)
	return out, nil
}

func toGenAIContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return contents
}

func toGenAIConfig(req CompletionRequest) *genai.GenerateContentConfig {
	var config genai.GenerateContentConfig
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		config.Temperature = &t
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Format == FormatJSON {
		config.ResponseMIMEType = "application/json"
	}
	return &config
}

func fromGenAIResponse(resp *genai.GenerateContentResponse) *CompletionResponse {
	out := &CompletionResponse{}
	if resp == nil {
		return out
	}
	out.Model = resp.ModelVersion

	var text strings.Builder
	if len(resp.Candidates) > 0 {
		candidate := resp.Candidates[0]
		out.FinishReason = strings.ToLower(string(candidate.FinishReason))
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part == nil || part.Thought {
					continue
				}
				text.WriteString(part.Text)
			}
		}
	}
	out.Content = strings.TrimSpace(text.String())

	if u := resp.UsageMetadata; u != nil {
		out.Usage = TokenUsage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return out
}

// classifyGenAIError maps API status codes onto HTTPError so the failure
// categorizes by status.
func classifyGenAIError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &flowerrors.HTTPError{StatusCode: apiErr.Code, Message: apiErr.Message, Endpoint: "generateContent"}
	}
	return err
}
