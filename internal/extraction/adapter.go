package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "kgas/pkg/errors"
	"kgas/pkg/logger"
)

// Adapter extracts entities and relationships from document text via an
// OpenAI-compatible endpoint (LiteLLM in deployment)
type Adapter struct {
	client        *openai.Client
	model         string
	confidenceMin float64
	logger        *zap.Logger
}

// NewAdapter creates an extraction adapter
func NewAdapter(baseURL, apiKey, modelID string, confidenceMin float64) *Adapter {
	// For LiteLLM, we can use a dummy API key if not provided
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"

	return &Adapter{
		client:        openai.NewClientWithConfig(config),
		model:         modelID,
		confidenceMin: confidenceMin,
		logger:        logger.Get(),
	}
}

const extractionSystemPrompt = `You are an information extraction system for a knowledge graph.
Extract the entities and relationships stated in the user's document.

Respond with a single JSON object and nothing else, in exactly this shape:
{"entities":[{"name":"...","type":"...","confidence":0.95}],"relationships":[{"source":"...","target":"...","type":"...","confidence":0.9}]}

Rules:
- Entity types: PERSON, ORGANIZATION, LOCATION, EVENT, CONCEPT.
- Relationship types are short uppercase verbs such as WORKS_FOR, LOCATED_IN, PART_OF, KNOWS.
- Relationship source and target must repeat names from the entities list.
- Confidence is your own estimate between 0 and 1.
- If nothing can be extracted, return {"entities":[],"relationships":[]}.`

// Extract sends the document to the model and returns the normalized
// extraction result. Transport failures are retried with linear backoff;
// a response that is not extraction JSON is not retried.
func (a *Adapter) Extract(ctx context.Context, document string) (*Result, error) {
	if strings.TrimSpace(document) == "" {
		return &Result{}, nil
	}

	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extractionSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: document,
			},
		},
		Temperature: 0.1,
	}

	var resp openai.ChatCompletionResponse
	var err error
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			a.logger.Warn("Retrying extraction request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, apperrors.NewExtractionFailed(a.model, attempt, false, ctx.Err())
			case <-time.After(backoff):
			}
		}

		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		a.logger.Error("Extraction request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", a.model),
		)
	}

	if err != nil {
		return nil, apperrors.NewExtractionFailed(a.model, maxRetries, true, err)
	}

	if len(resp.Choices) == 0 {
		return nil, apperrors.NewExtractionFailed(a.model, 1, true, fmt.Errorf("no choices in response"))
	}

	result, err := ParseResult(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	normalized := Normalize(result, a.confidenceMin)
	a.logger.Debug("Extraction completed",
		zap.String("model", a.model),
		zap.Int("entities", len(normalized.Entities)),
		zap.Int("relationships", len(normalized.Relationships)),
	)
	return normalized, nil
}

// ParseResult parses model output into a Result. Models occasionally wrap
// the JSON in code fences or prose, so parsing starts at the first brace
// and ends at the last.
func ParseResult(content string) (*Result, error) {
	payload := strings.TrimSpace(content)
	if i := strings.Index(payload, "{"); i >= 0 {
		if j := strings.LastIndex(payload, "}"); j > i {
			payload = payload[i : j+1]
		}
	}

	var result Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, apperrors.NewExtractionUnparseable(content, err)
	}
	return &result, nil
}
