package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"review-hand/config"
	"review-hand/models"
)

// ErrAIResponseFormat is returned when the model reply cannot be parsed into
// the structure a caller asked for.
var ErrAIResponseFormat = errors.New("AI response format error")

// styleAnalysisTextLimit caps the amount of extracted text sent for style
// analysis per paper.
const styleAnalysisTextLimit = 8000

// AIService wraps the OpenAI-compatible chat API. The client is rebuilt
// lazily whenever the stored AI configuration changes; the database row
// takes precedence over the environment fallbacks.
type AIService struct {
	Config *config.Config
	DB     *gorm.DB
	Logger *zap.Logger

	mu       sync.Mutex
	client   *openai.Client
	model    string
	cacheKey string
}

// NewAIService creates a new AI service.
func NewAIService(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *AIService {
	return &AIService{Config: cfg, DB: db, Logger: logger}
}

// Invalidate drops the cached client so the next call re-reads the stored
// configuration. Called after the AI config is saved.
func (s *AIService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.cacheKey = ""
}

// resolveConfig returns the effective endpoint, key and model: the latest
// ai_config row when present, the environment values otherwise.
func (s *AIService) resolveConfig() (endpoint, key, model string) {
	endpoint = s.Config.OpenAIEndpoint
	key = s.Config.OpenAIAPIKey
	model = s.Config.OpenAIModel

	var cfg models.AIConfig
	err := s.DB.Order("id DESC").First(&cfg).Error
	if err == nil {
		endpoint = cfg.APIEndpoint
		key = cfg.APIKey
		model = cfg.ModelName
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.Logger.Warn("Failed to load stored AI config, using environment fallback", zap.Error(err))
	}
	return endpoint, key, model
}

// getClient returns a chat client for the current configuration, reusing the
// cached one when the configuration has not changed.
func (s *AIService) getClient() (*openai.Client, string, error) {
	endpoint, key, model := s.resolveConfig()
	if key == "" {
		return nil, "", fmt.Errorf("no AI API key configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cacheKey := endpoint + "|" + key + "|" + model
	if s.client != nil && s.cacheKey == cacheKey {
		return s.client, s.model, nil
	}

	clientCfg := openai.DefaultConfig(key)
	if endpoint != "" {
		clientCfg.BaseURL = endpoint
	}
	s.client = openai.NewClientWithConfig(clientCfg)
	s.model = model
	s.cacheKey = cacheKey
	s.Logger.Info("AI client rebuilt", zap.String("endpoint", endpoint), zap.String("model", model))
	return s.client, s.model, nil
}

// Chat sends a single-turn request and returns the full reply.
func (s *AIService) Chat(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	client, model, err := s.getClient()
	if err != nil {
		return "", err
	}

	messages := []openai.ChatCompletionMessage{}
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		s.Logger.Error("Chat completion failed", zap.Error(err))
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream sends a single-turn request and invokes emit for every content
// chunk as it arrives. It returns the accumulated reply once the stream is
// drained.
func (s *AIService) Stream(ctx context.Context, systemPrompt, userPrompt string, temperature float32, emit func(chunk string) error) (string, error) {
	client, model, err := s.getClient()
	if err != nil {
		return "", err
	}

	messages := []openai.ChatCompletionMessage{}
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		Stream:      true,
	})
	if err != nil {
		s.Logger.Error("Chat completion stream failed to start", zap.Error(err))
		return "", fmt.Errorf("chat completion stream failed: %w", err)
	}
	defer stream.Close()

	var b strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.Logger.Error("Chat completion stream aborted", zap.Error(err))
			return "", fmt.Errorf("chat completion stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		b.WriteString(chunk)
		if emit != nil {
			if err := emit(chunk); err != nil {
				return "", err
			}
		}
	}
	return b.String(), nil
}

// AnalyzeStyle characterizes the writing style of the given extracted texts.
func (s *AIService) AnalyzeStyle(ctx context.Context, texts []string) (string, error) {
	var parts []string
	for i, t := range texts {
		parts = append(parts, fmt.Sprintf("--- Paper %d ---\n%s", i+1, truncateRunes(t, styleAnalysisTextLimit)))
	}
	return s.Chat(ctx, "", BuildStyleAnalysisPrompt(strings.Join(parts, "\n\n")), 0.7)
}

// GenerateWritingGuide turns a style analysis into an actionable guide.
func (s *AIService) GenerateWritingGuide(ctx context.Context, analysis string) (string, error) {
	return s.Chat(ctx, "", BuildWritingGuidePrompt(analysis), 0.7)
}

// GenerateReviewPlan produces a section-by-section outline.
func (s *AIService) GenerateReviewPlan(ctx context.Context, projectName, description string, keywords []string, structure string) (string, error) {
	return s.Chat(ctx, "", BuildReviewPlanPrompt(projectName, description, keywords, structure), 0.7)
}

// SuggestKeywords returns AI-suggested search keywords for a topic.
func (s *AIService) SuggestKeywords(ctx context.Context, projectName, description string) ([]string, error) {
	raw, err := s.Chat(ctx, "", BuildKeywordSuggestionPrompt(projectName, description), 0.7)
	if err != nil {
		return nil, err
	}

	var keywords []string
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &keywords); err != nil {
		s.Logger.Warn("Failed to parse keyword suggestions", zap.Error(err), zap.String("raw", raw))
		return nil, fmt.Errorf("%w: expected a JSON array of strings", ErrAIResponseFormat)
	}
	return keywords, nil
}

// GenerateSearchQuery composes a database search query from keywords.
func (s *AIService) GenerateSearchQuery(ctx context.Context, source string, keywords []string) (string, error) {
	raw, err := s.Chat(ctx, "", BuildSearchQueryPrompt(source, keywords), 0.3)
	if err != nil {
		return "", err
	}
	return strings.Trim(StripCodeFence(raw), "\"\n "), nil
}

// FilterLiterature asks the model which of the numbered candidates are most
// relevant and returns their 1-based indices in the model's order.
func (s *AIService) FilterLiterature(ctx context.Context, topic string, entries []string, criteria string) ([]int, error) {
	raw, err := s.Chat(ctx, "", BuildFilterPrompt(topic, entries, criteria), 0.3)
	if err != nil {
		return nil, err
	}
	indices := ParseSelectedIndices(raw, len(entries))
	if len(indices) == 0 && len(entries) > 0 {
		s.Logger.Warn("Literature filter returned no usable indices", zap.String("raw", raw))
	}
	return indices, nil
}

// StreamWriteReview generates a full draft, streaming chunks through emit.
func (s *AIService) StreamWriteReview(ctx context.Context, projectName, plan, guide string, literature []string, language string, opts WriteOptions, emit func(string) error) (string, error) {
	prompt := BuildWritePrompt(projectName, plan, guide, literature, language, opts)
	return s.Stream(ctx, "You are an experienced academic author writing literature reviews.", prompt, 0.7, emit)
}

// StreamWriteSection writes one section of the review from the plan, guide
// and what has been written so far, streaming chunks through emit.
func (s *AIService) StreamWriteSection(ctx context.Context, sectionTitle, section, plan, guide string, literature []string, previousContent, language string, opts WriteOptions, emit func(string) error) (string, error) {
	prompt := BuildSectionPrompt(sectionTitle, section, plan, guide, literature, previousContent, language, opts)
	return s.Stream(ctx, "You are an experienced academic author writing literature reviews.", prompt, 0.7, emit)
}

// GenerateDiagram returns Mermaid code for the requested diagram kind.
func (s *AIService) GenerateDiagram(ctx context.Context, kind, description string) (string, error) {
	raw, err := s.Chat(ctx, "", BuildDiagramPrompt(kind, description), 0.3)
	if err != nil {
		return "", err
	}
	code := StripCodeFence(raw)
	if code == "" {
		return "", fmt.Errorf("%w: empty diagram code", ErrAIResponseFormat)
	}
	return code, nil
}

// Translate translates a title and abstract and splits the labeled reply.
func (s *AIService) Translate(ctx context.Context, title, abstract, targetLanguage string) (string, string, error) {
	raw, err := s.Chat(ctx, "", BuildTranslatePrompt(title, abstract, targetLanguage), 0.3)
	if err != nil {
		return "", "", err
	}

	var translatedTitle, translatedAbstract string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if v, ok := labeledValue(trimmed, "标题"); ok {
			translatedTitle = v
		} else if v, ok := labeledValue(trimmed, "摘要"); ok {
			translatedAbstract = v
		} else if translatedAbstract != "" && trimmed != "" {
			// Abstracts may span multiple lines.
			translatedAbstract += "\n" + trimmed
		}
	}
	if translatedTitle == "" && translatedAbstract == "" {
		return "", "", fmt.Errorf("%w: missing labeled translation parts", ErrAIResponseFormat)
	}
	return translatedTitle, translatedAbstract, nil
}

// labeledValue matches a "label: value" line, accepting ASCII and full-width
// colons.
func labeledValue(line, label string) (string, bool) {
	if !strings.HasPrefix(line, label) {
		return "", false
	}
	rest := strings.TrimPrefix(line, label)
	if strings.HasPrefix(rest, ":") {
		return strings.TrimSpace(rest[1:]), true
	}
	if strings.HasPrefix(rest, "：") {
		return strings.TrimSpace(strings.TrimPrefix(rest, "：")), true
	}
	return "", false
}

// ListModels queries the model list of an arbitrary endpoint, used by the
// configuration UI before the config is saved.
func (s *AIService) ListModels(ctx context.Context, endpoint, key string) ([]string, error) {
	if key == "" {
		return nil, fmt.Errorf("no AI API key provided")
	}
	clientCfg := openai.DefaultConfig(key)
	if endpoint != "" {
		clientCfg.BaseURL = endpoint
	}
	client := openai.NewClientWithConfig(clientCfg)

	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models failed: %w", err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}
