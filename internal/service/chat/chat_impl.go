package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/feichai0017/ingestion-wizard/config"
	"github.com/feichai0017/ingestion-wizard/internal/models"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
	"github.com/feichai0017/ingestion-wizard/pkg/vectorstore"
)

const (
	defaultTopK   = 5
	excerptMaxLen = 300
)

type chatService struct {
	vectors   vectorstore.Store
	generator Generator
	logger    logger.Logger
}

func NewChatService(vectors vectorstore.Store, generator Generator, log logger.Logger) ChatService {
	return &chatService{
		vectors:   vectors,
		generator: generator,
		logger:    log,
	}
}

func (s *chatService) Ask(ctx context.Context, collection, question string, params *models.Parameters) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	results, err := s.vectors.SearchByText(ctx, collection, question, defaultTopK, float32(params.SimilarityThreshold))
	if err != nil {
		return nil, fmt.Errorf("search session documents: %w", err)
	}

	if len(results) == 0 {
		return &Answer{
			Text: "No passages in the ingested documents were similar enough to the question. Try rephrasing, or lower the similarity threshold.",
		}, nil
	}

	citations := make([]Citation, len(results))
	for i, res := range results {
		citations[i] = Citation{
			DocumentID: res.Document.Metadata["documentId"],
			Filename:   res.Document.Metadata["filename"],
			Position:   atoiSafe(res.Document.Metadata["position"]),
			Similarity: res.Similarity,
			Excerpt:    excerpt(res.Document.Content),
		}
	}

	text, err := s.generator.Generate(ctx, buildPrompt(question, results, params), params.MaxAnswerTokens)
	if err != nil {
		// The model being down must not break the chat stage. Hand back the
		// retrieved passages so the user still gets something useful.
		s.logger.Warn("answer model unavailable, returning passages",
			logger.String("collection", collection),
			logger.Error(err))
		return &Answer{
			Text:      degradedText(results),
			Citations: citations,
			Degraded:  true,
		}, nil
	}

	return &Answer{
		Text:      strings.TrimSpace(text),
		Citations: citations,
	}, nil
}

func buildPrompt(question string, results []vectorstore.SearchResult, params *models.Parameters) string {
	var b strings.Builder
	b.WriteString("You are answering a question using only the context passages below.\n")
	if params.ResponseTone != "" {
		fmt.Fprintf(&b, "Answer in a %s tone.\n", params.ResponseTone)
	}
	if params.AcademicMode {
		b.WriteString("Use precise, academic language.\n")
	}
	if params.CitationMode == "inline" {
		b.WriteString("Cite passages inline as [n] where n is the passage number.\n")
	}
	b.WriteString("If the context does not contain the answer, say so.\n\n")

	for i, res := range results {
		fmt.Fprintf(&b, "Passage [%d] (from %s):\n%s\n\n",
			i+1, res.Document.Metadata["filename"], res.Document.Content)
	}

	fmt.Fprintf(&b, "Question: %s\nAnswer:", question)
	return b.String()
}

func degradedText(results []vectorstore.SearchResult) string {
	var b strings.Builder
	b.WriteString("The answer model is currently unavailable. These are the most relevant passages:\n")
	for i, res := range results {
		fmt.Fprintf(&b, "\n[%d] %s\n%s\n",
			i+1, res.Document.Metadata["filename"], excerpt(res.Document.Content))
	}
	return b.String()
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= excerptMaxLen {
		return text
	}
	cut := text[:excerptMaxLen]
	for !strings.HasSuffix(cut, " ") && len(cut) > 0 {
		cut = cut[:len(cut)-1]
	}
	return strings.TrimSpace(cut) + "..."
}

func atoiSafe(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// ollamaGenerator drafts answers via the Ollama generate endpoint.
type ollamaGenerator struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaGenerator(cfg *config.OllamaConfig) Generator {
	return &ollamaGenerator{
		baseURL: cfg.BaseURL,
		model:   cfg.ChatModel,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (g *ollamaGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   g.model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{NumPredict: maxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call generate endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("generate endpoint returned %d: %s", resp.StatusCode, string(data))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}

	return out.Response, nil
}
