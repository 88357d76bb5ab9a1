package chat

import (
	"context"

	"github.com/feichai0017/ingestion-wizard/internal/models"
)

// Citation points at one retrieved chunk backing an answer.
type Citation struct {
	DocumentID string  `json:"documentId"`
	Filename   string  `json:"filename"`
	Position   int     `json:"position"`
	Similarity float32 `json:"similarity"`
	Excerpt    string  `json:"excerpt"`
}

// Answer is the chat stage's response to one question. Degraded is set when
// the answer model was unreachable and Text carries the raw passages instead
// of a drafted answer.
type Answer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
	Degraded  bool       `json:"degraded,omitempty"`
}

// ChatService answers questions against one session's embedded documents.
type ChatService interface {
	Ask(ctx context.Context, collection, question string, params *models.Parameters) (*Answer, error)
}

// Generator drafts an answer from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}
