package models

// Parameters holds the per-session configuration mutated during the
// configuring stage and read by every downstream component.
type Parameters struct {
	MaxFileSizeMB       int      `json:"maxFileSizeMB"`
	SupportedFileTypes  []string `json:"supportedFileTypes"`
	CrawlerMaxTokens    int      `json:"crawlerMaxTokens"`
	CrawlerMaxPages     int      `json:"crawlerMaxPages"`
	ChunkSize           int      `json:"chunkSize"`
	ChunkOverlap        int      `json:"chunkOverlap"`
	SimilarityThreshold float64  `json:"similarityThreshold"`

	// Response policy for the chat stage.
	ResponseTone    string `json:"responseTone"`
	CitationMode    string `json:"citationMode"`
	AcademicMode    bool   `json:"academicMode"`
	MaxAnswerTokens int    `json:"maxAnswerTokens"`
}

// DefaultParameters returns the configuration every new session starts with.
func DefaultParameters() Parameters {
	return Parameters{
		MaxFileSizeMB:       50,
		SupportedFileTypes:  []string{"pdf", "txt", "md", "docx"},
		CrawlerMaxTokens:    50000,
		CrawlerMaxPages:     25,
		ChunkSize:           512,
		ChunkOverlap:        50,
		SimilarityThreshold: 0.35,
		ResponseTone:        "neutral",
		CitationMode:        "inline",
		AcademicMode:        false,
		MaxAnswerTokens:     1024,
	}
}
