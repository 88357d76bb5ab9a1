package params

import (
	"fmt"
	"sync"

	"github.com/feichai0017/ingestion-wizard/internal/models"
)

// Store holds the session's mutable configuration. Mutation is synchronous
// and immediately visible to all readers. No range validation happens here;
// downstream components clamp or reject content derived from the values.
type Store struct {
	mu sync.RWMutex
	p  models.Parameters
}

func NewStore() *Store {
	return &Store{p: models.DefaultParameters()}
}

// Get returns a snapshot of the current parameters.
func (s *Store) Get() models.Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.p
	snap.SupportedFileTypes = append([]string(nil), s.p.SupportedFileTypes...)
	return snap
}

// Set stores value under key. Unknown keys and uncoercible values are the
// only error conditions.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch key {
	case "maxFileSizeMB":
		return setInt(&s.p.MaxFileSizeMB, key, value)
	case "supportedFileTypes":
		types, err := toStringSlice(value)
		if err != nil {
			return fmt.Errorf("parameter %s: %w", key, err)
		}
		s.p.SupportedFileTypes = types
		return nil
	case "crawlerMaxTokens":
		return setInt(&s.p.CrawlerMaxTokens, key, value)
	case "crawlerMaxPages":
		return setInt(&s.p.CrawlerMaxPages, key, value)
	case "chunkSize":
		return setInt(&s.p.ChunkSize, key, value)
	case "chunkOverlap":
		return setInt(&s.p.ChunkOverlap, key, value)
	case "similarityThreshold":
		f, err := toFloat(value)
		if err != nil {
			return fmt.Errorf("parameter %s: %w", key, err)
		}
		s.p.SimilarityThreshold = f
		return nil
	case "responseTone":
		return setString(&s.p.ResponseTone, key, value)
	case "citationMode":
		return setString(&s.p.CitationMode, key, value)
	case "academicMode":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("parameter %s: expected bool, got %T", key, value)
		}
		s.p.AcademicMode = b
		return nil
	case "maxAnswerTokens":
		return setInt(&s.p.MaxAnswerTokens, key, value)
	default:
		return fmt.Errorf("unknown parameter: %s", key)
	}
}

func setInt(dst *int, key string, value any) error {
	n, err := toInt(value)
	if err != nil {
		return fmt.Errorf("parameter %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setString(dst *string, key string, value any) error {
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("parameter %s: expected string, got %T", key, value)
	}
	*dst = str
	return nil
}

// JSON numbers decode as float64, so numeric coercion accepts both.
func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}

func toStringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string element, got %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", value)
	}
}
