package models

// Stage is one of the five ordered wizard phases.
type Stage int

const (
	StageConfiguring Stage = iota + 1
	StageAcquiring
	StageReviewing
	StageProcessing
	StageChatting
)

const (
	StageFirst = StageConfiguring
	StageLast  = StageChatting
)

func (s Stage) String() string {
	switch s {
	case StageConfiguring:
		return "configuring"
	case StageAcquiring:
		return "acquiring"
	case StageReviewing:
		return "reviewing"
	case StageProcessing:
		return "processing"
	case StageChatting:
		return "chatting"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the five wizard stages.
func (s Stage) Valid() bool {
	return s >= StageFirst && s <= StageLast
}

// WorkflowState is the single source of truth for navigation within one
// session. StageResults lets a user move backward and forward without
// recomputation.
type WorkflowState struct {
	ActiveStage    Stage         `json:"activeStage"`
	StageResults   map[Stage]any `json:"stageResults"`
	IsLoading      bool          `json:"isLoading"`
	LoadingMessage string        `json:"loadingMessage,omitempty"`
}
