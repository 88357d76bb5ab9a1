package models

import (
	"time"
)

// Checklist item keys, in execution order.
const (
	CheckFormatIntegrity     = "format-integrity"
	CheckMalwareScan         = "malware-scan"
	CheckHarmfulContent      = "harmful-content"
	CheckStructureValidation = "structure-validation"
	CheckQualityAnalysis     = "quality-analysis"
	CheckCopyrightCheck      = "copyright-check"
)

// ReviewChecklist is the fixed ordered list of checks a review run executes.
var ReviewChecklist = []string{
	CheckFormatIntegrity,
	CheckMalwareScan,
	CheckHarmfulContent,
	CheckStructureValidation,
	CheckQualityAnalysis,
	CheckCopyrightCheck,
}

// FailedItem records one checklist item that did not pass.
type FailedItem struct {
	ItemKey           string   `json:"itemKey"`
	Reason            string   `json:"reason"`
	BlockedCategories []string `json:"blockedCategories,omitempty"`
	SourceReferences  []string `json:"sourceReferences,omitempty"`
}

// ReviewOutcome is produced once per moderation run and persisted so that
// returning to the review stage re-displays the same outcome without another
// moderation call. An item key appears in exactly one of the two sequences.
type ReviewOutcome struct {
	CompletedItemKeys []string     `json:"completedItemKeys"`
	FailedItems       []FailedItem `json:"failedItems"`
	CanProceed        bool         `json:"canProceed"`
	Warnings          []string     `json:"warnings,omitempty"`
	CompletedAt       time.Time    `json:"completedAt"`
}
