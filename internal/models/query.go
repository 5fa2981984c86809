package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// QueryType classifies a query so the prompt engine can pick a template
type QueryType string

const (
	QueryTypeGeneral       QueryType = "general"
	QueryTypeFactual       QueryType = "factual"
	QueryTypeAnalytical    QueryType = "analytical"
	QueryTypeComparative   QueryType = "comparative"
	QueryTypeSummarization QueryType = "summarization"
	QueryTypeCreative      QueryType = "creative"
)

// IsValid checks if the query type is valid
func (t QueryType) IsValid() bool {
	switch t {
	case QueryTypeGeneral, QueryTypeFactual, QueryTypeAnalytical,
		QueryTypeComparative, QueryTypeSummarization, QueryTypeCreative:
		return true
	default:
		return false
	}
}

// String returns the string representation of the query type
func (t QueryType) String() string {
	return string(t)
}

// ResponseFormat controls how the answer is laid out
type ResponseFormat string

const (
	ResponseFormatText         ResponseFormat = "text"
	ResponseFormatBulletPoints ResponseFormat = "bullet_points"
	ResponseFormatNumberedList ResponseFormat = "numbered_list"
	ResponseFormatTable        ResponseFormat = "table"
	ResponseFormatJSON         ResponseFormat = "json"
	ResponseFormatSummary      ResponseFormat = "summary"
)

// IsValid checks if the response format is valid
func (f ResponseFormat) IsValid() bool {
	switch f {
	case ResponseFormatText, ResponseFormatBulletPoints, ResponseFormatNumberedList,
		ResponseFormatTable, ResponseFormatJSON, ResponseFormatSummary:
		return true
	default:
		return false
	}
}

// SafetyLevel selects which safety guidelines get appended to prompts
type SafetyLevel string

const (
	SafetyLevelStandard     SafetyLevel = "standard"
	SafetyLevelConservative SafetyLevel = "conservative"
	SafetyLevelPermissive   SafetyLevel = "permissive"
)

// IsValid checks if the safety level is valid
func (l SafetyLevel) IsValid() bool {
	switch l {
	case SafetyLevelStandard, SafetyLevelConservative, SafetyLevelPermissive:
		return true
	default:
		return false
	}
}

// ValidationStatus summarizes response validation
type ValidationStatus string

const (
	ValidationStatusValid   ValidationStatus = "valid"
	ValidationStatusWarning ValidationStatus = "warning"
	ValidationStatusError   ValidationStatus = "error"
)

// Worst returns the more severe of two statuses
func (s ValidationStatus) Worst(other ValidationStatus) ValidationStatus {
	rank := func(v ValidationStatus) int {
		switch v {
		case ValidationStatusError:
			return 2
		case ValidationStatusWarning:
			return 1
		default:
			return 0
		}
	}
	if rank(other) > rank(s) {
		return other
	}
	return s
}

// RAGQuery represents a question posed against the document collection
type RAGQuery struct {
	Query            string         `json:"query"`
	QueryType        QueryType      `json:"query_type,omitempty"`
	TopK             *int           `json:"top_k,omitempty"`
	ScoreThreshold   *float64       `json:"score_threshold,omitempty"`
	MaxContextLength int            `json:"max_context_length,omitempty"`
	MaxTokens        int            `json:"max_tokens,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	ResponseFormat   ResponseFormat `json:"response_format,omitempty"`
	SafetyLevel      SafetyLevel    `json:"safety_level,omitempty"`
	DocumentIDs      []string       `json:"document_ids,omitempty"`
	IncludeSources   bool           `json:"include_sources"`
	Stream           bool           `json:"stream,omitempty"`
}

// Query bounds enforced before any embedding or retrieval work happens
const (
	MaxQueryLength   = 1000
	MinTopK          = 1
	MaxTopK          = 20
	MinContextLength = 1000
	MaxContextLength = 8000
	MinMaxTokens     = 100
	MaxMaxTokens     = 4096
)

// Validate checks the query, applying defaults for omitted fields
func (q *RAGQuery) Validate() error {
	trimmed := strings.TrimSpace(q.Query)
	if trimmed == "" {
		return &ValidationError{Field: "query", Message: "query cannot be empty"}
	}
	if utf8.RuneCountInString(trimmed) > MaxQueryLength {
		return &ValidationError{Field: "query", Message: "query cannot exceed 1000 characters"}
	}
	if q.TopK != nil && (*q.TopK < MinTopK || *q.TopK > MaxTopK) {
		return &ValidationError{Field: "top_k", Message: "top_k must be between 1 and 20"}
	}
	if q.ScoreThreshold != nil && (*q.ScoreThreshold < 0 || *q.ScoreThreshold > 1) {
		return &ValidationError{Field: "score_threshold", Message: "score threshold must be between 0 and 1"}
	}
	if q.MaxContextLength != 0 && (q.MaxContextLength < MinContextLength || q.MaxContextLength > MaxContextLength) {
		return &ValidationError{Field: "max_context_length", Message: "max context length must be between 1000 and 8000"}
	}
	if q.MaxTokens != 0 && (q.MaxTokens < MinMaxTokens || q.MaxTokens > MaxMaxTokens) {
		return &ValidationError{Field: "max_tokens", Message: "max_tokens must be between 100 and 4096"}
	}
	if q.Temperature != nil && (*q.Temperature < 0 || *q.Temperature > 2) {
		return &ValidationError{Field: "temperature", Message: "temperature must be between 0 and 2"}
	}
	if q.QueryType != "" && !q.QueryType.IsValid() {
		return &ValidationError{Field: "query_type", Message: "invalid query type: " + string(q.QueryType)}
	}
	if q.ResponseFormat != "" && !q.ResponseFormat.IsValid() {
		return &ValidationError{Field: "response_format", Message: "invalid response format: " + string(q.ResponseFormat)}
	}
	if q.SafetyLevel != "" && !q.SafetyLevel.IsValid() {
		return &ValidationError{Field: "safety_level", Message: "invalid safety level: " + string(q.SafetyLevel)}
	}
	return nil
}

// Source identifies a chunk that contributed to an answer
type Source struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkID    string  `json:"chunk_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Preview    string  `json:"preview,omitempty"`
}

// RAGResponse represents a complete answer with its provenance
type RAGResponse struct {
	Query            string           `json:"query"`
	Answer           string           `json:"answer"`
	QueryType        QueryType        `json:"query_type"`
	Sources          []Source         `json:"sources,omitempty"`
	SourceFiles      []string         `json:"source_files,omitempty"`
	RetrievedCount   int              `json:"retrieved_count"`
	ContextLength    int              `json:"context_length"`
	RetrievalTimeMs  float64          `json:"retrieval_time_ms"`
	GenerationTimeMs float64          `json:"generation_time_ms"`
	TotalTimeMs      float64          `json:"total_time_ms"`
	ModelUsed        string           `json:"model_used,omitempty"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	ValidationIssues []string         `json:"validation_issues,omitempty"`
	SafetyScore      float64          `json:"safety_score"`
	FromCache        bool             `json:"from_cache"`
	CreatedAt        time.Time        `json:"created_at"`
}

// StreamEventType identifies a server-sent event on the streaming endpoint
type StreamEventType string

const (
	StreamEventContent  StreamEventType = "content"
	StreamEventSources  StreamEventType = "sources"
	StreamEventProgress StreamEventType = "progress"
	StreamEventError    StreamEventType = "error"
	StreamEventEnd      StreamEventType = "end"
)

// StreamEvent is a single frame of a streamed answer
type StreamEvent struct {
	Type     StreamEventType        `json:"type"`
	Content  string                 `json:"content,omitempty"`
	Sources  []Source               `json:"sources,omitempty"`
	Stage    string                 `json:"stage,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
