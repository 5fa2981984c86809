package models

import (
	"time"
)

// UploadProgress tracks a document through the ingestion pipeline
type UploadProgress struct {
	DocumentID  string         `json:"document_id"`
	Filename    string         `json:"filename"`
	FileSize    int64          `json:"file_size"`
	Status      DocumentStatus `json:"status"`
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"current_step"`
	StartedAt   time.Time      `json:"started_at"`
	LastUpdate  time.Time      `json:"last_update"`
	// EstimatedRemainingMs extrapolates from elapsed time and progress,
	// zero until progress moves past the first milestone
	EstimatedRemainingMs int64                  `json:"estimated_remaining_ms"`
	ErrorMessage         string                 `json:"error_message,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
}

// Clone returns a copy safe to hand out while the tracker keeps mutating
func (p *UploadProgress) Clone() *UploadProgress {
	clone := *p
	if p.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(p.Metadata))
		for k, v := range p.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// Advance moves the tracker to a new pipeline stage
func (p *UploadProgress) Advance(status DocumentStatus, step string) {
	p.Status = status
	p.CurrentStep = step
	if pct := status.ProgressPercent(); pct >= 0 {
		p.Progress = pct
	}
	p.LastUpdate = time.Now()

	if p.Progress > 10 && p.Progress < 100 {
		elapsed := p.LastUpdate.Sub(p.StartedAt)
		remaining := float64(elapsed) * float64(100-p.Progress) / float64(p.Progress)
		p.EstimatedRemainingMs = int64(remaining / float64(time.Millisecond))
	} else if p.Progress >= 100 {
		p.EstimatedRemainingMs = 0
	}
}

// Fail marks the upload as failed, keeping the progress it last reached
func (p *UploadProgress) Fail(message string) {
	p.Status = DocumentStatusFailed
	p.ErrorMessage = message
	p.EstimatedRemainingMs = 0
	p.LastUpdate = time.Now()
}

// UploadProgressDTO represents the API view of upload progress
type UploadProgressDTO struct {
	DocumentID           string                 `json:"document_id"`
	Filename             string                 `json:"filename"`
	FileSize             int64                  `json:"file_size"`
	Status               string                 `json:"status"`
	Progress             int                    `json:"progress"`
	CurrentStep          string                 `json:"current_step"`
	StartedAt            string                 `json:"started_at"`
	LastUpdate           string                 `json:"last_update"`
	EstimatedRemainingMs int64                  `json:"estimated_remaining_ms"`
	ErrorMessage         string                 `json:"error_message,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
}

// ToDTO converts UploadProgress to its DTO
func (p *UploadProgress) ToDTO() UploadProgressDTO {
	return UploadProgressDTO{
		DocumentID:           p.DocumentID,
		Filename:             p.Filename,
		FileSize:             p.FileSize,
		Status:               string(p.Status),
		Progress:             p.Progress,
		CurrentStep:          p.CurrentStep,
		StartedAt:            p.StartedAt.Format(time.RFC3339),
		LastUpdate:           p.LastUpdate.Format(time.RFC3339),
		EstimatedRemainingMs: p.EstimatedRemainingMs,
		ErrorMessage:         p.ErrorMessage,
		Metadata:             p.Metadata,
	}
}

// UploadProgressFromDTO converts the DTO back to the domain model
func UploadProgressFromDTO(dto UploadProgressDTO) (*UploadProgress, error) {
	startedAt, err := time.Parse(time.RFC3339, dto.StartedAt)
	if err != nil {
		startedAt = time.Now()
	}
	lastUpdate, err := time.Parse(time.RFC3339, dto.LastUpdate)
	if err != nil {
		lastUpdate = time.Now()
	}

	return &UploadProgress{
		DocumentID:           dto.DocumentID,
		Filename:             dto.Filename,
		FileSize:             dto.FileSize,
		Status:               DocumentStatus(dto.Status),
		Progress:             dto.Progress,
		CurrentStep:          dto.CurrentStep,
		StartedAt:            startedAt,
		LastUpdate:           lastUpdate,
		EstimatedRemainingMs: dto.EstimatedRemainingMs,
		ErrorMessage:         dto.ErrorMessage,
		Metadata:             dto.Metadata,
	}, nil
}

// FileValidationRequest asks whether a file would be accepted for upload
type FileValidationRequest struct {
	Filename    string `json:"filename"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type,omitempty"`
}

// Validate checks the request itself
func (r *FileValidationRequest) Validate() error {
	if r.Filename == "" {
		return &ValidationError{Field: "filename", Message: "filename is required"}
	}
	if r.FileSize < 0 {
		return &ValidationError{Field: "file_size", Message: "file size cannot be negative"}
	}
	return nil
}

// ValidationReport is the outcome of pre-upload validation
type ValidationReport struct {
	IsValid           bool      `json:"is_valid"`
	Errors            []string  `json:"errors"`
	Warnings          []string  `json:"warnings"`
	FileExtension     string    `json:"file_extension"`
	ContentType       string    `json:"content_type,omitempty"`
	EstimatedTimeMs   int64     `json:"estimated_time_ms"`
	SupportedFeatures []string  `json:"supported_features"`
	CheckedAt         time.Time `json:"checked_at"`
}
