package services

import (
	"log"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerorag/config"
	"zerorag/internal/models"
)

func newTestFileValidator() *FileValidator {
	cfg := config.ProcessingConfig{
		MaxFileSizeBytes: 10 * 1024 * 1024,
		SupportedFormats: []string{"txt", "md", "csv"},
	}
	return NewFileValidator(cfg, log.New(os.Stdout, "[TEST] ", log.LstdFlags))
}

func TestFileValidator_AcceptsSupportedFile(t *testing.T) {
	validator := newTestFileValidator()

	result := validator.Validate("notes.txt", 2048, "text/plain")

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "txt", result.Extension)
	assert.NoError(t, result.Violation())
	assert.Greater(t, result.EstimatedSeconds, 0.0)
}

func TestFileValidator_RejectsUnsupportedFormat(t *testing.T) {
	validator := newTestFileValidator()

	result := validator.Validate("report.pdf", 2048, "application/pdf")

	assert.False(t, result.Valid)
	assert.Equal(t, "UNSUPPORTED_FORMAT", result.ErrorCode)
	require.Error(t, result.Violation())
	assert.True(t, models.IsValidation(result.Violation()))
	assert.Equal(t, "UNSUPPORTED_FORMAT", models.ErrorCode(result.Violation()))
}

func TestFileValidator_RejectsOversizedFile(t *testing.T) {
	validator := newTestFileValidator()

	result := validator.Validate("big.txt", 11*1024*1024, "text/plain")

	assert.False(t, result.Valid)
	assert.Equal(t, "FILE_TOO_LARGE", result.ErrorCode)
	assert.Contains(t, result.Errors[0], "exceeds limit")
}

func TestFileValidator_RejectsEmptyFile(t *testing.T) {
	validator := newTestFileValidator()

	result := validator.Validate("empty.txt", 0, "text/plain")

	assert.False(t, result.Valid)
	assert.Equal(t, "EMPTY_DOCUMENT", result.ErrorCode)
}

func TestFileValidator_RejectsBadFilenames(t *testing.T) {
	validator := newTestFileValidator()

	tests := []struct {
		name     string
		filename string
	}{
		{"empty name", ""},
		{"path traversal", "../../etc/passwd.txt"},
		{"backslash path", `docs\notes.txt`},
		{"no extension", "README"},
		{"overlong name", strings.Repeat("a", 300) + ".txt"},
		{"hidden executable", "invoice.exe.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validator.Validate(tt.filename, 100, "")
			assert.False(t, result.Valid, "expected %q to be rejected", tt.filename)
			assert.NotEmpty(t, result.ErrorCode)
		})
	}
}

func TestFileValidator_WarnsOnContentTypeMismatch(t *testing.T) {
	validator := newTestFileValidator()

	result := validator.Validate("data.txt", 100, "text/csv")

	assert.True(t, result.Valid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "unusual")
}

func TestFileValidator_IgnoresContentTypeParameters(t *testing.T) {
	validator := newTestFileValidator()

	result := validator.Validate("notes.md", 100, "text/markdown; charset=utf-8")

	assert.True(t, result.Valid)
	assert.Empty(t, result.Warnings)
}

func TestFileValidator_WarnsOnHiddenFile(t *testing.T) {
	validator := newTestFileValidator()

	result := validator.Validate(".secrets.txt", 100, "text/plain")

	assert.True(t, result.Valid)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "hidden")
}

func TestEstimateProcessingSeconds(t *testing.T) {
	specs := config.DefaultFormats()

	// 1 MB of plain text at 1 MB/s.
	assert.InDelta(t, 1.0, estimateProcessingSeconds(specs, 1<<20, "txt"), 0.01)
	// CSV carries a 1.5x multiplier.
	assert.InDelta(t, 1.5, estimateProcessingSeconds(specs, 1<<20, "csv"), 0.01)
	// Estimates cap at five minutes.
	assert.Equal(t, 300.0, estimateProcessingSeconds(specs, 1<<30, "csv"))
	// Tiny files floor at a tenth of a second.
	assert.Equal(t, 0.1, estimateProcessingSeconds(specs, 10, "txt"))
}
