package services

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"zerorag/config"
	"zerorag/internal/models"
)

const (
	maxFilenameLength = 255

	// Estimated throughput used for processing-time predictions.
	validatorBytesPerSecond = 1 << 20
	maxEstimatedSeconds     = 300.0
)

// dangerousSuffixes flag executable payloads smuggled behind a text
// extension, e.g. "report.exe.txt".
var dangerousSuffixes = []string{
	".exe", ".bat", ".cmd", ".com", ".scr", ".vbs", ".ps1", ".sh", ".php", ".jar", ".dll",
}

// FileValidationResult reports everything the upload endpoint needs to
// accept or reject a file before any bytes are parsed.
type FileValidationResult struct {
	Valid            bool     `json:"valid"`
	Filename         string   `json:"filename"`
	Extension        string   `json:"extension"`
	SizeBytes        int64    `json:"size_bytes"`
	Errors           []string `json:"errors,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	ErrorCode        string   `json:"error_code,omitempty"`
	EstimatedSeconds float64  `json:"estimated_seconds"`
}

// Violation converts a failed result into the error the pipeline returns.
// The first recorded failure wins.
func (r *FileValidationResult) Violation() error {
	if r.Valid {
		return nil
	}
	message := "file failed validation"
	if len(r.Errors) > 0 {
		message = r.Errors[0]
	}
	return models.NewValidationError("pipeline.validate", message).WithCode(r.ErrorCode)
}

// FileValidator screens uploads against the configured format and size
// limits before they reach the parsing pipeline.
type FileValidator struct {
	cfg     config.ProcessingConfig
	formats []config.FormatSpec
	logger  *log.Logger
}

// NewFileValidator creates a validator bound to the processing limits.
func NewFileValidator(cfg config.ProcessingConfig, logger *log.Logger) *FileValidator {
	if logger == nil {
		logger = log.Default()
	}
	formats := cfg.Formats
	if len(formats) == 0 {
		formats = config.DefaultFormats()
	}
	return &FileValidator{cfg: cfg, formats: formats, logger: logger}
}

// Validate screens a file by name, size, and declared content type. It
// never reads content; format-level problems surface later in parsing.
func (v *FileValidator) Validate(filename string, sizeBytes int64, declaredType string) *FileValidationResult {
	result := &FileValidationResult{
		Valid:     true,
		Filename:  filename,
		SizeBytes: sizeBytes,
	}

	v.checkFilename(result)
	if result.Extension != "" {
		v.checkExtension(result)
	}
	v.checkSize(result)
	v.checkContentType(result, declaredType)

	if result.Valid {
		result.EstimatedSeconds = estimateProcessingSeconds(v.formats, sizeBytes, result.Extension)
	}

	if !result.Valid {
		v.logger.Printf("⚠️ Rejected upload %q: %s", filename, strings.Join(result.Errors, "; "))
	}
	return result
}

func (v *FileValidator) checkFilename(result *FileValidationResult) {
	name := strings.TrimSpace(result.Filename)
	switch {
	case name == "":
		result.fail("INVALID_FILENAME", "filename is empty")
		return
	case len(name) > maxFilenameLength:
		result.fail("INVALID_FILENAME", fmt.Sprintf("filename exceeds %d characters", maxFilenameLength))
		return
	case strings.ContainsAny(name, "/\\") || strings.Contains(name, ".."):
		result.fail("INVALID_FILENAME", "filename must not contain path separators")
		return
	case strings.ContainsRune(name, 0):
		result.fail("INVALID_FILENAME", "filename contains a null byte")
		return
	}

	lower := strings.ToLower(name)
	for _, suffix := range dangerousSuffixes {
		if strings.Contains(lower, suffix+".") {
			result.fail("INVALID_FILENAME", fmt.Sprintf("filename hides a %s extension", suffix))
			return
		}
	}

	if strings.HasPrefix(name, ".") {
		result.warn("hidden file name")
	}

	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		result.fail("UNSUPPORTED_FORMAT", "filename has no extension")
		return
	}
	result.Extension = strings.ToLower(ext)
}

func (v *FileValidator) checkExtension(result *FileValidationResult) {
	if !v.cfg.FormatSupported(result.Extension) {
		result.fail("UNSUPPORTED_FORMAT", fmt.Sprintf("unsupported file format %q, supported: %s",
			"."+result.Extension, strings.Join(v.cfg.SupportedFormats, ", ")))
	}
}

func (v *FileValidator) checkSize(result *FileValidationResult) {
	switch {
	case result.SizeBytes <= 0:
		result.fail("EMPTY_DOCUMENT", "file is empty")
	case v.cfg.MaxFileSizeBytes > 0 && result.SizeBytes > v.cfg.MaxFileSizeBytes:
		result.fail("FILE_TOO_LARGE", fmt.Sprintf("file size %d exceeds limit of %d bytes",
			result.SizeBytes, v.cfg.MaxFileSizeBytes))
	}
}

// checkContentType compares the declared MIME type against the types the
// format registry expects for the extension. Mismatches produce warnings,
// not rejections, because browsers are sloppy about text types.
func (v *FileValidator) checkContentType(result *FileValidationResult, declaredType string) {
	if declaredType == "" || result.Extension == "" {
		return
	}
	mediaType := strings.ToLower(strings.TrimSpace(declaredType))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}

	spec, known := config.FormatFor(v.formats, result.Extension)
	if !known {
		return
	}
	for _, accepted := range spec.ContentTypes {
		if accepted == mediaType {
			return
		}
	}
	result.warn(fmt.Sprintf("content type %q unusual for a .%s file", mediaType, result.Extension))
}

func (r *FileValidationResult) fail(code, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, message)
	if r.ErrorCode == "" {
		r.ErrorCode = code
	}
}

func (r *FileValidationResult) warn(message string) {
	r.Warnings = append(r.Warnings, message)
}

// estimateProcessingSeconds predicts wall time for the full pipeline from
// file size at roughly 1 MB/s, scaled by the format's registered multiplier
// and capped at five minutes.
func estimateProcessingSeconds(specs []config.FormatSpec, sizeBytes int64, extension string) float64 {
	multiplier := 1.0
	if spec, ok := config.FormatFor(specs, extension); ok && spec.TimeMultiplier > 0 {
		multiplier = spec.TimeMultiplier
	}
	seconds := float64(sizeBytes) / validatorBytesPerSecond * multiplier
	if seconds > maxEstimatedSeconds {
		return maxEstimatedSeconds
	}
	if seconds < 0.1 {
		return 0.1
	}
	return seconds
}
