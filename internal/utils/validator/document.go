package validator

import (
	"fmt"
	"strings"

	"github.com/feichai0017/document-ingest/internal/models"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

const (
	CodeDuplicateName   = "DUPLICATE_NAME"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeInvalidFileType = "INVALID_FILE_TYPE"
)

// NameLookup reports whether a file name is already registered.
type NameLookup interface {
	Has(name string) bool
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize int64
	// AllowedExtensions are lowercase, without the leading dot. Empty accepts everything.
	AllowedExtensions []string
}

// FileValidator is the metadata-only gatekeeper run before registration.
type FileValidator struct {
	logger  logger.Logger
	config  ValidatorConfig
	allowed map[string]struct{}
}

func NewFileValidator(log logger.Logger, cfg ValidatorConfig) *FileValidator {
	if log == nil {
		log = logger.NewNop()
	}
	v := &FileValidator{
		logger: log.Named("validator"),
		config: cfg,
	}
	v.config.AllowedExtensions = normalizeExtensions(cfg.AllowedExtensions)
	if len(v.config.AllowedExtensions) > 0 {
		v.allowed = make(map[string]struct{}, len(v.config.AllowedExtensions))
		for _, ext := range v.config.AllowedExtensions {
			v.allowed[ext] = struct{}{}
		}
	}
	return v
}

// Validate applies the duplicate, size and extension rules in that order and
// stops at the first failure.
func (v *FileValidator) Validate(file models.Candidate, registered NameLookup) models.ValidationResult {
	if registered != nil && registered.Has(file.Name) {
		return v.reject(file, CodeDuplicateName, models.ErrDuplicateName,
			fmt.Sprintf("a file named %q has already been added", file.Name))
	}

	if v.config.MaxFileSize > 0 && file.Size > v.config.MaxFileSize {
		size, limit := FormatSizePair(file.Size, v.config.MaxFileSize)
		return v.reject(file, CodeFileTooLarge, models.ErrFileTooLarge,
			fmt.Sprintf("file %q is %s, which exceeds the maximum size of %s", file.Name, size, limit))
	}

	if v.allowed != nil {
		ext := file.Extension()
		if _, ok := v.allowed[ext]; !ok {
			shown := ext
			if shown == "" {
				shown = "(none)"
			}
			return v.reject(file, CodeInvalidFileType, models.ErrExtensionNotAllowed,
				fmt.Sprintf("file type %q is not allowed (allowed: %s)", shown, strings.Join(v.config.AllowedExtensions, ", ")))
		}
	}

	return models.ValidationResult{Accepted: true}
}

func (v *FileValidator) reject(file models.Candidate, code string, err error, reason string) models.ValidationResult {
	v.logger.Debug("File rejected",
		logger.String("filename", file.Name),
		logger.String("code", code),
		logger.String("reason", reason),
	)
	return models.ValidationResult{
		Code:   code,
		Reason: reason,
		Err:    fmt.Errorf("%w: %s", err, reason),
	}
}

// AllowedExtensions returns the normalized allow-list.
func (v *FileValidator) AllowedExtensions() []string {
	return append([]string(nil), v.config.AllowedExtensions...)
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext == "" {
			continue
		}
		if _, dup := seen[ext]; dup {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

var sizeUnits = []struct {
	name  string
	bytes float64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
}

// FormatSizePair renders size and limit in the same unit, picked from limit.
func FormatSizePair(size, limit int64) (string, string) {
	for _, u := range sizeUnits {
		if float64(limit) >= u.bytes {
			return fmt.Sprintf("%.2f %s", float64(size)/u.bytes, u.name),
				fmt.Sprintf("%.2f %s", float64(limit)/u.bytes, u.name)
		}
	}
	return fmt.Sprintf("%d bytes", size), fmt.Sprintf("%d bytes", limit)
}
