package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// ErrTooLarge marks payloads over a size limit
var ErrTooLarge = errors.New("payload too large")

// Payload limits
const (
	MaxJSONSize   = 1 * 1024 * 1024 // 1MB - maximum RPC params size
	MaxJSONDepth  = 32
	MaxMethodSize = 128
	MaxIDLength   = 128
)

var (
	// MethodPattern matches bundle method names, which are JS identifiers
	MethodPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	// SafeIDPattern allows alphanumeric, hyphens, underscores, dots and colons
	SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
)

// JSONSizeValidator validates JSON size limits
type JSONSizeValidator struct {
	maxSize  int
	maxDepth int
}

// NewJSONSizeValidator creates a new validator with the specified limits
func NewJSONSizeValidator(maxSize, maxDepth int) *JSONSizeValidator {
	return &JSONSizeValidator{maxSize: maxSize, maxDepth: maxDepth}
}

// DefaultJSONValidator returns a validator with the default limits
func DefaultJSONValidator() *JSONSizeValidator {
	return NewJSONSizeValidator(MaxJSONSize, MaxJSONDepth)
}

// ValidateSize checks if the data size is within limits
func (v *JSONSizeValidator) ValidateSize(data []byte) error {
	if size := len(data); size > v.maxSize {
		return fmt.Errorf("%w: %d bytes exceeds maximum %d bytes", ErrTooLarge, size, v.maxSize)
	}
	return nil
}

// ValidateJSON validates size, structure and nesting depth
func (v *JSONSizeValidator) ValidateJSON(data []byte) error {
	// Check size first (faster than parsing)
	if err := v.ValidateSize(data); err != nil {
		return err
	}

	var js any
	if err := sonic.Unmarshal(data, &js); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return checkDepth(js, 0, v.maxDepth)
}

func checkDepth(data any, depth, maxDepth int) error {
	if depth > maxDepth {
		return fmt.Errorf("JSON nesting depth exceeds maximum %d", maxDepth)
	}

	switch v := data.(type) {
	case map[string]any:
		for _, value := range v {
			if err := checkDepth(value, depth+1, maxDepth); err != nil {
				return err
			}
		}
	case []any:
		for _, value := range v {
			if err := checkDepth(value, depth+1, maxDepth); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateMethod checks a bundle method name
func ValidateMethod(name string) error {
	if name == "" {
		return errors.New("method is required")
	}
	if len(name) > MaxMethodSize {
		return fmt.Errorf("method must not exceed %d characters", MaxMethodSize)
	}
	if !MethodPattern.MatchString(name) {
		return fmt.Errorf("method %q is not a valid identifier", name)
	}
	return nil
}

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	// Check for null bytes (security issue)
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	return nil
}

// ValidateID validates an ID field
func ValidateID(id, fieldName string, required bool) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}
	if id != "" && !SafeIDPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	return nil
}
