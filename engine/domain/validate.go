package domain

import (
	"strings"
	"unicode/utf8"
)

// MaxQueryLength bounds a question in runes.
const MaxQueryLength = 4096

// ValidateDocument checks a Document before ingestion.
func ValidateDocument(doc Document) error {
	if strings.TrimSpace(doc.ID) == "" {
		return InvalidArg("id", doc.ID)
	}
	if !utf8.ValidString(doc.Content) {
		return NewValidationError("content", doc.ID, ErrInvalidArgument)
	}
	for k, v := range doc.Metadata {
		if !validMetaValue(v) {
			return NewValidationError("metadata."+k, doc.ID, ErrInvalidArgument)
		}
	}
	return nil
}

// validMetaValue accepts the string and numeric kinds metadata may carry.
func validMetaValue(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// ValidateQuery checks a user question.
func ValidateQuery(q string) error {
	text := strings.TrimSpace(q)
	if text == "" {
		return InvalidArg("query", q)
	}
	if utf8.RuneCountInString(text) > MaxQueryLength {
		return InvalidArg("query", string([]rune(text)[:32])+"...")
	}
	return nil
}

// ValidateK checks a result count.
func ValidateK(k int) error {
	if k <= 0 {
		return InvalidArg("k", k)
	}
	return nil
}
