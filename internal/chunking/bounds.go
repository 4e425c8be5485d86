package chunking

import (
	"fmt"
	"strconv"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// Defaults match the ingest CLI.
const (
	DefaultMinTokens = 150
	DefaultMaxTokens = 2000
)

// Bounds are the token limits a grouping pass works against.
type Bounds struct {
	MinTokens  int
	MaxTokens  int
	TokenCheck bool // false: documents pass through untouched
}

// DefaultBounds returns 150/2000 with token checking enabled.
func DefaultBounds() Bounds {
	return Bounds{MinTokens: DefaultMinTokens, MaxTokens: DefaultMaxTokens, TokenCheck: true}
}

// Validate requires 0 <= MinTokens < MaxTokens.
func (b Bounds) Validate() error {
	if b.MinTokens < 0 {
		return &domain.ConfigurationError{
			Field:    "min_tokens",
			Expected: ">= 0",
			Actual:   strconv.Itoa(b.MinTokens),
		}
	}
	if b.MaxTokens <= b.MinTokens {
		return &domain.ConfigurationError{
			Field:    "max_tokens",
			Expected: fmt.Sprintf("> min_tokens (%d)", b.MinTokens),
			Actual:   strconv.Itoa(b.MaxTokens),
		}
	}
	return nil
}
