// Package recognizer defines the port interface for the upstream
// intent recognition service.
package recognizer

import (
	"context"

	"github.com/zhuermu/zmead-sub004/internal/domain/intent"
)

// Request carries one user message plus the session context the
// recognizer needs to resolve pronouns and follow-ups.
type Request struct {
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id"`
	Text      string            `json:"text"`
	Context   map[string]string `json:"context,omitempty"`
}

// Recognizer turns free text into a structured intent. Unreachable or
// overloaded upstreams surface as transient domain errors.
type Recognizer interface {
	Recognize(ctx context.Context, req Request) (*intent.Intent, error)
}
