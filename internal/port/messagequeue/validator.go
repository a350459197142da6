package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is a well-formed event for the given
// subject. Workflow and credit subjects must carry a complete envelope;
// unknown subjects pass validation (future-proof for new streams).
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	if !strings.HasPrefix(subject, SubjectWorkflowPrefix) && !strings.HasPrefix(subject, SubjectCreditPrefix) {
		return nil
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if env.ID == "" || env.SessionID == "" || env.Type == "" {
		return fmt.Errorf("schema validation failed for %s: envelope missing id, session_id or type", subject)
	}
	return nil
}
