package domain

import "github.com/google/uuid"

// EmailTemplate is a subject/body pair with {{placeholder}} tokens, looked up
// by internal name once per reminder kind and reused across all recipients of
// that kind within a run.
type EmailTemplate struct {
	ID           uuid.UUID
	InternalName string
	Subject      string
	HTMLBody     string
}
