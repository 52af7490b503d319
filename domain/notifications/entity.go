package notifications

import (
	"time"

	"github.com/uptrace/bun"
)

// Job statuses
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is a queued outbound notification. Delivery is asynchronous and
// best-effort; nothing in the membership lifecycle waits on it.
type Job struct {
	bun.BaseModel `bun:"table:core.notification_jobs,alias:nj"`

	ID           string         `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	TemplateName string         `bun:"template_name,notnull" json:"templateName"`
	ToEmail      string         `bun:"to_email,notnull" json:"toEmail"`
	ToName       *string        `bun:"to_name" json:"toName,omitempty"`
	Subject      string         `bun:"subject,notnull" json:"subject"`
	TemplateData map[string]any `bun:"template_data,type:jsonb" json:"templateData"`
	Status       string         `bun:"status,notnull,default:'pending'" json:"status"`
	Attempts     int            `bun:"attempts,notnull" json:"attempts"`
	MaxAttempts  int            `bun:"max_attempts,notnull" json:"maxAttempts"`
	LastError    *string        `bun:"last_error" json:"lastError,omitempty"`
	NextRetryAt  time.Time      `bun:"next_retry_at,notnull" json:"nextRetryAt"`
	StartedAt    *time.Time     `bun:"started_at" json:"startedAt,omitempty"`
	CompletedAt  *time.Time     `bun:"completed_at" json:"completedAt,omitempty"`
	CreatedAt    time.Time      `bun:"created_at,notnull,default:now()" json:"createdAt"`
}
