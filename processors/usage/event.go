package usage

import (
	"time"

	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

// UsageEvent is one review execution reported by the review service. Amount
// is the number of quota units consumed, normally 1 per review.
type UsageEvent struct {
	OrganizationID string           `json:"organization_id"`
	ReviewID       string           `json:"review_id"`
	RepoFullName   string           `json:"repo_full_name"`
	Amount         int              `json:"amount"`
	IngestedAt     utils.CustomTime `json:"ingested_at"`
}

// FailedUsageEvent wraps an event pushed to the dead letter topic with the
// failure details needed to replay it.
type FailedUsageEvent struct {
	UsageEvent          UsageEvent `json:"usage_event"`
	InitialErrorMessage string     `json:"initial_error_message"`
	ErrorCode           string     `json:"error_code"`
	ErrorMessage        string     `json:"error_message"`
	FailedAt            time.Time  `json:"failed_at"`
}
