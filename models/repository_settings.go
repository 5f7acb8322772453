package models

import (
	"time"

	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

// RepositorySettings stores the per-repository feature toggles. Only the
// raw flags live here: whether a feature is effectively on is always derived
// at read time from the owning organization's live subscription state.
type RepositorySettings struct {
	ID             string `gorm:"primaryKey"`
	OrganizationID string
	RepoFullName   string
	Enabled        bool
	TriageEnabled  bool
	AutofixEnabled bool
	Sensitivity    int
	CustomRules    utils.StringArray `gorm:"type:jsonb"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (store *ApiStore) FetchRepositorySettings(orgID string, repoFullName string) utils.Result[*RepositorySettings] {
	var settings RepositorySettings

	result := store.db.Connection.
		Where("organization_id = ? AND repo_full_name = ?", orgID, repoFullName).
		Limit(1).
		Find(&settings)

	if result.Error != nil {
		return utils.FailedResult[*RepositorySettings](result.Error)
	}
	if settings.ID == "" {
		return utils.FailedResult[*RepositorySettings](ErrRepoSettingsNotFound).
			NonCapturable().
			NonRetryable()
	}

	return utils.SuccessResult(&settings)
}
