package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

type MemberRole string

const (
	RoleOwner  MemberRole = "OWNER"
	RoleAdmin  MemberRole = "ADMIN"
	RoleMember MemberRole = "MEMBER"
)

// OrganizationMember joins a user to an organization. HasSeat marks the
// members holding one of the purchased license slots.
type OrganizationMember struct {
	ID             string     `gorm:"primaryKey"`
	OrganizationID string
	UserID         string
	Role           MemberRole
	HasSeat        bool
	JoinedAt       time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// autoAssignOrder ranks members for seat auto-assignment: owners first, then
// admins, then members, oldest joiner winning ties. The ordering is a product
// policy and must not change.
const autoAssignOrder = "CASE role WHEN 'OWNER' THEN 0 WHEN 'ADMIN' THEN 1 ELSE 2 END, joined_at ASC"

// seatTrimOrder is the reverse: when capacity shrinks, members lose their
// seats before admins, admins before owners, newest joiner first.
const seatTrimOrder = "CASE role WHEN 'OWNER' THEN 2 WHEN 'ADMIN' THEN 1 ELSE 0 END, joined_at DESC"

func (store *ApiStore) FetchMember(orgID string, userID string) utils.Result[*OrganizationMember] {
	var member OrganizationMember

	result := store.db.Connection.
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Limit(1).
		Find(&member)

	if result.Error != nil {
		return utils.FailedResult[*OrganizationMember](result.Error)
	}
	if member.ID == "" {
		return utils.FailedResult[*OrganizationMember](ErrMemberNotFound).
			NonCapturable().
			NonRetryable()
	}

	return utils.SuccessResult(&member)
}

func (store *ApiStore) CountAssignedSeats(orgID string) utils.Result[int64] {
	var count int64

	result := store.db.Connection.
		Model(&OrganizationMember{}).
		Where("organization_id = ? AND has_seat = ?", orgID, true).
		Count(&count)

	if result.Error != nil {
		return utils.FailedResult[int64](result.Error)
	}

	return utils.SuccessResult(count)
}

// AssignSeat grants a seat to the member. The organization row is locked for
// the duration of the transaction so the capacity re-check and the seat
// write are atomic: two concurrent assignments cannot both take the last
// seat. Re-assigning a member who already holds a seat is a no-op so caller
// retries stay idempotent.
func (store *ApiStore) AssignSeat(orgID string, userID string) utils.Result[bool] {
	err := store.db.Connection.Transaction(func(tx *gorm.DB) error {
		org, err := lockOrganization(tx, orgID)
		if err != nil {
			return err
		}
		if !org.HasActiveSubscription() {
			return ErrNoActiveSubscription
		}

		var member OrganizationMember
		if err := tx.Where("organization_id = ? AND user_id = ?", orgID, userID).
			Limit(1).
			Find(&member).Error; err != nil {
			return err
		}
		if member.ID == "" {
			return ErrMemberNotFound
		}
		if member.HasSeat {
			return nil
		}

		var assigned int64
		if err := tx.Model(&OrganizationMember{}).
			Where("organization_id = ? AND has_seat = ?", orgID, true).
			Count(&assigned).Error; err != nil {
			return err
		}
		if assigned >= int64(org.SeatCount) {
			return ErrSeatCapacityExceeded
		}

		return tx.Model(&OrganizationMember{}).
			Where("id = ?", member.ID).
			Update("has_seat", true).Error
	})

	if err != nil {
		return failedSeatResult(err)
	}

	return utils.SuccessResult(true)
}

// UnassignSeat removes the member's seat. Succeeds if the member holds a
// seat, and stays a no-op success on retry once the seat is gone.
func (store *ApiStore) UnassignSeat(orgID string, userID string) utils.Result[bool] {
	err := store.db.Connection.Transaction(func(tx *gorm.DB) error {
		var member OrganizationMember
		if err := tx.Where("organization_id = ? AND user_id = ?", orgID, userID).
			Limit(1).
			Find(&member).Error; err != nil {
			return err
		}
		if member.ID == "" {
			return ErrMemberNotFound
		}
		if !member.HasSeat {
			return nil
		}

		return tx.Model(&OrganizationMember{}).
			Where("id = ?", member.ID).
			Update("has_seat", false).Error
	})

	if err != nil {
		return failedSeatResult(err)
	}

	return utils.SuccessResult(true)
}

// ReassignSeat moves a seat between two members atomically: there is no
// observable state where both or neither of the pair hold the seat.
func (store *ApiStore) ReassignSeat(orgID string, sourceUserID string, targetUserID string) utils.Result[bool] {
	err := store.db.Connection.Transaction(func(tx *gorm.DB) error {
		if _, err := lockOrganization(tx, orgID); err != nil {
			return err
		}

		var source OrganizationMember
		if err := tx.Where("organization_id = ? AND user_id = ?", orgID, sourceUserID).
			Limit(1).
			Find(&source).Error; err != nil {
			return err
		}
		if source.ID == "" {
			return ErrMemberNotFound
		}
		if !source.HasSeat {
			return ErrNoSeatHeld
		}

		var target OrganizationMember
		if err := tx.Where("organization_id = ? AND user_id = ?", orgID, targetUserID).
			Limit(1).
			Find(&target).Error; err != nil {
			return err
		}
		if target.ID == "" {
			return ErrMemberNotFound
		}
		if target.HasSeat {
			return ErrSeatAlreadyAssigned
		}

		if err := tx.Model(&OrganizationMember{}).
			Where("id = ?", source.ID).
			Update("has_seat", false).Error; err != nil {
			return err
		}

		return tx.Model(&OrganizationMember{}).
			Where("id = ?", target.ID).
			Update("has_seat", true).Error
	})

	if err != nil {
		return failedSeatResult(err)
	}

	return utils.SuccessResult(true)
}

// AutoAssignSeats grants up to quantity seats to seatless members in
// owner-admin-member order inside one locked transaction. Grants are capped
// at the remaining capacity re-read under the lock, so a caller quantity can
// never push held seats past seat_count. Returns the number of seats granted.
func (store *ApiStore) AutoAssignSeats(orgID string, quantity int) utils.Result[int] {
	if quantity <= 0 {
		return utils.SuccessResult(0)
	}

	assigned := 0

	err := store.db.Connection.Transaction(func(tx *gorm.DB) error {
		org, err := lockOrganization(tx, orgID)
		if err != nil {
			return err
		}

		var seated int64
		if err := tx.Model(&OrganizationMember{}).
			Where("organization_id = ? AND has_seat = ?", orgID, true).
			Count(&seated).Error; err != nil {
			return err
		}

		grantable := org.SeatCount - int(seated)
		if grantable < quantity {
			quantity = grantable
		}
		if quantity <= 0 {
			return nil
		}

		var candidates []OrganizationMember
		if err := tx.Where("organization_id = ? AND has_seat = ?", orgID, false).
			Order(autoAssignOrder).
			Limit(quantity).
			Find(&candidates).Error; err != nil {
			return err
		}

		if len(candidates) == 0 {
			return nil
		}

		ids := make([]string, 0, len(candidates))
		for _, member := range candidates {
			ids = append(ids, member.ID)
		}

		update := tx.Model(&OrganizationMember{}).
			Where("id IN ?", ids).
			Update("has_seat", true)
		if update.Error != nil {
			return update.Error
		}

		assigned = int(update.RowsAffected)
		return nil
	})

	if err != nil {
		return utils.FailedResult[int](err)
	}

	return utils.SuccessResult(assigned)
}

// trimExcessSeats unassigns seats beyond seatCount in seatTrimOrder. Called
// inside the transaction that writes a new seat_count, so the count re-check
// and the unassignments commit atomically with the capacity change.
func trimExcessSeats(tx *gorm.DB, orgID string, seatCount int) error {
	if seatCount < 0 {
		seatCount = 0
	}

	var seated int64
	if err := tx.Model(&OrganizationMember{}).
		Where("organization_id = ? AND has_seat = ?", orgID, true).
		Count(&seated).Error; err != nil {
		return err
	}

	excess := int(seated) - seatCount
	if excess <= 0 {
		return nil
	}

	var holders []OrganizationMember
	if err := tx.Where("organization_id = ? AND has_seat = ?", orgID, true).
		Order(seatTrimOrder).
		Limit(excess).
		Find(&holders).Error; err != nil {
		return err
	}

	ids := make([]string, 0, len(holders))
	for _, member := range holders {
		ids = append(ids, member.ID)
	}

	return tx.Model(&OrganizationMember{}).
		Where("id IN ?", ids).
		Update("has_seat", false).Error
}

func lockOrganization(tx *gorm.DB, orgID string) (*Organization, error) {
	var org Organization

	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orgID).
		Limit(1).
		Find(&org)

	if result.Error != nil {
		return nil, result.Error
	}
	if org.ID == "" {
		return nil, ErrOrganizationNotFound
	}

	return &org, nil
}

func failedSeatResult(err error) utils.Result[bool] {
	result := utils.FailedBoolResult(err)

	switch err {
	case ErrOrganizationNotFound, ErrMemberNotFound, ErrSeatCapacityExceeded,
		ErrNoActiveSubscription, ErrSeatAlreadyAssigned, ErrNoSeatHeld:
		result = result.NonCapturable().NonRetryable()
	}

	return result
}
