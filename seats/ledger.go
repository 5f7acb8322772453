// Package seats exposes the seat ledger: every operation that grants, removes
// or moves a purchased license slot goes through here.
package seats

import (
	"log/slog"

	"github.com/getreviewhawk/reviewhawk/billing-engine/models"
	"github.com/getreviewhawk/reviewhawk/billing-engine/utils"
)

// Store is the subset of the persistence layer the ledger drives. It is
// implemented by models.ApiStore.
type Store interface {
	FetchOrganization(orgID string) utils.Result[*models.Organization]
	CountAssignedSeats(orgID string) utils.Result[int64]
	AssignSeat(orgID string, userID string) utils.Result[bool]
	UnassignSeat(orgID string, userID string) utils.Result[bool]
	ReassignSeat(orgID string, sourceUserID string, targetUserID string) utils.Result[bool]
	AutoAssignSeats(orgID string, quantity int) utils.Result[int]
}

// Availability is the seat occupancy summary for an organization.
type Availability struct {
	Total     int `json:"total"`
	Assigned  int `json:"assigned"`
	Available int `json:"available"`
}

type Ledger struct {
	logger  *slog.Logger
	store   Store
	flagger models.Flagger
}

func NewLedger(logger *slog.Logger, store Store, flagger models.Flagger) *Ledger {
	return &Ledger{
		logger:  logger.With("component", "seat_ledger"),
		store:   store,
		flagger: flagger,
	}
}

// Assign grants a seat to the member, re-checking capacity under the
// organization lock. Retrying an assignment that already succeeded is a
// no-op success.
func (ledger *Ledger) Assign(orgID string, userID string) utils.Result[bool] {
	result := ledger.store.AssignSeat(orgID, userID)
	if result.Failure() {
		return seatResultWithCode(result)
	}

	ledger.flagEntitlementsChanged(orgID)
	ledger.logger.Info("seat assigned", slog.String("organization_id", orgID), slog.String("user_id", userID))
	return result
}

// Unassign frees the member's seat without changing the purchased seat count.
func (ledger *Ledger) Unassign(orgID string, userID string) utils.Result[bool] {
	result := ledger.store.UnassignSeat(orgID, userID)
	if result.Failure() {
		return seatResultWithCode(result)
	}

	ledger.flagEntitlementsChanged(orgID)
	ledger.logger.Info("seat unassigned", slog.String("organization_id", orgID), slog.String("user_id", userID))
	return result
}

// Reassign moves a seat from one member to another in a single transaction.
func (ledger *Ledger) Reassign(orgID string, sourceUserID string, targetUserID string) utils.Result[bool] {
	result := ledger.store.ReassignSeat(orgID, sourceUserID, targetUserID)
	if result.Failure() {
		return seatResultWithCode(result)
	}

	ledger.flagEntitlementsChanged(orgID)
	ledger.logger.Info("seat reassigned",
		slog.String("organization_id", orgID),
		slog.String("source_user_id", sourceUserID),
		slog.String("target_user_id", targetUserID))
	return result
}

// AutoAssign fills up to quantity free seats, owners first, then admins, then
// members by join date. Returns the number of seats granted, which is zero
// when every member already holds one.
func (ledger *Ledger) AutoAssign(orgID string, quantity int) utils.Result[int] {
	result := ledger.store.AutoAssignSeats(orgID, quantity)
	if result.Failure() {
		return result
	}

	if result.Value() > 0 {
		ledger.flagEntitlementsChanged(orgID)
	}
	ledger.logger.Info("seats auto assigned",
		slog.String("organization_id", orgID),
		slog.Int("requested", quantity),
		slog.Int("assigned", result.Value()))
	return result
}

// Availability reports the occupancy summary. Organizations without an active
// subscription have no purchasable capacity regardless of leftover rows.
func (ledger *Ledger) Availability(orgID string) utils.Result[Availability] {
	orgResult := ledger.store.FetchOrganization(orgID)
	if orgResult.Failure() {
		return failedAvailability(orgResult)
	}

	org := orgResult.Value()
	if !org.HasActiveSubscription() {
		return utils.SuccessResult(Availability{})
	}

	countResult := ledger.store.CountAssignedSeats(orgID)
	if countResult.Failure() {
		return utils.FailedResult[Availability](countResult.Error())
	}

	assigned := int(countResult.Value())
	available := org.SeatCount - assigned
	if available < 0 {
		available = 0
	}

	return utils.SuccessResult(Availability{
		Total:     org.SeatCount,
		Assigned:  assigned,
		Available: available,
	})
}

func (ledger *Ledger) flagEntitlementsChanged(orgID string) {
	if ledger.flagger == nil {
		return
	}

	if err := ledger.flagger.Flag(orgID); err != nil {
		ledger.logger.Error("error while flagging entitlements change", slog.String("error", err.Error()))
		utils.CaptureError(err)
	}
}

func seatResultWithCode(result utils.Result[bool]) utils.Result[bool] {
	switch result.Error() {
	case models.ErrSeatCapacityExceeded:
		return result.AddErrorDetails("seat_capacity_exceeded", "all purchased seats are assigned")
	case models.ErrNoActiveSubscription:
		return result.AddErrorDetails("no_active_subscription", "organization has no active subscription")
	case models.ErrSeatAlreadyAssigned:
		return result.AddErrorDetails("seat_already_assigned", "target member already holds a seat")
	case models.ErrNoSeatHeld:
		return result.AddErrorDetails("no_seat_held", "source member does not hold a seat")
	case models.ErrMemberNotFound:
		return result.AddErrorDetails("member_not_found", "member does not belong to the organization")
	case models.ErrOrganizationNotFound:
		return result.AddErrorDetails("organization_not_found", "organization does not exist")
	}

	return result
}

func failedAvailability(orgResult utils.Result[*models.Organization]) utils.Result[Availability] {
	failed := utils.FailedResult[Availability](orgResult.Error())
	if !orgResult.IsRetryable() {
		failed = failed.NonRetryable()
	}
	if !orgResult.IsCapturable() {
		failed = failed.NonCapturable()
	}
	return failed
}
