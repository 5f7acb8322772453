package models

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

var lockOrganizationQuery = regexp.QuoteMeta(`SELECT * FROM "organizations" WHERE id = $1 LIMIT $2 FOR UPDATE`)
var fetchMemberQuery = regexp.QuoteMeta(`SELECT * FROM "organization_members" WHERE organization_id = $1 AND user_id = $2 LIMIT $3`)
var countSeatsQuery = regexp.QuoteMeta(`SELECT count(*) FROM "organization_members" WHERE organization_id = $1 AND has_seat = $2`)

// The full ORDER BY is pinned on purpose: the owner-admin-member ranking is a
// product policy and removing it must fail this test.
var autoAssignCandidatesQuery = regexp.QuoteMeta(`SELECT * FROM "organization_members" WHERE organization_id = $1 AND has_seat = $2 ORDER BY CASE role WHEN 'OWNER' THEN 0 WHEN 'ADMIN' THEN 1 ELSE 2 END, joined_at ASC LIMIT $3`)

var memberColumns = []string{
	"id", "organization_id", "user_id", "role", "has_seat",
	"joined_at", "created_at", "updated_at",
}

func memberRow(id string, orgID string, userID string, role string, hasSeat bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(memberColumns).
		AddRow(id, orgID, userID, role, hasSeat, now, now, now)
}

func TestFetchMember(t *testing.T) {
	t.Run("should return the member when found", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectQuery(fetchMemberQuery).
			WithArgs("org_1", "user_1", 1).
			WillReturnRows(memberRow("mem_1", "org_1", "user_1", "ADMIN", true))

		result := store.FetchMember("org_1", "user_1")

		assert.True(t, result.Success())
		assert.Equal(t, "mem_1", result.Value().ID)
		assert.Equal(t, RoleAdmin, result.Value().Role)
		assert.True(t, result.Value().HasSeat)
	})

	t.Run("should report a missing member as non retryable", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectQuery(fetchMemberQuery).
			WithArgs("org_1", "ghost", 1).
			WillReturnRows(sqlmock.NewRows(memberColumns))

		result := store.FetchMember("org_1", "ghost")

		assert.True(t, result.Failure())
		assert.Equal(t, ErrMemberNotFound, result.Error())
		assert.False(t, result.IsRetryable())
	})
}

func TestAssignSeat(t *testing.T) {
	t.Run("should grant a seat while capacity remains", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery(lockOrganizationQuery).
			WithArgs("org_1", 1).
			WillReturnRows(organizationRow("org_1", "PRO", "ACTIVE", "sub_1", 5))
		mock.ExpectQuery(fetchMemberQuery).
			WithArgs("org_1", "user_1", 1).
			WillReturnRows(memberRow("mem_1", "org_1", "user_1", "MEMBER", false))
		mock.ExpectQuery(countSeatsQuery).
			WithArgs("org_1", true).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectExec(`UPDATE "organization_members" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result := store.AssignSeat("org_1", "user_1")

		assert.True(t, result.Success())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should reject assignment beyond capacity and roll back", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery(lockOrganizationQuery).
			WithArgs("org_1", 1).
			WillReturnRows(organizationRow("org_1", "PRO", "ACTIVE", "sub_1", 1))
		mock.ExpectQuery(fetchMemberQuery).
			WithArgs("org_1", "user_2", 1).
			WillReturnRows(memberRow("mem_2", "org_1", "user_2", "MEMBER", false))
		mock.ExpectQuery(countSeatsQuery).
			WithArgs("org_1", true).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectRollback()

		result := store.AssignSeat("org_1", "user_2")

		assert.True(t, result.Failure())
		assert.Equal(t, ErrSeatCapacityExceeded, result.Error())
		assert.False(t, result.IsRetryable())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should be a no-op when the member already holds a seat", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery(lockOrganizationQuery).
			WithArgs("org_1", 1).
			WillReturnRows(organizationRow("org_1", "PRO", "ACTIVE", "sub_1", 5))
		mock.ExpectQuery(fetchMemberQuery).
			WithArgs("org_1", "user_1", 1).
			WillReturnRows(memberRow("mem_1", "org_1", "user_1", "MEMBER", true))
		mock.ExpectCommit()

		result := store.AssignSeat("org_1", "user_1")

		assert.True(t, result.Success())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should reject when the subscription is inactive", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery(lockOrganizationQuery).
			WithArgs("org_1", 1).
			WillReturnRows(organizationRow("org_1", "PRO", "CANCELLED", "sub_1", 5))
		mock.ExpectRollback()

		result := store.AssignSeat("org_1", "user_1")

		assert.True(t, result.Failure())
		assert.Equal(t, ErrNoActiveSubscription, result.Error())
	})
}

func TestUnassignSeat(t *testing.T) {
	t.Run("should free the seat", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery(fetchMemberQuery).
			WithArgs("org_1", "user_1", 1).
			WillReturnRows(memberRow("mem_1", "org_1", "user_1", "MEMBER", true))
		mock.ExpectExec(`UPDATE "organization_members" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result := store.UnassignSeat("org_1", "user_1")

		assert.True(t, result.Success())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should stay a no-op on retry once the seat is gone", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery(fetchMemberQuery).
			WithArgs("org_1", "user_1", 1).
			WillReturnRows(memberRow("mem_1", "org_1", "user_1", "MEMBER", false))
		mock.ExpectCommit()

		result := store.UnassignSeat("org_1", "user_1")

		assert.True(t, result.Success())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReassignSeat(t *testing.T) {
	t.Run("should move the seat atomically", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery(lockOrganizationQuery).
			WithArgs("org_1", 1).
			WillReturnRows(organizationRow("org_1", "PRO", "ACTIVE", "sub_1", 5))
		mock.ExpectQuery(fetchMemberQuery).
			WithArgs("org_1", "user_1", 1).
			WillReturnRows(memberRow("mem_1", "org_1", "user_1", "MEMBER", true))
		mock.ExpectQuery(fetchMemberQuery).
			WithArgs("org_1", "user_2", 1).
			WillReturnRows(memberRow("mem_2", "org_1", "user_2", "MEMBER", false))
		mock.ExpectExec(`UPDATE "organization_members" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE "organization_members" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result := store.ReassignSeat("org_1", "user_1", "user_2")

		assert.True(t, result.Success())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should refuse when the source holds no seat", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery(lockOrganizationQuery).
			WithArgs("org_1", 1).
			WillReturnRows(organizationRow("org_1", "PRO", "ACTIVE", "sub_1", 5))
		mock.ExpectQuery(fetchMemberQuery).
			WithArgs("org_1", "user_1", 1).
			WillReturnRows(memberRow("mem_1", "org_1", "user_1", "MEMBER", false))
		mock.ExpectRollback()

		result := store.ReassignSeat("org_1", "user_1", "user_2")

		assert.True(t, result.Failure())
		assert.Equal(t, ErrNoSeatHeld, result.Error())
	})

	t.Run("should refuse when the target already holds a seat", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery(lockOrganizationQuery).
			WithArgs("org_1", 1).
			WillReturnRows(organizationRow("org_1", "PRO", "ACTIVE", "sub_1", 5))
		mock.ExpectQuery(fetchMemberQuery).
			WithArgs("org_1", "user_1", 1).
			WillReturnRows(memberRow("mem_1", "org_1", "user_1", "MEMBER", true))
		mock.ExpectQuery(fetchMemberQuery).
			WithArgs("org_1", "user_2", 1).
			WillReturnRows(memberRow("mem_2", "org_1", "user_2", "MEMBER", true))
		mock.ExpectRollback()

		result := store.ReassignSeat("org_1", "user_1", "user_2")

		assert.True(t, result.Failure())
		assert.Equal(t, ErrSeatAlreadyAssigned, result.Error())
	})
}

func TestAutoAssignSeats(t *testing.T) {
	t.Run("should grant seats to the ranked seatless members", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		candidates := sqlmock.NewRows(memberColumns)
		now := time.Now()
		candidates.AddRow("mem_owner", "org_1", "user_o", "OWNER", false, now, now, now)
		candidates.AddRow("mem_admin", "org_1", "user_a", "ADMIN", false, now, now, now)

		mock.ExpectBegin()
		mock.ExpectQuery(lockOrganizationQuery).
			WithArgs("org_1", 1).
			WillReturnRows(organizationRow("org_1", "PRO", "ACTIVE", "sub_1", 2))
		mock.ExpectQuery(countSeatsQuery).
			WithArgs("org_1", true).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(autoAssignCandidatesQuery).
			WithArgs("org_1", false, 2).
			WillReturnRows(candidates)
		mock.ExpectExec(`UPDATE "organization_members" SET`).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		result := store.AutoAssignSeats("org_1", 2)

		assert.True(t, result.Success())
		assert.Equal(t, 2, result.Value())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should cap grants at the capacity left under the lock", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		now := time.Now()
		candidates := sqlmock.NewRows(memberColumns).
			AddRow("mem_owner", "org_1", "user_o", "OWNER", false, now, now, now)

		mock.ExpectBegin()
		mock.ExpectQuery(lockOrganizationQuery).
			WithArgs("org_1", 1).
			WillReturnRows(organizationRow("org_1", "PRO", "ACTIVE", "sub_1", 3))
		mock.ExpectQuery(countSeatsQuery).
			WithArgs("org_1", true).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery(autoAssignCandidatesQuery).
			WithArgs("org_1", false, 1).
			WillReturnRows(candidates)
		mock.ExpectExec(`UPDATE "organization_members" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result := store.AutoAssignSeats("org_1", 2)

		assert.True(t, result.Success())
		assert.Equal(t, 1, result.Value())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should grant nothing when every seat is already held", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery(lockOrganizationQuery).
			WithArgs("org_1", 1).
			WillReturnRows(organizationRow("org_1", "PRO", "ACTIVE", "sub_1", 2))
		mock.ExpectQuery(countSeatsQuery).
			WithArgs("org_1", true).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectCommit()

		result := store.AutoAssignSeats("org_1", 3)

		assert.True(t, result.Success())
		assert.Equal(t, 0, result.Value())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should succeed with zero grants when everyone is seated", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery(lockOrganizationQuery).
			WithArgs("org_1", 1).
			WillReturnRows(organizationRow("org_1", "PRO", "ACTIVE", "sub_1", 2))
		mock.ExpectQuery(countSeatsQuery).
			WithArgs("org_1", true).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(autoAssignCandidatesQuery).
			WithArgs("org_1", false, 2).
			WillReturnRows(sqlmock.NewRows(memberColumns))
		mock.ExpectCommit()

		result := store.AutoAssignSeats("org_1", 2)

		assert.True(t, result.Success())
		assert.Equal(t, 0, result.Value())
	})

	t.Run("should be a no-op for a non positive quantity", func(t *testing.T) {
		store, _, cleanup := setupApiStore(t)
		defer cleanup()

		result := store.AutoAssignSeats("org_1", 0)

		assert.True(t, result.Success())
		assert.Equal(t, 0, result.Value())
	})
}

func TestIncrementOrgUsage(t *testing.T) {
	t.Run("should debit the usage counter under the organization lock", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery(lockOrganizationQuery).
			WithArgs("org_1", 1).
			WillReturnRows(organizationRow("org_1", "PRO", "ACTIVE", "sub_1", 5))
		mock.ExpectExec(`UPDATE "organizations" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result := store.IncrementOrgUsage("org_1", 2)

		assert.True(t, result.Success())
		assert.Equal(t, 2, result.Value())
	})

	t.Run("should reject a non positive amount without querying", func(t *testing.T) {
		store, _, cleanup := setupApiStore(t)
		defer cleanup()

		result := store.IncrementOrgUsage("org_1", 0)

		assert.True(t, result.Failure())
		assert.Equal(t, ErrInvalidUsageAmount, result.Error())
		assert.False(t, result.IsRetryable())
	})

	t.Run("should reject debits against an inactive subscription", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery(lockOrganizationQuery).
			WithArgs("org_1", 1).
			WillReturnRows(organizationRow("org_1", "", "INACTIVE", "sub_1", 0))
		mock.ExpectRollback()

		result := store.IncrementOrgUsage("org_1", 1)

		assert.True(t, result.Failure())
		assert.Equal(t, ErrNoActiveSubscription, result.Error())
		assert.False(t, result.IsRetryable())
	})
}
