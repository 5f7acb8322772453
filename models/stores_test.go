package models

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/getreviewhawk/reviewhawk/billing-engine/tests"
)

func setupApiStore(t *testing.T) (*ApiStore, sqlmock.Sqlmock, func()) {
	db, mock, cleanup := tests.SetupMockStore(t)

	store := &ApiStore{
		db: db,
	}

	return store, mock, cleanup
}
