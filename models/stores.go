package models

import (
	"context"
	"errors"

	"github.com/getreviewhawk/reviewhawk/billing-engine/config/database"
	"github.com/getreviewhawk/reviewhawk/billing-engine/config/redis"
)

// ApiStore owns every read and write against the organization, member and
// repository settings rows. No other code path touches these tables, which
// keeps the seat and subscription invariants enforceable in one place.
type ApiStore struct {
	db *database.DB
}

func NewApiStore(db *database.DB) *ApiStore {
	return &ApiStore{
		db: db,
	}
}

// Domain errors surfaced by store operations. They are matched with
// errors.Is by the ledger and the HTTP layer.
var (
	ErrOrganizationNotFound  = errors.New("organization not found")
	ErrMemberNotFound        = errors.New("organization member not found")
	ErrSeatCapacityExceeded  = errors.New("no seats available")
	ErrNoActiveSubscription  = errors.New("organization has no active subscription")
	ErrSeatAlreadyAssigned   = errors.New("member already holds a seat")
	ErrNoSeatHeld            = errors.New("member does not hold a seat")
	ErrRepoSettingsNotFound  = errors.New("repository settings not found")
	ErrInvalidUsageAmount    = errors.New("usage amount must be positive")
)

// FlagStore records organization ids whose entitlements changed in a Redis
// set, so downstream consumers (console cache, notifiers) can pick them up.
type FlagStore struct {
	name    string
	context context.Context
	db      *redis.RedisDB
}

type Flagger interface {
	Flag(value string) error
}

func NewFlagStore(ctx context.Context, redis *redis.RedisDB, name string) *FlagStore {
	return &FlagStore{
		name:    name,
		context: ctx,
		db:      redis,
	}
}

func (store *FlagStore) Flag(value string) error {
	result := store.db.Client.SAdd(store.context, store.name, value)
	if err := result.Err(); err != nil {
		return err
	}

	return nil
}

func (store *FlagStore) Close() error {
	return store.db.Client.Close()
}
