// Package domain defines the typed identifiers shared across modules.
//
// Numeric IDs (identities, animals) come from the relational store's
// sequences; tenant IDs are UUIDs assigned by the tenant subsystem. Typed
// wrappers keep the two families from being mixed up at compile time.
package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// IdentityID identifies a deduplicated global animal identity.
type IdentityID int64

func (id IdentityID) Int64() int64 { return int64(id) }

func (id IdentityID) String() string { return strconv.FormatInt(int64(id), 10) }

// IsZero reports whether the ID is unset. The store never issues zero.
func (id IdentityID) IsZero() bool { return id == 0 }

// ParseIdentityID parses a decimal identity ID, e.g. from a URL segment.
func ParseIdentityID(s string) (IdentityID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return IdentityID(v), nil
}

// AnimalID identifies a tenant-local animal record.
type AnimalID int64

func (id AnimalID) Int64() int64 { return int64(id) }

func (id AnimalID) String() string { return strconv.FormatInt(int64(id), 10) }

func (id AnimalID) IsZero() bool { return id == 0 }

// ParseAnimalID parses a decimal animal ID, e.g. from a URL segment.
func ParseAnimalID(s string) (AnimalID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return AnimalID(v), nil
}

// TenantID identifies a tenant organization.
type TenantID uuid.UUID

func (id TenantID) String() string { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders the canonical UUID string. Named UUID types do not
// inherit the underlying encoding methods, so JSON encoding would otherwise
// emit the raw byte array.
func (id TenantID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// UnmarshalText parses a canonical UUID string.
func (id *TenantID) UnmarshalText(data []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(data); err != nil {
		return err
	}
	*id = TenantID(u)
	return nil
}

// ParseTenantID parses a UUID string into a TenantID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TenantID{}, err
	}
	return TenantID(u), nil
}
