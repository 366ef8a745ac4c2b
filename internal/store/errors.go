package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every entity-specific not-found error.
var ErrNotFound = errors.New("not found")

// Not-found errors per entity. All of them match ErrNotFound with errors.Is.
var (
	ErrStoreNotFound = fmt.Errorf("store %w", ErrNotFound)
	ErrItemNotFound  = fmt.Errorf("item %w", ErrNotFound)
	ErrTagNotFound   = fmt.Errorf("tag %w", ErrNotFound)
	ErrUserNotFound  = fmt.Errorf("user %w", ErrNotFound)
	ErrLinkNotFound  = fmt.Errorf("item tag link %w", ErrNotFound)
)

// Conflicts and rule violations.
var (
	ErrItemAlreadyExists  = errors.New("item already exists")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrStoreAlreadyExists = errors.New("store already exists")
	ErrTagAlreadyExists   = errors.New("tag already exists")
	ErrTagInUse           = errors.New("tag is linked to items")
	ErrStoreMismatch      = errors.New("item and tag belong to different stores")
	ErrIncompleteItem     = errors.New("name, price and store_id are required to create an item")
)

// StorageError is a persistence failure that no domain error describes.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
