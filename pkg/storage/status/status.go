// Copyright © 2018 One Concern

// Package status declares error constants returned by
// implementations of the Store interface.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/storage and one
// of its implementations.
package status

import "github.com/serpent-os/pisi/pkg/errors"

var (
	// ErrNotExists indicates that the fetched object does not exist on storage
	ErrNotExists = errors.New("object doesn't exist")

	// ErrNotSupported indicates that the underlying file system does not support this call
	ErrNotSupported = errors.New("not supported")

	// ErrExists indicates that the object already exists and cannot be overridden
	ErrExists = errors.New("exists already")

	// ErrInvalidKey indicates that the key cannot be stored, e.g. it collides with the staging area
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrStorage indicates any other file system error
	ErrStorage = errors.New("storage error")
)
