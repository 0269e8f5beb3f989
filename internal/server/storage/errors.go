package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this email already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrTokenNotFound indicates that refresh token was not found
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrProjectNotFound indicates that project was not found
	ErrProjectNotFound = errors.New("project not found")

	// ErrSnapshotNotFound indicates that snapshot was not found for the project
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrLockNotFound indicates that there is no active lock for the key
	ErrLockNotFound = errors.New("page lock not found")

	// ErrMasterKindNotFound indicates an unknown master data table
	ErrMasterKindNotFound = errors.New("master data kind not found")
)
