package store

import "errors"

var (
	// ErrRecordNotFound is returned for missing users and clients.
	// gorm.ErrRecordNotFound never escapes this package.
	ErrRecordNotFound = errors.New("store: record not found")

	// ErrUsernameConflict is returned when a user is created with a taken username.
	ErrUsernameConflict = errors.New("store: username already exists")

	// ErrUnsupportedDriver is returned by New for a DATABASE_DRIVER it cannot open.
	ErrUnsupportedDriver = errors.New("store: unsupported database driver")
)
