package storage

import "errors"

var (
	ErrWrite  = errors.New("unable to write entry to the system of record")
	ErrDelete = errors.New("unable to delete entry from the system of record")
)
