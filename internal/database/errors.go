package database

import "errors"

var (
	// ErrDatabaseNotFound is returned by Open when the database file does not
	// exist and CreateIfNotExists is false.
	ErrDatabaseNotFound = errors.New("run history database not found")

	// ErrRunNotFound is returned when no run matches an ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrAmbiguousRunID is returned when an ID prefix matches several runs.
	ErrAmbiguousRunID = errors.New("run ID prefix matches several runs")

	// ErrInvalidRun is returned when a report without an ID is saved.
	ErrInvalidRun = errors.New("run report has no ID")
)
