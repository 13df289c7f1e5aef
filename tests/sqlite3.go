// Package tests holds helpers shared by the package test suites.
package tests

import (
	"github.com/google/uuid"
)

// Sqlite3URL returns a URI for a fresh in-memory database shared by all
// connections of the test.
func Sqlite3URL() string {
	return "file::" + uuid.NewString() + ":?mode=memory&cache=shared&_foreign_keys=on"
}
