package pgstore

import (
	_ "embed" // schema

	"github.com/pkg/errors"
	"gopkg.in/reform.v1"
)

//go:embed schema.sql
var schema string

// Migrate creates the merchant schema when it is missing.
func Migrate(db *reform.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return errors.Wrap(err, "Failed apply schema")
	}
	return nil
}
