package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

// Constraint violations reach the callers wrapped; classification must
// see through the wrapping so invalid references surface as typed
// sentinels instead of server errors.
func TestPgErrorClassification(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	foreignKey := &pgconn.PgError{Code: "23503"}

	if !isUniqueViolation(unique) {
		t.Fatal("23505 not classified as unique violation")
	}
	if !isForeignKeyViolation(foreignKey) {
		t.Fatal("23503 not classified as foreign key violation")
	}
	if !isForeignKeyViolation(fmt.Errorf("insert task: %w", foreignKey)) {
		t.Fatal("wrapped 23503 not classified")
	}
	if isForeignKeyViolation(unique) || isUniqueViolation(foreignKey) {
		t.Fatal("violation codes cross-classified")
	}
	if isForeignKeyViolation(errors.New("plain")) || isUniqueViolation(nil) {
		t.Fatal("non-pg errors classified as violations")
	}
}
