package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(gorm.ErrRecordNotFound) {
		t.Fatal("bare record-not-found must match")
	}
	if !IsNotFound(fmt.Errorf("load order: %w", gorm.ErrRecordNotFound)) {
		t.Fatal("wrapped record-not-found must match")
	}
	if IsNotFound(errors.New("connection refused")) {
		t.Fatal("unrelated error must not match")
	}
	if IsNotFound(nil) {
		t.Fatal("nil must not match")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgxErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_number_key"}
	pqErr := &pq.Error{Code: "23505", Constraint: "customers_email_key"}

	if !IsUniqueViolation(fmt.Errorf("insert: %w", pgxErr), "") {
		t.Fatal("pgx unique violation must match without a constraint filter")
	}
	if !IsUniqueViolation(pgxErr, "orders_number_key") {
		t.Fatal("pgx unique violation must match its own constraint")
	}
	if IsUniqueViolation(pgxErr, "customers_email_key") {
		t.Fatal("pgx unique violation must not match another constraint")
	}

	if !IsUniqueViolation(fmt.Errorf("insert: %w", pqErr), "customers_email_key") {
		t.Fatal("pq unique violation must match its own constraint")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}, "") {
		t.Fatal("foreign key violation must not match")
	}
	if IsUniqueViolation(errors.New("duplicate key value"), "") {
		t.Fatal("plain text must not match without a driver error")
	}
}
