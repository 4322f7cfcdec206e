package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "wrapped unique", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), want: true},
		{name: "fk", err: &pgconn.PgError{Code: "23503"}, want: false},
	}
	for _, tc := range tests {
		if got := IsUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("%s: got=%v want=%v", tc.name, got, tc.want)
		}
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	for i, stmt := range schema {
		s := strings.TrimSpace(stmt)
		if !strings.Contains(s, "IF NOT EXISTS") {
			t.Fatalf("statement %d is not idempotent: %.60s", i+1, s)
		}
	}
}

func TestSchemaRejectsNegativeRandomSetCount(t *testing.T) {
	for _, stmt := range schema {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS random_sets") {
			if !strings.Contains(stmt, "CHECK (num_questions >= 0)") {
				t.Fatalf("random_sets must constrain num_questions: %s", stmt)
			}
			return
		}
	}
	t.Fatalf("random_sets table missing from schema")
}

func TestPostgresConfigDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   PostgresConfig
		want PostgresConfig
	}{
		{
			name: "zero",
			want: PostgresConfig{MaxOpenConns: 25, MaxIdleConns: 25, ConnMaxLifetime: 30 * time.Minute},
		},
		{
			name: "idle above open is capped",
			in:   PostgresConfig{MaxOpenConns: 10, MaxIdleConns: 40, ConnMaxLifetime: time.Minute},
			want: PostgresConfig{MaxOpenConns: 10, MaxIdleConns: 10, ConnMaxLifetime: time.Minute},
		},
	}
	for _, tc := range tests {
		if got := tc.in.withDefaults(); got != tc.want {
			t.Fatalf("%s: got=%+v want=%+v", tc.name, got, tc.want)
		}
	}
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), PostgresConfig{}); err == nil {
		t.Fatalf("expected an error for an empty dsn")
	}
}
