package postgres

import (
	"context"
	"database/sql"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

// Schema is the credential table read by UserRepo. Accounts are provisioned
// by the back office; this service only needs the table to exist for
// dev seeding and integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id                     UUID PRIMARY KEY,
    email                  TEXT NOT NULL UNIQUE,
    password_hash          TEXT NOT NULL,
    role                   TEXT NOT NULL CHECK (role IN ('admin','staff','supervisor','assistant','customer')),
    email_verified         BOOLEAN NOT NULL DEFAULT FALSE,
    second_factor_required BOOLEAN NOT NULL DEFAULT FALSE,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return domain.ErrDBUnavailable(err)
	}
	return nil
}
