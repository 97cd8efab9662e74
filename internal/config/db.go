package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	zlog "github.com/rs/zerolog/log"
)

const (
	dbConnectTimeout = 3 * time.Second
	dbAppName        = "pharmacy-auth"
)

// NewDB opens the credential store and pings it once. The DSN is parsed by
// pgx so a malformed DSN fails before any dial.
func NewDB(dsn string, debug bool) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty DB DSN")
	}

	cc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DB DSN: %w", err)
	}
	if cc.ConnectTimeout == 0 || cc.ConnectTimeout > dbConnectTimeout {
		cc.ConnectTimeout = dbConnectTimeout
	}
	if cc.RuntimeParams == nil {
		cc.RuntimeParams = map[string]string{}
	}
	if cc.RuntimeParams["application_name"] == "" {
		cc.RuntimeParams["application_name"] = dbAppName
	}

	db := stdlib.OpenDB(*cc)

	// login lookups only
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), dbConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s:%d: %w", cc.Host, cc.Port, err)
	}

	if debug {
		var who, dbname string
		_ = db.QueryRowContext(ctx, "SELECT current_user, current_database()").Scan(&who, &dbname)
		zlog.Debug().Str("user", who).Str("db", dbname).Str("host", cc.Host).Msg("db connected")
	}

	return db, nil
}
