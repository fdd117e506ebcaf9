package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const (
	connectAttempts = 10
	retryDelay      = 3 * time.Second
)

// Connect opens the database for the given driver ("sqlite" or "mysql").
//
// SQLite gets a single connection so that write transactions serialize; MySQL
// servers are retried for a while since they often start after the app in
// compose setups.
func Connect(ctx context.Context, driver, dsn string, log zerolog.Logger) (*sqlx.DB, error) {
	switch driver {
	case "sqlite":
		db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("connect sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		return db, nil
	case "mysql":
		var err error
		for i := 0; i < connectAttempts; i++ {
			var db *sqlx.DB
			db, err = sqlx.ConnectContext(ctx, "mysql", dsn)
			if err == nil {
				db.SetMaxOpenConns(25)
				db.SetMaxIdleConns(5)
				db.SetConnMaxLifetime(5 * time.Minute)
				log.Info().Msg("connected to mysql")
				return db, nil
			}
			log.Warn().Err(err).Int("attempt", i+1).Msg("mysql not reachable, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
		return nil, fmt.Errorf("connect mysql after %d attempts: %w", connectAttempts, err)
	}
	return nil, fmt.Errorf("unsupported driver %q", driver)
}
