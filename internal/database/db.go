// Package database opens the MySQL connection pool used by the showtime
// store.
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-sql-driver/mysql"
)

const schema = `CREATE TABLE IF NOT EXISTS showtimes (
  id               BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
  movie_name       VARCHAR(255) NOT NULL,
  theater_location VARCHAR(255) NOT NULL,
  address          VARCHAR(512) NULL,
  city             VARCHAR(128) NULL,
  show_date        DATE NOT NULL,
  show_time        TIME NOT NULL,
  language         VARCHAR(64) NULL,
  genre            VARCHAR(128) NULL,
  available_seats  INT UNSIGNED NOT NULL,
  KEY idx_showtimes_lookup (movie_name, theater_location, show_date, show_time)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// DSN builds the driver connection string.  Times are read as UTC.
func DSN(user, pass, host, port, name string) string {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = pass
	cfg.Net = "tcp"
	cfg.Addr = host + ":" + port
	cfg.DBName = name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(user, pass, host, port, name))
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping mysql at %s:%s", host, port)
	}
	return db, nil
}

// Migrate creates the showtimes table when it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return errors.Wrap(err, "create showtimes table")
}
