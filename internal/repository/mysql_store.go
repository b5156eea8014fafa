package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/showtime-chatbot/internal/model"
)

// MySQLStore reads and updates the showtimes table.
//
//	CREATE TABLE showtimes (
//	  id               BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
//	  movie_name       VARCHAR(255) NOT NULL,
//	  theater_location VARCHAR(255) NOT NULL,
//	  address          VARCHAR(512) NULL,
//	  city             VARCHAR(128) NULL,
//	  show_date        DATE NOT NULL,
//	  show_time        TIME NOT NULL,
//	  language         VARCHAR(64) NULL,
//	  genre            VARCHAR(128) NULL,
//	  available_seats  INT UNSIGNED NOT NULL
//	);
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore returns a MySQLStore bound to the given database.
func NewMySQLStore(db *sql.DB) *MySQLStore { return &MySQLStore{db: db} }

// DB exposes the underlying handle, e.g. for health checks.
func (s *MySQLStore) DB() *sql.DB { return s.db }

const selectShowtimes = `SELECT id, movie_name, theater_location, COALESCE(address, ''), COALESCE(city, ''),
 DATE_FORMAT(show_date, '%Y-%m-%d'), TIME_FORMAT(show_time, '%H:%i'), COALESCE(language, ''),
 COALESCE(genre, ''), available_seats FROM showtimes`

// keyFilter builds a WHERE clause over the non-empty fields of k.  When
// exact is true an empty language only matches rows without a language.
func keyFilter(k model.ShowtimeKey, exact bool) (string, []any) {
	var conds []string
	var args []any
	add := func(cond, v string) {
		conds = append(conds, cond)
		args = append(args, strings.TrimSpace(v))
	}
	if k.MovieName != "" || exact {
		add("LOWER(movie_name) = LOWER(?)", k.MovieName)
	}
	if k.TheaterLocation != "" || exact {
		add("LOWER(theater_location) = LOWER(?)", k.TheaterLocation)
	}
	if k.Date != "" || exact {
		add("show_date = ?", k.Date)
	}
	if k.Time != "" || exact {
		add("show_time = ?", k.Time)
	}
	if k.Language != "" || exact {
		add("LOWER(COALESCE(language, '')) = LOWER(?)", k.Language)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanShowtime(sc interface{ Scan(...any) error }) (model.Showtime, error) {
	var s model.Showtime
	err := sc.Scan(&s.ID, &s.MovieName, &s.TheaterLocation, &s.Address, &s.City,
		&s.Date, &s.Time, &s.Language, &s.Genre, &s.AvailableSeats)
	return s, err
}

// Find implements ShowtimeStore.
func (s *MySQLStore) Find(ctx context.Context, criteria model.ShowtimeKey) ([]model.Showtime, error) {
	where, args := keyFilter(criteria, false)
	rows, err := s.db.QueryContext(ctx, selectShowtimes+where+" ORDER BY id", args...)
	if err != nil {
		return nil, errors.Wrap(err, "query showtimes")
	}
	defer rows.Close()

	out := make([]model.Showtime, 0)
	for rows.Next() {
		st, err := scanShowtime(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan showtime")
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate showtimes")
	}
	return out, nil
}

// UpdateSeats implements ShowtimeStore.  The row is locked and rewritten
// inside a transaction so a key matching several rows changes nothing.
func (s *MySQLStore) UpdateSeats(ctx context.Context, key model.ShowtimeKey, newCount int) error {
	return s.update(ctx, key, -1, newCount)
}

// UpdateSeatsIf implements ConditionalUpdater.  It fails with
// ErrStaleSeats when the stored count is not expected.
func (s *MySQLStore) UpdateSeatsIf(ctx context.Context, key model.ShowtimeKey, expected, newCount int) error {
	if expected < 0 {
		return ErrNegativeSeats
	}
	return s.update(ctx, key, expected, newCount)
}

func (s *MySQLStore) update(ctx context.Context, key model.ShowtimeKey, expected, newCount int) error {
	if newCount < 0 {
		return ErrNegativeSeats
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	where, args := keyFilter(key, true)
	rows, err := tx.QueryContext(ctx, "SELECT id, available_seats FROM showtimes"+where+" FOR UPDATE", args...)
	if err != nil {
		return errors.Wrap(err, "lock showtime")
	}
	var ids []uint64
	var current int
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id, &current); err != nil {
			rows.Close()
			return errors.Wrap(err, "scan locked showtime")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate locked showtime")
	}
	switch {
	case len(ids) == 0:
		return ErrRecordNotFound
	case len(ids) > 1:
		return ErrDuplicateKey
	case expected >= 0 && current != expected:
		return ErrStaleSeats
	}

	if _, err := tx.ExecContext(ctx, "UPDATE showtimes SET available_seats = ? WHERE id = ?", newCount, ids[0]); err != nil {
		return errors.Wrap(err, "update available seats")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit seat update")
	}
	committed = true
	return nil
}

const importBatch = 200

// Replace swaps the table contents for recs in one transaction.  It is
// used to seed a database from the CSV file.
func (s *MySQLStore) Replace(ctx context.Context, recs []model.Showtime) error {
	for _, r := range recs {
		if r.AvailableSeats < 0 {
			return errors.Wrapf(ErrNegativeSeats, "%s at %s", r.MovieName, r.TheaterLocation)
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM showtimes"); err != nil {
		return errors.Wrap(err, "clear showtimes")
	}
	for start := 0; start < len(recs); start += importBatch {
		end := min(start+importBatch, len(recs))
		q := "INSERT INTO showtimes (movie_name, theater_location, address, city, show_date, show_time, language, genre, available_seats) VALUES "
		args := make([]any, 0, (end-start)*9)
		for i, r := range recs[start:end] {
			if i > 0 {
				q += ","
			}
			q += "(?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)"
			args = append(args, r.MovieName, r.TheaterLocation, r.Address, r.City, r.Date, r.Time, r.Language, r.Genre, r.AvailableSeats)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return errors.Wrapf(err, "insert showtimes %d-%d", start, end)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit import")
	}
	committed = true
	return nil
}

// Close releases the connection pool.
func (s *MySQLStore) Close() error { return s.db.Close() }
