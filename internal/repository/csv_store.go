package repository

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/showtime-chatbot/internal/model"
)

const (
	colMovie    = "movie_name"
	colTheater  = "theater_location"
	colAddress  = "address"
	colCity     = "city"
	colDate     = "date"
	colTime     = "time"
	colLanguage = "language"
	colGenre    = "genre"
	colSeats    = "available_seats"
)

var requiredColumns = []string{colMovie, colTheater, colDate, colTime, colSeats}

// CSVStore keeps showtimes in a comma separated file with a header row.
// Every Find reads the file, so edits made out of band are picked up.
// UpdateSeats rewrites the whole file through a temp file and a rename, so
// a crash mid-write leaves the previous version in place.  Columns the
// store does not know about are carried through unchanged.  Dates and
// times are returned as YYYY-MM-DD and HH:MM whatever the cell layout, and
// the cells themselves are written back as they were.
type CSVStore struct {
	path string
	mu   sync.RWMutex
}

// NewCSVStore opens the file at path and checks its header.
func NewCSVStore(path string) (*CSVStore, error) {
	s := &CSVStore{path: path}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// csvTable is the raw content of the file plus the column positions.
type csvTable struct {
	header []string
	rows   [][]string
	cols   map[string]int
}

func (t *csvTable) cell(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *csvTable) record(n int) (model.Showtime, error) {
	row := t.rows[n]
	seats, err := strconv.Atoi(t.cell(row, colSeats))
	if err != nil || seats < 0 {
		return model.Showtime{}, errors.Mark(
			errors.Newf("row %d: invalid available_seats %q", n+2, t.cell(row, colSeats)),
			ErrMalformedTable)
	}
	return model.Showtime{
		MovieName:       t.cell(row, colMovie),
		TheaterLocation: t.cell(row, colTheater),
		Address:         t.cell(row, colAddress),
		City:            t.cell(row, colCity),
		Date:            model.CanonicalDate(t.cell(row, colDate)),
		Time:            model.CanonicalTime(t.cell(row, colTime)),
		Language:        t.cell(row, colLanguage),
		Genre:           t.cell(row, colGenre),
		AvailableSeats:  seats,
	}, nil
}

func (s *CSVStore) load() (*csvTable, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "open showtimes file %s", s.path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.Mark(errors.Newf("%s: missing header row", s.path), ErrMalformedTable)
	}
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read header of %s", s.path), ErrMalformedTable)
	}
	t := &csvTable{header: header, cols: make(map[string]int, len(header))}
	for i, h := range header {
		t.cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := t.cols[c]; !ok {
			return nil, errors.Mark(errors.Newf("%s: missing column %q", s.path, c), ErrMalformedTable)
		}
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read %s", s.path), ErrMalformedTable)
	}
	t.rows = rows
	return t, nil
}

// Find implements ShowtimeStore.
func (s *CSVStore) Find(ctx context.Context, criteria model.ShowtimeKey) ([]model.Showtime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]model.Showtime, 0)
	for i := range t.rows {
		rec, err := t.record(i)
		if err != nil {
			return nil, err
		}
		if criteria.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// UpdateSeats implements ShowtimeStore.  The key must identify exactly one
// row, language included.
func (s *CSVStore) UpdateSeats(ctx context.Context, key model.ShowtimeKey, newCount int) error {
	if newCount < 0 {
		return ErrNegativeSeats
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load()
	if err != nil {
		return err
	}
	target := -1
	for i := range t.rows {
		rec, err := t.record(i)
		if err != nil {
			return err
		}
		if !rec.Key().Same(key) {
			continue
		}
		if target >= 0 {
			return ErrDuplicateKey
		}
		target = i
	}
	if target < 0 {
		return ErrRecordNotFound
	}

	row := t.rows[target]
	seatCol := t.cols[colSeats]
	for len(row) <= seatCol {
		row = append(row, "")
	}
	row[seatCol] = strconv.Itoa(newCount)
	t.rows[target] = row

	// Last point at which the caller can still back out with nothing applied.
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.writeAtomic(t)
}

func (s *CSVStore) writeAtomic(t *csvTable) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(t.header); err != nil {
		return errors.Wrap(err, "write header")
	}
	if err := w.WriteAll(t.rows); err != nil {
		return errors.Wrap(err, "write rows")
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if info, err := os.Stat(s.path); err == nil {
		_ = os.Chmod(tmpName, info.Mode().Perm())
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "replace showtimes file")
	}
	committed = true
	return nil
}

// Close implements ShowtimeStore.  The file is not held open between calls.
func (s *CSVStore) Close() error { return nil }
