// Package watchlist stores the tickers the user follows. It shares the
// archive's SQLite database rather than opening its own.
package watchlist

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS watchlist (
    symbol   TEXT PRIMARY KEY,
    added_at TEXT NOT NULL
);
`

// Entry is one followed ticker.
type Entry struct {
	Symbol  string    `json:"symbol"`
	AddedAt time.Time `json:"addedAt"`
}

// Store persists the watchlist.
type Store struct {
	db *sql.DB
}

// New ensures the watchlist table exists in db.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Add follows a ticker. Symbols are case-insensitive; adding one that is
// already followed reports added=false and changes nothing.
func (s *Store) Add(symbol string) (bool, error) {
	symbol = Normalize(symbol)
	if symbol == "" {
		return false, fmt.Errorf("empty symbol")
	}
	res, err := s.db.Exec(`INSERT OR IGNORE INTO watchlist (symbol, added_at) VALUES (?, ?)`,
		symbol, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("add symbol: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remove unfollows a ticker, reporting whether it was followed.
func (s *Store) Remove(symbol string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM watchlist WHERE symbol = ?`, Normalize(symbol))
	if err != nil {
		return false, fmt.Errorf("remove symbol: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns followed tickers in the order they were added.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT symbol, added_at FROM watchlist ORDER BY added_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var addedAt string
		if err := rows.Scan(&entry.Symbol, &addedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.AddedAt, _ = time.Parse(time.RFC3339Nano, addedAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Normalize maps user input to the canonical symbol form.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
