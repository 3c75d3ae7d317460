//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

// Without FTS5, Search scans the notes table with LIKE.
func initFTS(_ *sql.DB) error { return nil }

func ftsUpsert(_ *sql.Tx, _ NoteRow, _ string) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

// Search matches notes whose title, body, tags or front matter values
// contain every word of query, ignoring case. Title matches come first.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	words := strings.Fields(query)
	if len(words) == 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	for _, w := range words {
		like := "%" + escapeLike(w) + "%"
		where = append(where, `(title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\' OR fields LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like, like)
	}
	first := "%" + escapeLike(words[0]) + "%"
	args = append(args, first, limit)

	rows, err := db.conn.Query(`
		SELECT path, title, substr(body, 1, 200)
		FROM notes
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY (title LIKE ? ESCAPE '\') DESC, path
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search %q: %w", query, err)
	}
	return scanResults(rows)
}
