package index

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/starford/projects/internal/checksum"
	"github.com/starford/projects/internal/parser"
	"github.com/starford/projects/internal/storage"
)

// Sync walks the vault and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	files, err := store.List("", true)
	if err != nil {
		return fmt.Errorf("index: sync: %w", err)
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(files))
	for _, f := range files {
		disk[f.Path] = struct{}{}

		if checksums[f.Path] == f.Checksum {
			continue
		}

		data, err := store.Read(f.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		if err := db.IndexNote(f.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", f.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", f.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteNote(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexNote parses data and upserts it as the note at path. Notes with a
// malformed front matter block are indexed by body only.
func (db *DB) IndexNote(path string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}

	row := NoteRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  checksum.Sum(data),
		Tags:      res.Tags,
		Fields:    flattenFields(res.Frontmatter),
		UpdatedAt: time.Now().UTC(),
	}
	return db.UpsertNote(row, res.Body, res.Links)
}

// flattenFields renders front matter as one "key value" line per key, in key
// order. List items are separated by spaces.
func flattenFields(fm map[string]any) string {
	keys := make([]string, 0, len(fm))
	for k := range fm {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		writeValue(&b, fm[k])
		b.WriteByte('\n')
	}
	return b.String()
}

func writeValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
	case []any:
		for _, item := range t {
			writeValue(b, item)
		}
	case map[string]any:
		b.WriteByte(' ')
		b.WriteString(strings.TrimSpace(strings.ReplaceAll(flattenFields(t), "\n", " ")))
	default:
		fmt.Fprintf(b, " %v", t)
	}
}
