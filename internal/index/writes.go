package index

import (
	"sync"

	"github.com/starford/projects/internal/checksum"
)

// ownWrites remembers the last content this process wrote to each note. The
// index file may be shared with other processes, so the indexed checksum
// alone cannot tell a write of ours from someone else's.
type ownWrites struct {
	mu   sync.Mutex
	sums map[string]string // "" records a delete
}

func (o *ownWrites) record(path, sum string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sums == nil {
		o.sums = make(map[string]string)
	}
	o.sums[path] = sum
}

// matches reports whether sum is what this process last wrote to path. A
// different sum means the note changed elsewhere and the entry is dropped.
func (o *ownWrites) matches(path, sum string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	last, ok := o.sums[path]
	if !ok {
		return false
	}
	if last != sum {
		delete(o.sums, path)
		return false
	}
	return true
}

// NoteWritten indexes data as the note at path after this process wrote it.
// The watcher does not report the write back.
func (db *DB) NoteWritten(path string, data []byte) error {
	db.own.record(path, checksum.Sum(data))
	return db.IndexNote(path, data)
}

// NoteDeleted removes path from the index after this process deleted it. The
// watcher does not report the delete back.
func (db *DB) NoteDeleted(path string) error {
	db.own.record(path, "")
	return db.DeleteNote(path)
}
