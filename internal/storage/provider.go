// Package storage defines the vault file-system abstraction.
package storage

import "time"

// File is a handle to a note in the vault.
type File struct {
	// Path is relative to the vault root and uses forward slashes.
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns every .md file in dir (relative to vault root). With
	// recursive set, subdirectories are included.
	List(dir string, recursive bool) ([]File, error)
	// Stat returns the handle for the file at path. Missing files yield
	// apperr.ErrNotFound.
	Stat(path string) (File, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to vault root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to vault root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to vault root). It
	// refuses to overwrite an existing file.
	Move(oldPath, newPath string) error
}
