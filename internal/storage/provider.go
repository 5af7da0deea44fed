// Package storage defines the corpus file-system abstraction.
package storage

import "github.com/starford/mdnorm/internal/models"

// Provider is the interface for corpus file operations.
// All paths are slash-separated and relative to the corpus root.
type Provider interface {
	// List returns metadata for every document with the given extension under dir.
	List(dir, ext string) ([]models.DocumentMetadata, error)
	// Read returns the raw bytes of the document at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the content of path.
	Write(path string, content []byte) error
	// Exists reports whether path names a regular file inside the corpus.
	Exists(path string) bool
	// Root returns the absolute corpus root.
	Root() string
}
