// Package storage defines the archive file-system abstraction.
package storage

import (
	"io"

	"github.com/starford/keepsake/internal/models"
)

// Provider is the interface for archive file operations.
type Provider interface {
	// List returns every .jpg/.mp4 file directly under the archive root.
	List() ([]models.MediaFile, error)
	// Exists reports whether path (relative to archive root) is present.
	Exists(path string) (bool, error)
	// WriteStream atomically writes everything read from r to path and
	// returns the number of bytes written.
	WriteStream(path string, r io.Reader) (int64, error)
	// Move renames oldPath to newPath without overwriting an existing file.
	Move(oldPath, newPath string) error
	// Abs returns the absolute path for a relative archive path.
	Abs(path string) (string, error)
	// Root returns the absolute archive root.
	Root() string
}
