package blob

import (
	"rd3/internal/infra/blob/fs"
)

// NewFilesystem constructs a directory-backed Store rooted at dir.
func NewFilesystem(dir string) (Store, error) {
	return fs.New(dir)
}
