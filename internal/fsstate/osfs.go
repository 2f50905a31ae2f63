package fsstate

import (
	"io"
	"os"
	"time"
)

// OSFileSystem implements FileSystem against the real operating system.
type OSFileSystem struct{}

func (OSFileSystem) Metadata(path Path) (time.Time, bool, error) {
	fi, err := os.Stat(string(path))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, true, nil
		}
		return time.Time{}, false, err
	}
	return fi.ModTime(), false, nil
}

func (OSFileSystem) Open(path Path) (io.ReadCloser, error) {
	return os.Open(string(path))
}
