package deps

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/feichai0017/document-ingest/pkg/logger"
)

// maxZipEntry caps how much of one archive entry is read into memory.
const maxZipEntry = 64 << 20

// ZipOpener opens an in-memory ZIP container.
type ZipOpener func(data []byte) (*zip.Reader, error)

// NewZipProvider returns the ZIP reader used by the Office strategies.
func NewZipProvider(log logger.Logger) *Provider[ZipOpener] {
	return NewProvider[ZipOpener]("zip", func(context.Context) (ZipOpener, error) {
		return OpenZip, nil
	}, log)
}

// OpenZip is the default ZipOpener.
func OpenZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	return zr, nil
}

// ReadEntry returns the contents of the named entry.
func ReadEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return ReadFile(f)
		}
	}
	return nil, fmt.Errorf("zip entry %q not found", name)
}

// ReadFile reads one archive entry.
func ReadFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxZipEntry))
}
