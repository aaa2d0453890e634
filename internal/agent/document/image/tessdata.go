package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/storage"
)

const trainedDataExt = ".traineddata"

// EnsureLanguageData makes sure dir holds <lang>.traineddata for every
// language, downloading missing files from store under prefix. Files are
// written to a temporary name and renamed so a failed download never
// leaves a partial model behind.
func EnsureLanguageData(ctx context.Context, store storage.Storage, dir, prefix string, langs []string, log logger.Logger) error {
	if log == nil {
		log = logger.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create tessdata dir: %w", err)
	}

	for _, lang := range langs {
		target := filepath.Join(dir, lang+trainedDataExt)
		if info, err := os.Stat(target); err == nil && info.Size() > 0 {
			continue
		}
		if store == nil {
			return fmt.Errorf("language data %q missing in %s and no object store configured", lang, dir)
		}

		key := path.Join(prefix, lang+trainedDataExt)
		log.Info("Downloading OCR language data", logger.String("language", lang), logger.String("key", key))
		if err := download(ctx, store, key, target); err != nil {
			return fmt.Errorf("language data %q: %w", lang, err)
		}
	}
	return nil
}

func download(ctx context.Context, store storage.Storage, key, target string) (err error) {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.part")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, rc)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("downloaded object is empty")
	}
	return os.Rename(tmp.Name(), target)
}
