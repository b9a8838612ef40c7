package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"offers-harvester/internal/checksum"
	"offers-harvester/internal/observability"
	"offers-harvester/internal/offer"
	"offers-harvester/internal/storage"
)

// Writer keeps <dir>/<dataset>.json and the timestamp file. Every write
// replaces the file through a rename, so readers see either the previous
// snapshot or the new one.
type Writer struct {
	dir           string
	timestampFile string
	format        storage.TimestampFormat
	checksum      *checksum.Generator
	logger        *observability.Logger

	mu sync.Mutex
}

func NewWriter(dir, timestampFile string, format storage.TimestampFormat, logger *observability.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %q: %w", dir, err)
	}
	return &Writer{
		dir:           dir,
		timestampFile: timestampFile,
		format:        format,
		checksum:      checksum.NewGenerator(),
		logger:        logger,
	}, nil
}

// Path returns the snapshot file of dataset.
func (w *Writer) Path(dataset string) string {
	return filepath.Join(w.dir, dataset+".json")
}

func (w *Writer) TimestampPath() string {
	return filepath.Join(w.dir, w.timestampFile)
}

func (w *Writer) Write(ctx context.Context, dataset string, offers []offer.Derived) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offers == nil {
		offers = []offer.Derived{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(offers); err != nil {
		return fmt.Errorf("encode snapshot %s: %w", dataset, err)
	}

	path := w.Path(dataset)
	if err := w.replace(path, buf.Bytes()); err != nil {
		return err
	}

	w.logger.Debug("Snapshot written",
		"path", path,
		"offers", len(offers),
		"checksum", w.checksum.GenerateSnapshotHash(offers),
	)
	return nil
}

func (w *Writer) WriteTimestamp(ctx context.Context, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.replace(w.TimestampPath(), []byte(w.format.Format(at)))
}

// replace writes data to a temp file next to path, syncs it and renames it
// over path.
func (w *Writer) replace(path string, data []byte) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
