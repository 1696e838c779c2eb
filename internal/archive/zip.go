// Package archive streams store files into a zip archive written directly to an
// io.Writer. Entries are opened, copied and closed one at a time, so memory use does
// not grow with the archive and at most one store file is open at once.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/meertime/dataportal/internal/storage"
	"github.com/meertime/dataportal/internal/telemetry"
)

// PlaceholderName is the entry written when an archive would otherwise be empty
const PlaceholderName = "README.txt"

// Entry maps a store path to its name inside the archive
type Entry struct {
	Name string
	Path string
}

// Opener is the part of the file store the writer needs
type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Result summarises a finished archive
type Result struct {
	Files   int
	Skipped int
	Bytes   int64
}

// WriteZip writes entries to w as a zip archive. A file that disappeared from the store
// since planning is skipped and logged. If nothing was written, a placeholder entry
// holding the given text is added so the client never receives an empty archive.
// Cancellation is checked between entries and during copies; an aborted stream
// leaves w with a truncated archive.
func WriteZip(ctx context.Context, w io.Writer, store Opener, entries []Entry, placeholder string) (Result, error) {
	var res Result
	zw := zip.NewWriter(w)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			telemetry.ArchiveStreamsAbortedTotal.Inc()
			return res, err
		}

		n, err := writeEntry(ctx, zw, store, e)
		if errors.Is(err, storage.ErrNotFound) {
			slog.Warn("archive entry vanished from store, skipping", "path", e.Path, "name", e.Name)
			res.Skipped++
			continue
		}
		if err != nil {
			telemetry.ArchiveStreamsAbortedTotal.Inc()
			return res, err
		}
		res.Files++
		res.Bytes += n
		telemetry.ArchiveFilesStreamedTotal.Inc()
		telemetry.ArchiveBytesStreamedTotal.Add(float64(n))
	}

	if res.Files == 0 {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: PlaceholderName, Method: zip.Deflate, Modified: time.Now()})
		if err != nil {
			return res, fmt.Errorf("failed to add placeholder: %w", err)
		}
		if _, err := io.WriteString(fw, placeholder); err != nil {
			return res, fmt.Errorf("failed to add placeholder: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return res, fmt.Errorf("failed to finish archive: %w", err)
	}
	return res, nil
}

// writeEntry copies one store file into the archive. The file is closed before return.
func writeEntry(ctx context.Context, zw *zip.Writer, store Opener, e Entry) (int64, error) {
	rc, err := store.Open(ctx, e.Path)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	fw, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: time.Now()})
	if err != nil {
		return 0, fmt.Errorf("failed to add %s: %w", e.Name, err)
	}
	n, err := io.Copy(fw, &ctxReader{ctx: ctx, r: rc})
	if err != nil {
		return n, fmt.Errorf("failed to copy %s: %w", e.Path, err)
	}
	return n, nil
}

// ctxReader stops a copy once the context is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
