package download

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reena96/picstormai-sub001/internal/photo"
)

// Entry is one file in the archive
type Entry struct {
	Name  string
	Photo photo.PhotoRef
}

// Batch is a validated download, ready to stream
type Batch struct {
	entries     []Entry
	totalBytes  int64
	opener      photo.Opener
	compression Compression
	bufferSize  int
	modified    time.Time
}

// Entries returns the archive entries in request order
func (b *Batch) Entries() []Entry {
	return append([]Entry(nil), b.entries...)
}

// TotalBytes is the sum of the photo sizes before compression
func (b *Batch) TotalBytes() int64 {
	return b.totalBytes
}

// WriteTo streams the archive into w and returns the bytes written.
// Photos are opened one at a time. On error the archive is left without its
// central directory, so a partial stream is never a valid ZIP.
func (b *Batch) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	start := time.Now()
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	b.compression.register(zw)

	buf := make([]byte, b.bufferSize)
	for _, entry := range b.entries {
		if err := ctx.Err(); err != nil {
			return cw.n, err
		}
		if err := b.writeEntry(ctx, zw, entry, buf); err != nil {
			log.Error().
				Err(err).
				Str("photo_id", entry.Photo.ID).
				Int64("written", cw.n).
				Msg("Archive stream aborted")
			return cw.n, err
		}
	}

	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("failed to finish archive: %w", err)
	}

	log.Info().
		Int("photos", len(b.entries)).
		Int64("bytes", cw.n).
		Str("compression", string(b.compression)).
		Dur("duration", time.Since(start)).
		Msg("Archive streamed")

	return cw.n, nil
}

func (b *Batch) writeEntry(ctx context.Context, zw *zip.Writer, entry Entry, buf []byte) error {
	src, err := b.opener.Open(ctx, entry.Photo)
	if err != nil {
		return err
	}
	defer src.Close()

	header := &zip.FileHeader{
		Name:     entry.Name,
		Method:   b.compression.Method(),
		Modified: b.modified,
	}
	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create archive entry %s: %w", entry.Name, err)
	}

	if _, err := copyWithContext(ctx, dst, src, buf); err != nil {
		return fmt.Errorf("failed to write archive entry %s: %w", entry.Name, err)
	}
	return nil
}

// copyWithContext is io.CopyBuffer with a cancellation check before every chunk
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			m, err := dst.Write(buf[:n])
			written += int64(m)
			if err != nil {
				return written, err
			}
			if m != n {
				return written, io.ErrShortWrite
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
