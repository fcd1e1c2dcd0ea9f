package download

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// Compression selects how entries are stored in the archive
type Compression string

const (
	CompressionDeflate Compression = "deflate"
	CompressionStore   Compression = "store"
	CompressionZstd    Compression = "zstd"
)

// ParseCompression maps a config value to a Compression. Empty means deflate.
func ParseCompression(name string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(name))); c {
	case "":
		return CompressionDeflate, nil
	case CompressionDeflate, CompressionStore, CompressionZstd:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCompression, name)
	}
}

// Method is the ZIP method id written into entry headers
func (c Compression) Method() uint16 {
	switch c {
	case CompressionStore:
		return zip.Store
	case CompressionZstd:
		return zstd.ZipMethodWinZip
	default:
		return zip.Deflate
	}
}

// register installs the compressor on this writer only, leaving the
// archive/zip package defaults untouched.
func (c Compression) register(zw *zip.Writer) {
	switch c {
	case CompressionZstd:
		zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(zstd.WithEncoderLevel(zstd.SpeedDefault)))
	case CompressionDeflate:
		zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, flate.DefaultCompression)
		})
	}
}
