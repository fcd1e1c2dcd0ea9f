package download

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reena96/picstormai-sub001/internal/photo"
	"github.com/reena96/picstormai-sub001/pkg/config"
)

// fakeResolver serves refs from a map; anything else is not found
type fakeResolver struct {
	refs  map[string]photo.PhotoRef
	errs  map[string]error
	calls atomic.Int32
}

func (f *fakeResolver) Resolve(ctx context.Context, photoID, requesterID string) (photo.PhotoRef, error) {
	f.calls.Add(1)
	if err, ok := f.errs[photoID]; ok {
		return photo.PhotoRef{}, err
	}
	ref, ok := f.refs[photoID]
	if !ok {
		return photo.PhotoRef{}, photo.ErrNotFound
	}
	return ref, nil
}

// fakeOpener serves content by storage key and tracks open handles
type fakeOpener struct {
	mu      sync.Mutex
	content map[string]string
	failKey string
	open    int
	maxOpen int
	opened  int
	wrap    func(io.Reader) io.Reader
}

func (f *fakeOpener) Open(ctx context.Context, ref photo.PhotoRef) (io.ReadCloser, error) {
	if ref.StorageKey == f.failKey {
		return nil, errors.New("storage unreachable")
	}
	data, ok := f.content[ref.StorageKey]
	if !ok {
		return nil, fmt.Errorf("no content for %s", ref.StorageKey)
	}

	f.mu.Lock()
	f.open++
	f.opened++
	if f.open > f.maxOpen {
		f.maxOpen = f.open
	}
	f.mu.Unlock()

	var r io.Reader = strings.NewReader(data)
	if f.wrap != nil {
		r = f.wrap(r)
	}
	return &trackedReader{Reader: r, opener: f}, nil
}

func (f *fakeOpener) openHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

type trackedReader struct {
	io.Reader
	opener *fakeOpener
	once   sync.Once
}

func (t *trackedReader) Close() error {
	t.once.Do(func() {
		t.opener.mu.Lock()
		t.opener.open--
		t.opener.mu.Unlock()
	})
	return nil
}

type library struct {
	resolver *fakeResolver
	opener   *fakeOpener
}

func newLibrary() *library {
	return &library{
		resolver: &fakeResolver{refs: map[string]photo.PhotoRef{}, errs: map[string]error{}},
		opener:   &fakeOpener{content: map[string]string{}},
	}
}

func (l *library) add(id, filename, content string) {
	key := "uploads/" + id
	l.resolver.refs[id] = photo.PhotoRef{
		ID:          id,
		StorageKey:  key,
		SizeBytes:   int64(len(content)),
		Filename:    filename,
		ContentType: "image/jpeg",
	}
	l.opener.content[key] = content
}

func (l *library) assembler(opts Options) *Assembler {
	return NewAssembler(l.resolver, l.opener, opts)
}

func openArchive(t *testing.T, data []byte) *zip.Reader {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
	return zr
}

// archiveNames lists entry names in central directory order
func archiveNames(t *testing.T, data []byte) []string {
	t.Helper()
	var names []string
	for _, f := range openArchive(t, data).File {
		names = append(names, f.Name)
	}
	return names
}

func readArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()

	zr := openArchive(t, data)

	files := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		files[f.Name] = string(content)
	}
	return files
}

func TestAssembler_DeduplicatesAndKeepsOrder(t *testing.T) {
	lib := newLibrary()
	lib.add("A", "sunset.jpg", "aaaa")
	lib.add("B", "harbor.jpg", "bb")

	batch, err := lib.assembler(Options{}).Prepare(context.Background(), []string{"A", "A", "B"}, "alice")
	require.NoError(t, err)

	entries := batch.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].Photo.ID)
	assert.Equal(t, "sunset.jpg", entries[0].Name)
	assert.Equal(t, "B", entries[1].Photo.ID)
	assert.Equal(t, int64(6), batch.TotalBytes())

	var buf bytes.Buffer
	n, err := batch.WriteTo(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	assert.Equal(t, []string{"sunset.jpg", "harbor.jpg"}, archiveNames(t, buf.Bytes()))
	files := readArchive(t, buf.Bytes())
	assert.Equal(t, map[string]string{"sunset.jpg": "aaaa", "harbor.jpg": "bb"}, files)
	assert.Equal(t, 1, lib.opener.maxOpen, "photos are streamed one at a time")
	assert.Equal(t, 0, lib.opener.openHandles())
}

func TestAssembler_EmptyRequest(t *testing.T) {
	lib := newLibrary()

	var buf bytes.Buffer
	_, err := lib.assembler(Options{}).Assemble(context.Background(), nil, "alice", &buf)
	assert.ErrorIs(t, err, ErrEmptyBatchRequest)
	assert.Zero(t, buf.Len())
}

func TestAssembler_TooManyPhotos(t *testing.T) {
	lib := newLibrary()
	ids := make([]string, 51)
	for i := range ids {
		ids[i] = fmt.Sprintf("photo-%d", i)
		lib.add(ids[i], ids[i]+".jpg", "x")
	}

	var buf bytes.Buffer
	_, err := lib.assembler(Options{}).Assemble(context.Background(), ids, "alice", &buf)
	assert.ErrorIs(t, err, ErrBatchLimitExceeded)
	assert.Zero(t, buf.Len())
	assert.Zero(t, lib.resolver.calls.Load(), "limit is checked before resolving")
}

func TestAssembler_LimitCountsDistinctIDs(t *testing.T) {
	lib := newLibrary()
	ids := make([]string, 0, 100)
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("photo-%d", i)
		lib.add(id, id+".jpg", "x")
		ids = append(ids, id, id)
	}

	batch, err := lib.assembler(Options{}).Prepare(context.Background(), ids, "alice")
	require.NoError(t, err)
	assert.Len(t, batch.Entries(), 50)
}

func TestAssembler_ResolutionFailureRejectsWholeBatch(t *testing.T) {
	tests := []struct {
		name  string
		setup func(l *library)
		want  error
	}{
		{
			name:  "forbidden",
			setup: func(l *library) { l.resolver.errs["B"] = photo.ErrForbidden },
			want:  photo.ErrForbidden,
		},
		{
			name:  "not found",
			setup: func(l *library) { delete(l.resolver.refs, "B") },
			want:  photo.ErrNotFound,
		},
		{
			name:  "unavailable",
			setup: func(l *library) { l.resolver.errs["B"] = fmt.Errorf("%w: still uploading", photo.ErrUnavailable) },
			want:  photo.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := newLibrary()
			lib.add("A", "a.jpg", "aaa")
			lib.add("B", "b.jpg", "bbb")
			tt.setup(lib)

			var buf bytes.Buffer
			_, err := lib.assembler(Options{}).Assemble(context.Background(), []string{"A", "B"}, "alice", &buf)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var resolutionErr *PhotoResolutionFailedError
			require.ErrorAs(t, err, &resolutionErr)
			assert.Equal(t, "B", resolutionErr.PhotoID)

			assert.Zero(t, buf.Len(), "no bytes are written for a rejected batch")
			assert.Zero(t, lib.opener.opened)
		})
	}
}

func TestAssembler_TotalSizeLimit(t *testing.T) {
	lib := newLibrary()
	lib.add("A", "a.jpg", strings.Repeat("a", 600))
	lib.add("B", "b.jpg", strings.Repeat("b", 600))

	var buf bytes.Buffer
	_, err := lib.assembler(Options{MaxTotalBytes: 1000}).Assemble(context.Background(), []string{"A", "B"}, "alice", &buf)
	assert.ErrorIs(t, err, ErrBatchSizeExceeded)
	assert.Zero(t, buf.Len())

	_, err = lib.assembler(Options{MaxTotalBytes: 1200}).Prepare(context.Background(), []string{"A", "B"}, "alice")
	assert.NoError(t, err)
}

func TestAssembler_DuplicateFilenames(t *testing.T) {
	lib := newLibrary()
	lib.add("A", "photo.jpg", "1")
	lib.add("B", "photo.jpg", "2")
	lib.add("C", "photo-1.jpg", "3")
	lib.add("D", "photo.jpg", "4")
	lib.add("E", "../../etc/passwd", "5")
	lib.add("F", "", "6")

	batch, err := lib.assembler(Options{}).Prepare(context.Background(), []string{"A", "B", "C", "D", "E", "F"}, "alice")
	require.NoError(t, err)

	var names []string
	for _, e := range batch.Entries() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"photo.jpg", "photo-1.jpg", "photo-1-1.jpg", "photo-2.jpg", "passwd", "photo"}, names)

	var buf bytes.Buffer
	_, err = batch.WriteTo(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, names, archiveNames(t, buf.Bytes()))
	files := readArchive(t, buf.Bytes())
	assert.Len(t, files, 6)
	assert.Equal(t, "3", files["photo-1-1.jpg"])
}

func TestAssembler_Compression(t *testing.T) {
	content := strings.Repeat("picstorm ", 2000)

	for _, c := range []Compression{CompressionDeflate, CompressionStore, CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			lib := newLibrary()
			lib.add("A", "a.jpg", content)

			var buf bytes.Buffer
			_, err := lib.assembler(Options{Compression: c}).Assemble(context.Background(), []string{"A"}, "alice", &buf)
			require.NoError(t, err)

			zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
			require.NoError(t, err)
			require.Len(t, zr.File, 1)
			assert.Equal(t, c.Method(), zr.File[0].Method)

			assert.Equal(t, content, readArchive(t, buf.Bytes())["a.jpg"])
		})
	}
}

func TestAssembler_CancelledBeforeStreaming(t *testing.T) {
	lib := newLibrary()
	lib.add("A", "a.jpg", "aaa")

	batch, err := lib.assembler(Options{}).Prepare(context.Background(), []string{"A"}, "alice")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = batch.WriteTo(ctx, io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, lib.opener.opened)
}

// cancelReader cancels the request after handing out its first chunk
type cancelReader struct {
	r      io.Reader
	cancel context.CancelFunc
}

func (c *cancelReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.cancel()
	return n, err
}

func TestAssembler_CancelledMidStream(t *testing.T) {
	lib := newLibrary()
	lib.add("A", "a.jpg", strings.Repeat("a", 4096))
	lib.add("B", "b.jpg", "bbb")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lib.opener.wrap = func(r io.Reader) io.Reader { return &cancelReader{r: r, cancel: cancel} }

	_, err := lib.assembler(Options{CopyBufferSize: 512}).Assemble(ctx, []string{"A", "B"}, "alice", io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, lib.opener.opened, "no further photos are opened after cancellation")
	assert.Equal(t, 0, lib.opener.openHandles(), "the open photo is closed")
}

func TestAssembler_OpenFailureAbortsStream(t *testing.T) {
	lib := newLibrary()
	lib.add("A", "a.jpg", "aaa")
	lib.add("B", "b.jpg", "bbb")
	lib.opener.failKey = "uploads/B"

	var buf bytes.Buffer
	_, err := lib.assembler(Options{}).Assemble(context.Background(), []string{"A", "B"}, "alice", &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage unreachable")
	assert.Equal(t, 0, lib.opener.openHandles())

	_, err = zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.Error(t, err, "an aborted stream is not a valid archive")
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{"", CompressionDeflate, false},
		{"deflate", CompressionDeflate, false},
		{"STORE", CompressionStore, false},
		{" zstd ", CompressionZstd, false},
		{"brotli", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCompression(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedCompression)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(config.DownloadConfig{Compression: "zstd", MaxTotalBytes: 1 << 20})
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, opts.Compression)
	assert.Equal(t, DefaultMaxPhotos, opts.MaxPhotos)
	assert.Equal(t, int64(1<<20), opts.MaxTotalBytes)
	assert.Equal(t, DefaultResolveConcurrency, opts.ResolveConcurrency)
	assert.Equal(t, DefaultCopyBufferSize, opts.CopyBufferSize)

	_, err = OptionsFromConfig(config.DownloadConfig{Compression: "rar"})
	assert.ErrorIs(t, err, ErrUnsupportedCompression)
}
