package download

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/reena96/picstormai-sub001/internal/photo"
	"github.com/reena96/picstormai-sub001/pkg/config"
	"github.com/reena96/picstormai-sub001/pkg/utils"
)

const (
	DefaultMaxPhotos          = 50
	DefaultMaxTotalBytes      = 500 << 20
	DefaultResolveConcurrency = 8
	DefaultCopyBufferSize     = 32 << 10
)

// Options bounds and tunes batch assembly
type Options struct {
	MaxPhotos          int
	MaxTotalBytes      int64 // zero disables the size check
	Compression        Compression
	ResolveConcurrency int
	CopyBufferSize     int
}

// OptionsFromConfig converts the download config section, filling defaults
func OptionsFromConfig(cfg config.DownloadConfig) (Options, error) {
	compression, err := ParseCompression(cfg.Compression)
	if err != nil {
		return Options{}, err
	}
	return Options{
		MaxPhotos:          cfg.MaxPhotos,
		MaxTotalBytes:      cfg.MaxTotalBytes,
		Compression:        compression,
		ResolveConcurrency: cfg.ResolveConcurrency,
		CopyBufferSize:     cfg.CopyBufferSize,
	}.withDefaults(), nil
}

func (o Options) withDefaults() Options {
	if o.MaxPhotos <= 0 {
		o.MaxPhotos = DefaultMaxPhotos
	}
	if o.MaxTotalBytes < 0 {
		o.MaxTotalBytes = DefaultMaxTotalBytes
	}
	if o.Compression == "" {
		o.Compression = CompressionDeflate
	}
	if o.ResolveConcurrency <= 0 {
		o.ResolveConcurrency = DefaultResolveConcurrency
	}
	if o.CopyBufferSize <= 0 {
		o.CopyBufferSize = DefaultCopyBufferSize
	}
	return o
}

// Assembler validates batch download requests and streams them as ZIP archives
type Assembler struct {
	resolver photo.Resolver
	opener   photo.Opener
	opts     Options
	now      func() time.Time
}

// NewAssembler creates an assembler
func NewAssembler(resolver photo.Resolver, opener photo.Opener, opts Options) *Assembler {
	return &Assembler{
		resolver: resolver,
		opener:   opener,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// Prepare validates the request and resolves every photo. Nothing is opened
// or written; a returned Batch is guaranteed to contain every requested photo.
func (a *Assembler) Prepare(ctx context.Context, photoIDs []string, requesterID string) (*Batch, error) {
	if len(photoIDs) == 0 {
		return nil, ErrEmptyBatchRequest
	}

	ids := dedupe(photoIDs)
	if len(ids) > a.opts.MaxPhotos {
		return nil, fmt.Errorf("%w: %d requested, limit is %d", ErrBatchLimitExceeded, len(ids), a.opts.MaxPhotos)
	}

	refs, err := a.resolveAll(ctx, ids, requesterID)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, ref := range refs {
		total += ref.SizeBytes
	}
	if a.opts.MaxTotalBytes > 0 && total > a.opts.MaxTotalBytes {
		return nil, fmt.Errorf("%w: %s requested, limit is %s",
			ErrBatchSizeExceeded, utils.FormatBytes(total), utils.FormatBytes(a.opts.MaxTotalBytes))
	}

	return &Batch{
		entries:     nameEntries(refs),
		totalBytes:  total,
		opener:      a.opener,
		compression: a.opts.Compression,
		bufferSize:  a.opts.CopyBufferSize,
		modified:    a.now(),
	}, nil
}

// Assemble prepares the batch and streams it into w
func (a *Assembler) Assemble(ctx context.Context, photoIDs []string, requesterID string, w io.Writer) (int64, error) {
	batch, err := a.Prepare(ctx, photoIDs, requesterID)
	if err != nil {
		return 0, err
	}
	return batch.WriteTo(ctx, w)
}

// resolveAll resolves ids concurrently and returns refs in request order
func (a *Assembler) resolveAll(ctx context.Context, ids []string, requesterID string) ([]photo.PhotoRef, error) {
	refs := make([]photo.PhotoRef, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.ResolveConcurrency)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			ref, err := a.resolver.Resolve(gctx, id, requesterID)
			if err != nil {
				return &PhotoResolutionFailedError{PhotoID: id, Reason: err}
			}
			refs[i] = ref
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warn().
			Err(err).
			Str("requester_id", requesterID).
			Int("photos", len(ids)).
			Msg("Batch download rejected")
		return nil, err
	}

	return refs, nil
}

// dedupe drops repeated ids, keeping the first occurrence
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// nameEntries gives every ref a distinct archive name. The first photo with a
// given name keeps it; later ones become base-1.ext, base-2.ext and so on.
func nameEntries(refs []photo.PhotoRef) []Entry {
	used := make(map[string]struct{}, len(refs))
	entries := make([]Entry, 0, len(refs))

	for _, ref := range refs {
		name := utils.SanitizeFilename(ref.Filename)
		if _, taken := used[name]; taken {
			base, ext := utils.SplitExtension(name)
			for i := 1; ; i++ {
				candidate := fmt.Sprintf("%s-%d%s", base, i, ext)
				if _, taken := used[candidate]; !taken {
					name = candidate
					break
				}
			}
		}
		used[name] = struct{}{}
		entries = append(entries, Entry{Name: name, Photo: ref})
	}
	return entries
}
