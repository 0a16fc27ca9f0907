package transfer

import (
	"context"
	"io"

	"github.com/fossMeDaddy/sfs-cli/internal/constants"
	encryption "github.com/fossMeDaddy/sfs-cli/internal/crypto"
	"github.com/fossMeDaddy/sfs-cli/internal/logging"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/progress"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// Source is a byte source borrowed for one upload.
// Size is the exact length, or -1 when unknown (stdin).
// Multipart uploads additionally need Reader to implement io.ReaderAt.
type Source struct {
	Reader io.Reader
	Size   int64
}

// Engine runs uploads and downloads against one backend.
type Engine struct {
	backend Backend
	opts    Options
	log     *logging.Logger
}

// NewEngine validates opts and binds them to backend.
func NewEngine(backend Backend, opts Options) (*Engine, error) {
	if backend == nil {
		return nil, xerrors.Errorf(xerrors.KindInvalid, "new engine", "backend is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{backend: backend, opts: opts, log: logging.OrNop(opts.Logger)}, nil
}

// WithProgress returns a copy of the engine reporting to sink.
func (e *Engine) WithProgress(sink progress.Sink) *Engine {
	c := *e
	c.opts.Progress = sink
	return &c
}

// WithPassword returns a copy of the engine using password for new uploads
// and for decrypting downloads.
func (e *Engine) WithPassword(password string) *Engine {
	c := *e
	c.opts.Password = password
	return &c
}

// Options returns the engine's options.
func (e *Engine) Options() Options { return e.opts }

// Upload plans and runs one upload. md is copied; its Encryption field is
// replaced with the metadata of a fresh encryption context when a password
// is configured.
func (e *Engine) Upload(ctx context.Context, src Source, md models.UploadBlobMetadata) (*models.FsFile, error) {
	if src.Reader == nil {
		return nil, xerrors.Errorf(xerrors.KindInvalid, "upload", "source reader is required")
	}
	plan, err := Plan(src.Size, e.opts.MultipartThreshold, e.opts.Concurrency, e.opts.encrypted())
	if err != nil {
		return nil, err
	}
	e.log.Debug().
		Str("name", md.Name).
		Int64("size", src.Size).
		Str("plan", plan.Kind.String()).
		Int("parts", plan.PartCount).
		Bool("encrypted", e.opts.encrypted()).
		Msg("upload planned")

	reporter := progress.NewReporter(e.opts.Progress, constants.ProgressUpdateInterval)
	defer reporter.Close()

	if plan.Kind == PlanMultipart {
		ra, ok := src.Reader.(io.ReaderAt)
		if !ok {
			return nil, xerrors.Errorf(xerrors.KindInvalid, "upload", "multipart upload of %d bytes needs a seekable source", src.Size)
		}
		if md.Encryption == nil {
			md.Encryption = models.Plaintext()
		}
		u := &ConcurrentUploader{
			Backend:        e.backend,
			Concurrency:    e.opts.Concurrency,
			BlockSize:      e.opts.BlockSize,
			Reporter:       reporter,
			AbortOnFailure: e.opts.AbortOnFailure,
			Logger:         e.opts.Logger,
		}
		return u.Upload(ctx, ra, src.Size, plan, &md)
	}
	return e.uploadSimple(ctx, src, md, reporter)
}

func (e *Engine) uploadSimple(ctx context.Context, src Source, md models.UploadBlobMetadata, reporter *progress.Reporter) (*models.FsFile, error) {
	var sealer Sealer
	size := src.Size
	if e.opts.encrypted() {
		encCtx, err := encryption.NewContext(e.opts.Password, e.opts.BlockSize, e.opts.kdf())
		if err != nil {
			return nil, err
		}
		defer encCtx.Destroy()

		s, err := encCtx.Sealer()
		if err != nil {
			return nil, err
		}
		sealer = s
		md.Encryption = encCtx.Metadata()
		size = encryption.CiphertextSize(src.Size, e.opts.BlockSize)
	} else if md.Encryption == nil {
		md.Encryption = models.Plaintext()
	}

	body := newBlockStream(NewBlockReader(src.Reader, e.opts.BlockSize, reporter), sealer)
	file, err := e.backend.PutBlob(ctx, &md, body, size)
	if serr := body.sourceErr(); serr != nil {
		return nil, serr
	}
	if err != nil {
		return nil, asTransport("put blob", err)
	}
	return file, nil
}

// Stat returns the descriptor and encryption metadata of a blob.
func (e *Engine) Stat(ctx context.Context, storageID string) (*models.FsFile, error) {
	file, err := e.backend.Metadata(ctx, storageID)
	if err != nil {
		return nil, asTransport("fetch metadata", err)
	}
	return file, nil
}

// Download fetches a blob's metadata, then its content into dst.
func (e *Engine) Download(ctx context.Context, storageID string, dst io.Writer) (*models.FsFile, error) {
	file, err := e.Stat(ctx, storageID)
	if err != nil {
		return nil, err
	}
	if err := e.DownloadFile(ctx, file, dst); err != nil {
		return file, err
	}
	return file, nil
}

// DownloadFile writes the content of a blob whose descriptor was already
// fetched with Stat into dst.
func (e *Engine) DownloadFile(ctx context.Context, file *models.FsFile, dst io.Writer) error {
	if file == nil {
		return xerrors.Errorf(xerrors.KindInvalid, "download", "file descriptor is required")
	}
	reporter := progress.NewReporter(e.opts.Progress, constants.ProgressUpdateInterval)
	defer reporter.Close()

	d := &ConcurrentDownloader{
		Backend:     e.backend,
		Concurrency: e.opts.Concurrency,
		Threshold:   e.opts.MultipartThreshold,
		KDF:         e.opts.kdf(),
		Reporter:    reporter,
		Logger:      e.opts.Logger,
	}
	return d.Download(ctx, file, dst, e.opts.Password)
}
