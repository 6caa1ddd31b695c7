package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"tasknotifier/internal/types"
)

const minPadWidth = 3

// Archive is the set of files produced for one report. Parts are in upload
// order and concatenate to the container. When the container was not split,
// Parts holds the container path alone.
type Archive struct {
	Parts     []string
	Container string
	Size      int64
	MIME      string

	mu      sync.Mutex
	removed map[string]bool
}

// Empty reports whether there is nothing to upload.
func (a *Archive) Empty() bool {
	return a == nil || len(a.Parts) == 0
}

// Remove deletes one file of the archive. Uploaders call it after each part
// is sent so a long attachment run does not keep every part on disk.
func (a *Archive) Remove(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.removeLocked(path)
}

// Cleanup removes every file the archive still owns. It is safe to call
// more than once.
func (a *Archive) Cleanup() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for _, p := range a.Parts {
		errs = append(errs, a.removeLocked(p))
	}
	if a.Container != "" {
		errs = append(errs, a.removeLocked(a.Container))
	}
	return errors.Join(errs...)
}

func (a *Archive) removeLocked(path string) error {
	if a.removed == nil {
		a.removed = map[string]bool{}
	}
	if a.removed[path] {
		return nil
	}
	a.removed[path] = true
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ArchiverConfig holds the parameters needed to construct an Archiver.
type ArchiverConfig struct {
	// TempDir holds work files. Empty means os.TempDir().
	TempDir string
	// MaxSegmentBytes bounds each part. Zero or less disables splitting.
	MaxSegmentBytes int64
	// KeepSource retains the uncompressed report for debugging.
	KeepSource bool
	Format     types.ArchiveFormat
	Logger     types.Logger
}

// Archiver writes reports to disk, compresses and splits them.
type Archiver struct {
	cfg    ArchiverConfig
	newID  func() string
	logger types.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(cfg ArchiverConfig) *Archiver {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Format == "" {
		cfg.Format = types.ArchiveZip
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Archiver{cfg: cfg, newID: uuid.NewString, logger: logger}
}

// Archive turns rep into upload-ready parts.
//
// On any failure every file created by this call is removed and the error
// is returned with a nil Archive; the caller sends the task without
// attachments. An empty report produces an empty Archive.
func (ar *Archiver) Archive(ctx context.Context, rep *Report) (_ *Archive, err error) {
	if rep == nil || len(rep.Body) == 0 {
		return &Archive{}, nil
	}

	var created []string
	defer func() {
		if err == nil {
			return
		}
		for _, p := range created {
			_ = os.Remove(p)
		}
		ar.logger.Warn("report archive failed", "error", err, "code", string(types.CodeOf(err)))
	}()

	id := ar.newID()
	ext := rep.Extension
	if ext == "" {
		ext = "txt"
	}

	source := filepath.Join(ar.cfg.TempDir, id+"."+ext)
	if err := writeNew(source, func(w io.Writer) error {
		_, werr := w.Write(rep.Body)
		return werr
	}); err != nil {
		return nil, types.NewAppError(types.ErrCodeArchiveWrite, "failed to write report", err)
	}
	created = append(created, source)

	if err := ctx.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeArchiveWrite, "archive cancelled", err)
	}

	var container, mime string
	switch ar.cfg.Format {
	case types.ArchiveZstd:
		container = source + ".zst"
		mime = types.MIMEZstd
		err = writeNew(container, func(w io.Writer) error { return compressZstd(w, source) })
	default:
		container = filepath.Join(ar.cfg.TempDir, id+".zip")
		mime = types.MIMEZip
		err = writeNew(container, func(w io.Writer) error { return compressZip(w, source) })
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeArchiveCompress, "failed to compress report", err)
	}
	created = append(created, container)

	if !ar.cfg.KeepSource {
		if err := os.Remove(source); err != nil {
			return nil, types.NewAppError(types.ErrCodeArchiveWrite, "failed to remove report source", err)
		}
		created = created[1:]
	}

	info, err := os.Stat(container)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeArchiveCompress, "failed to stat container", err)
	}
	size := info.Size()

	if err := ctx.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeArchiveSplit, "archive cancelled", err)
	}

	segment := ar.cfg.MaxSegmentBytes
	if segment <= 0 || size <= segment {
		return &Archive{Parts: []string{container}, Container: container, Size: size, MIME: mime}, nil
	}

	parts, err := splitFile(container, ar.cfg.TempDir, "part_"+filepath.Base(container), segment)
	created = append(created, parts...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeArchiveSplit, "failed to split container", err)
	}
	if err := os.Remove(container); err != nil {
		return nil, types.NewAppError(types.ErrCodeArchiveSplit, "failed to remove container", err)
	}

	ar.logger.Info("report archive split", "parts", len(parts), "size", size)
	return &Archive{Parts: parts, Size: size, MIME: mime}, nil
}

// writeNew creates path exclusively, fills it with fn and closes it. A
// failed write leaves no file behind.
func writeNew(path string, fn func(io.Writer) error) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return fn(f)
}

func compressZip(w io.Writer, source string) error {
	src, err := os.Open(source)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Method = zip.Deflate
	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(entry, src); err != nil {
		return err
	}
	return zw.Close()
}

func compressZstd(w io.Writer, source string) error {
	src, err := os.Open(source)
	if err != nil {
		return err
	}
	defer src.Close()

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// splitFile cuts path into ceil(size/segment) sequential files named
// <base>.001, <base>.002 and so on. Every part but the last is exactly
// segment bytes. The returned slice lists whatever was created, even on error.
func splitFile(path, dir, base string, segment int64) (parts []string, err error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, err
	}
	count := (info.Size() + segment - 1) / segment
	width := max(minPadWidth, len(strconv.FormatInt(count, 10)))

	for i := int64(1); i <= count; i++ {
		name := filepath.Join(dir, fmt.Sprintf("%s.%0*d", base, width, i))
		if err := writeNew(name, func(w io.Writer) error {
			_, cerr := io.CopyN(w, src, segment)
			if errors.Is(cerr, io.EOF) && i == count {
				return nil
			}
			return cerr
		}); err != nil {
			return parts, err
		}
		parts = append(parts, name)
	}
	return parts, nil
}

// Join concatenates parts in order into dst.
func Join(parts []string, dst io.Writer) error {
	for _, p := range parts {
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(dst, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("join %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

var zstdDecoders = sync.Pool{
	New: func() any {
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
		}
		return d
	},
}

// Extract returns the report stored in a joined container. It accepts both
// the single-entry zip and the zstd frame.
func Extract(container []byte) ([]byte, error) {
	if bytes.HasPrefix(container, []byte("PK\x03\x04")) {
		zr, err := zip.NewReader(bytes.NewReader(container), int64(len(container)))
		if err != nil {
			return nil, fmt.Errorf("open zip: %w", err)
		}
		if len(zr.File) != 1 {
			return nil, fmt.Errorf("zip holds %d entries, want 1", len(zr.File))
		}
		rc, err := zr.File[0].Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}

	dec := zstdDecoders.Get().(*zstd.Decoder)
	defer zstdDecoders.Put(dec)
	out, err := dec.DecodeAll(container, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return out, nil
}
