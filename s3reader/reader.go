// Package s3reader adapts a remote S3 object to io.ReadSeekCloser and
// io.ReaderAt, backed by a fixed-capacity LRU cache of byte-range blocks
// (lrublock) fetched through s3object.
package s3reader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nguyengg/s3stream/lrublock"
	"github.com/nguyengg/s3stream/s3object"
	"golang.org/x/time/rate"
)

// DefaultBlockSize is the default value for Options.BlockSize.
//
// S3's [Recommendation] is actually 8MB-16MB.
//
// [Recommendation]: https://docs.aws.amazon.com/whitepapers/latest/s3-optimizing-performance-best-practices/use-byte-range-fetches.html
const DefaultBlockSize = int64(5 * 1024 * 1024)

// DefaultCapacity is the default value for Options.Capacity.
const DefaultCapacity = lrublock.DefaultCapacity

var (
	// ErrSeekBeforeStart is returned by Reader.Seek if the parameters would end up moving the internal read
	// offset to a negative number.
	ErrSeekBeforeStart = errors.New("seek ends up before first byte")

	// ErrSeekPastEnd is returned by Reader.Seek if the parameters would end up moving the internal read offset
	// past the end of the window (Reader.Len()). It wraps io.ErrUnexpectedEOF.
	ErrSeekPastEnd = fmt.Errorf("seek ends up past last byte: %w", io.ErrUnexpectedEOF)

	// ErrClosed is returned by Read, Seek, ReadAt, and WriteTo after Close returns.
	ErrClosed = errors.New("reader already closed")
)

// Options customises New.
type Options struct {
	// BlockSize is the size of each block fetched and cached by the underlying lrublock.Cache.
	//
	// Default to DefaultBlockSize. Must be a positive integer.
	BlockSize int64

	// Capacity is the maximum number of blocks the underlying lrublock.Cache holds at once.
	//
	// Default to DefaultCapacity. Must be a positive integer.
	Capacity int

	// MaxBytesPerSecond limits the rate at which Read and WriteTo pull bytes out of the cache.
	//
	// The zero-value indicates no limit. ReadAt is unaffected as it is meant for concurrent, ad-hoc access.
	MaxBytesPerSecond int64

	// internal. must use opaque func(*Options) to customise these.
	size   int64
	logger progressLogger
}

// WithBlockSize overrides Options.BlockSize.
func WithBlockSize(n int64) func(*Options) {
	return func(opts *Options) {
		opts.BlockSize = n
	}
}

// WithCapacity overrides Options.Capacity.
func WithCapacity(n int) func(*Options) {
	return func(opts *Options) {
		opts.Capacity = n
	}
}

// WithMaxBytesPerSecond overrides Options.MaxBytesPerSecond.
func WithMaxBytesPerSecond(n int64) func(*Options) {
	return func(opts *Options) {
		opts.MaxBytesPerSecond = n
	}
}

// New returns a Reader for the given bucket and key.
//
// New issues a HeadObject (via s3object.Reader.Length) to determine the object's size before returning.
func New(ctx context.Context, client s3object.GetHeadClient, bucket, key string, optFns ...func(*Options)) (*Reader, error) {
	object := s3object.NewReader(client, bucket, key)

	length, err := object.Length(ctx)
	if err != nil {
		return nil, fmt.Errorf("determine object size error: %w", err)
	}

	opts := &Options{
		BlockSize: DefaultBlockSize,
		Capacity:  DefaultCapacity,
		size:      length,
		logger:    noopLogger{io.Discard},
	}
	for _, fn := range optFns {
		fn(opts)
	}

	if opts.BlockSize <= 0 {
		return nil, fmt.Errorf("blockSize (%d) must be a positive integer", opts.BlockSize)
	}
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("capacity (%d) must be a positive integer", opts.Capacity)
	}
	if opts.MaxBytesPerSecond < 0 {
		return nil, fmt.Errorf("maxBytesPerSecond (%d) must be a non-negative integer", opts.MaxBytesPerSecond)
	}

	var limiter *rate.Limiter
	if opts.MaxBytesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.MaxBytesPerSecond), int(opts.BlockSize))
	}

	return &Reader{
		ctx:     ctx,
		object:  object,
		cache:   lrublock.New(object, opts.BlockSize, opts.Capacity),
		limiter: limiter,
		logger:  opts.logger,
		winLen:  length,
	}, nil
}

// Reader implements io.ReadSeekCloser and io.ReaderAt over a range-cached view of a remote S3 object.
//
// Read and Seek share the same internal cursor and must not be called concurrently; ReadAt never touches the
// cursor and is safe to call concurrently, including concurrently with Read/Seek. Clone and Section return new
// *Reader instances that share the same underlying lrublock.Cache (and therefore the same fetched blocks) but
// each own an independent cursor.
type Reader struct {
	ctx     context.Context
	object  *s3object.Reader
	cache   *lrublock.Cache
	limiter *rate.Limiter
	logger  progressLogger

	// winStart/winLen describe this Reader's window into the backing object: absolute offsets are
	// winStart+off, and reads never cross winStart+winLen.
	winStart, winLen int64

	off    int64
	closed bool
}

// Len returns the number of bytes in this Reader's window.
func (r *Reader) Len() int64 {
	return r.winLen
}

// Tell returns the current read offset relative to the start of this Reader's window.
func (r *Reader) Tell() int64 {
	return r.off
}

// Read reads up to len(p) bytes, pulling any missing blocks through the shared cache.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	end := r.winStart + r.winLen
	pos := r.winStart + r.off
	if pos >= end {
		return 0, io.EOF
	}

	total := 0
	for total < len(p) && pos < end {
		block, err := r.cache.Find(r.ctx, pos)
		if err != nil {
			r.off += int64(total)
			return total, err
		}

		blockOff := pos - block.Start
		avail := int64(len(block.Data)) - blockOff
		if avail <= 0 {
			// short block (final block of the object) with nothing left to give.
			break
		}

		want := int64(len(p) - total)
		if want > avail {
			want = avail
		}
		if remaining := end - pos; want > remaining {
			want = remaining
		}

		n := copy(p[total:], block.Data[blockOff:blockOff+want])
		total += n
		pos += int64(n)
	}

	r.off += int64(total)

	// WaitN refuses (without waiting) any n above the limiter's burst, so wait in burst-sized steps.
	for rem := total; r.limiter != nil && rem > 0; {
		step := min(rem, r.limiter.Burst())
		_ = r.limiter.WaitN(r.ctx, step)
		rem -= step
	}
	_, _ = r.logger.Write(p[:total])

	if total == 0 {
		return 0, io.EOF
	}
	return total, nil
}

// Seek moves the internal read offset for the next Read, WriteTo, or Tell.
//
// Returns ErrSeekBeforeStart or ErrSeekPastEnd for parameters that would move the offset outside [0, Len()].
// Seeking exactly to Len() is valid and simply means the next Read returns io.EOF.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, ErrClosed
	}

	var newOff int64
	switch whence {
	case io.SeekStart:
		newOff = offset
	case io.SeekCurrent:
		newOff = r.off + offset
	case io.SeekEnd:
		newOff = r.winLen + offset
	default:
		return r.off, fmt.Errorf("invalid whence: %d", whence)
	}

	if newOff < 0 {
		return r.off, ErrSeekBeforeStart
	}
	if newOff > r.winLen {
		return r.off, ErrSeekPastEnd
	}

	r.off = newOff
	_, _ = r.logger.Seek(newOff, io.SeekStart)
	return r.off, nil
}

// ReadAt reads len(p) bytes (or fewer, at EOF) starting at off within this Reader's window.
//
// ReadAt does not use or advance the internal read offset and is safe for concurrent use.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset: %d", off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= r.winLen {
		return 0, io.EOF
	}

	pos := r.winStart + off
	end := r.winStart + r.winLen

	total := 0
	for total < len(p) && pos < end {
		block, err := r.cache.Find(r.ctx, pos)
		if err != nil {
			return total, err
		}

		blockOff := pos - block.Start
		avail := int64(len(block.Data)) - blockOff
		if avail <= 0 {
			break
		}

		want := int64(len(p) - total)
		if want > avail {
			want = avail
		}
		if remaining := end - pos; want > remaining {
			want = remaining
		}

		n := copy(p[total:], block.Data[blockOff:blockOff+want])
		total += n
		pos += int64(n)
	}

	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// WriteTo reads and writes to dst until this Reader's window is exhausted, advancing the internal read offset.
func (r *Reader) WriteTo(dst io.Writer) (int64, error) {
	if r.closed {
		return 0, ErrClosed
	}

	buf := make([]byte, r.cache.BlockSize())
	var written int64

	for {
		n, err := r.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
		}

		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// Close releases this Reader's progress logger. The shared lrublock.Cache and its cached blocks outlive Close:
// other clones may still be reading from them.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.logger.Close()
}

// Clone returns a new Reader over the same window as r, sharing the same underlying cache (so blocks already
// fetched by r are not re-fetched) but starting at offset 0 with its own cursor.
func (r *Reader) Clone() *Reader {
	return &Reader{
		ctx:      r.ctx,
		object:   r.object,
		cache:    r.cache,
		limiter:  r.limiter,
		logger:   r.logger.Reopen(),
		winStart: r.winStart,
		winLen:   r.winLen,
	}
}

// Section returns a new Reader scoped to [start, start+length) of r's own window, sharing the same underlying
// cache. length is clamped so the new window never extends past r's window; reads past the new window's end
// return io.EOF rather than falling through to bytes beyond it.
func (r *Reader) Section(start, length int64) *Reader {
	if start < 0 {
		start = 0
	}

	maxLen := r.winLen - start
	if maxLen < 0 {
		maxLen = 0
	}
	if length < 0 || length > maxLen {
		length = maxLen
	}

	return &Reader{
		ctx:      r.ctx,
		object:   r.object,
		cache:    r.cache,
		limiter:  r.limiter,
		logger:   r.logger.Reopen(),
		winStart: r.winStart + start,
		winLen:   length,
	}
}
