// Package s3writer adapts a sequential io.WriteCloser to S3, picking a
// single-shot PutObject or a multipart upload depending on how much data
// ends up being written.
package s3writer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/nguyengg/s3stream/s3object"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/time/rate"
)

// DefaultPartSize is the default value for Options.PartSize.
const DefaultPartSize = s3object.MinPartSize

// ErrClosed is returned by all Writer write methods after Close returns.
var ErrClosed = errors.New("writer already closed")

// state tracks whether Writer has pivoted from the "maybe single-shot" state to multipart upload.
type state int

const (
	stateNone state = iota
	stateMultipart
	stateDone
)

// Options customises New.
type Options struct {
	// PartSize is the number of bytes accumulated before a part is handed off for upload.
	//
	// Default to DefaultPartSize. Values below s3object.MinPartSize are silently raised to it: S3 rejects any part
	// smaller than that except for the very last one.
	PartSize int64

	// MaxBytesPerSecond limits the number of bytes that are uploaded in one second.
	//
	// The zero-value indicates no limit.
	MaxBytesPerSecond int64

	// DisableAbortOnError controls whether AbortMultipartUpload is automatically called when Close (or a Write)
	// fails with an open multipart upload.
	DisableAbortOnError bool

	// internal. must use opaque func(*Options) to customise these.
	logger io.WriteCloser
}

// New returns a Writer for the given bucket and key.
//
// Nothing is sent to the store until enough bytes accumulate (see Options.PartSize) or Close is called.
func New(ctx context.Context, client s3object.WriteClient, bucket, key string, optFns ...func(*Options)) (*Writer, error) {
	opts := &Options{
		PartSize: DefaultPartSize,
		logger:   noopLogger{io.Discard},
	}
	for _, fn := range optFns {
		fn(opts)
	}

	if opts.PartSize < s3object.MinPartSize {
		opts.PartSize = s3object.MinPartSize
	}
	if opts.MaxBytesPerSecond < 0 {
		return nil, fmt.Errorf("maxBytesPerSecond (%d) must be a non-negative integer", opts.MaxBytesPerSecond)
	}

	var limiter *rate.Limiter
	if opts.MaxBytesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.MaxBytesPerSecond), int(opts.PartSize))
	}

	return &Writer{
		ctx:                 ctx,
		object:              s3object.NewWriter(client, bucket, key, nil),
		threshold:           opts.PartSize,
		disableAbortOnError: opts.DisableAbortOnError,
		limiter:             limiter,
		logger:              opts.logger,
		acc:                 bytebufferpool.Get(),
	}, nil
}

// Writer is an io.WriteCloser that buffers writes and picks a single-shot PutObject or multipart upload depending
// on how many bytes end up being written.
//
// Similar to bufio.Writer, once an error occurs, no more data is accepted and subsequent Write or Close calls
// return that same error.
type Writer struct {
	ctx                 context.Context
	object              *s3object.Writer
	threshold           int64
	disableAbortOnError bool
	limiter             *rate.Limiter
	logger              io.WriteCloser

	acc   *bytebufferpool.ByteBuffer
	state state
	sink  *sink
	err   error
}

// Write accumulates p into the internal buffer, pivoting to (or continuing) a multipart upload and handing off
// completed parts to the background sink once the buffer reaches Options.PartSize.
//
// Write always returns n == len(p) on success, matching io.Writer's short-write avoidance contract even though
// the number of bytes actually uploaded to the store lags behind.
func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.state == stateMultipart {
		if err := w.sink.Err(); err != nil {
			return 0, w.setErr(err)
		}
	}

	n, _ := w.acc.Write(p)

	if err := w.drainFullParts(); err != nil {
		return n, w.setErr(err)
	}

	// WaitN refuses (without waiting) any n above the limiter's burst, so wait in burst-sized steps.
	for rem := n; w.limiter != nil && rem > 0; {
		step := min(rem, w.limiter.Burst())
		_ = w.limiter.WaitN(w.ctx, step)
		rem -= step
	}
	_, _ = w.logger.Write(p[:n])

	return n, nil
}

// Flush hands off any buffered bytes that already reach a full part to the background sink.
//
// Flush never sends a partial (sub-PartSize) remainder: only Close does, since the store allows the last part of
// a multipart upload to be smaller than the minimum. This keeps Flush safe to call at any point without affecting
// the shape of the final upload.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if w.state == stateMultipart {
		if err := w.sink.Err(); err != nil {
			return w.setErr(err)
		}
	}

	if err := w.drainFullParts(); err != nil {
		return w.setErr(err)
	}
	return nil
}

// drainFullParts repeatedly slices exactly threshold-sized parts off the front of the accumulator and hands each
// off to the sink, pivoting to multipart upload on the first handoff. A single Write of K*threshold bytes therefore
// produces K parts, not one oversized part: only the sub-threshold remainder stays buffered.
func (w *Writer) drainFullParts() error {
	for int64(w.acc.Len()) >= w.threshold {
		if w.state == stateNone {
			if err := w.object.CreateMultipartUpload(w.ctx); err != nil {
				return fmt.Errorf("create multipart upload error: %w", err)
			}
			w.sink = newSink(w.ctx, w.object)
			w.state = stateMultipart
		}

		data := w.acc.Bytes()

		part := bytebufferpool.Get()
		_, _ = part.Write(data[:w.threshold])

		rest := bytebufferpool.Get()
		_, _ = rest.Write(data[w.threshold:])
		bytebufferpool.Put(w.acc)
		w.acc = rest

		w.sink.send(part)
	}

	return nil
}

// Close flushes any remaining buffered bytes and finalizes the upload: a single PutObject if Options.PartSize was
// never reached, or CompleteMultipartUpload otherwise.
//
// After Close has finalized the upload (successfully or not), the Writer is terminal: subsequent Write, Flush, or
// Close calls return ErrClosed. If an earlier Write or Flush already failed, Close returns that error without
// finalizing, and later calls keep returning it.
func (w *Writer) Close() error {
	if w.state == stateDone {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}

	err := w.finalize()

	w.state = stateDone
	w.err = ErrClosed

	if err != nil {
		return err
	}
	return w.logger.Close()
}

func (w *Writer) finalize() error {
	if err := w.drainFullParts(); err != nil {
		return err
	}

	if w.state == stateNone {
		data := append([]byte(nil), w.acc.Bytes()...)
		bytebufferpool.Put(w.acc)
		if err := w.object.SingleShotUpload(w.ctx, data); err != nil {
			return err
		}
		return nil
	}

	if w.acc.Len() > 0 {
		w.sink.send(w.acc)
	} else {
		bytebufferpool.Put(w.acc)
	}
	w.acc = nil

	if err := w.sink.close(); err != nil {
		return w.abortAndWrap(err)
	}

	if err := w.object.Close(w.ctx); err != nil {
		return w.abortAndWrap(err)
	}

	return nil
}

// abortAndWrap issues AbortMultipartUpload (unless disabled) and wraps both the original cause and the abort
// outcome into a MultipartUploadError.
func (w *Writer) abortAndWrap(cause error) error {
	muErr := MultipartUploadError{
		Err:      cause,
		UploadID: w.object.UploadID(),
		Abort:    AbortNotAttempted,
	}

	if !w.disableAbortOnError {
		if abortErr := w.object.AbortMultipartUpload(context.Background()); abortErr == nil {
			muErr.Abort = AbortSuccess
		} else {
			muErr.Abort = AbortFailure
			muErr.AbortErr = abortErr
		}
	}

	return muErr
}

func (w *Writer) setErr(err error) error {
	if w.state != stateMultipart {
		w.err = err
		return err
	}

	wrapped := w.abortAndWrap(err)
	w.err = wrapped
	return wrapped
}

// sink owns the dedicated goroutine that drains completed parts and uploads them in the order they were produced.
type sink struct {
	ctx    context.Context
	object *s3object.Writer
	ch     chan *bytebufferpool.ByteBuffer
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error
}

// sinkCapacity bounds the number of parts that may be buffered ahead of the uploading goroutine, providing
// backpressure to Writer.Write once the store falls behind the producer.
const sinkCapacity = 2

func newSink(ctx context.Context, object *s3object.Writer) *sink {
	s := &sink{
		ctx:    ctx,
		object: object,
		ch:     make(chan *bytebufferpool.ByteBuffer, sinkCapacity),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

func (s *sink) run() {
	defer s.wg.Done()

	for bb := range s.ch {
		if s.Err() == nil {
			if err := s.object.UploadPart(s.ctx, bb.Bytes()); err != nil {
				s.setErr(fmt.Errorf("upload part error: %w", err))
			}
		}
		bytebufferpool.Put(bb)
	}
}

// Err returns the first upload error encountered so far, if any. Safe to call concurrently with run.
func (s *sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *sink) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// send hands bb off to the background goroutine, blocking the caller once sinkCapacity parts are already queued.
func (s *sink) send(bb *bytebufferpool.ByteBuffer) {
	s.ch <- bb
}

// close signals no more parts are coming and waits for the background goroutine to finish draining, returning the
// first upload error it encountered, if any.
func (s *sink) close() error {
	close(s.ch)
	s.wg.Wait()
	return s.Err()
}
