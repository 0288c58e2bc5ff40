package s3object

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/nguyengg/s3stream/internal/hashs3"
)

// MinPartSize is S3's minimum part size for multipart upload, except for the
// last part of an upload.
//
// See https://docs.aws.amazon.com/AmazonS3/latest/userguide/qfacts.html.
const MinPartSize = int64(5 * 1024 * 1024)

// ErrMissingUploadID is returned by UploadPart or Close if CreateMultipartUpload
// was never called (or never returned a upload Id).
var ErrMissingUploadID = errors.New("no upload Id: CreateMultipartUpload was never called")

// ErrMissingETag is returned by UploadPart if the store's response carries no ETag.
var ErrMissingETag = errors.New("missing ETag in UploadPart response")

// WriteClient abstracts the S3 APIs needed by Writer.
type WriteClient interface {
	PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Writer is the async multipart-upload state machine plus the single-shot
// PUT shortcut. State machine: Idle -> MultipartOpen -> Closed, with a
// separate Idle -> SingleShotDone path for SingleShotUpload.
//
// A Writer must not be used from more than one goroutine at a time: callers
// (s3writer.sink) serialize all calls onto one goroutine already.
type Writer struct {
	Bucket, Key string

	client WriteClient
	logger *log.Logger

	uploadID   *string
	lastPartNr int32
	parts      []types.CompletedPart
	length     int64
	closed     bool
	hasher     hashs3.HashS3
}

// NewWriter returns a Writer for the given bucket and key. logger defaults
// to log.Default() if nil and is used only to report best-effort abort
// failures.
func NewWriter(client WriteClient, bucket, key string, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.Default()
	}
	return &Writer{Bucket: bucket, Key: key, client: client, logger: logger}
}

// SingleShotUpload issues one PUT carrying the entire object. Used when the
// total object size is below MinPartSize.
func (w *Writer) SingleShotUpload(ctx context.Context, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(w.Bucket),
		Key:    aws.String(w.Key),
	}

	hasher := hashs3.NewFromPutObject(input)
	if _, err := hasher.Write(data); err != nil {
		return fmt.Errorf("compute checksum error: %w", err)
	}
	input = hasher.SumPutObject(input)
	input.Body = bytes.NewReader(data)

	if _, err := w.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object error: %w", err)
	}

	w.length = int64(len(data))
	w.closed = true
	return nil
}

// CreateMultipartUpload allocates and stores the upload Id.
func (w *Writer) CreateMultipartUpload(ctx context.Context) error {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(w.Bucket),
		Key:    aws.String(w.Key),
	}
	w.hasher = hashs3.NewFromCreateMultipartUpload(input)

	out, err := w.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return fmt.Errorf("create multipart upload error: %w", err)
	}
	if out.UploadId == nil {
		return fmt.Errorf("create multipart upload: %w", errors.New("store returned no upload Id"))
	}

	w.uploadID = out.UploadId
	return nil
}

// UploadPart assigns the next contiguous part number and issues UploadPart.
//
// CreateMultipartUpload must have been called successfully first.
func (w *Writer) UploadPart(ctx context.Context, data []byte) error {
	if w.uploadID == nil {
		return ErrMissingUploadID
	}

	w.lastPartNr++
	partNumber := w.lastPartNr

	input := &s3.UploadPartInput{
		Bucket:     aws.String(w.Bucket),
		Key:        aws.String(w.Key),
		UploadId:   w.uploadID,
		PartNumber: aws.Int32(partNumber),
		Body:       bytes.NewReader(data),
	}
	if w.hasher != nil {
		// Write accumulates into the full-object hash across every part; HashUploadPart resets and
		// recomputes only its own composite hash from data, so the outer hash must not be reset here.
		if _, err := w.hasher.Write(data); err != nil {
			return fmt.Errorf("compute checksum error: %w", err)
		}
		input = w.hasher.HashUploadPart(data, input)
	}

	out, err := w.client.UploadPart(ctx, input)
	if err != nil {
		return fmt.Errorf("upload part %d error: %w", partNumber, err)
	}
	if out.ETag == nil {
		return fmt.Errorf("upload part %d: %w", partNumber, ErrMissingETag)
	}

	w.parts = append(w.parts, types.CompletedPart{
		ETag:       out.ETag,
		PartNumber: aws.Int32(partNumber),
	})
	w.length += int64(len(data))
	return nil
}

// Close sends CompleteMultipartUpload with the recorded parts in order.
//
// After a successful Close the Writer is terminal: no further operations are
// permitted. If CompleteMultipartUpload fails, the upload stays open so that
// AbortMultipartUpload can still release it.
func (w *Writer) Close(ctx context.Context) error {
	if w.uploadID == nil {
		return ErrMissingUploadID
	}

	parts := slices.Clone(w.parts)
	slices.SortFunc(parts, func(a, b types.CompletedPart) int {
		return int(aws.ToInt32(a.PartNumber) - aws.ToInt32(b.PartNumber))
	})

	input := &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(w.Bucket),
		Key:             aws.String(w.Key),
		UploadId:        w.uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	}
	if w.hasher != nil {
		input = w.hasher.SumCompleteMultipartUpload(input)
	}

	if _, err := w.client.CompleteMultipartUpload(ctx, input); err != nil {
		return fmt.Errorf("complete multipart upload error: %w", err)
	}

	w.closed = true
	return nil
}

// AbortMultipartUpload sends AbortMultipartUpload for the open upload and
// reports the outcome to the caller, unlike Abort.
//
// A no-op (returning nil) if there is no open upload or the Writer is
// already closed.
func (w *Writer) AbortMultipartUpload(ctx context.Context) error {
	if w.closed || w.uploadID == nil {
		return nil
	}

	_, err := w.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(w.Bucket),
		Key:      aws.String(w.Key),
		UploadId: w.uploadID,
	})
	if err == nil {
		w.closed = true
	}

	return err
}

// Abort is called best-effort when a Writer with an open multipart upload is
// abandoned without a successful Close. Failures are logged, never
// returned, matching the "drop paths log and swallow" policy.
func (w *Writer) Abort(ctx context.Context) {
	if err := w.AbortMultipartUpload(ctx); err != nil {
		w.logger.Printf("abort multipart upload %s:%s (upload Id %s) failed: %v", w.Bucket, w.Key, aws.ToString(w.uploadID), err)
	}
}

// Length returns the number of bytes written so far (single-shot body size,
// or sum of uploaded part sizes).
func (w *Writer) Length() int64 {
	return w.length
}

// UploadID returns the multipart upload Id, or "" if CreateMultipartUpload was never called.
func (w *Writer) UploadID() string {
	return aws.ToString(w.uploadID)
}
