// Package s3object is the thin async-facing façade over the S3 client: the
// only package in this module that issues GetObject, HeadObject, PutObject,
// and multipart-upload calls.
//
// s3object.Reader and s3object.Writer correspond to the original design's
// ObjectReader and ObjectWriter. Everything above this package (lrublock,
// s3reader, s3writer) is pure Go, synchronous, and never talks to S3
// directly.
package s3object

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/valyala/bytebufferpool"
)

// GetHeadClient abstracts the S3 APIs needed by Reader.
type GetHeadClient interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Reader is the identity of a remote object plus its lazily-resolved length.
//
// Once Length has been resolved once, it never changes: the resolution
// happens exactly once behind a sync.Once, which is the Go rendering of the
// "once length is populated it never changes" invariant.
type Reader struct {
	Bucket, Key string

	client GetHeadClient

	lenOnce sync.Once
	length  int64
	lenErr  error
}

// NewReader returns a Reader for the given bucket and key. The client is not
// contacted until GetBytes or Length is called.
func NewReader(client GetHeadClient, bucket, key string) *Reader {
	return &Reader{Bucket: bucket, Key: key, client: client}
}

// GetRange issues a ranged GetObject for [start, endInclusive] and copies the
// response body into dst, returning the number of bytes copied.
//
// A short read (the store returned fewer bytes than requested, e.g. because
// the range extends past EOF) is returned as-is, not as an error: callers
// are responsible for treating a short block correctly, which is only valid
// for the final block of the object.
func (r *Reader) GetRange(ctx context.Context, start, endInclusive int64, dst io.Writer) (int64, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(r.Key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, endInclusive)),
	})
	if err != nil {
		return 0, fmt.Errorf("get object range error: %w", err)
	}
	defer out.Body.Close()

	n, err := io.Copy(dst, out.Body)
	if err != nil {
		return n, fmt.Errorf("read object range body error: %w", err)
	}

	return n, nil
}

// GetBytes issues a ranged GetObject for [start, endInclusive] and returns
// the bytes actually returned by the store as an owned, freshly allocated
// slice.
//
// The copy from the wire is staged through a pooled buffer
// (bytebufferpool) to cut down on allocations for the common case of many
// same-sized range fetches; the returned slice itself is never pool memory,
// so callers may hold it indefinitely.
func (r *Reader) GetBytes(ctx context.Context, start, endInclusive int64) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if _, err := r.GetRange(ctx, start, endInclusive, buf); err != nil {
		return nil, err
	}

	data := make([]byte, len(buf.B))
	copy(data, buf.B)
	return data, nil
}

// Length returns the total size of the object, resolving it from HeadObject
// on first call. Length is idempotent and safe for concurrent use.
func (r *Reader) Length(ctx context.Context) (int64, error) {
	r.lenOnce.Do(func() {
		out, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(r.Bucket),
			Key:    aws.String(r.Key),
		})
		if err != nil {
			r.lenErr = fmt.Errorf("head object error: %w", err)
			return
		}
		r.length = aws.ToInt64(out.ContentLength)
	})

	return r.length, r.lenErr
}
