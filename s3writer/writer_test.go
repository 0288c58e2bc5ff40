package s3writer

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nguyengg/s3stream/s3object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testWriteClient implements s3object.WriteClient with an in-memory store.
type testWriteClient struct {
	mu sync.Mutex

	putObjectCalls              int
	createMultipartUploadCalls  int
	uploadPartCalls             int
	completeMultipartUploadCall int
	abortMultipartUploadCalls   int

	nextUploadID int
	parts        map[string]map[int32][]byte

	failComplete        bool
	failUploadPartAfter int
	aborted             bool
	completed           []byte
}

func newTestWriteClient() *testWriteClient {
	return &testWriteClient{parts: make(map[string]map[int32][]byte)}
}

func (c *testWriteClient) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putObjectCalls++

	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	c.completed = data
	return &s3.PutObjectOutput{}, nil
}

func (c *testWriteClient) CreateMultipartUpload(_ context.Context, _ *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createMultipartUploadCalls++

	c.nextUploadID++
	id := aws.String(string(rune('a' + c.nextUploadID)))
	c.parts[*id] = make(map[int32][]byte)
	return &s3.CreateMultipartUploadOutput{UploadId: id}, nil
}

func (c *testWriteClient) UploadPart(_ context.Context, input *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploadPartCalls++

	if c.failUploadPartAfter > 0 && c.uploadPartCalls > c.failUploadPartAfter {
		return nil, fmt.Errorf("simulated upload part failure")
	}

	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	c.parts[*input.UploadId][*input.PartNumber] = data

	return &s3.UploadPartOutput{ETag: aws.String("etag")}, nil
}

func (c *testWriteClient) CompleteMultipartUpload(_ context.Context, input *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completeMultipartUploadCall++

	if c.failComplete {
		return nil, fmt.Errorf("simulated complete multipart upload failure")
	}

	parts := c.parts[*input.UploadId]
	var buf bytes.Buffer
	for i := int32(1); i <= int32(len(parts)); i++ {
		buf.Write(parts[i])
	}
	c.completed = buf.Bytes()

	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (c *testWriteClient) AbortMultipartUpload(_ context.Context, _ *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortMultipartUploadCalls++
	c.aborted = true
	return &s3.AbortMultipartUploadOutput{}, nil
}

func randomBytes(n int) []byte {
	data := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		panic(err)
	}
	return data
}

func TestWriter_SingleShot(t *testing.T) {
	ctx := context.Background()
	tc := newTestWriteClient()
	w, err := New(ctx, tc, "bucket", "key")
	require.NoError(t, err)

	data := randomBytes(1024)
	n, err := w.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	require.NoError(t, w.Close())
	assert.Equal(t, 1, tc.putObjectCalls)
	assert.Equal(t, 0, tc.createMultipartUploadCalls)
	assert.Equal(t, data, tc.completed)

	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWriter_Multipart(t *testing.T) {
	ctx := context.Background()
	tc := newTestWriteClient()
	w, err := New(ctx, tc, "bucket", "key", func(o *Options) {
		o.PartSize = s3object.MinPartSize
	})
	require.NoError(t, err)

	// two full parts plus a partial remainder.
	part1 := randomBytes(int(s3object.MinPartSize))
	part2 := randomBytes(int(s3object.MinPartSize))
	tail := randomBytes(100)

	_, err = w.Write(part1)
	require.NoError(t, err)
	_, err = w.Write(part2)
	require.NoError(t, err)
	_, err = w.Write(tail)
	require.NoError(t, err)

	require.NoError(t, w.Close())

	assert.Equal(t, 1, tc.createMultipartUploadCalls)
	assert.Equal(t, 3, tc.uploadPartCalls)
	assert.Equal(t, 1, tc.completeMultipartUploadCall)
	assert.Equal(t, 0, tc.putObjectCalls)

	expected := append(append(append([]byte{}, part1...), part2...), tail...)
	assert.Equal(t, expected, tc.completed)
}

func TestWriter_SingleLargeWritePartitionsIntoEqualParts(t *testing.T) {
	ctx := context.Background()
	tc := newTestWriteClient()
	w, err := New(ctx, tc, "bucket", "key", func(o *Options) {
		o.PartSize = s3object.MinPartSize
	})
	require.NoError(t, err)

	// one Write spanning two full parts plus a residual, all in a single call.
	residual := 100
	data := randomBytes(int(s3object.MinPartSize)*2 + residual)

	n, err := w.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	require.NoError(t, w.Close())

	assert.Equal(t, 1, tc.createMultipartUploadCalls)
	assert.Equal(t, 3, tc.uploadPartCalls, "a single oversized write must still split into equal parts plus the residual")
	assert.Equal(t, 1, tc.completeMultipartUploadCall)
	assert.Equal(t, data, tc.completed)
}

func TestWriter_FlushDoesNotSendPartialRemainder(t *testing.T) {
	ctx := context.Background()
	tc := newTestWriteClient()
	w, err := New(ctx, tc, "bucket", "key", func(o *Options) {
		o.PartSize = s3object.MinPartSize
	})
	require.NoError(t, err)

	_, err = w.Write(randomBytes(int(s3object.MinPartSize)))
	require.NoError(t, err)
	_, err = w.Write(randomBytes(10))
	require.NoError(t, err)

	require.NoError(t, w.Flush())
	assert.Equal(t, 10, w.acc.Len(), "Flush must keep the 10-byte remainder buffered")

	// the full part is uploaded by the background sink; wait for it to land before counting.
	require.Eventually(t, func() bool {
		tc.mu.Lock()
		defer tc.mu.Unlock()
		return tc.uploadPartCalls >= 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, tc.uploadPartCalls, "Flush must only send the full part, not the 10-byte remainder")

	require.NoError(t, w.Close())
	assert.Equal(t, 2, tc.uploadPartCalls, "Close must send the remaining partial part")
}

func TestWriter_AbortsOnCompleteError(t *testing.T) {
	ctx := context.Background()
	tc := newTestWriteClient()
	w, err := New(ctx, tc, "bucket", "key", func(o *Options) {
		o.PartSize = s3object.MinPartSize
	})
	require.NoError(t, err)

	_, err = w.Write(randomBytes(int(s3object.MinPartSize) + 1))
	require.NoError(t, err)

	tc.mu.Lock()
	tc.failComplete = true
	tc.mu.Unlock()

	err = w.Close()
	var muErr MultipartUploadError
	require.ErrorAs(t, err, &muErr)
	assert.Equal(t, AbortSuccess, muErr.Abort)
	assert.True(t, tc.aborted)
}

func TestWriter_AsyncUploadPartErrorSurfacesOnNextWrite(t *testing.T) {
	ctx := context.Background()
	tc := newTestWriteClient()
	tc.failUploadPartAfter = 1

	w, err := New(ctx, tc, "bucket", "key", func(o *Options) {
		o.PartSize = s3object.MinPartSize
	})
	require.NoError(t, err)

	// two full parts: both accepted; the first uploads, the second fails in the background sink.
	_, err = w.Write(randomBytes(int(s3object.MinPartSize) * 2))
	require.NoError(t, err)

	// wait for the background sink to observe the failure before the next call.
	require.Eventually(t, func() bool {
		return w.sink.Err() != nil
	}, time.Second, time.Millisecond)

	// the next Write must now fail instead of silently accepting and discarding data.
	_, err = w.Write(randomBytes(int(s3object.MinPartSize)))
	require.Error(t, err)
	assert.True(t, tc.aborted)
}

func TestWriter_EmptyWriteUploadsEmptyObject(t *testing.T) {
	ctx := context.Background()
	tc := newTestWriteClient()
	w, err := New(ctx, tc, "bucket", "key")
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.Equal(t, 1, tc.putObjectCalls)
	assert.Equal(t, 0, len(tc.completed))
}
