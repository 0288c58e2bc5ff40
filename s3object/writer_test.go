package s3object

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"hash/crc32"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWriteClient implements WriteClient with an in-memory store.
type fakeWriteClient struct {
	nextUploadID int
	parts        map[string][]byte
	completeIn   *s3.CompleteMultipartUploadInput
}

func newFakeWriteClient() *fakeWriteClient {
	return &fakeWriteClient{parts: make(map[string][]byte)}
}

func (c *fakeWriteClient) PutObject(_ context.Context, _ *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{}, nil
}

func (c *fakeWriteClient) CreateMultipartUpload(_ context.Context, _ *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	c.nextUploadID++
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(string(rune('a' + c.nextUploadID)))}, nil
}

func (c *fakeWriteClient) UploadPart(_ context.Context, input *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	c.parts[aws.ToString(input.UploadId)] = append(c.parts[aws.ToString(input.UploadId)], data...)
	return &s3.UploadPartOutput{ETag: aws.String("etag")}, nil
}

func (c *fakeWriteClient) CompleteMultipartUpload(_ context.Context, input *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	c.completeIn = input
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (c *fakeWriteClient) AbortMultipartUpload(_ context.Context, _ *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func randomBytes(n int) []byte {
	data := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		panic(err)
	}
	return data
}

// TestWriter_MultipartChecksumAccumulatesAcrossParts verifies that UploadPart's full-object hash is not reset
// between parts: CompleteMultipartUpload's FULL_OBJECT checksum must reflect every part's bytes, not just the last.
func TestWriter_MultipartChecksumAccumulatesAcrossParts(t *testing.T) {
	ctx := context.Background()
	client := newFakeWriteClient()
	w := NewWriter(client, "bucket", "key", nil)

	part1 := randomBytes(64)
	part2 := randomBytes(64)

	require.NoError(t, w.CreateMultipartUpload(ctx))
	require.NoError(t, w.UploadPart(ctx, part1))
	require.NoError(t, w.UploadPart(ctx, part2))
	require.NoError(t, w.Close(ctx))

	require.NotNil(t, client.completeIn)
	require.NotNil(t, client.completeIn.ChecksumCRC32)

	want := crc32.NewIEEE()
	_, _ = want.Write(part1)
	_, _ = want.Write(part2)
	wantSum := want.Sum(nil)

	got, err := base64.StdEncoding.DecodeString(aws.ToString(client.completeIn.ChecksumCRC32))
	require.NoError(t, err)
	assert.Equal(t, wantSum, got, "full-object checksum must cover both parts, not just the last one written")
}
