package hashs3

import (
	"crypto/sha1"
	"crypto/sha256"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SHA-1 and SHA-256 checksums only ever support the COMPOSITE type on S3, so
// neither algorithm below overrides SumPutObject/SumCompleteMultipartUpload:
// base's no-op is what the interface contract calls for in that case.

func newSha1() HashS3 {
	return algSha1{base{Hash: sha1.New(), composite: sha1.New()}}
}

type algSha1 struct {
	base
}

func (a algSha1) HashUploadPart(data []byte, input *s3.UploadPartInput) *s3.UploadPartInput {
	a.composite.Reset()
	a.composite.Write(data)
	input.ChecksumSHA1 = aws.String(b64sum(a.composite))
	return input
}

func newSha256() HashS3 {
	return algSha256{base{Hash: sha256.New(), composite: sha256.New()}}
}

type algSha256 struct {
	base
}

func (a algSha256) HashUploadPart(data []byte, input *s3.UploadPartInput) *s3.UploadPartInput {
	a.composite.Reset()
	a.composite.Write(data)
	input.ChecksumSHA256 = aws.String(b64sum(a.composite))
	return input
}
