// Package s3aux collects small S3 API helpers used by the cmd/s3stream
// example commands: bucket listing/deletion used by the rmrf cleanup command.
//
// Grounded on original_source/src/s3_aux.rs, which bundles the same set of
// thin wrappers (list_objects, delete_objects, delete_bucket,
// delete_buckets_with_prefix) around the AWS SDK for use by the example
// programs and integration-test cleanup.
package s3aux

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nguyengg/s3stream/internal"
)

// Client abstracts the S3 APIs needed by this package.
type Client interface {
	manager.BatchDeleteClient
	manager.DeleteListIteratorClient
	ListBuckets(context.Context, *s3.ListBucketsInput, ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	DeleteBucket(context.Context, *s3.DeleteBucketInput, ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// DeleteAllObjects lists every object under bucket and deletes them all,
// using manager.NewDeleteListIterator/manager.BatchDelete so listing and
// batched DeleteObjects calls are paginated together instead of by hand.
func DeleteAllObjects(ctx context.Context, client Client, bucket string) error {
	iter := manager.NewDeleteListIterator(client, &s3.ListObjectsInput{Bucket: aws.String(bucket)})

	if err := manager.NewBatchDeleteWithClient(client).Delete(ctx, iter); err != nil {
		return fmt.Errorf("delete objects in bucket %s error: %w", bucket, err)
	}
	return nil
}

// DeleteBucket deletes the (now presumably empty) bucket.
func DeleteBucket(ctx context.Context, client Client, bucket string) error {
	_, err := client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	return err
}

// DeleteBucketsWithPrefix lists every bucket in the account, and for each
// whose name starts with prefix, deletes all of its objects followed by the
// bucket itself.
//
// Failures on individual buckets are collected and joined into one error
// rather than aborting the remaining buckets, so one bad bucket doesn't
// block cleanup of the rest.
func DeleteBucketsWithPrefix(ctx context.Context, client Client, prefix string) error {
	out, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return fmt.Errorf("list buckets error: %w", err)
	}

	var matched []string
	for _, b := range out.Buckets {
		if name := aws.ToString(b.Name); strings.HasPrefix(name, prefix) {
			matched = append(matched, name)
		}
	}

	var errs []error
	for i, name := range matched {
		bctx := internal.WithPrefixLogger(ctx, internal.Prefix(i, len(matched), name))
		logger := internal.MustLogger(bctx)

		if err = DeleteAllObjects(bctx, client, name); err != nil {
			errs = append(errs, fmt.Errorf("%s%w", internal.MustPrefix(bctx), err))
			continue
		}
		logger.Print("objects deleted")

		if err = DeleteBucket(bctx, client, name); err != nil {
			errs = append(errs, fmt.Errorf("%s%w", internal.MustPrefix(bctx), err))
			continue
		}
		logger.Print("bucket deleted")
	}

	return errors.Join(errs...)
}
