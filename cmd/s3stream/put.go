package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/nguyengg/s3stream/internal"
	"github.com/nguyengg/s3stream/internal/config"
	"github.com/nguyengg/s3stream/s3writer"
)

// PutCommand streams stdin to an S3 object, demonstrating s3writer.Writer as
// a plain io.WriteCloser consumer that pivots to multipart upload once
// enough bytes accumulate.
type PutCommand struct {
	PartSize int64 `long:"part-size" description:"bytes accumulated before a part is uploaded" default:"0"`
	Args     struct {
		URI string `positional-arg-name:"s3-uri" description:"s3://bucket/key to write"`
	} `positional-args:"yes" required:"yes"`
}

func (c *PutCommand) Execute([]string) error {
	bucket, key, err := internal.ParseS3URI(c.Args.URI)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := config.NewS3Client(ctx)
	if err != nil {
		return fmt.Errorf("load default config error: %w", err)
	}

	var optFns []func(*s3writer.Options)
	if c.PartSize > 0 {
		optFns = append(optFns, func(o *s3writer.Options) {
			o.PartSize = c.PartSize
		})
	}

	w, err := s3writer.New(ctx, client, bucket, key, optFns...)
	if err != nil {
		return fmt.Errorf("create writer error: %w", err)
	}

	if _, err = internal.CopyBufferWithContext(ctx, w, os.Stdin, nil); err != nil {
		return fmt.Errorf("write error: %w", err)
	}

	return w.Close()
}
