package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/nguyengg/s3stream/internal"
	"github.com/nguyengg/s3stream/internal/config"
	"github.com/nguyengg/s3stream/s3reader"
)

// CatCommand streams an S3 object to stdout, demonstrating s3reader.Reader as
// a plain io.Reader consumer.
type CatCommand struct {
	BlockSize int64 `long:"block-size" description:"byte range fetched and cached per block" default:"0"`
	Args      struct {
		URI string `positional-arg-name:"s3-uri" description:"s3://bucket/key of the object to read"`
	} `positional-args:"yes" required:"yes"`
}

func (c *CatCommand) Execute([]string) error {
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

	var optFns []func(*s3reader.Options)
	if c.BlockSize > 0 {
		optFns = append(optFns, s3reader.WithBlockSize(c.BlockSize))
	}

	r, err := s3reader.New(ctx, client, bucket, key, optFns...)
	if err != nil {
		return fmt.Errorf("create reader error: %w", err)
	}
	defer r.Close()

	_, err = r.WriteTo(os.Stdout)
	return err
}
