package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/nguyengg/s3stream/internal/config"
	"github.com/nguyengg/s3stream/internal/s3aux"
)

// RmrfCommand recursively deletes every bucket whose name starts with the
// given prefix, along with all of its objects.
//
// Intended for cleaning up after test runs that create disposable buckets,
// mirroring original_source/examples/rec_del_buckets.rs.
type RmrfCommand struct {
	Args struct {
		Prefix string `positional-arg-name:"prefix" description:"bucket name prefix"`
	} `positional-args:"yes" required:"yes"`
}

func (c *RmrfCommand) Execute([]string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := config.NewS3Client(ctx)
	if err != nil {
		return fmt.Errorf("load default config error: %w", err)
	}

	if err = s3aux.DeleteBucketsWithPrefix(ctx, client, c.Args.Prefix); err != nil {
		return fmt.Errorf("delete buckets with prefix %s error: %w", c.Args.Prefix, err)
	}

	log.Printf("deleted all buckets with prefix %s", c.Args.Prefix)
	return nil
}
