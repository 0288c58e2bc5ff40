// Package config wires AWS region and credential discovery for cmd/s3stream.
//
// Region and credentials come from the SDK's standard environment-driven
// discovery chain; s3stream's core packages (s3reader, s3writer, s3object)
// never depend on this package, only the example commands do.
package config

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Loader caches one *s3.Client per AWS profile for the lifetime of a process.
type Loader struct {
	// Profile overrides AWS_PROFILE if non-empty.
	Profile string

	clients sync.Map
}

// NewS3Client returns a cached *s3.Client for l.Profile, loading the default
// config chain on first use.
func (l *Loader) NewS3Client(ctx context.Context, optFns ...func(*s3.Options)) (*s3.Client, error) {
	key := l.Profile
	if c, ok := l.clients.Load(key); ok {
		return c.(*s3.Client), nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithSharedConfigProfile(l.Profile))
	if err != nil {
		return nil, err
	}

	c := s3.NewFromConfig(cfg, optFns...)
	l.clients.Store(key, c)
	return c, nil
}

// DefaultLoader is the package-level Loader used by NewS3Client.
var DefaultLoader = &Loader{}

// NewS3Client calls DefaultLoader.NewS3Client.
func NewS3Client(ctx context.Context, optFns ...func(*s3.Options)) (*s3.Client, error) {
	return DefaultLoader.NewS3Client(ctx, optFns...)
}
