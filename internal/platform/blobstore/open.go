package blobstore

import (
	"context"
	"fmt"
)

// Options selects and configures a backend.
type Options struct {
	Driver string // memory, fs or s3
	Dir    string
	S3     S3Config
}

// Open returns the BlobStore named by opts.Driver.
func Open(ctx context.Context, opts Options) (BlobStore, error) {
	switch opts.Driver {
	case "", "memory":
		return NewInMemoryBlobStore(), nil
	case "fs":
		return NewFSBlobStore(opts.Dir)
	case "s3":
		return NewS3BlobStore(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("blobstore: unknown driver %q", opts.Driver)
	}
}
