package blob

import (
	"context"
	"fmt"
)

// Options selects and configures the artifact store.
//
//	Driver: fs|s3|memory (default fs)
//	Dir:    OUTPUT_DIR when Driver=fs (default ./rd3-output)
//	S3:     bucket, region, endpoint and key prefix when Driver=s3
type Options struct {
	Driver Driver
	Dir    string
	S3     S3Config
}

// Open returns the artifact store described by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(opts.Dir)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown output driver %s", driver)
	}
}
