package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	ErrNoObjectStore = errors.New("s3 source requested but no object store is configured")
	ErrBadS3Path     = errors.New("s3 path must look like s3://bucket/key")
)

// S3Config describes an S3-compatible endpoint used for s3:// sources.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Opener resolves a dataset location to a byte stream.
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Source opens local files and s3://bucket/key objects, transparently
// decompressing .gz and .zst inputs.
type Source struct {
	client *minio.Client
}

// NewSource returns a Source. Without an S3 endpoint only local paths work.
func NewSource(cfg S3Config) (*Source, error) {
	if cfg.Endpoint == "" {
		return &Source{}, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Source{client: client}, nil
}

func (s *Source) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	var (
		raw io.ReadCloser
		err error
	)
	if strings.HasPrefix(location, "s3://") {
		raw, err = s.openObject(ctx, location)
	} else {
		raw, err = os.Open(location)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}
	return decompress(raw, location)
}

func (s *Source) openObject(ctx context.Context, location string) (io.ReadCloser, error) {
	if s.client == nil {
		return nil, ErrNoObjectStore
	}
	bucket, key, err := ParseS3Path(location)
	if err != nil {
		return nil, err
	}
	if _, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil, fmt.Errorf("%s: %w", location, os.ErrNotExist)
		}
		return nil, err
	}
	return s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
}

// ParseS3Path splits s3://bucket/key into its parts.
func ParseS3Path(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrBadS3Path, location)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadS3Path, location)
	}
	return bucket, key, nil
}

// decompress wraps raw according to the location suffix. Closing the result
// closes raw.
func decompress(raw io.ReadCloser, location string) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(location, ".gz"):
		zr, err := gzip.NewReader(raw)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("gzip %s: %w", location, err)
		}
		return &stackedReader{Reader: zr, closers: []func() error{zr.Close, raw.Close}}, nil
	case strings.HasSuffix(location, ".zst"):
		zr, err := zstd.NewReader(raw)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("zstd %s: %w", location, err)
		}
		return &stackedReader{Reader: zr, closers: []func() error{func() error { zr.Close(); return nil }, raw.Close}}, nil
	default:
		return raw, nil
	}
}

type stackedReader struct {
	io.Reader
	closers []func() error
}

func (r *stackedReader) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
