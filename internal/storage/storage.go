// Package storage uploads snapshot files to an S3-compatible object store.
//
// A Store is a long-lived client handle: open it once per process and pass it
// to whoever needs to upload. Tests build one with New and a fake API.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/cjeanneret/DoorSnap/internal/debug"
)

var (
	// ErrLocalOpen marks failures to read the local file; no request was sent.
	ErrLocalOpen = errors.New("local file unreadable")
	// ErrRemote marks failures reported by the object store or the network.
	ErrRemote = errors.New("object store request failed")
)

// API is the subset of the S3 client used by Store.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config selects the object store endpoint. Zero values use the SDK defaults
// (region and credentials from the environment / shared config).
type Config struct {
	Region       string
	Endpoint     string // custom endpoint for S3-compatible stores (MinIO, LocalStack)
	UsePathStyle bool
}

// Store is the object store client handle.
type Store struct {
	api API
}

// New wraps an existing client.
func New(api API) *Store {
	return &Store{api: api}
}

// Open builds a Store from the SDK's default credential chain.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	debug.Verbose("Object store client ready (region=%q endpoint=%q)", awsCfg.Region, cfg.Endpoint)
	return New(client), nil
}

// UploadResult is the outcome of one Upload call.
type UploadResult struct {
	Bucket string
	Key    string
	Path   string
	Size   int64
	ETag   string
	Err    error
}

// OK reports whether the object was stored.
func (r UploadResult) OK() bool { return r.Err == nil }

// Upload sends the file at path to bucket under key. It makes a single
// blocking request and never retries. A path that cannot be opened, or is
// not a regular file, fails with ErrLocalOpen before any request is made.
func (s *Store) Upload(ctx context.Context, bucket, path, key string) UploadResult {
	res := UploadResult{Bucket: bucket, Key: key, Path: path}

	f, err := os.Open(path)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrLocalOpen, err)
		debug.Errorf("Failed to open file: %s", path)
		return res
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrLocalOpen, err)
		return res
	}
	if !info.Mode().IsRegular() {
		res.Err = fmt.Errorf("%w: %s is not a regular file", ErrLocalOpen, path)
		debug.Errorf("Failed to open file: %s", path)
		return res
	}
	res.Size = info.Size()

	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		in.ContentType = aws.String(ct)
	}

	debug.Verbose("PutObject bucket=%s key=%q size=%d", bucket, key, info.Size())
	out, err := s.api.PutObject(ctx, in)
	if err != nil {
		res.Err = fmt.Errorf("%w: put %s/%s: %w", ErrRemote, bucket, key, err)
		debug.Errorf("Error uploading file: %s", ServiceMessage(err))
		return res
	}
	res.ETag = aws.ToString(out.ETag)
	debug.Uploaded(bucket, key)
	return res
}

// ServiceMessage returns the message supplied by the object store for err,
// or err's text when the failure did not come from the service.
func ServiceMessage(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorMessage()
	}
	return err.Error()
}

// currentUser is the account document written by the companion app.
type currentUser struct {
	Username string `json:"username"`
}

// CurrentProfile reads the profile name of the account being enrolled from
// a JSON document {"username": "..."} stored at bucket/key.
func (s *Store) CurrentProfile(ctx context.Context, bucket, key string) (string, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("%w: get %s/%s: %w", ErrRemote, bucket, key, err)
	}
	defer out.Body.Close()

	var u currentUser
	if err := json.NewDecoder(out.Body).Decode(&u); err != nil {
		return "", fmt.Errorf("decode %s/%s: %w", bucket, key, err)
	}
	if u.Username == "" {
		return "", fmt.Errorf("'username' not found in %s/%s", bucket, key)
	}
	debug.Info("Loaded profile from store: %s", u.Username)
	return u.Username, nil
}
