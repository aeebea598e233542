// Package s3 publishes converted models to an S3-compatible object store.
// Each entry lives under <prefix>/<namespace>/<name>/.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/docker/model-converter/pkg/logging"
	"github.com/docker/model-converter/pkg/publish"
)

// EntryKey is the object holding an entry's metadata.
const EntryKey = "entry.json"

// Config holds configuration for the S3 destination.
type Config struct {
	// Bucket is the bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom endpoint URL for S3-compatible providers
	// (e.g. MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
}

// ParsePath parses "bucket/prefix" or "bucket".
func ParsePath(p string) (bucket, prefix string) {
	parts := strings.SplitN(strings.Trim(p, "/"), "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix
}

// ObjectAPI is the subset of the S3 client used for entry metadata.
type ObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader uploads possibly large objects.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Destination publishes to a bucket.
type Destination struct {
	Bucket   string
	Prefix   string
	Client   ObjectAPI
	Uploader Uploader
	Log      logging.Logger
}

// New creates a Destination using the AWS default credential chain (env
// vars, shared config, IAM role).
func New(ctx context.Context, cfg Config, log logging.Logger) (*Destination, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3 bucket is required")
	}
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	return &Destination{
		Bucket:   cfg.Bucket,
		Prefix:   strings.Trim(cfg.Prefix, "/"),
		Client:   client,
		Uploader: manager.NewUploader(client),
		Log:      log,
	}, nil
}

func (d *Destination) key(destID, name string) (string, error) {
	ns, entry, err := publish.SplitDestID(destID)
	if err != nil {
		return "", err
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("invalid remote path %q", name)
	}
	return path.Join(d.Prefix, ns, entry, name), nil
}

type entryObject struct {
	ID          string             `json:"id"`
	Visibility  publish.Visibility `json:"visibility"`
	License     string             `json:"license,omitempty"`
	DisplayName string             `json:"display_name,omitempty"`
	Description string             `json:"description,omitempty"`
	SourceURL   string             `json:"source_url,omitempty"`
}

// EnsureEntry implements publish.Destination.
func (d *Destination) EnsureEntry(ctx context.Context, destID string, opts publish.Options) error {
	key, err := d.key(destID, EntryKey)
	if err != nil {
		return publish.NewError(destID, "ensure entry", err)
	}
	exists, err := d.exists(ctx, key)
	if err != nil {
		return publish.NewError(destID, "ensure entry", err)
	}
	if exists {
		d.Log.WithField("destination", destID).Info("Entry already exists")
		return nil
	}

	visibility := opts.Visibility
	if visibility == "" {
		visibility = publish.Public
	}
	body, err := json.Marshal(entryObject{
		ID:          destID,
		Visibility:  visibility,
		License:     opts.License,
		DisplayName: opts.DisplayName,
		Description: opts.Description,
		SourceURL:   opts.SourceURL,
	})
	if err != nil {
		return publish.NewError(destID, "ensure entry", err)
	}
	_, err = d.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata:    map[string]string{"visibility": string(visibility)},
	})
	if err != nil {
		return publish.NewError(destID, "ensure entry", fmt.Errorf("failed to put entry object: %w", err))
	}
	d.Log.WithFields(logrus.Fields{"destination": destID, "bucket": d.Bucket, "key": key}).Info("Created entry")
	return nil
}

// UploadFile implements publish.Destination.
func (d *Destination) UploadFile(ctx context.Context, destID, localPath, remotePath, commitMessage string) error {
	op := "upload " + remotePath
	key, err := d.key(destID, remotePath)
	if err != nil {
		return publish.NewError(destID, op, err)
	}
	entryKey, _ := d.key(destID, EntryKey)
	exists, err := d.exists(ctx, entryKey)
	if err != nil {
		return publish.NewError(destID, op, err)
	}
	if !exists {
		return publish.NewError(destID, op, publish.ErrNoEntry)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return publish.NewError(destID, op, err)
	}
	defer file.Close()

	metadata := map[string]string{"writer": "model-converter"}
	if commitMessage != "" {
		metadata["commit-message"] = commitMessage
	}
	_, err = d.Uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.Bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType(remotePath)),
		Metadata:    metadata,
	})
	if err != nil {
		return publish.NewError(destID, op, fmt.Errorf("failed to upload S3 object: %w", err))
	}
	d.Log.WithFields(logrus.Fields{"destination": destID, "bucket": d.Bucket, "key": key}).Info("Uploaded file")
	return nil
}

func (d *Destination) exists(ctx context.Context, key string) (bool, error) {
	_, err := d.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", key, err)
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noKey)
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
