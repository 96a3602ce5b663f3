// Package objectstore wraps the aws-sdk-go-v2 S3 client for presigned PUT
// URL minting and HEAD-based settlement validation, modeled on
// libs/aws.NewClient / BaseAWSConfig's path-style client and custom endpoint
// resolver (so the same code targets both AWS S3 and an S3-compatible
// object store in local development).
package objectstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config carries the object store connection parameters surfaced in
// spec.md §6 ("object store {account_id, access_key, secret, bucket, zone}").
type Config struct {
	AccountID string
	AccessKey string
	Secret    string
	Bucket    string
	Zone      string
	// Endpoint overrides the default AWS endpoint resolution, for
	// S3-compatible local/sandbox targets.
	Endpoint string
}

// Client mints presigned PUT URLs and performs HEAD/DELETE settlement calls
// against the configured bucket.
type Client struct {
	cfg     Config
	s3      *s3.Client
	presign *s3.PresignClient
}

// New builds a Client from cfg.
func New(ctx context.Context, cfg Config) (*Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				PartitionID:   "aws",
				URL:           cfg.Endpoint,
				SigningRegion: cfg.Zone,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Zone),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.Secret, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: loading aws config: %w", err)
	}

	cli := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = os.Getenv("ENV") == "local"
	})

	return &Client{
		cfg:     cfg,
		s3:      cli,
		presign: s3.NewPresignClient(cli),
	}, nil
}

// PresignedTarget is the shape returned to clients for a create_presign or
// represign call (spec §4.3, §6).
type PresignedTarget struct {
	PutURL          string
	ObjectKey       string
	ExpiresAt       time.Time
	RequiredHeaders map[string]string
}

// PresignPut mints a time-bounded presigned PUT URL for objectKey, binding
// Content-Type/Content-Length/If-None-Match headers as spec §4.3 requires.
func (c *Client) PresignPut(ctx context.Context, objectKey, contentType string, contentLength int64, expiresIn time.Duration) (*PresignedTarget, error) {
	req, err := c.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.cfg.Bucket),
		Key:           aws.String(objectKey),
		ContentType:   aws.String(contentType),
		ContentLength: contentLength,
		IfNoneMatch:   aws.String("*"),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return nil, fmt.Errorf("objectstore: presigning put: %w", err)
	}

	return &PresignedTarget{
		PutURL:    req.URL,
		ObjectKey: objectKey,
		ExpiresAt: time.Now().UTC().Add(expiresIn),
		RequiredHeaders: map[string]string{
			"Content-Type":    contentType,
			"Content-Length":  fmt.Sprintf("%d", contentLength),
			"If-None-Match":   "*",
		},
	}, nil
}

// HeadResult is the subset of object metadata settle_upload validates
// against the recorded UploadIntent (spec §4.3: "confirm size + type match
// the recorded values within tolerance").
type HeadResult struct {
	ContentType   string
	ContentLength int64
}

// Head fetches the object's metadata for settlement validation.
func (c *Client) Head(ctx context.Context, objectKey string) (*HeadResult, error) {
	out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: head object: %w", err)
	}

	var contentType string
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	var length int64
	if out.ContentLength != nil {
		length = *out.ContentLength
	}
	return &HeadResult{ContentType: contentType, ContentLength: length}, nil
}

// Delete removes an orphaned or failed-validation object (spec §4.3
// "delete the uploaded object").
func (c *Client) Delete(ctx context.Context, objectKey string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("objectstore: delete object: %w", err)
	}
	return nil
}
