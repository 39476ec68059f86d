// Package archive stores raw HTML snapshots of scraped pages in an
// S3-compatible bucket and hands out short-lived download links.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const DefaultPresignTTL = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type getPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Options struct {
	Region     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	Bucket     string
	PresignTTL time.Duration
}

type S3Archive struct {
	bucket     string
	presignTTL time.Duration
	client     objectPutter
	presigner  getPresigner
}

// New builds the S3 client. Path-style addressing is used so MinIO works
// without virtual-host DNS.
func New(ctx context.Context, opts Options) (*S3Archive, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
	)
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = true
	})

	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	return &S3Archive{
		bucket:     opts.Bucket,
		presignTTL: ttl,
		client:     client,
		presigner:  newS3PresignClient(client),
	}, nil
}

// SnapshotKey is the object key for the snapshot of pageURL.
func SnapshotKey(pageURL string) string {
	sum := sha256.Sum256([]byte(pageURL))
	return "snapshots/" + hex.EncodeToString(sum[:]) + ".html"
}

// Put uploads html under key, replacing any earlier snapshot.
func (a *S3Archive) Put(ctx context.Context, key, html string) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(html),
		ContentType: aws.String("text/html; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", key, err)
	}
	return nil
}

// PresignGet returns a time-limited GET URL for key.
func (a *S3Archive) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := a.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.presignTTL))
	if err != nil {
		return "", fmt.Errorf("presign snapshot %s: %w", key, err)
	}
	return req.URL, nil
}
