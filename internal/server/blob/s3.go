// Package blob hands out presigned S3 URLs for capture audio. Blobs travel
// directly between the client and object storage; the API server never
// proxies the bytes.
package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	sc "github.com/pensieve-app/pensieve/internal/server/config"
)

const presignExpiry = 15 * time.Minute

// Presigner builds presigned PUT/GET URLs against the configured bucket.
type Presigner struct {
	config *sc.Config
}

func NewPresigner(config *sc.Config) *Presigner {
	return &Presigner{config: config}
}

// RandomStorageKey partitions audio keys by upload date.
func RandomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("audio/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (p *Presigner) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(p.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			p.config.S3RootUser,
			p.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(p.config.S3BaseEndpoint)
	})
	return s3.NewPresignClient(client), nil
}

// PresignedPutURL returns a fresh storage key and a URL the client can PUT
// the blob to within presignExpiry.
func (p *Presigner) PresignedPutURL(ctx context.Context) (string, string, error) {
	presignClient, err := p.presignClient(ctx)
	if err != nil {
		return "", "", err
	}

	bucket := p.config.S3Bucket
	key := RandomStorageKey()

	req, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", "", err
	}
	return key, req.URL, nil
}

// PresignedGetURL returns a download URL for an existing key.
func (p *Presigner) PresignedGetURL(ctx context.Context, key string) (string, error) {
	presignClient, err := p.presignClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := p.config.S3Bucket

	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
