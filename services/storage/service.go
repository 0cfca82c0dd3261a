package storage

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"

	"github.com/mknmagx/crmstack/config"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/tracing"
	"github.com/mknmagx/crmstack/services/storage/aws_client"
)

// AttachmentStorageService keeps reply attachments in an R2 bucket so the
// console can serve them without hitting the mail provider again.
type AttachmentStorageService struct {
	client     aws_client.S3Client
	bucketName string
	cdnDomain  string
}

func NewAttachmentStorageService(client aws_client.S3Client, bucketName string, cdnDomain string) interfaces.StorageService {
	return &AttachmentStorageService{
		client:     client,
		bucketName: bucketName,
		cdnDomain:  cdnDomain,
	}
}

// NewR2StorageService creates an attachment store backed by Cloudflare R2.
func NewR2StorageService(cfg *config.StorageConfig) interfaces.StorageService {
	r2Client := aws_client.NewS3Client(&aws.Config{
		Endpoint:         aws.String("https://" + cfg.AccountID + ".r2.cloudflarestorage.com"),
		Region:           aws.String("auto"),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.AccessKeySecret, ""),
		S3ForcePathStyle: aws.Bool(true),
	})

	return NewAttachmentStorageService(r2Client, cfg.AttachmentBucket, "")
}

func (s *AttachmentStorageService) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AttachmentStorageService.Upload")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("key", key, "size", len(data))

	uploadInput := s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	return s.client.Upload(ctx, uploadInput)
}

func (s *AttachmentStorageService) Download(ctx context.Context, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AttachmentStorageService.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("key", key)

	return s.client.Download(ctx, s.bucketName, key)
}

func (s *AttachmentStorageService) Delete(ctx context.Context, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AttachmentStorageService.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("key", key)

	return s.client.Delete(ctx, s.bucketName, key)
}

// GetPublicURL returns a CDN URL for the object, or "" when the bucket is
// private.
func (s *AttachmentStorageService) GetPublicURL(key string) string {
	if s.cdnDomain != "" {
		return "https://" + s.cdnDomain + "/" + key
	}
	return ""
}
