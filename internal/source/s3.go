package source

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"

	"github.com/gobeyondidentity/marketo-sync/internal/marketo"
)

// S3Source reads leads from a CSV object in S3
type S3Source struct {
	bucket     string
	key        string
	types      map[string]string
	downloader s3manageriface.DownloaderAPI
}

// NewS3Source creates an S3 source using the SDK's default credential chain
func NewS3Source(region, bucket, key string, types map[string]string) (*S3Source, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Source{
		bucket:     bucket,
		key:        key,
		types:      types,
		downloader: s3manager.NewDownloader(sess),
	}, nil
}

// Name describes the source for logs and run history
func (s *S3Source) Name() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
}

// Fetch downloads the object and parses it as CSV
func (s *S3Source) Fetch(ctx context.Context) ([]*marketo.Lead, error) {
	buf := aws.NewWriteAtBuffer([]byte{})

	_, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", s.Name(), err)
	}

	return ParseCSV(bytes.NewReader(buf.Bytes()), s.types)
}
