package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/sakif/retail-analytics/internal/apperror"
)

// S3 reads one Amazon S3 bucket.
type S3 struct {
	client s3iface.S3API
	bucket string
}

// NewS3 creates a session from the standard AWS environment. An empty
// region leaves the SDK default in place.
func NewS3(bucket, region string) (*S3, error) {
	config := &aws.Config{}
	if region != "" {
		config.Region = aws.String(region)
	}
	sess, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("blob: creating S3 session: %w", err)
	}
	return NewS3WithClient(s3.New(sess), bucket), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client s3iface.S3API, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

func (s *S3) List(ctx context.Context, prefix string) ([]Object, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}

	var objects []Object
	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Name:    aws.StringValue(obj.Key),
				Size:    aws.Int64Value(obj.Size),
				ModTime: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, apperror.NotFound("bucket", s.bucket)
		}
		return nil, fmt.Errorf("blob: listing s3://%s: %w", s.bucket, err)
	}
	return objects, nil
}

func (s *S3) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, apperror.NotFound("blob", name)
		}
		return nil, fmt.Errorf("blob: fetching S3 object %s: %w", name, err)
	}
	return out.Body, nil
}

func (s *S3) Close() error { return nil }

func isS3NotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey:
			return true
		}
	}
	return false
}
