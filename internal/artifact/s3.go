package artifact

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3KeyPrefix = "heatmaps/"

type S3Config struct {
	// "http://127.0.0.1:9000"
	Endpoint string
	// "us-east-1"
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// ConnectS3 builds a client for an S3 compatible endpoint.
func ConnectS3(cfg S3Config) *s3.Client {
	return s3.NewFromConfig(aws.Config{Region: cfg.Region}, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	})
}

// S3Publisher uploads overlays to a bucket.
type S3Publisher struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	baseURL  string
}

func NewS3Publisher(cfg S3Config) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is not set")
	}
	base := strings.TrimRight(cfg.Endpoint, "/")
	if base == "" {
		base = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
	}
	client := ConnectS3(cfg)
	return &S3Publisher{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		baseURL:  base + "/" + cfg.Bucket,
	}, nil
}

func (p *S3Publisher) Publish(ctx context.Context, name, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open overlay: %w", err)
	}
	defer f.Close()

	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(s3KeyPrefix + name),
		Body:        f,
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return "", fmt.Errorf("upload overlay %s: %w", name, err)
	}
	return p.URL(name), nil
}

func (p *S3Publisher) URL(name string) string {
	if name == "" {
		return ""
	}
	return p.baseURL + "/" + s3KeyPrefix + url.PathEscape(name)
}

func (p *S3Publisher) Discard(ctx context.Context, name string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(s3KeyPrefix + name),
	})
	if err != nil {
		return fmt.Errorf("delete overlay %s: %w", name, err)
	}
	return nil
}

var _ Publisher = (*S3Publisher)(nil)
