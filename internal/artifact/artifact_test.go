package artifact

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewName(t *testing.T) {
	now := time.Unix(1700000000, 42)
	a, b := NewName(now), NewName(now)

	require.Regexp(t, regexp.MustCompile(`^heatmap_[0-9a-f-]{36}_1700000000000000042\.png$`), a)
	require.NotEqual(t, a, b)
}

func TestStaticPublisher(t *testing.T) {
	p := NewStaticPublisher("http://localhost:8080/")

	u, err := p.Publish(context.Background(), "heatmap_1.png", "/tmp/ignored.png")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/static/heatmaps/heatmap_1.png", u)
	require.Equal(t, u, p.URL("heatmap_1.png"))
	require.Empty(t, p.URL(""))
	require.NoError(t, p.Discard(context.Background(), "heatmap_1.png"))
}

func TestStaticPublisher_RelativeBase(t *testing.T) {
	p := NewStaticPublisher("")
	require.Equal(t, "/static/heatmaps/x.png", p.URL("x.png"))
	require.Equal(t, "/static/heatmaps/x.png", p.URL("../x.png"))
}

func TestS3Publisher_URL(t *testing.T) {
	p, err := NewS3Publisher(S3Config{
		Endpoint:  "http://127.0.0.1:9000/",
		Region:    "us-east-1",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "overlays",
	})
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:9000/overlays/heatmaps/h.png", p.URL("h.png"))

	aws, err := NewS3Publisher(S3Config{Region: "eu-west-3", Bucket: "b"})
	require.NoError(t, err)
	require.Equal(t, "https://s3.eu-west-3.amazonaws.com/b/heatmaps/h.png", aws.URL("h.png"))

	_, err = NewS3Publisher(S3Config{Region: "us-east-1"})
	require.Error(t, err)
}

func TestS3Publisher_MissingFile(t *testing.T) {
	p, err := NewS3Publisher(S3Config{Endpoint: "http://127.0.0.1:1", Region: "us-east-1", Bucket: "b"})
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), "h.png", "/nonexistent/h.png")
	require.Error(t, err)
}
