// Package artifact makes overlay images fetchable by clients.
package artifact

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StaticPrefix is the route overlay files are served under.
const StaticPrefix = "/static/heatmaps/"

// Publisher exposes a written overlay. Publish returns the URL clients fetch
// it from; URL rebuilds that reference from the stored name. Discard takes
// back a published overlay whose analysis was never recorded.
type Publisher interface {
	Publish(ctx context.Context, name, localPath string) (string, error)
	URL(name string) string
	Discard(ctx context.Context, name string) error
}

// NewName returns a collision-free overlay file name.
func NewName(now time.Time) string {
	return fmt.Sprintf("heatmap_%s_%d.png", uuid.NewString(), now.UnixNano())
}

// StaticPublisher serves overlays straight from the heatmap directory.
type StaticPublisher struct {
	baseURL string
}

func NewStaticPublisher(baseURL string) *StaticPublisher {
	return &StaticPublisher{baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *StaticPublisher) Publish(_ context.Context, name, _ string) (string, error) {
	return p.URL(name), nil
}

func (p *StaticPublisher) URL(name string) string {
	if name == "" {
		return ""
	}
	return p.baseURL + StaticPrefix + url.PathEscape(filepath.Base(name))
}

// Discard is a no-op: the file lives in the heatmap directory, which the
// caller cleans up.
func (p *StaticPublisher) Discard(context.Context, string) error { return nil }

var _ Publisher = (*StaticPublisher)(nil)
