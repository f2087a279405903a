// Package preview checks whether a preview-audio reference is actually playable.
package preview

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"musicquiz/internal/core"
)

const (
	// maxHTTPRedirects is the maximum number of redirects followed by one probe
	maxHTTPRedirects = 3
	// userAgent identifies probes to CDNs that reject anonymous clients
	userAgent = "musicquiz-preview-probe/1.0"
)

// ErrTooManyRedirects is returned when a preview URL redirects too often
var ErrTooManyRedirects = errors.New("too many redirects")

// Validator probes preview URLs with a HEAD request. Results are cached, positive and
// negative answers with separate lifetimes.
type Validator struct {
	client   *http.Client
	logger   *zap.Logger
	metrics  core.Metrics
	timeout  time.Duration
	positive *expirable.LRU[string, struct{}]
	negative *expirable.LRU[string, struct{}]
}

func NewValidator(config *core.PreviewConfig, logger *zap.Logger, metrics core.Metrics) *Validator {
	if metrics == nil {
		metrics = core.NopMetrics{}
	}
	size := config.CacheSize
	if size <= 0 {
		size = 1
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = core.DefaultPreviewTimeout
	}

	return &Validator{
		client:   newHTTPClient(timeout),
		logger:   logger,
		metrics:  metrics,
		timeout:  timeout,
		positive: expirable.NewLRU[string, struct{}](size, nil, config.PositiveTTL),
		negative: expirable.NewLRU[string, struct{}](size, nil, config.NegativeTTL),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHTTPRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// IsPlayable reports whether ref answers with a success status and an audio content
// type. It never returns an error: every failure means "not playable".
func (v *Validator) IsPlayable(ctx context.Context, ref string) bool {
	ref = strings.TrimSpace(ref)
	if !isHTTPURL(ref) {
		v.metrics.RecordPreviewCheck("invalid_ref")
		return false
	}

	if _, ok := v.positive.Get(ref); ok {
		v.metrics.RecordPreviewCheck("cache_hit")
		return true
	}
	if _, ok := v.negative.Get(ref); ok {
		v.metrics.RecordPreviewCheck("cache_hit")
		return false
	}

	playable := v.probe(ctx, ref)
	if playable {
		v.positive.Add(ref, struct{}{})
		v.metrics.RecordPreviewCheck("playable")
	} else {
		v.negative.Add(ref, struct{}{})
		v.metrics.RecordPreviewCheck("unplayable")
	}
	return playable
}

func (v *Validator) probe(ctx context.Context, ref string) bool {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	status, contentType, err := v.do(ctx, http.MethodHead, ref)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		// Some CDNs refuse HEAD; a one-byte ranged GET is the next cheapest probe
		status, contentType, err = v.do(ctx, http.MethodGet, ref)
	}
	if err != nil {
		v.logger.Debug("Preview probe failed", zap.String("preview", ref), zap.Error(err))
		return false
	}

	if status < 200 || status >= 300 {
		v.logger.Debug("Preview unavailable", zap.String("preview", ref), zap.Int("status", status))
		return false
	}

	if !isAudio(contentType) {
		v.logger.Debug("Preview is not audio",
			zap.String("preview", ref),
			zap.String("contentType", contentType))
		return false
	}

	return true
}

func (v *Validator) do(ctx context.Context, method, ref string) (status int, contentType string, err error) {
	req, err := http.NewRequestWithContext(ctx, method, ref, http.NoBody)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", userAgent)
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

func isAudio(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "audio/")
}

func isHTTPURL(ref string) bool {
	if ref == "" {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
