package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a notification falls inside MinInterval
// of the previous one and was not sent.
var ErrRateLimited = errors.New("notification rate limited")

// Notifier reports changes in the vessel feed.
type Notifier interface {
	SendFeedActive(ctx context.Context, vesselCount int) error
	SendFeedInactive(ctx context.Context, lastSeen time.Time, silence time.Duration) error
}

// notification is one ntfy message.
type notification struct {
	title    string
	body     string
	tags     []string
	priority string
}

// Client posts feed notifications to an ntfy topic.
type Client struct {
	httpClient *http.Client
	config     *Config
	endpoint   string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates an ntfy client. At most one notification is sent per
// cfg.MinInterval; zero disables the limit.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		config:     cfg,
		endpoint:   strings.TrimSuffix(cfg.Server, "/") + "/" + cfg.Topic,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// SendFeedActive announces that vessel reports are arriving.
func (c *Client) SendFeedActive(ctx context.Context, vesselCount int) error {
	return c.publish(ctx, notification{
		title:    "AIS feed active",
		body:     fmt.Sprintf("Vessel reports are arriving again.\nVessels seen: %d", vesselCount),
		tags:     []string{c.config.Tags, "white_check_mark"},
		priority: c.config.Priority,
	})
}

// SendFeedInactive announces that no vessel report arrived for silence.
// Outages always go out with high priority.
func (c *Client) SendFeedInactive(ctx context.Context, lastSeen time.Time, silence time.Duration) error {
	return c.publish(ctx, notification{
		title: "AIS feed inactive",
		body: fmt.Sprintf("No vessel reports for %s.\nLast report: %s",
			silence.Round(time.Second), lastSeen.UTC().Format(time.RFC3339)),
		tags:     []string{c.config.Tags, "warning"},
		priority: "high",
	})
}

func (c *Client) publish(ctx context.Context, n notification) error {
	if !c.config.Enabled {
		return nil
	}
	if !c.limiter.Allow() {
		c.logger.Debug("notification suppressed by rate limit", zap.String("title", n.title))
		return ErrRateLimited
	}

	req, err := c.newRequest(ctx, n)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.String("title", n.title), zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("ntfy rejected notification",
			zap.Int("status", resp.StatusCode),
			zap.String("endpoint", c.endpoint),
		)
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", n.title))
	return nil
}

func (c *Client) newRequest(ctx context.Context, n notification) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(n.body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	tags := make([]string, 0, len(n.tags))
	for _, tag := range n.tags {
		if tag != "" {
			tags = append(tags, tag)
		}
	}

	req.Header.Set("Title", n.title)
	req.Header.Set("Priority", n.priority)
	req.Header.Set("Tags", strings.Join(tags, ","))
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	return req, nil
}

// NoopNotifier discards notifications.
type NoopNotifier struct{}

func (NoopNotifier) SendFeedActive(context.Context, int) error { return nil }

func (NoopNotifier) SendFeedInactive(context.Context, time.Time, time.Duration) error { return nil }

// New returns an ntfy client when notifications are enabled and a
// NoopNotifier otherwise.
func New(cfg *Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
