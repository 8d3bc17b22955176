// Package pubsub connects the outbox publisher to the order event topics.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/familyhub-backend/pkg/config"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub orders and notification topics are required")
	errNotConnected      = errors.New("pubsub client not initialized")
)

// resource is a topic or subscription the relay cannot run without.
type resource struct {
	kind string
	name string
}

// Client publishes order events and keeps one ordered publisher per topic.
type Client struct {
	gcp       *pubsub.Client
	project   string
	resources []resource

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and fails unless both order topics (and the
// orders subscription, when named) already exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	required, err := requiredResources(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("dial pubsub: %w", err)
	}
	c := &Client{
		gcp:        conn,
		project:    project,
		resources:  required,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"gcp_project": project,
			"topics":      len(required),
		}), "pubsub client initialized")
	}
	return c, nil
}

func requiredResources(cfg config.PubSubConfig) ([]resource, error) {
	var out []resource
	for _, topic := range []string{cfg.OrdersTopic, cfg.NotificationTopic} {
		if t := strings.TrimSpace(topic); t != "" {
			out = append(out, resource{kind: kindTopic, name: t})
		}
	}
	if len(out) < 2 {
		return nil, errNoTopics
	}
	if sub := strings.TrimSpace(cfg.OrdersSubscription); sub != "" {
		out = append(out, resource{kind: kindSubscription, name: sub})
	}
	return out, nil
}

// Ping checks every required topic and subscription still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.gcp == nil {
		return errNotConnected
	}
	for _, r := range c.resources {
		if err := c.lookup(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) lookup(ctx context.Context, r resource) error {
	full := resourceName(c.project, r.kind, r.name)
	if full == "" {
		return fmt.Errorf("%s %q not configured", r.kind, r.name)
	}
	var err error
	switch r.kind {
	case kindTopic:
		_, err = c.gcp.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
	case kindSubscription:
		_, err = c.gcp.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	default:
		return fmt.Errorf("unknown pubsub resource kind %q", r.kind)
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", strings.TrimSuffix(r.kind, "s"), r.name)
	default:
		return fmt.Errorf("look up %s %q: %w", strings.TrimSuffix(r.kind, "s"), r.name, err)
	}
}

// Publisher returns the shared publisher for a topic. Ordering is enabled so
// events sharing an ordering key (the order id) arrive in publish order.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.gcp == nil {
		return nil
	}
	full := resourceName(c.project, kindTopic, topic)
	if full == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[full]; ok {
		return p
	}
	p := c.gcp.Publisher(full)
	p.EnableMessageOrdering = true
	c.publishers[full] = p
	return p
}

// Close flushes pending publishes before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.gcp == nil {
		return nil
	}
	c.mu.Lock()
	for full, p := range c.publishers {
		p.Stop()
		delete(c.publishers, full)
	}
	c.mu.Unlock()
	return c.gcp.Close()
}

// resourceName expands a short id to projects/<project>/<kind>/<id>. Full
// names of the same kind pass through untouched.
func resourceName(project, kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if project = strings.TrimSpace(project); project == "" {
		return ""
	}
	return "projects/" + project + "/" + kind + "/" + name
}
