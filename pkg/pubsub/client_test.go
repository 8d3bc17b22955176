package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/familyhub-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		project, kind, name, want string
	}{
		{"hub", "topics", "fh-order-events", "projects/hub/topics/fh-order-events"},
		{"hub", "topics", " projects/other/topics/x ", "projects/other/topics/x"},
		{"hub", "subscriptions", "orders-sub", "projects/hub/subscriptions/orders-sub"},
		{"", "topics", "orders", ""},
		{"hub", "topics", "  ", ""},
	}
	for _, tc := range cases {
		if got := resourceName(tc.project, tc.kind, tc.name); got != tc.want {
			t.Fatalf("resourceName(%q,%q,%q) = %q, want %q", tc.project, tc.kind, tc.name, got, tc.want)
		}
	}
}

func TestRequiredResources(t *testing.T) {
	got, err := requiredResources(config.PubSubConfig{
		OrdersTopic:        " fh-order-events ",
		NotificationTopic:  "fh-notifications",
		OrdersSubscription: "orders-sub",
	})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	want := []resource{
		{kind: kindTopic, name: "fh-order-events"},
		{kind: kindTopic, name: "fh-notifications"},
		{kind: kindSubscription, name: "orders-sub"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("resource %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestRequiredResourcesNeedsBothTopics(t *testing.T) {
	if _, err := requiredResources(config.PubSubConfig{OrdersTopic: "orders", NotificationTopic: " "}); err != errNoTopics {
		t.Fatalf("expected missing topic error, got %v", err)
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil); err != errProjectIDRequired {
		t.Fatalf("expected project id error, got %v", err)
	}
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: "hub"}, config.PubSubConfig{OrdersTopic: "orders"}, nil)
	if err != errNoTopics {
		t.Fatalf("expected topic config checked before dialing, got %v", err)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("orders") != nil {
		t.Fatalf("nil client should not hand out publishers")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
	if err := c.Ping(context.Background()); err != errNotConnected {
		t.Fatalf("expected not connected error, got %v", err)
	}
}
