package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/familyhub-backend/internal/boot"
	"github.com/angelmondragon/familyhub-backend/pkg/health"
	"github.com/angelmondragon/familyhub-backend/pkg/outbox"
	"github.com/angelmondragon/familyhub-backend/pkg/outbox/routing"
	"github.com/angelmondragon/familyhub-backend/pkg/pubsub"
)

func main() {
	p := boot.Start("outbox-publisher")
	defer p.Close()
	ctx, stop := p.Context()
	defer stop()

	dbClient := p.OpenDB(ctx)

	pubsubClient, err := pubsub.NewClient(ctx, p.Cfg.GCP, p.Cfg.PubSub, p.Log)
	p.Must(ctx, "failed to bootstrap pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			p.Log.Error(ctx, "error closing pubsub client", err)
		}
	}()

	routes, err := routing.NewTable(p.Cfg.PubSub)
	p.Must(ctx, "failed to build routing table", err)

	relay, err := NewRelay(RelayParams{
		Outbox: p.Cfg.Outbox,
		Logger: p.Log,
		DB:     dbClient,
		Store:  outbox.NewStore(dbClient.DB()),
		Routes: routes,
		Publishers: func(topic string) topicPublisher {
			pub := pubsubClient.Publisher(topic)
			if pub == nil {
				return nil
			}
			return gcpTopic{p: pub}
		},
		Checks: health.Checks{"db": dbClient, "pubsub": pubsubClient},
	})
	p.Must(ctx, "failed to create outbox relay", err)

	p.Log.Info(ctx, "outbox relay started")
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.Must(ctx, "outbox relay stopped", err)
	}
	p.Log.Info(ctx, "outbox relay stopped")
}
