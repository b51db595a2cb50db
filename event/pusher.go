package event

import (
	"context"
	"fmt"

	"github.com/pusher/pusher-http-go/v5"
	"golang.org/x/exp/slog"

	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/lib/logger/sl"
	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/round"
)

// Triggerer is the part of *pusher.Client the sink uses.
type Triggerer interface {
	Trigger(channel string, eventName string, data interface{}) error
}

func NewPusherClient(appID, key, secret, cluster string) *pusher.Client {
	return &pusher.Client{
		AppID:   appID,
		Key:     key,
		Secret:  secret,
		Cluster: cluster,
		Secure:  true,
	}
}

// Pusher forwards round lifecycle events to a Pusher channel. Ticks are
// not forwarded.
type Pusher struct {
	log     *slog.Logger
	client  Triggerer
	channel string
	queue   chan round.Event
}

func NewPusher(log *slog.Logger, client Triggerer, channel string) *Pusher {
	if channel == "" {
		channel = "crash-channel"
	}
	return &Pusher{
		log:     log.With(slog.String("component", "event.pusher")),
		client:  client,
		channel: channel,
		queue:   make(chan round.Event, 256),
	}
}

func (p *Pusher) Publish(ev round.Event) {
	if !ev.Reliable() {
		return
	}
	select {
	case p.queue <- ev:
	default:
		p.log.Error("pusher queue full, event dropped",
			slog.String("event", string(ev.Type)),
			slog.Int64("round_id", ev.RoundID),
		)
	}
}

// Run triggers queued events until ctx is done.
func (p *Pusher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			if err := p.trigger(ev); err != nil {
				p.log.Error("failed to trigger pusher event", sl.Err(err))
			}
		}
	}
}

func (p *Pusher) trigger(ev round.Event) error {
	const op = "event.Pusher.trigger"

	if err := p.client.Trigger(p.channel, string(ev.Type), ev); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
