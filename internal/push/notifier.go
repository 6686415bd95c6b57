package push

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dukerupert/questlog/internal/model"
)

const queueSize = 64

// Sender delivers one notification. *Service implements it.
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// Subscriptions is the subset of the push store the notifier needs.
type Subscriptions interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type job struct {
	userID  uuid.UUID
	payload Payload
}

// Notifier fans a payload out to every subscription of a user in the
// background so request handlers never wait on push services.
type Notifier struct {
	sender Sender
	subs   Subscriptions
	queue  chan job
	logger *slog.Logger
}

func NewNotifier(sender Sender, subs Subscriptions, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		subs:   subs,
		queue:  make(chan job, queueSize),
		logger: logger.With("component", "push"),
	}
}

// Notify queues payload for userID. It drops the notification when the queue is full.
func (n *Notifier) Notify(userID uuid.UUID, payload Payload) {
	select {
	case n.queue <- job{userID: userID, payload: payload}:
	default:
		n.logger.Warn("push queue full, dropping notification", "user_id", userID, "tag", payload.Tag)
	}
}

// Run delivers queued notifications until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-n.queue:
			n.deliver(ctx, j)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, j job) {
	subs, err := n.subs.ListByUser(ctx, j.userID)
	if err != nil {
		n.logger.Error("list push subscriptions", "user_id", j.userID, "error", err)
		return
	}
	for i := range subs {
		sub := &subs[i]
		err := n.sender.Send(ctx, sub, j.payload)
		switch {
		case err == nil:
		case errors.Is(err, ErrExpired):
			n.logger.Info("removing expired push subscription", "subscription_id", sub.ID)
			if err := n.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				n.logger.Error("delete expired push subscription", "error", err)
			}
		default:
			n.logger.Warn("push send failed", "subscription_id", sub.ID, "error", err)
		}
	}
}
