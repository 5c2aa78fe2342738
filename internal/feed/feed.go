// Package feed delivers committed video-store mutations to subscribers.
//
// Every subscription owns one delivery goroutine. Handlers for a single
// subscription run one at a time, in publish order, and never after
// Unsubscribe has returned.
package feed

import (
	"context"
	"errors"

	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

// ErrClosed is returned when subscribing to or publishing on a closed feed
var ErrClosed = errors.New("feed closed")

// Handler receives change events for a subscription
type Handler func(event models.ChangeEvent)

// Subscription is a live registration on a feed
type Subscription interface {
	Unsubscribe() error
}

// Feed opens subscriptions scoped to one table
type Feed interface {
	Subscribe(ctx context.Context, table string, handler Handler) (Subscription, error)
}

// Publisher delivers committed change events to every subscriber of the event's table
type Publisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// OwnerFilter wraps h so it only sees events about ownerID's records
func OwnerFilter(ownerID string, h Handler) Handler {
	return func(event models.ChangeEvent) {
		if event.Record == nil || event.Record.OwnerID != ownerID {
			return
		}
		h(event)
	}
}

// Transport is a feed that also accepts publications
type Transport interface {
	Feed
	Publisher
}
