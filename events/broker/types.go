// Package broker fans conversation events out to subscribers. Topics are
// keyed by conversation id; the Local implementation is in-process, the NATS
// one crosses process boundaries so dashboard backends can follow streams
// they did not originate.
package broker

import (
	"context"

	"github.com/tablewise/concierge/events"
)

type Broker interface {
	Topic(context.Context, string) Topic
}

type Topic interface {
	Publish(context.Context, events.Event) error
	Subscribe(context.Context, events.Hook) (Subscription, error)
}

type Subscription interface {
	ID() string
	Unsubscribe()
}
