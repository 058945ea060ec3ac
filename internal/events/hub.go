package events

import (
	"sync"

	"github.com/sirupsen/logrus"

	model "github.com/Krishnaraaju/auct-sealed/internal/models"
	"github.com/Krishnaraaju/auct-sealed/utils"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity used when
// the hub is built with no explicit buffer size.
const DefaultSubscriberBuffer = 64

// Publisher is the engine-facing side of the hub.
type Publisher interface {
	Publish(event model.Event)
}

// Subscription is one consumer's handle on the event stream. The channel is
// closed when the subscriber is evicted or the subscription is closed; after
// a close the consumer must resubscribe and reconcile from a fresh snapshot.
type Subscription struct {
	hub       *Hub
	auctionID string // empty for firehose subscriptions
	ch        chan model.Event
	once      sync.Once
}

// C returns the receive side of the subscription.
func (s *Subscription) C() <-chan model.Event {
	return s.ch
}

// Close detaches the subscription from the hub and closes its channel.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub fans auction events out to subscribers. Delivery never blocks the
// publisher: a subscriber whose buffer is full at publish time is dropped,
// its channel closed. Events for one auction are handed to each remaining
// subscriber in ascending sequence order because publishers emit them in
// that order and the hub preserves it per channel.
type Hub struct {
	mu       sync.RWMutex
	byTopic  map[string][]*Subscription // key: auctionID
	firehose []*Subscription
	buffer   int
	log      *logrus.Entry
}

// NewHub creates a hub whose subscriber channels hold up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		byTopic: make(map[string][]*Subscription),
		buffer:  buffer,
		log:     utils.ComponentLogger("events-hub"),
	}
}

// Subscribe attaches a consumer to one auction's event stream.
func (h *Hub) Subscribe(auctionID string) *Subscription {
	sub := &Subscription{
		hub:       h,
		auctionID: auctionID,
		ch:        make(chan model.Event, h.buffer),
	}

	h.mu.Lock()
	h.byTopic[auctionID] = append(h.byTopic[auctionID], sub)
	count := len(h.byTopic[auctionID])
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"auction_id":  auctionID,
		"subscribers": count,
	}).Debug("Subscriber attached")
	return sub
}

// SubscribeAll attaches a consumer to the events of every auction.
func (h *Hub) SubscribeAll() *Subscription {
	sub := &Subscription{
		hub: h,
		ch:  make(chan model.Event, h.buffer),
	}

	h.mu.Lock()
	h.firehose = append(h.firehose, sub)
	count := len(h.firehose)
	h.mu.Unlock()

	h.log.WithField("subscribers", count).Debug("Firehose subscriber attached")
	return sub
}

// Publish delivers the event to every live subscriber of its auction and to
// the firehose. Subscribers that cannot take the event are evicted.
func (h *Hub) Publish(event model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.byTopic[event.AuctionID] = h.deliverLocked(h.byTopic[event.AuctionID], event)
	if len(h.byTopic[event.AuctionID]) == 0 {
		delete(h.byTopic, event.AuctionID)
	}
	h.firehose = h.deliverLocked(h.firehose, event)
}

func (h *Hub) deliverLocked(subs []*Subscription, event model.Event) []*Subscription {
	kept := subs[:0]
	for _, sub := range subs {
		select {
		case sub.ch <- event:
			kept = append(kept, sub)
		default:
			sub.once.Do(func() { close(sub.ch) })
			h.log.WithFields(logrus.Fields{
				"auction_id": event.AuctionID,
				"seq":        event.Seq,
			}).Warn("Dropping slow event subscriber")
		}
	}
	return kept
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	remaining := 0
	if sub.auctionID != "" {
		h.byTopic[sub.auctionID] = remove(h.byTopic[sub.auctionID], sub)
		remaining = len(h.byTopic[sub.auctionID])
		if remaining == 0 {
			delete(h.byTopic, sub.auctionID)
		}
	} else {
		h.firehose = remove(h.firehose, sub)
		remaining = len(h.firehose)
	}
	sub.once.Do(func() { close(sub.ch) })
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"auction_id":  sub.auctionID,
		"subscribers": remaining,
	}).Debug("Subscriber detached")
}

func remove(subs []*Subscription, target *Subscription) []*Subscription {
	for i, sub := range subs {
		if sub == target {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

// SubscriberCount reports the number of live subscribers for an auction.
func (h *Hub) SubscriberCount(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byTopic[auctionID])
}

// FirehoseCount reports the number of live full-stream subscribers.
func (h *Hub) FirehoseCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.firehose)
}
