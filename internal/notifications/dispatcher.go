package notifications

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Krishnaraaju/auct-sealed/internal/events"
	"github.com/Krishnaraaju/auct-sealed/internal/models"
	"github.com/Krishnaraaju/auct-sealed/utils"
)

// Sink receives finished notification records. The real delivery channel
// (mail, push) lives outside the engine; the engine only hands over facts.
type Sink interface {
	Deliver(notification models.Notification) error
}

// AuctionReader resolves the auction a settlement event refers to.
type AuctionReader interface {
	GetAuction(auctionID string) (models.Auction, error)
}

// EventSource yields a firehose subscription over every auction's events.
type EventSource interface {
	SubscribeAll() *events.Subscription
}

// Dispatcher turns settlement events into notification records: one for the
// winner, one for the seller. The event stream is at-least-once, so sink
// writes are deduplicated by (auction, user, kind); a duplicate settlement
// event produces no duplicate record.
type Dispatcher struct {
	source EventSource
	store  AuctionReader
	sink   Sink
	log    *logrus.Entry

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDispatcher(source EventSource, store AuctionReader, sink Sink) *Dispatcher {
	return &Dispatcher{
		source: source,
		store:  store,
		sink:   sink,
		log:    utils.ComponentLogger("notifications"),
		seen:   make(map[string]struct{}),
	}
}

// Run consumes the firehose until the context is cancelled. If the hub evicts
// the dispatcher for falling behind, it resubscribes; missed events are
// retried on later duplicates or never, which the dedup keys make safe.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("Notification dispatcher started")
	for {
		sub := d.source.SubscribeAll()
		if !d.consume(ctx, sub) {
			d.log.Info("Notification dispatcher stopped")
			return
		}
		d.log.Warn("Notification dispatcher fell behind, resubscribing")
	}
}

// consume drains one subscription. Returns true when the channel closed and
// a resubscribe is wanted, false on context cancellation.
func (d *Dispatcher) consume(ctx context.Context, sub *events.Subscription) bool {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-sub.C():
			if !ok {
				return true
			}
			d.handle(event)
		}
	}
}

func (d *Dispatcher) handle(event models.Event) {
	if event.Type != models.EventSettled || event.Settled == nil {
		return
	}

	d.notify(models.Notification{
		UserID:    event.Settled.WinnerID,
		Kind:      models.NotificationAuctionWon,
		AuctionID: event.AuctionID,
		Amount:    event.Settled.Amount,
		CreatedAt: event.OccurredAt,
	})

	auction, err := d.store.GetAuction(event.AuctionID)
	if err != nil {
		d.log.WithField("auction_id", event.AuctionID).WithError(err).
			Error("Failed to resolve seller for settlement notification")
		return
	}
	d.notify(models.Notification{
		UserID:    auction.SellerID,
		Kind:      models.NotificationAuctionEnded,
		AuctionID: event.AuctionID,
		Amount:    event.Settled.Amount,
		CreatedAt: event.OccurredAt,
	})
}

func (d *Dispatcher) notify(notification models.Notification) {
	key := notification.AuctionID + "|" + notification.UserID + "|" + string(notification.Kind)

	d.mu.Lock()
	if _, dup := d.seen[key]; dup {
		d.mu.Unlock()
		return
	}
	d.seen[key] = struct{}{}
	d.mu.Unlock()

	notification.NotificationID = utils.PrefixedID("ntf")
	if err := d.sink.Deliver(notification); err != nil {
		// Unmark so a duplicate of the event can retry the delivery
		d.mu.Lock()
		delete(d.seen, key)
		d.mu.Unlock()

		d.log.WithFields(logrus.Fields{
			"auction_id": notification.AuctionID,
			"user_id":    notification.UserID,
			"kind":       notification.Kind,
		}).WithError(err).Error("Failed to deliver notification")
		return
	}

	d.log.WithFields(logrus.Fields{
		"auction_id": notification.AuctionID,
		"user_id":    notification.UserID,
		"kind":       notification.Kind,
	}).Info("Notification delivered")
}

// MemorySink is the default in-process delivery target.
type MemorySink struct {
	mu        sync.Mutex
	delivered []models.Notification
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Deliver(notification models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, notification)
	return nil
}

// Delivered returns a copy of everything delivered so far.
func (s *MemorySink) Delivered() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.delivered...)
}

// DeliveredFor filters delivered notifications by recipient.
func (s *MemorySink) DeliveredFor(userID string) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Notification
	for _, notification := range s.delivered {
		if notification.UserID == userID {
			out = append(out, notification)
		}
	}
	return out
}
