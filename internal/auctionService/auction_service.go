package auction

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Krishnaraaju/auct-sealed/internal/auctionerrors"
	"github.com/Krishnaraaju/auct-sealed/internal/events"
	"github.com/Krishnaraaju/auct-sealed/internal/models"
	"github.com/Krishnaraaju/auct-sealed/internal/repository"
	"github.com/Krishnaraaju/auct-sealed/utils"
)

const defaultAdmitRetries = 3

// Config tunes the engine's admission behavior.
type Config struct {
	// FirstBidStrict requires the first bid to exceed the start price; the
	// default admits a first bid equal to it.
	FirstBidStrict bool
	// AdmitRetries bounds the internal re-read attempts after a lost
	// version race before the conflict is returned to the caller.
	AdmitRetries int
	// Now supplies the clock; defaults to time.Now.
	Now func() time.Time
}

// AuctionService owns the auction state machine: bid admission, lifecycle
// transitions, and settlement. All writes to one auction are serialized
// through a per-auction mutex, and every externally visible mutation is a
// single version-conditioned store write. Events carry the sequence number
// committed by that write and are published while the per-auction lock is
// held, so subscribers observe each auction's events in sequence order.
type AuctionService struct {
	store        repository.AuctionStore
	events       events.Publisher
	now          func() time.Time
	strictFirst  bool
	admitRetries int

	mu    sync.Mutex
	locks map[string]*sync.Mutex // key: auctionID
}

// NewAuctionService creates a new AuctionService instance
func NewAuctionService(store repository.AuctionStore, publisher events.Publisher, cfg Config) *AuctionService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	retries := cfg.AdmitRetries
	if retries <= 0 {
		retries = defaultAdmitRetries
	}
	return &AuctionService{
		store:        store,
		events:       publisher,
		now:          now,
		strictFirst:  cfg.FirstBidStrict,
		admitRetries: retries,
		locks:        make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing writes to one auction.
func (s *AuctionService) lockFor(auctionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[auctionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[auctionID] = lock
	}
	return lock
}

func (s *AuctionService) publish(event models.Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(event)
}

// CreateAuction validates and persists a new auction listing. An auction
// whose start time has already passed is created directly in active status.
func (s *AuctionService) CreateAuction(itemRef, sellerID string, startPrice decimal.Decimal, startTime, endTime time.Time, sealed bool) (models.Auction, error) {
	if itemRef == "" || sellerID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - missing itemRef or sellerID", auctionerrors.ErrInvalidInput)
	}
	if !startPrice.IsPositive() {
		return models.Auction{}, fmt.Errorf("service: %w - start price must be positive", auctionerrors.ErrInvalidInput)
	}
	if !endTime.After(startTime) {
		return models.Auction{}, fmt.Errorf("service: %w - end time must be after start time", auctionerrors.ErrInvalidInput)
	}

	now := s.now().UTC()
	status := models.StatusDraft
	if !startTime.After(now) {
		status = models.StatusActive
	}

	auction := models.Auction{
		AuctionID:     utils.PrefixedID("auc"),
		ItemRef:       itemRef,
		SellerID:      sellerID,
		StartPrice:    startPrice,
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		Status:        status,
		SealedBidding: sealed,
		CreatedAt:     now,
	}

	stored, err := s.store.CreateAuction(auction)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to create auction for item %s: %w", itemRef, err)
	}

	utils.Info("Auction created", map[string]any{
		"auction_id": stored.AuctionID,
		"seller_id":  stored.SellerID,
		"status":     stored.Status.String(),
	})
	return stored, nil
}

// SubmitBid validates and admits a bid under the auction's critical section.
// The end time is authoritative: a bid arriving after the deadline is
// rejected even when the sweep has not flipped the status yet.
func (s *AuctionService) SubmitBid(auctionID, bidderID string, amount decimal.Decimal) (models.Bid, error) {
	if auctionID == "" || bidderID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - missing auctionID or bidderID", auctionerrors.ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return models.Bid{}, fmt.Errorf("service: %w - non-positive bid amount", auctionerrors.ErrInvalidInput)
	}

	lock := s.lockFor(auctionID)
	lock.Lock()
	defer lock.Unlock()

	bid := models.Bid{
		BidID:     utils.PrefixedID("bid"),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: s.now().UTC(),
	}

	for attempt := 0; attempt < s.admitRetries; attempt++ {
		auction, err := s.store.GetAuction(auctionID)
		if err != nil {
			return models.Bid{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
		}

		if err := s.admissible(auction, bid); err != nil {
			return models.Bid{}, err
		}

		auction.HighBidID = bid.BidID
		auction.HighBidAmount = bid.Amount
		auction.BidCount++
		auction.EventSeq++

		stored, err := s.store.AdmitBid(auction, bid)
		if errors.Is(err, auctionerrors.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return models.Bid{}, fmt.Errorf("service: failed to admit bid on auction %s by bidder %s: %w", auctionID, bidderID, err)
		}

		s.publish(models.Event{
			AuctionID:  auctionID,
			Seq:        stored.EventSeq,
			Type:       models.EventBidAccepted,
			OccurredAt: bid.CreatedAt,
			BidAccepted: &models.BidAcceptedPayload{
				NewHighAmount: stored.HighBidAmount,
				BidCount:      stored.BidCount,
			},
		})
		return bid, nil
	}

	return models.Bid{}, fmt.Errorf("service: gave up admitting bid on auction %s after %d attempts: %w",
		auctionID, s.admitRetries, auctionerrors.ErrVersionConflict)
}

// admissible checks the admission gate for one bid against the live auction.
func (s *AuctionService) admissible(auction models.Auction, bid models.Bid) error {
	switch auction.Status {
	case models.StatusDraft, models.StatusCancelled:
		return fmt.Errorf("service: %w - auction %s is %s", auctionerrors.ErrAuctionNotActive, auction.AuctionID, auction.Status)
	case models.StatusEnded:
		return fmt.Errorf("service: %w - auction %s has ended", auctionerrors.ErrAuctionClosed, auction.AuctionID)
	}

	if !bid.CreatedAt.Before(auction.EndTime) {
		return fmt.Errorf("service: %w - bidding closed at %s", auctionerrors.ErrAuctionClosed, auction.EndTime.Format(time.RFC3339))
	}
	if bid.BidderID == auction.SellerID {
		return fmt.Errorf("service: %w - bidder %s listed auction %s", auctionerrors.ErrSelfBid, bid.BidderID, auction.AuctionID)
	}

	if auction.HasBids() {
		if !bid.Amount.GreaterThan(auction.HighBidAmount) {
			return fmt.Errorf("service: %w - current high bid is %s", auctionerrors.ErrBidTooLow, auction.HighBidAmount)
		}
		return nil
	}

	if s.strictFirst {
		if !bid.Amount.GreaterThan(auction.StartPrice) {
			return fmt.Errorf("service: %w - first bid must exceed start price %s", auctionerrors.ErrBidTooLow, auction.StartPrice)
		}
	} else if bid.Amount.LessThan(auction.StartPrice) {
		return fmt.Errorf("service: %w - first bid must meet start price %s", auctionerrors.ErrBidTooLow, auction.StartPrice)
	}
	return nil
}

// CancelAuction withdraws a listing. Only the seller may cancel; cancelling
// an already-cancelled auction is a no-op, cancelling an ended one an error.
func (s *AuctionService) CancelAuction(auctionID, requesterID string) (models.Auction, error) {
	if auctionID == "" || requesterID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - missing auctionID or requesterID", auctionerrors.ErrInvalidInput)
	}

	lock := s.lockFor(auctionID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < s.admitRetries; attempt++ {
		auction, err := s.store.GetAuction(auctionID)
		if err != nil {
			return models.Auction{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
		}

		if auction.SellerID != requesterID {
			return models.Auction{}, fmt.Errorf("service: %w - requester %s did not list auction %s", auctionerrors.ErrNotSeller, requesterID, auctionID)
		}
		if auction.Status == models.StatusCancelled {
			return auction, nil
		}
		if auction.Status == models.StatusEnded {
			return models.Auction{}, fmt.Errorf("service: %w - auction %s already ended", auctionerrors.ErrInvalidState, auctionID)
		}

		oldStatus := auction.Status
		auction.Status = models.StatusCancelled
		auction.EventSeq++

		stored, err := s.store.UpdateAuction(auction)
		if errors.Is(err, auctionerrors.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return models.Auction{}, fmt.Errorf("service: failed to cancel auction %s: %w", auctionID, err)
		}

		s.publish(models.Event{
			AuctionID:  auctionID,
			Seq:        stored.EventSeq,
			Type:       models.EventStatusChanged,
			OccurredAt: s.now().UTC(),
			StatusChanged: &models.StatusChangedPayload{
				OldStatus: oldStatus,
				NewStatus: models.StatusCancelled,
			},
		})
		utils.Info("Auction cancelled", map[string]any{
			"auction_id": auctionID,
			"seller_id":  requesterID,
		})
		return stored, nil
	}

	return models.Auction{}, fmt.Errorf("service: gave up cancelling auction %s after %d attempts: %w",
		auctionID, s.admitRetries, auctionerrors.ErrVersionConflict)
}

// Advance applies the time-driven transition due for an auction at the given
// instant: draft→active at the start time, active→ended plus settlement at
// the end time. Terminal and not-yet-due auctions are left untouched, so
// duplicate or concurrent invocations settle exactly once.
func (s *AuctionService) Advance(auctionID string, now time.Time) error {
	if auctionID == "" {
		return fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidInput)
	}

	lock := s.lockFor(auctionID)
	lock.Lock()
	defer lock.Unlock()

	now = now.UTC()
	for {
		auction, err := s.store.GetAuction(auctionID)
		if err != nil {
			return fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
		}

		switch {
		case auction.Status == models.StatusDraft && !auction.StartTime.After(now):
			err = s.activate(auction, now)
		case auction.Status == models.StatusActive && !auction.EndTime.After(now):
			err = s.settle(auction, now)
		default:
			return nil
		}

		if errors.Is(err, auctionerrors.ErrAlreadySettled) {
			return nil
		}
		if err != nil {
			return err
		}
		// Re-read: an activated auction may already be past its end time.
	}
}

// activate flips a due draft auction to active.
func (s *AuctionService) activate(auction models.Auction, now time.Time) error {
	auction.Status = models.StatusActive
	auction.EventSeq++

	stored, err := s.store.UpdateAuction(auction)
	if err != nil {
		return fmt.Errorf("service: failed to activate auction %s: %w", auction.AuctionID, err)
	}

	s.publish(models.Event{
		AuctionID:  auction.AuctionID,
		Seq:        stored.EventSeq,
		Type:       models.EventStatusChanged,
		OccurredAt: now,
		StatusChanged: &models.StatusChangedPayload{
			OldStatus: models.StatusDraft,
			NewStatus: models.StatusActive,
		},
	})
	utils.Info("Auction activated", map[string]any{"auction_id": auction.AuctionID})
	return nil
}

// settle resolves a due active auction: the winning bid is the maximum
// amount, ties going to the earliest bid and then the smallest bid id. The
// status flip, winner fields, and event sequence advance land in one
// conditional write; the events are published only after it committed.
func (s *AuctionService) settle(auction models.Auction, now time.Time) error {
	if auction.SettledAt != nil {
		return fmt.Errorf("service: auction %s: %w", auction.AuctionID, auctionerrors.ErrAlreadySettled)
	}

	var winner models.Bid
	hasWinner := false
	if auction.HasBids() {
		bid, err := s.store.WinningBid(auction.AuctionID)
		if err != nil && !errors.Is(err, auctionerrors.ErrNoBids) {
			return fmt.Errorf("service: failed to resolve winner for auction %s: %w", auction.AuctionID, err)
		}
		if err == nil {
			winner = bid
			hasWinner = true
		}
	}

	auction.Status = models.StatusEnded
	auction.SettledAt = &now
	statusSeq := auction.EventSeq + 1
	auction.EventSeq = statusSeq
	if hasWinner {
		auction.WinnerID = winner.BidderID
		auction.WinningBidID = winner.BidID
		auction.WinningAmount = winner.Amount
		auction.EventSeq = statusSeq + 1
	}

	if _, err := s.store.UpdateAuction(auction); err != nil {
		return fmt.Errorf("service: failed to settle auction %s: %w", auction.AuctionID, err)
	}

	s.publish(models.Event{
		AuctionID:  auction.AuctionID,
		Seq:        statusSeq,
		Type:       models.EventStatusChanged,
		OccurredAt: now,
		StatusChanged: &models.StatusChangedPayload{
			OldStatus: models.StatusActive,
			NewStatus: models.StatusEnded,
		},
	})
	if hasWinner {
		s.publish(models.Event{
			AuctionID:  auction.AuctionID,
			Seq:        statusSeq + 1,
			Type:       models.EventSettled,
			OccurredAt: now,
			Settled: &models.SettledPayload{
				WinnerID:     winner.BidderID,
				WinningBidID: winner.BidID,
				Amount:       winner.Amount,
			},
		})
	}

	utils.Info("Auction settled", map[string]any{
		"auction_id": auction.AuctionID,
		"bid_count":  auction.BidCount,
		"has_winner": hasWinner,
	})
	return nil
}

// GetAuctionSnapshot returns the public read model of an auction.
func (s *AuctionService) GetAuctionSnapshot(auctionID string) (models.AuctionSnapshot, error) {
	if auctionID == "" {
		return models.AuctionSnapshot{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidInput)
	}

	auction, err := s.store.GetAuction(auctionID)
	if err != nil {
		return models.AuctionSnapshot{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return models.SnapshotOf(auction), nil
}

// BidsForBidder returns a bidder's own bids on one auction. The full bid
// list is never exposed before settlement.
func (s *AuctionService) BidsForBidder(auctionID, bidderID string) ([]models.Bid, error) {
	if auctionID == "" || bidderID == "" {
		return nil, fmt.Errorf("service: %w - missing auctionID or bidderID", auctionerrors.ErrInvalidInput)
	}

	bids, err := s.store.BidsForBidder(auctionID, bidderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for bidder %s on auction %s: %w", bidderID, auctionID, err)
	}
	return bids, nil
}

// AuctionsForBidder returns all auctions a bidder has placed bids on.
func (s *AuctionService) AuctionsForBidder(bidderID string) ([]models.Auction, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("service: %w - empty bidder ID", auctionerrors.ErrInvalidInput)
	}

	auctions, err := s.store.AuctionsForBidder(bidderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for bidder %s: %w", bidderID, err)
	}
	return auctions, nil
}
