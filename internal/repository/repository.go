package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Krishnaraaju/auct-sealed/internal/auctionerrors"
	model "github.com/Krishnaraaju/auct-sealed/internal/models"
)

// AuctionStore defines the persistence interface for the auction engine.
// Mutations of an auction row are conditional on its Version (compare-and-
// swap): the store persists the given record only when the stored version
// still matches, increments the version, and returns the stored copy;
// otherwise it returns ErrVersionConflict and performs no mutation. Bids are
// append-only facts and are never updated or deleted.
type AuctionStore interface {
	// CreateAuction inserts a new auction and assigns its initial version.
	CreateAuction(auction model.Auction) (model.Auction, error)
	GetAuction(auctionID string) (model.Auction, error)
	// UpdateAuction applies a version-conditioned write of the auction's
	// mutable fields (status, high-bid cache, settlement fields, EventSeq).
	UpdateAuction(auction model.Auction) (model.Auction, error)
	// AdmitBid persists the auction update and appends the bid as one atomic
	// unit, under the same version condition as UpdateAuction.
	AdmitBid(auction model.Auction, bid model.Bid) (model.Auction, error)
	BidsForAuction(auctionID string) ([]model.Bid, error)
	BidsForBidder(auctionID, bidderID string) ([]model.Bid, error)
	// WinningBid returns the bid with the maximum amount; ties resolve to the
	// earliest CreatedAt, then the smallest BidID.
	WinningBid(auctionID string) (model.Bid, error)
	AuctionsForBidder(bidderID string) ([]model.Auction, error)
	// DueAuctions lists auctions with a pending time-driven transition at the
	// given instant: draft past start time, or active past end time.
	DueAuctions(now time.Time) ([]model.Auction, error)
}

// MemoryStore is a concurrency-safe in-memory implementation of AuctionStore
type MemoryStore struct {
	mu             sync.RWMutex
	auctions       map[string]model.Auction // key: auctionID
	bids           map[string][]model.Bid   // key: auctionID -> append-only list of bids
	bidderAuctions map[string][]string      // key: bidderID -> auctionIDs the bidder has bid on
}

// NewMemoryStore creates a new in-memory store instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions:       make(map[string]model.Auction),
		bids:           make(map[string][]model.Bid),
		bidderAuctions: make(map[string][]string),
	}
}

// CreateAuction inserts the auction with version 1
func (s *MemoryStore) CreateAuction(auction model.Auction) (model.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[auction.AuctionID]; ok {
		return model.Auction{}, fmt.Errorf("create auction %s: %w", auction.AuctionID, auctionerrors.ErrAuctionExists)
	}

	auction.Version = 1
	s.auctions[auction.AuctionID] = auction
	return auction, nil
}

// GetAuction returns the auction by id
func (s *MemoryStore) GetAuction(auctionID string) (model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return auction, nil
}

// UpdateAuction applies a version-conditioned write
func (s *MemoryStore) UpdateAuction(auction model.Auction) (model.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateLocked(auction)
}

// AdmitBid updates the auction and appends the bid atomically
func (s *MemoryStore) AdmitBid(auction model.Auction, bid model.Bid) (model.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.updateLocked(auction)
	if err != nil {
		return model.Auction{}, fmt.Errorf("admit bid %s: %w", bid.BidID, err)
	}

	s.bids[bid.AuctionID] = append(s.bids[bid.AuctionID], bid)

	for _, id := range s.bidderAuctions[bid.BidderID] {
		if id == bid.AuctionID {
			return stored, nil
		}
	}
	s.bidderAuctions[bid.BidderID] = append(s.bidderAuctions[bid.BidderID], bid.AuctionID)

	return stored, nil
}

func (s *MemoryStore) updateLocked(auction model.Auction) (model.Auction, error) {
	current, ok := s.auctions[auction.AuctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("update auction %s: %w", auction.AuctionID, auctionerrors.ErrAuctionNotFound)
	}
	if current.Version != auction.Version {
		return model.Auction{}, fmt.Errorf("update auction %s: stored version %d, submitted %d: %w",
			auction.AuctionID, current.Version, auction.Version, auctionerrors.ErrVersionConflict)
	}

	auction.Version++
	s.auctions[auction.AuctionID] = auction
	return auction, nil
}

// BidsForAuction returns all bids for an auction
func (s *MemoryStore) BidsForAuction(auctionID string) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}

	bids := s.bids[auctionID]
	if len(bids) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	return append([]model.Bid(nil), bids...), nil
}

// BidsForBidder returns the bids one bidder placed on an auction
func (s *MemoryStore) BidsForBidder(auctionID, bidderID string) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}

	var own []model.Bid
	for _, b := range s.bids[auctionID] {
		if b.BidderID == bidderID {
			own = append(own, b)
		}
	}
	if len(own) == 0 {
		return nil, fmt.Errorf("get bids for bidder %s on auction %s: %w", bidderID, auctionID, auctionerrors.ErrBidderNoBids)
	}
	return own, nil
}

// WinningBid returns the highest bid for an auction; ties resolve to the
// earliest bid, then the smallest bid id
func (s *MemoryStore) WinningBid(auctionID string) (model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.auctions[auctionID]; !ok {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}

	bids := s.bids[auctionID]
	if len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}

	winning := bids[0]
	for _, b := range bids[1:] {
		if beats(b, winning) {
			winning = b
		}
	}
	return winning, nil
}

// beats reports whether candidate outranks current under the settlement
// order: amount desc, creation time asc, bid id asc.
func beats(candidate, current model.Bid) bool {
	if !candidate.Amount.Equal(current.Amount) {
		return candidate.Amount.GreaterThan(current.Amount)
	}
	if !candidate.CreatedAt.Equal(current.CreatedAt) {
		return candidate.CreatedAt.Before(current.CreatedAt)
	}
	return candidate.BidID < current.BidID
}

// AuctionsForBidder returns all auctions a bidder has bid on
func (s *MemoryStore) AuctionsForBidder(bidderID string) ([]model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auctionIDs, ok := s.bidderAuctions[bidderID]
	if !ok || len(auctionIDs) == 0 {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, auctionerrors.ErrBidderNoBids)
	}

	auctions := make([]model.Auction, 0, len(auctionIDs))
	for _, id := range auctionIDs {
		if auction, exists := s.auctions[id]; exists {
			auctions = append(auctions, auction)
		}
	}
	return auctions, nil
}

// DueAuctions lists auctions whose time-driven transition is due at now
func (s *MemoryStore) DueAuctions(now time.Time) ([]model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []model.Auction
	for _, auction := range s.auctions {
		switch auction.Status {
		case model.StatusDraft:
			if !auction.StartTime.After(now) {
				due = append(due, auction)
			}
		case model.StatusActive:
			if !auction.EndTime.After(now) {
				due = append(due, auction)
			}
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].AuctionID < due[j].AuctionID })
	return due, nil
}
