package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of an auction.
type AuctionStatus string

const (
	StatusDraft     AuctionStatus = "draft"
	StatusActive    AuctionStatus = "active"
	StatusEnded     AuctionStatus = "ended"
	StatusCancelled AuctionStatus = "cancelled"
)

func (s AuctionStatus) String() string {
	return string(s)
}

func (s AuctionStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusEnded, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition may leave this state.
func (s AuctionStatus) IsTerminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// CanTransitionTo reports whether next is a legal transition from s.
// Legal moves: draft→active, draft→cancelled, active→ended, active→cancelled.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusActive || next == StatusCancelled
	case StatusActive:
		return next == StatusEnded || next == StatusCancelled
	default:
		return false
	}
}

// Auction is one sealed-bid auction. The high-bid cache and the settlement
// fields are mutated only through version-conditioned store writes; Version
// is the compare-and-swap token, EventSeq the last event sequence number
// committed for this auction.
type Auction struct {
	AuctionID     string          `json:"auction_id"`
	ItemRef       string          `json:"item_ref"`
	SellerID      string          `json:"seller_id"`
	StartPrice    decimal.Decimal `json:"start_price"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	Status        AuctionStatus   `json:"status"`
	SealedBidding bool            `json:"sealed_bidding"`

	HighBidID     string          `json:"high_bid_id,omitempty"`
	HighBidAmount decimal.Decimal `json:"high_bid_amount"`
	BidCount      int             `json:"bid_count"`

	WinnerID      string          `json:"winner_id,omitempty"`
	WinningBidID  string          `json:"winning_bid_id,omitempty"`
	WinningAmount decimal.Decimal `json:"winning_amount"`
	SettledAt     *time.Time      `json:"settled_at,omitempty"`

	Version   uint64    `json:"version"`
	EventSeq  uint64    `json:"event_seq"`
	CreatedAt time.Time `json:"created_at"`
}

// HasBids reports whether at least one bid has been admitted.
func (a Auction) HasBids() bool {
	return a.BidCount > 0
}

// HasWinner reports whether settlement recorded a winning bid.
func (a Auction) HasWinner() bool {
	return a.WinnerID != "" && a.WinningBidID != ""
}

// Bid is an immutable record of an admitted bid. Bids are append-only facts:
// no updates, no deletes.
type Bid struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventType discriminates the per-auction change events.
type EventType string

const (
	EventBidAccepted   EventType = "bid_accepted"
	EventStatusChanged EventType = "status_changed"
	EventSettled       EventType = "auction_settled"
)

// BidAcceptedPayload carries the new high amount only; the bidder identity
// stays sealed until settlement.
type BidAcceptedPayload struct {
	NewHighAmount decimal.Decimal `json:"new_high_amount"`
	BidCount      int             `json:"bid_count"`
}

type StatusChangedPayload struct {
	OldStatus AuctionStatus `json:"old_status"`
	NewStatus AuctionStatus `json:"new_status"`
}

type SettledPayload struct {
	WinnerID     string          `json:"winner_id"`
	WinningBidID string          `json:"winning_bid_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// Event is one entry of an auction's ordered change stream. Seq increases
// monotonically per auction; exactly one payload pointer is set, matching
// Type.
type Event struct {
	AuctionID  string    `json:"auction_id"`
	Seq        uint64    `json:"seq"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`

	BidAccepted   *BidAcceptedPayload   `json:"bid_accepted,omitempty"`
	StatusChanged *StatusChangedPayload `json:"status_changed,omitempty"`
	Settled       *SettledPayload       `json:"settled,omitempty"`
}

// NotificationKind classifies dispatcher output records.
type NotificationKind string

const (
	NotificationAuctionWon   NotificationKind = "auction_won"
	NotificationAuctionEnded NotificationKind = "auction_ended_seller"
)

// Notification is the engine-side record handed to the external delivery
// channel; it carries no user-facing text.
type Notification struct {
	NotificationID string           `json:"notification_id"`
	UserID         string           `json:"user_id"`
	Kind           NotificationKind `json:"kind"`
	AuctionID      string           `json:"auction_id"`
	Amount         decimal.Decimal  `json:"amount"`
	CreatedAt      time.Time        `json:"created_at"`
}

// AuctionSnapshot is the read model served to viewers and used by stream
// subscribers to reconcile after (re)connecting. Seq is the event sequence
// number the snapshot reflects.
type AuctionSnapshot struct {
	AuctionID     string          `json:"auction_id"`
	ItemRef       string          `json:"item_ref"`
	Status        AuctionStatus   `json:"status"`
	StartPrice    decimal.Decimal `json:"start_price"`
	HighestAmount decimal.Decimal `json:"highest_amount"`
	BidCount      int             `json:"bid_count"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	WinnerID      string          `json:"winner_id,omitempty"`
	WinningAmount decimal.Decimal `json:"winning_amount"`
	Seq           uint64          `json:"seq"`
}

// SnapshotOf projects an auction onto its public read model. Bidder
// identities stay hidden; the winner appears only once settlement wrote it.
func SnapshotOf(a Auction) AuctionSnapshot {
	return AuctionSnapshot{
		AuctionID:     a.AuctionID,
		ItemRef:       a.ItemRef,
		Status:        a.Status,
		StartPrice:    a.StartPrice,
		HighestAmount: a.HighBidAmount,
		BidCount:      a.BidCount,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		WinnerID:      a.WinnerID,
		WinningAmount: a.WinningAmount,
		Seq:           a.EventSeq,
	}
}
