package helpers

import (
	"time"

	"github.com/shopspring/decimal"

	model "github.com/Krishnaraaju/auct-sealed/internal/models"
)

// Request/Response DTOs
type CreateAuctionRequest struct {
	ItemRef    string          `json:"item_ref" binding:"required"`
	SellerID   string          `json:"seller_id" binding:"required"`
	StartPrice decimal.Decimal `json:"start_price" binding:"required"`
	StartTime  time.Time       `json:"start_time" binding:"required"`
	EndTime    time.Time       `json:"end_time" binding:"required"`
	Sealed     *bool           `json:"sealed"`
}

// SealedOrDefault returns the requested visibility mode; omitted means sealed.
func (r CreateAuctionRequest) SealedOrDefault() bool {
	if r.Sealed == nil {
		return true
	}
	return *r.Sealed
}

type SubmitBidRequest struct {
	AuctionID string          `json:"auction_id" binding:"required"`
	BidderID  string          `json:"bidder_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
}

type CancelAuctionRequest struct {
	RequesterID string `json:"requester_id" binding:"required"`
}

// Monetary amounts travel as strings so decimal precision never passes
// through a float.
type AuctionResponse struct {
	AuctionID  string `json:"auction_id"`
	ItemRef    string `json:"item_ref"`
	SellerID   string `json:"seller_id"`
	StartPrice string `json:"start_price"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
	Sealed     bool   `json:"sealed"`
	CreatedAt  string `json:"created_at"`
}

func AuctionResponseFrom(auction model.Auction) AuctionResponse {
	return AuctionResponse{
		AuctionID:  auction.AuctionID,
		ItemRef:    auction.ItemRef,
		SellerID:   auction.SellerID,
		StartPrice: auction.StartPrice.String(),
		StartTime:  auction.StartTime.UTC().Format(time.RFC3339),
		EndTime:    auction.EndTime.UTC().Format(time.RFC3339),
		Status:     string(auction.Status),
		Sealed:     auction.SealedBidding,
		CreatedAt:  auction.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type BidResponse struct {
	BidID     string `json:"bid_id"`
	AuctionID string `json:"auction_id"`
	BidderID  string `json:"bidder_id"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at"`
}

func BidResponseFrom(bid model.Bid) BidResponse {
	return BidResponse{
		BidID:     bid.BidID,
		AuctionID: bid.AuctionID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount.String(),
		CreatedAt: bid.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type SnapshotResponse struct {
	AuctionID     string `json:"auction_id"`
	ItemRef       string `json:"item_ref"`
	Status        string `json:"status"`
	StartPrice    string `json:"start_price"`
	HighestAmount string `json:"highest_amount"`
	BidCount      int    `json:"bid_count"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	WinnerID      string `json:"winner_id,omitempty"`
	WinningAmount string `json:"winning_amount,omitempty"`
	Seq           uint64 `json:"seq"`
}

func SnapshotResponseFrom(snapshot model.AuctionSnapshot) SnapshotResponse {
	resp := SnapshotResponse{
		AuctionID:     snapshot.AuctionID,
		ItemRef:       snapshot.ItemRef,
		Status:        string(snapshot.Status),
		StartPrice:    snapshot.StartPrice.String(),
		HighestAmount: snapshot.HighestAmount.String(),
		BidCount:      snapshot.BidCount,
		StartTime:     snapshot.StartTime.UTC().Format(time.RFC3339),
		EndTime:       snapshot.EndTime.UTC().Format(time.RFC3339),
		Seq:           snapshot.Seq,
	}
	if snapshot.WinnerID != "" {
		resp.WinnerID = snapshot.WinnerID
		resp.WinningAmount = snapshot.WinningAmount.String()
	}
	return resp
}
