package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Krishnaraaju/auct-sealed/internal/auctionerrors"
	model "github.com/Krishnaraaju/auct-sealed/internal/models"
	"github.com/Krishnaraaju/auct-sealed/services/auction/helpers"
	"github.com/Krishnaraaju/auct-sealed/utils"
)

type AuctionServiceInterface interface {
	CreateAuction(itemRef, sellerID string, startPrice decimal.Decimal, startTime, endTime time.Time, sealed bool) (model.Auction, error)
	SubmitBid(auctionID, bidderID string, amount decimal.Decimal) (model.Bid, error)
	CancelAuction(auctionID, requesterID string) (model.Auction, error)
	GetAuctionSnapshot(auctionID string) (model.AuctionSnapshot, error)
	BidsForBidder(auctionID, bidderID string) ([]model.Bid, error)
	AuctionsForBidder(bidderID string) ([]model.Auction, error)
}

type AuctionHandler struct {
	service AuctionServiceInterface
}

func NewAuctionHandler(service AuctionServiceInterface) *AuctionHandler {
	return &AuctionHandler{service: service}
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	auction, err := h.service.CreateAuction(req.ItemRef, req.SellerID, req.StartPrice, req.StartTime, req.EndTime, req.SealedOrDefault())
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("CreateAuctionHandler: failed to create auction", map[string]any{
			"handler":   "CreateAuctionHandler",
			"item_ref":  req.ItemRef,
			"seller_id": req.SellerID,
			"error":     err.Error(),
		})
		return
	}

	resp := helpers.AuctionResponseFrom(auction)

	utils.JSONResponse(c, http.StatusCreated, resp, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": auction.AuctionID,
		"item_ref":   auction.ItemRef,
		"seller_id":  auction.SellerID,
		"status":     auction.Status,
	})
}

// SubmitBidHandler handles POST /bids
func (h *AuctionHandler) SubmitBidHandler(c *gin.Context) {
	var req helpers.SubmitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "SubmitBidHandler", err)
		return
	}

	bid, err := h.service.SubmitBid(req.AuctionID, req.BidderID, req.Amount)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("SubmitBidHandler: failed to submit bid", map[string]any{
			"handler":    "SubmitBidHandler",
			"auction_id": req.AuctionID,
			"bidder_id":  req.BidderID,
			"error":      err.Error(),
		})
		return
	}

	resp := helpers.BidResponseFrom(bid)

	utils.JSONResponse(c, http.StatusCreated, resp, "bid accepted")
	helpers.LogSuccess("SubmitBidHandler", "bid accepted", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": bid.AuctionID,
		"bidder_id":  req.BidderID,
		"amount":     bid.Amount.String(),
	})
}

// CancelAuctionHandler handles POST /auctions/:auction_id/cancel
func (h *AuctionHandler) CancelAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.CancelAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CancelAuctionHandler", err)
		return
	}

	auction, err := h.service.CancelAuction(auctionID, req.RequesterID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("CancelAuctionHandler: failed to cancel auction", map[string]any{
			"auction_id":   auctionID,
			"requester_id": req.RequesterID,
			"error":        err.Error(),
		})
		return
	}

	resp := helpers.AuctionResponseFrom(auction)

	utils.JSONResponse(c, http.StatusOK, resp, "auction cancelled successfully")
	helpers.LogSuccess("CancelAuctionHandler", "auction cancelled successfully", map[string]any{
		"auction_id":   auction.AuctionID,
		"requester_id": req.RequesterID,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	snapshot, err := h.service.GetAuctionSnapshot(auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetAuctionHandler: error retrieving auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	resp := helpers.SnapshotResponseFrom(snapshot)

	utils.JSONResponse(c, http.StatusOK, resp, "auction retrieved successfully")
	helpers.LogSuccess("GetAuctionHandler", "auction retrieved successfully", map[string]any{
		"auction_id": snapshot.AuctionID,
		"status":     snapshot.Status,
		"bid_count":  snapshot.BidCount,
	})
}

// GetBidderBidsHandler handles GET /auctions/:auction_id/bids/:bidder_id
//
// Sealed visibility: a bidder can list only their own bids, never the full
// book.
func (h *AuctionHandler) GetBidderBidsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bidderID := c.Param("bidder_id")

	bids, err := h.service.BidsForBidder(auctionID, bidderID)
	if err != nil && !errors.Is(err, auctionerrors.ErrBidderNoBids) {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetBidderBidsHandler: error retrieving bids", map[string]any{
			"auction_id": auctionID,
			"bidder_id":  bidderID,
			"error":      err.Error(),
		})
		return
	}

	resp := make([]helpers.BidResponse, 0, len(bids))
	for _, bid := range bids {
		resp = append(resp, helpers.BidResponseFrom(bid))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetBidderBidsHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"bidder_id":  bidderID,
		"count":      len(resp),
	})
}

// GetBidderAuctionsHandler handles GET /bidders/:bidder_id/auctions
func (h *AuctionHandler) GetBidderAuctionsHandler(c *gin.Context) {
	bidderID := c.Param("bidder_id")

	auctions, err := h.service.AuctionsForBidder(bidderID)
	if err != nil && !errors.Is(err, auctionerrors.ErrBidderNoBids) {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetBidderAuctionsHandler: error retrieving auctions", map[string]any{"bidder_id": bidderID, "error": err.Error()})
		return
	}

	resp := make([]helpers.AuctionResponse, 0, len(auctions))
	for _, auction := range auctions {
		resp = append(resp, helpers.AuctionResponseFrom(auction))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "auctions retrieved successfully")
	helpers.LogSuccess("GetBidderAuctionsHandler", "auctions retrieved successfully", map[string]any{
		"bidder_id":      bidderID,
		"auctions_count": len(resp),
	})
}
