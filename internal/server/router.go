package server

import (
	"github.com/gin-gonic/gin"

	auction "github.com/Krishnaraaju/auct-sealed/internal/auctionService"
	"github.com/Krishnaraaju/auct-sealed/internal/events"
	handler "github.com/Krishnaraaju/auct-sealed/services/auction/handler"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(auctionService *auction.AuctionService, hub *events.Hub, limiter *BidRateLimiter) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	auctionHandler := handler.NewAuctionHandler(auctionService)
	stream := NewEventStream(auctionService, hub)

	auctions := router.Group("/auctions")
	{
		auctions.POST("", auctionHandler.CreateAuctionHandler)
		auctions.POST("/:auction_id/cancel", auctionHandler.CancelAuctionHandler)
		auctions.GET("/:auction_id", auctionHandler.GetAuctionHandler)
		auctions.GET("/:auction_id/bids/:bidder_id", auctionHandler.GetBidderBidsHandler)
		auctions.GET("/:auction_id/events", stream.StreamAuctionEventsHandler)
	}

	bids := router.Group("/bids")
	{
		bids.POST("", limiter.Middleware, auctionHandler.SubmitBidHandler)
	}

	bidders := router.Group("/bidders")
	{
		bidders.GET("/:bidder_id/auctions", auctionHandler.GetBidderAuctionsHandler)
	}

	return router
}
