package auctionerrors

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionExists   = errors.New("auction already exists")
	ErrNoBids          = errors.New("no bids recorded for auction")
	ErrBidderNoBids    = errors.New("bidder has not placed any bids")
	ErrVersionConflict = errors.New("auction version conflict")
)

// Business rule errors
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrBidTooLow        = errors.New("bid amount too low")
	ErrSelfBid          = errors.New("seller cannot bid on own auction")
	ErrNotSeller        = errors.New("requester is not the auction seller")
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrAuctionClosed    = errors.New("auction bidding deadline has passed")
	ErrInvalidState     = errors.New("operation not allowed in current auction status")
	ErrAlreadySettled   = errors.New("auction already settled")
)
