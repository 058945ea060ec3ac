package integrationtests

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	model "github.com/Krishnaraaju/auct-sealed/internal/models"
)

// CreateAuctionHandler Tests
func TestCreateAuctionAPI(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name       string
		request    any
		wantStatus int
		wantState  model.AuctionStatus
	}{
		{
			name: "Future_Start_Creates_Draft",
			request: map[string]any{
				"item_ref":    "item1",
				"seller_id":   "seller1",
				"start_price": "50",
				"start_time":  now.Add(time.Hour).Format(time.RFC3339),
				"end_time":    now.Add(2 * time.Hour).Format(time.RFC3339),
			},
			wantStatus: http.StatusCreated,
			wantState:  model.StatusDraft,
		},
		{
			name: "Past_Start_Creates_Active",
			request: map[string]any{
				"item_ref":    "item2",
				"seller_id":   "seller1",
				"start_price": "50",
				"start_time":  now.Add(-time.Minute).Format(time.RFC3339),
				"end_time":    now.Add(time.Hour).Format(time.RFC3339),
			},
			wantStatus: http.StatusCreated,
			wantState:  model.StatusActive,
		},
		{
			name:       "Invalid_JSON",
			request:    []byte(`{item_ref: 'missing quotes'}`),
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "End_Before_Start",
			request: map[string]any{
				"item_ref":    "item3",
				"seller_id":   "seller1",
				"start_price": "50",
				"start_time":  now.Add(2 * time.Hour).Format(time.RFC3339),
				"end_time":    now.Add(time.Hour).Format(time.RFC3339),
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stack := SetupTestStack(t)
			resp, w := ExecuteRequestAndParse(t, stack.router, http.MethodPost, "/auctions", tt.request)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusCreated {
				require.NotEmpty(t, resp["auction_id"])
				require.Equal(t, string(tt.wantState), resp["status"])

				_, err := time.Parse(time.RFC3339, resp["created_at"].(string))
				require.NoError(t, err)
			}
		})
	}
}

// SubmitBidHandler Tests
func TestSubmitBidAPI(t *testing.T) {
	stack := SetupTestStack(t)
	now := time.Now().UTC()

	activeID := CreateAuctionViaAPI(t, stack, "item1", "seller1", "50",
		now.Add(-time.Minute), now.Add(time.Hour))
	draftID := CreateAuctionViaAPI(t, stack, "item2", "seller1", "50",
		now.Add(time.Hour), now.Add(2*time.Hour))

	tests := []struct {
		name       string
		auctionID  string
		bidderID   string
		amount     string
		wantStatus int
	}{
		{
			name:       "Valid_First_Bid",
			auctionID:  activeID,
			bidderID:   "bidder1",
			amount:     "100",
			wantStatus: http.StatusCreated,
		},
		{
			name:       "Equal_To_Current_High",
			auctionID:  activeID,
			bidderID:   "bidder2",
			amount:     "100",
			wantStatus: http.StatusConflict,
		},
		{
			name:       "Below_Current_High",
			auctionID:  activeID,
			bidderID:   "bidder2",
			amount:     "90",
			wantStatus: http.StatusConflict,
		},
		{
			name:       "Above_Current_High",
			auctionID:  activeID,
			bidderID:   "bidder2",
			amount:     "150",
			wantStatus: http.StatusCreated,
		},
		{
			name:       "Seller_Bids_Own_Auction",
			auctionID:  activeID,
			bidderID:   "seller1",
			amount:     "200",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "Unknown_Auction",
			auctionID:  "auc-missing",
			bidderID:   "bidder1",
			amount:     "100",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "Draft_Auction",
			auctionID:  draftID,
			bidderID:   "bidder1",
			amount:     "100",
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, w := PlaceBid(t, stack, tt.auctionID, tt.bidderID, tt.amount)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusCreated {
				require.NotEmpty(t, resp["bid_id"])
				require.Equal(t, tt.auctionID, resp["auction_id"])
				require.Equal(t, tt.bidderID, resp["bidder_id"])
				require.Equal(t, tt.amount, resp["amount"])

				_, err := time.Parse(time.RFC3339, resp["created_at"].(string))
				require.NoError(t, err)
			}
		})
	}
}

// Sealed visibility: bidders see their own bids and the public snapshot,
// never the book or other bidders' identities.
func TestSealedBidVisibilityAPI(t *testing.T) {
	stack := SetupTestStack(t)
	now := time.Now().UTC()

	auctionID := CreateAuctionViaAPI(t, stack, "item1", "seller1", "50",
		now.Add(-time.Minute), now.Add(time.Hour))

	_, w := PlaceBid(t, stack, auctionID, "bidder1", "100")
	require.Equal(t, http.StatusCreated, w.Code)
	_, w = PlaceBid(t, stack, auctionID, "bidder2", "150")
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("Own_Bids_Only", func(t *testing.T) {
		resp, w := ExecuteRequestAndParse(t, stack.router, http.MethodGet,
			"/auctions/"+auctionID+"/bids/bidder1", nil)
		require.Equal(t, http.StatusOK, w.Code)

		bids := resp["data"].([]any)
		require.Len(t, bids, 1)
		bid := bids[0].(map[string]any)
		require.Equal(t, "bidder1", bid["bidder_id"])
		require.Equal(t, "100", bid["amount"])
	})

	t.Run("Bidder_Without_Bids", func(t *testing.T) {
		resp, w := ExecuteRequestAndParse(t, stack.router, http.MethodGet,
			"/auctions/"+auctionID+"/bids/bidder3", nil)
		require.Equal(t, http.StatusOK, w.Code)

		bids := resp["data"].([]any)
		require.Len(t, bids, 0)
	})

	t.Run("Snapshot_Hides_Bidders", func(t *testing.T) {
		resp, w := ExecuteRequestAndParse(t, stack.router, http.MethodGet,
			"/auctions/"+auctionID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		data := resp["data"].(map[string]any)
		require.Equal(t, string(model.StatusActive), data["status"])
		require.Equal(t, "150", data["highest_amount"])
		require.Equal(t, float64(2), data["bid_count"])
		require.NotContains(t, data, "winner_id")
	})

	t.Run("Auctions_For_Bidder", func(t *testing.T) {
		resp, w := ExecuteRequestAndParse(t, stack.router, http.MethodGet,
			"/bidders/bidder2/auctions", nil)
		require.Equal(t, http.StatusOK, w.Code)

		auctions := resp["data"].([]any)
		require.Len(t, auctions, 1)
		require.Equal(t, auctionID, auctions[0].(map[string]any)["auction_id"])
	})
}

// Full lifecycle: draft, sweep to active, bids, sweep to settlement,
// winner on the snapshot, notifications out of the dispatcher.
func TestAuctionLifecycleSettlementAPI(t *testing.T) {
	stack := SetupTestStack(t)
	now := time.Now().UTC()
	start := now.Add(time.Hour)
	end := now.Add(2 * time.Hour)

	auctionID := CreateAuctionViaAPI(t, stack, "item1", "seller1", "50", start, end)

	getSnapshot := func() map[string]any {
		resp, w := ExecuteRequestAndParse(t, stack.router, http.MethodGet, "/auctions/"+auctionID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		return resp["data"].(map[string]any)
	}

	require.Equal(t, string(model.StatusDraft), getSnapshot()["status"])

	// Not due yet
	require.Equal(t, 0, stack.Sweep(now))

	// Sweep past the start time activates it
	require.Equal(t, 1, stack.Sweep(start.Add(time.Second)))
	require.Equal(t, string(model.StatusActive), getSnapshot()["status"])

	_, w := PlaceBid(t, stack, auctionID, "bidder1", "100")
	require.Equal(t, http.StatusCreated, w.Code)
	_, w = PlaceBid(t, stack, auctionID, "bidder2", "150")
	require.Equal(t, http.StatusCreated, w.Code)
	_, w = PlaceBid(t, stack, auctionID, "bidder3", "120")
	require.Equal(t, http.StatusConflict, w.Code)

	// Sweep past the end time settles it
	require.Equal(t, 1, stack.Sweep(end.Add(time.Second)))

	snapshot := getSnapshot()
	require.Equal(t, string(model.StatusEnded), snapshot["status"])
	require.Equal(t, "bidder2", snapshot["winner_id"])
	require.Equal(t, "150", snapshot["winning_amount"])
	require.Equal(t, float64(2), snapshot["bid_count"])
	// activate, two bids, close, settle
	require.Equal(t, float64(5), snapshot["seq"])

	// A settled sweep is idempotent
	require.Equal(t, 0, stack.Sweep(end.Add(time.Minute)))

	// The dispatcher turns the settlement into winner and seller records
	require.Eventually(t, func() bool { return len(stack.sink.Delivered()) == 2 },
		2*time.Second, 10*time.Millisecond)

	winnerRecords := stack.sink.DeliveredFor("bidder2")
	require.Len(t, winnerRecords, 1)
	require.Equal(t, model.NotificationAuctionWon, winnerRecords[0].Kind)
	require.Equal(t, "150", winnerRecords[0].Amount.String())

	sellerRecords := stack.sink.DeliveredFor("seller1")
	require.Len(t, sellerRecords, 1)
	require.Equal(t, model.NotificationAuctionEnded, sellerRecords[0].Kind)
}

// CancelAuctionHandler Tests
func TestCancelAuctionAPI(t *testing.T) {
	stack := SetupTestStack(t)
	now := time.Now().UTC()
	end := now.Add(time.Hour)

	auctionID := CreateAuctionViaAPI(t, stack, "item1", "seller1", "50",
		now.Add(-time.Minute), end)

	_, w := PlaceBid(t, stack, auctionID, "bidder1", "100")
	require.Equal(t, http.StatusCreated, w.Code)

	cancel := func(requesterID string) int {
		_, w := ExecuteRequestAndParse(t, stack.router, http.MethodPost,
			"/auctions/"+auctionID+"/cancel", map[string]any{"requester_id": requesterID})
		return w.Code
	}

	require.Equal(t, http.StatusForbidden, cancel("intruder"))
	require.Equal(t, http.StatusOK, cancel("seller1"))
	require.Equal(t, http.StatusOK, cancel("seller1")) // idempotent

	// No bids after cancellation
	_, w = PlaceBid(t, stack, auctionID, "bidder2", "200")
	require.Equal(t, http.StatusConflict, w.Code)

	// The sweep never settles a cancelled auction
	require.Equal(t, 0, stack.Sweep(end.Add(time.Minute)))

	resp, w := ExecuteRequestAndParse(t, stack.router, http.MethodGet, "/auctions/"+auctionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]any)
	require.Equal(t, string(model.StatusCancelled), data["status"])
	require.NotContains(t, data, "winner_id")

	// No settlement, no notifications
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, stack.sink.Delivered())
}

// A close with zero bids has no winner and notifies nobody.
func TestZeroBidCloseAPI(t *testing.T) {
	stack := SetupTestStack(t)
	now := time.Now().UTC()
	end := now.Add(time.Hour)

	auctionID := CreateAuctionViaAPI(t, stack, "item1", "seller1", "50",
		now.Add(-time.Minute), end)

	require.Equal(t, 1, stack.Sweep(end.Add(time.Second)))

	resp, w := ExecuteRequestAndParse(t, stack.router, http.MethodGet, "/auctions/"+auctionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]any)
	require.Equal(t, string(model.StatusEnded), data["status"])
	require.NotContains(t, data, "winner_id")
	require.Equal(t, float64(0), data["bid_count"])

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, stack.sink.Delivered())
}

// Rate limit on the bid endpoint, end to end.
func TestBidRateLimitAPI(t *testing.T) {
	stack := SetupTestStackWithLimiter(t, 1, 2)
	now := time.Now().UTC()

	auctionID := CreateAuctionViaAPI(t, stack, "item1", "seller1", "50",
		now.Add(-time.Minute), now.Add(time.Hour))

	_, w := PlaceBid(t, stack, auctionID, "bidder1", "100")
	require.Equal(t, http.StatusCreated, w.Code)
	_, w = PlaceBid(t, stack, auctionID, "bidder1", "110")
	require.Equal(t, http.StatusCreated, w.Code)

	resp, w := PlaceBid(t, stack, auctionID, "bidder1", "120")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Contains(t, resp["message"], "too many bids")

	// Other bidders are not throttled by bidder1's bucket
	_, w = PlaceBid(t, stack, auctionID, "bidder2", "130")
	require.Equal(t, http.StatusCreated, w.Code)
}
