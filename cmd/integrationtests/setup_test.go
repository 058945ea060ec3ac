package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	auction "github.com/Krishnaraaju/auct-sealed/internal/auctionService"
	"github.com/Krishnaraaju/auct-sealed/internal/events"
	"github.com/Krishnaraaju/auct-sealed/internal/notifications"
	"github.com/Krishnaraaju/auct-sealed/internal/repository"
	"github.com/Krishnaraaju/auct-sealed/internal/scheduler"
	"github.com/Krishnaraaju/auct-sealed/internal/server"
)

// testStack bundles the wired application for integration testing. The
// sweeper is never started as a ticker; tests drive transitions through
// RunOnce with an explicit clock so flows stay deterministic.
type testStack struct {
	router  *gin.Engine
	service *auction.AuctionService
	store   *repository.MemoryStore
	hub     *events.Hub
	sweeper *scheduler.Sweeper
	sink    *notifications.MemorySink
}

// SetupTestStack wires the full in-memory application for integration testing.
func SetupTestStack(t *testing.T) *testStack {
	return SetupTestStackWithLimiter(t, 1000, 1000)
}

// SetupTestStackWithLimiter wires the stack with a custom bid rate limit.
func SetupTestStackWithLimiter(t *testing.T, perSec float64, burst int) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	hub := events.NewHub(64)
	service := auction.NewAuctionService(store, hub, auction.Config{})
	sweeper := scheduler.NewSweeper(store, service, scheduler.Config{Interval: 10 * time.Millisecond})
	sink := notifications.NewMemorySink()

	dispatcher := notifications.NewDispatcher(hub, store, sink)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go dispatcher.Run(ctx)
	require.Eventually(t, func() bool { return hub.FirehoseCount() == 1 },
		time.Second, 5*time.Millisecond, "dispatcher should attach to the hub")

	limiter := server.NewBidRateLimiter(perSec, burst)
	router := server.SetupRouter(service, hub, limiter)

	return &testStack{
		router:  router,
		service: service,
		store:   store,
		hub:     hub,
		sweeper: sweeper,
		sink:    sink,
	}
}

// Sweep advances every due auction as of the given instant.
func (s *testStack) Sweep(now time.Time) int {
	return s.sweeper.RunOnce(context.Background(), now)
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case []byte:
		reqBody = v
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		if err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}

		if w.Code == 201 {
			resp = resp["data"].(map[string]any)
		}
	}

	return resp, w
}

// CreateAuctionViaAPI creates an auction through the HTTP surface and returns its id.
func CreateAuctionViaAPI(t *testing.T, stack *testStack, itemRef, sellerID, startPrice string, start, end time.Time) string {
	t.Helper()

	resp, w := ExecuteRequestAndParse(t, stack.router, http.MethodPost, "/auctions", map[string]any{
		"item_ref":    itemRef,
		"seller_id":   sellerID,
		"start_price": startPrice,
		"start_time":  start.Format(time.RFC3339),
		"end_time":    end.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	auctionID := resp["auction_id"].(string)
	require.NotEmpty(t, auctionID)
	return auctionID
}

// PlaceBid submits a bid through the HTTP surface.
func PlaceBid(t *testing.T, stack *testStack, auctionID, bidderID, amount string) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	return ExecuteRequestAndParse(t, stack.router, http.MethodPost, "/bids", map[string]any{
		"auction_id": auctionID,
		"bidder_id":  bidderID,
		"amount":     amount,
	})
}
