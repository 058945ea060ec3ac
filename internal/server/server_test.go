package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	auction "github.com/Krishnaraaju/auct-sealed/internal/auctionService"
	"github.com/Krishnaraaju/auct-sealed/internal/events"
	model "github.com/Krishnaraaju/auct-sealed/internal/models"
	"github.com/Krishnaraaju/auct-sealed/internal/repository"
)

func postBid(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/bids", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBidRateLimiter_BurstThenLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := NewBidRateLimiter(1, 2) // 1 bid/sec, burst of 2
	router := gin.New()
	router.POST("/bids", limiter.Middleware, func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"status": "accepted"})
	})

	// The burst admits the first two submissions
	require.Equal(t, http.StatusCreated, postBid(t, router, `{"bidder_id":"bidder1","amount":"100"}`).Code)
	require.Equal(t, http.StatusCreated, postBid(t, router, `{"bidder_id":"bidder1","amount":"110"}`).Code)

	// The third drains the bucket
	w := postBid(t, router, `{"bidder_id":"bidder1","amount":"120"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp["message"], "too many bids")

	// Another bidder has their own bucket
	require.Equal(t, http.StatusCreated, postBid(t, router, `{"bidder_id":"bidder2","amount":"100"}`).Code)
}

func TestBidRateLimiter_RestoresBodyForHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := NewBidRateLimiter(100, 100)
	router := gin.New()
	router.POST("/bids", limiter.Middleware, func(c *gin.Context) {
		// The handler must see the body the middleware peeked at
		raw, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		c.JSON(http.StatusCreated, gin.H{"echo": string(raw)})
	})

	body := `{"auction_id":"a1","bidder_id":"bidder1","amount":"100"}`
	w := postBid(t, router, body)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, body, resp["echo"])
}

func TestBidRateLimiter_MalformedBodyKeyedByClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := NewBidRateLimiter(1, 1)
	router := gin.New()
	router.POST("/bids", limiter.Middleware, func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"status": "accepted"})
	})

	// No readable bidder_id: both requests fall into the client-IP bucket
	require.Equal(t, http.StatusCreated, postBid(t, router, `{not json`).Code)
	require.Equal(t, http.StatusTooManyRequests, postBid(t, router, `{still not json`).Code)
}

func newStreamStack(t *testing.T) (*auction.AuctionService, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	hub := events.NewHub(16)
	service := auction.NewAuctionService(store, hub, auction.Config{})
	limiter := NewBidRateLimiter(1000, 1000)

	srv := httptest.NewServer(SetupRouter(service, hub, limiter))
	t.Cleanup(srv.Close)
	return service, srv
}

func dialStream(t *testing.T, srv *httptest.Server, auctionID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/auctions/" + auctionID + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) streamFrame {
	t.Helper()
	var frame streamFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestEventStream_SnapshotFrameFirstThenLiveEvents(t *testing.T) {
	service, srv := newStreamStack(t)

	now := time.Now().UTC()
	created, err := service.CreateAuction("item1", "seller1", decimal.NewFromInt(50),
		now.Add(-time.Minute), now.Add(time.Hour), true)
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, created.Status)

	conn := dialStream(t, srv, created.AuctionID)

	frame := readFrame(t, conn)
	require.Equal(t, frameSnapshot, frame.Type)
	require.NotNil(t, frame.Snapshot)
	require.Equal(t, created.AuctionID, frame.Snapshot.AuctionID)
	require.Equal(t, string(model.StatusActive), frame.Snapshot.Status)
	require.Equal(t, uint64(0), frame.Snapshot.Seq)
	require.Empty(t, frame.Snapshot.WinnerID)

	_, err = service.SubmitBid(created.AuctionID, "bidder1", decimal.NewFromInt(100))
	require.NoError(t, err)

	frame = readFrame(t, conn)
	require.Equal(t, frameEvent, frame.Type)
	require.NotNil(t, frame.Event)
	require.Equal(t, model.EventBidAccepted, frame.Event.Type)
	require.Equal(t, uint64(1), frame.Event.Seq)
	require.NotNil(t, frame.Event.BidAccepted)
	require.True(t, frame.Event.BidAccepted.NewHighAmount.Equal(decimal.NewFromInt(100)))
	// Sealed: the event announces the new high, never the bidder
	require.Equal(t, 1, frame.Event.BidAccepted.BidCount)

	_, err = service.SubmitBid(created.AuctionID, "bidder2", decimal.NewFromInt(150))
	require.NoError(t, err)

	frame = readFrame(t, conn)
	require.Equal(t, uint64(2), frame.Event.Seq)
	require.True(t, frame.Event.BidAccepted.NewHighAmount.Equal(decimal.NewFromInt(150)))
}

func TestEventStream_LateSubscriberSnapshotCarriesSeq(t *testing.T) {
	service, srv := newStreamStack(t)

	now := time.Now().UTC()
	created, err := service.CreateAuction("item1", "seller1", decimal.NewFromInt(50),
		now.Add(-time.Minute), now.Add(time.Hour), true)
	require.NoError(t, err)

	for i, amount := range []int64{60, 80, 120} {
		bidder := []string{"bidder1", "bidder2", "bidder3"}[i]
		_, err := service.SubmitBid(created.AuctionID, bidder, decimal.NewFromInt(amount))
		require.NoError(t, err)
	}

	// A subscriber joining mid-auction reconciles from the snapshot seq
	conn := dialStream(t, srv, created.AuctionID)

	frame := readFrame(t, conn)
	require.Equal(t, frameSnapshot, frame.Type)
	require.Equal(t, uint64(3), frame.Snapshot.Seq)
	require.Equal(t, 3, frame.Snapshot.BidCount)
	require.Equal(t, "120", frame.Snapshot.HighestAmount)
}

func TestEventStream_UnknownAuctionRejectedBeforeUpgrade(t *testing.T) {
	_, srv := newStreamStack(t)

	resp, err := http.Get(srv.URL + "/auctions/missing/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body["message"], "auction not found")
}
