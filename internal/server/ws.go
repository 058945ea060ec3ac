package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Krishnaraaju/auct-sealed/internal/events"
	model "github.com/Krishnaraaju/auct-sealed/internal/models"
	"github.com/Krishnaraaju/auct-sealed/services/auction/helpers"
	"github.com/Krishnaraaju/auct-sealed/utils"
)

// WebSocket timeouts
const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

const (
	frameSnapshot = "snapshot"
	frameEvent    = "event"
)

// streamFrame is the wire envelope of the event stream. The first frame of
// every connection is a snapshot; all later frames carry one event each.
type streamFrame struct {
	Type     string                    `json:"type"`
	Snapshot *helpers.SnapshotResponse `json:"snapshot,omitempty"`
	Event    *model.Event              `json:"event,omitempty"`
}

// SnapshotSource yields the public read model of one auction.
type SnapshotSource interface {
	GetAuctionSnapshot(auctionID string) (model.AuctionSnapshot, error)
}

// StreamSource attaches a subscriber to one auction's live events.
type StreamSource interface {
	Subscribe(auctionID string) *events.Subscription
}

// EventStream serves the per-auction WebSocket feed.
type EventStream struct {
	snapshots SnapshotSource
	streams   StreamSource
	upgrader  websocket.Upgrader
	log       *logrus.Entry
}

func NewEventStream(snapshots SnapshotSource, streams StreamSource) *EventStream {
	return &EventStream{
		snapshots: snapshots,
		streams:   streams,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: utils.ComponentLogger("event-stream"),
	}
}

// StreamAuctionEventsHandler upgrades GET /auctions/:auction_id/events to a
// WebSocket. A client that falls behind is evicted by the hub and told to
// reconnect; the fresh snapshot's seq lets it discard frames it already saw.
func (s *EventStream) StreamAuctionEventsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	// Reject unknown auctions before committing to the upgrade
	if _, err := s.snapshots.GetAuctionSnapshot(auctionID); err != nil {
		status, msg := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, err, msg)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Error("WebSocket upgrade failed", map[string]any{
			"auction_id": auctionID,
			"error":      err.Error(),
		})
		return
	}
	defer conn.Close()

	// Subscribe before snapshotting so nothing falls in the gap: events
	// already covered by the snapshot arrive with seq <= snapshot.seq and
	// the client skips them.
	sub := s.streams.Subscribe(auctionID)
	defer sub.Close()

	snapshot, err := s.snapshots.GetAuctionSnapshot(auctionID)
	if err != nil {
		s.log.WithField("auction_id", auctionID).WithError(err).Error("Snapshot read failed after upgrade")
		return
	}

	resp := helpers.SnapshotResponseFrom(snapshot)
	if err := s.writeFrame(conn, streamFrame{Type: frameSnapshot, Snapshot: &resp}); err != nil {
		return
	}

	s.log.WithFields(logrus.Fields{
		"auction_id": auctionID,
		"seq":        snapshot.Seq,
	}).Info("Stream client attached")

	// Reader drains control frames and flags the disconnect; bidders have
	// nothing to say on this channel.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-clientGone:
			return

		case event, ok := <-sub.C():
			if !ok {
				// Evicted for lagging. Close loudly so the client reconnects.
				s.log.WithField("auction_id", auctionID).Warn("Dropping lagging stream client")
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "stream lagged, reconnect"))
				return
			}
			if err := s.writeFrame(conn, streamFrame{Type: frameEvent, Event: &event}); err != nil {
				return
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *EventStream) writeFrame(conn *websocket.Conn, frame streamFrame) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(frame)
}
