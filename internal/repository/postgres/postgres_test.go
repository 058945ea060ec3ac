package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// The store's correctness rests on properties of the SQL itself; these lock
// them in without a live database. Behavior is covered by the MemoryStore
// tests, which implement the same contract.

func TestUpdateQueryIsVersionConditioned(t *testing.T) {
	require.Contains(t, updateAuctionQuery, "WHERE auction_id = $1 AND version = $2",
		"every mutation must be guarded by the submitted version")
	require.Contains(t, updateAuctionQuery, "version = version + 1",
		"a successful mutation must bump the version")
	require.NotContains(t, updateAuctionQuery, "created_at",
		"immutable listing fields stay out of the update")
}

func TestWinningBidQueryOrdersBySettlementRule(t *testing.T) {
	require.Contains(t, selectWinningBidQuery, "ORDER BY amount DESC, created_at ASC, bid_id ASC",
		"highest amount wins, earlier bid breaks ties, bid id makes the order total")
	require.Contains(t, selectWinningBidQuery, "LIMIT 1")
}

func TestDueAuctionsQueryCoversBothTransitions(t *testing.T) {
	require.Contains(t, selectDueAuctionsQuery, "status = 'draft' AND start_time <= $1",
		"drafts past their start time are due for activation")
	require.Contains(t, selectDueAuctionsQuery, "status = 'active' AND end_time <= $1",
		"active auctions past their end time are due for settlement")
	require.Contains(t, selectDueAuctionsQuery, "ORDER BY auction_id ASC",
		"the sweep order must be deterministic")
}

func TestBidQueriesReturnChronologicalOrder(t *testing.T) {
	for _, query := range []string{selectBidsQuery, selectBidderBidsQuery} {
		require.Contains(t, query, "ORDER BY created_at ASC, bid_id ASC")
	}
	require.Contains(t, selectBidderBidsQuery, "bidder_id = $2",
		"a bidder reads only their own bids")
}

func TestBidInsertIsAppendOnly(t *testing.T) {
	require.NotContains(t, insertBidQuery, "ON CONFLICT",
		"a duplicate bid id must fail loudly, not upsert")
	require.NotContains(t, strings.ToUpper(insertBidQuery), "UPDATE")
}

func TestSchemaCarriesVersionAndSequenceColumns(t *testing.T) {
	require.Contains(t, schemaDDL, "version         BIGINT NOT NULL")
	require.Contains(t, schemaDDL, "event_seq       BIGINT NOT NULL DEFAULT 0")
	require.Contains(t, schemaDDL, "NUMERIC(20,4)",
		"amounts are stored as exact numerics, never floats")
	require.Contains(t, schemaDDL, "auctions_due_idx",
		"the sweep query needs its covering index")
	require.Contains(t, schemaDDL, "bids_bidder_idx")
}

func TestInsertAuctionRefusesDuplicates(t *testing.T) {
	require.Contains(t, insertAuctionQuery, "ON CONFLICT (auction_id) DO NOTHING",
		"a duplicate listing surfaces as zero affected rows")
}
