package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Krishnaraaju/auct-sealed/internal/auctionerrors"
	model "github.com/Krishnaraaju/auct-sealed/internal/models"
)

const queryTimeout = 5 * time.Second

// Store is the Postgres-backed AuctionStore. Auction rows carry a version
// column; every mutation is guarded by WHERE version = submitted and bumps
// the column, so a lost race surfaces as zero affected rows instead of a
// silent overwrite. Bid rows are insert-only.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const schemaDDL = `
	CREATE TABLE IF NOT EXISTS auctions (
		auction_id      TEXT PRIMARY KEY,
		item_ref        TEXT NOT NULL,
		seller_id       TEXT NOT NULL,
		start_price     NUMERIC(20,4) NOT NULL,
		start_time      TIMESTAMPTZ NOT NULL,
		end_time        TIMESTAMPTZ NOT NULL,
		status          TEXT NOT NULL,
		sealed_bidding  BOOLEAN NOT NULL DEFAULT TRUE,
		high_bid_id     TEXT NOT NULL DEFAULT '',
		high_bid_amount NUMERIC(20,4) NOT NULL DEFAULT 0,
		bid_count       INTEGER NOT NULL DEFAULT 0,
		winner_id       TEXT NOT NULL DEFAULT '',
		winning_bid_id  TEXT NOT NULL DEFAULT '',
		winning_amount  NUMERIC(20,4) NOT NULL DEFAULT 0,
		settled_at      TIMESTAMPTZ,
		version         BIGINT NOT NULL,
		event_seq       BIGINT NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS auctions_due_idx ON auctions (status, start_time, end_time);

	CREATE TABLE IF NOT EXISTS bids (
		bid_id     TEXT PRIMARY KEY,
		auction_id TEXT NOT NULL REFERENCES auctions (auction_id),
		bidder_id  TEXT NOT NULL,
		amount     NUMERIC(20,4) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS bids_auction_idx ON bids (auction_id);
	CREATE INDEX IF NOT EXISTS bids_bidder_idx ON bids (bidder_id);`

// EnsureSchema creates the tables and indexes if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Auctions

const insertAuctionQuery = `
	INSERT INTO auctions (
		auction_id, item_ref, seller_id, start_price, start_time, end_time,
		status, sealed_bidding, high_bid_id, high_bid_amount, bid_count,
		winner_id, winning_bid_id, winning_amount, settled_at,
		version, event_seq, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	ON CONFLICT (auction_id) DO NOTHING`

func (s *Store) CreateAuction(auction model.Auction) (model.Auction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	auction.Version = 1
	tag, err := s.pool.Exec(ctx, insertAuctionQuery,
		auction.AuctionID,
		auction.ItemRef,
		auction.SellerID,
		auction.StartPrice,
		auction.StartTime,
		auction.EndTime,
		auction.Status,
		auction.SealedBidding,
		auction.HighBidID,
		auction.HighBidAmount,
		auction.BidCount,
		auction.WinnerID,
		auction.WinningBidID,
		auction.WinningAmount,
		auction.SettledAt,
		auction.Version,
		auction.EventSeq,
		auction.CreatedAt,
	)
	if err != nil {
		return model.Auction{}, fmt.Errorf("create auction %s: %w", auction.AuctionID, err)
	}
	if tag.RowsAffected() == 0 {
		return model.Auction{}, fmt.Errorf("create auction %s: %w", auction.AuctionID, auctionerrors.ErrAuctionExists)
	}
	return auction, nil
}

const selectAuctionQuery = `
	SELECT auction_id, item_ref, seller_id, start_price, start_time, end_time,
	       status, sealed_bidding, high_bid_id, high_bid_amount, bid_count,
	       winner_id, winning_bid_id, winning_amount, settled_at,
	       version, event_seq, created_at
	FROM auctions
	WHERE auction_id = $1`

func (s *Store) GetAuction(auctionID string) (model.Auction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	auction, err := scanAuction(s.pool.QueryRow(ctx, selectAuctionQuery, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
		}
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

func (s *Store) UpdateAuction(auction model.Auction) (model.Auction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	return s.updateWith(ctx, s.pool, auction)
}

const insertBidQuery = `
	INSERT INTO bids (bid_id, auction_id, bidder_id, amount, created_at)
	VALUES ($1,$2,$3,$4,$5)`

// AdmitBid runs the version-guarded auction update and the bid insert in one
// transaction so that a lost race leaves no trace of the bid.
func (s *Store) AdmitBid(auction model.Auction, bid model.Bid) (model.Auction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var stored model.Auction
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		stored, err = s.updateWith(ctx, tx, auction)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, insertBidQuery,
			bid.BidID,
			bid.AuctionID,
			bid.BidderID,
			bid.Amount,
			bid.CreatedAt,
		)
		return err
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("admit bid %s: %w", bid.BidID, err)
	}
	return stored, nil
}

const updateAuctionQuery = `
	UPDATE auctions SET
		status = $3, sealed_bidding = $4, high_bid_id = $5, high_bid_amount = $6,
		bid_count = $7, winner_id = $8, winning_bid_id = $9, winning_amount = $10,
		settled_at = $11, event_seq = $12, version = version + 1
	WHERE auction_id = $1 AND version = $2`

func (s *Store) updateWith(ctx context.Context, runner commandTagExecutor, auction model.Auction) (model.Auction, error) {
	tag, err := runner.Exec(ctx, updateAuctionQuery,
		auction.AuctionID,
		auction.Version,
		auction.Status,
		auction.SealedBidding,
		auction.HighBidID,
		auction.HighBidAmount,
		auction.BidCount,
		auction.WinnerID,
		auction.WinningBidID,
		auction.WinningAmount,
		auction.SettledAt,
		auction.EventSeq,
	)
	if err != nil {
		return model.Auction{}, fmt.Errorf("update auction %s: %w", auction.AuctionID, err)
	}
	if tag.RowsAffected() == 0 {
		// Zero rows is either a missing auction or a lost version race;
		// a second lookup tells them apart.
		var stored uint64
		err := s.pool.QueryRow(ctx, `SELECT version FROM auctions WHERE auction_id = $1`, auction.AuctionID).Scan(&stored)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Auction{}, fmt.Errorf("update auction %s: %w", auction.AuctionID, auctionerrors.ErrAuctionNotFound)
		}
		if err != nil {
			return model.Auction{}, fmt.Errorf("update auction %s: %w", auction.AuctionID, err)
		}
		return model.Auction{}, fmt.Errorf("update auction %s: stored version %d, submitted %d: %w",
			auction.AuctionID, stored, auction.Version, auctionerrors.ErrVersionConflict)
	}

	auction.Version++
	return auction, nil
}

// Bids

const selectBidsQuery = `
	SELECT bid_id, auction_id, bidder_id, amount, created_at
	FROM bids
	WHERE auction_id = $1
	ORDER BY created_at ASC, bid_id ASC`

func (s *Store) BidsForAuction(auctionID string) ([]model.Bid, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := s.auctionExists(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}

	rows, err := s.pool.Query(ctx, selectBidsQuery, auctionID)
	if err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	bids, err := collectBids(rows)
	if err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}
	if len(bids) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	return bids, nil
}

const selectBidderBidsQuery = `
	SELECT bid_id, auction_id, bidder_id, amount, created_at
	FROM bids
	WHERE auction_id = $1 AND bidder_id = $2
	ORDER BY created_at ASC, bid_id ASC`

func (s *Store) BidsForBidder(auctionID, bidderID string) ([]model.Bid, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := s.auctionExists(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}

	rows, err := s.pool.Query(ctx, selectBidderBidsQuery, auctionID, bidderID)
	if err != nil {
		return nil, fmt.Errorf("get bids for bidder %s on auction %s: %w", bidderID, auctionID, err)
	}
	defer rows.Close()

	bids, err := collectBids(rows)
	if err != nil {
		return nil, fmt.Errorf("get bids for bidder %s on auction %s: %w", bidderID, auctionID, err)
	}
	if len(bids) == 0 {
		return nil, fmt.Errorf("get bids for bidder %s on auction %s: %w", bidderID, auctionID, auctionerrors.ErrBidderNoBids)
	}
	return bids, nil
}

// The ORDER BY is the settlement order: amount first, earlier bids break
// ties, the bid id makes it total.
const selectWinningBidQuery = `
	SELECT bid_id, auction_id, bidder_id, amount, created_at
	FROM bids
	WHERE auction_id = $1
	ORDER BY amount DESC, created_at ASC, bid_id ASC
	LIMIT 1`

func (s *Store) WinningBid(auctionID string) (model.Bid, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := s.auctionExists(ctx, auctionID); err != nil {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, err)
	}

	bid, err := scanBid(s.pool.QueryRow(ctx, selectWinningBidQuery, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
		}
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, err)
	}
	return bid, nil
}

const selectBidderAuctionsQuery = `
	SELECT DISTINCT a.auction_id, a.item_ref, a.seller_id, a.start_price, a.start_time, a.end_time,
	       a.status, a.sealed_bidding, a.high_bid_id, a.high_bid_amount, a.bid_count,
	       a.winner_id, a.winning_bid_id, a.winning_amount, a.settled_at,
	       a.version, a.event_seq, a.created_at
	FROM auctions a
	JOIN bids b ON b.auction_id = a.auction_id
	WHERE b.bidder_id = $1
	ORDER BY a.auction_id ASC`

func (s *Store) AuctionsForBidder(bidderID string) ([]model.Auction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, selectBidderAuctionsQuery, bidderID)
	if err != nil {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, err)
	}
	defer rows.Close()

	auctions, err := collectAuctions(rows)
	if err != nil {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, err)
	}
	if len(auctions) == 0 {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, auctionerrors.ErrBidderNoBids)
	}
	return auctions, nil
}

const selectDueAuctionsQuery = `
	SELECT auction_id, item_ref, seller_id, start_price, start_time, end_time,
	       status, sealed_bidding, high_bid_id, high_bid_amount, bid_count,
	       winner_id, winning_bid_id, winning_amount, settled_at,
	       version, event_seq, created_at
	FROM auctions
	WHERE (status = 'draft' AND start_time <= $1)
	   OR (status = 'active' AND end_time <= $1)
	ORDER BY auction_id ASC`

func (s *Store) DueAuctions(now time.Time) ([]model.Auction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, selectDueAuctionsQuery, now)
	if err != nil {
		return nil, fmt.Errorf("get due auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := collectAuctions(rows)
	if err != nil {
		return nil, fmt.Errorf("get due auctions: %w", err)
	}
	return auctions, nil
}

// Helpers

func (s *Store) auctionExists(ctx context.Context, auctionID string) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM auctions WHERE auction_id = $1`, auctionID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return auctionerrors.ErrAuctionNotFound
	}
	return err
}

type commandTagExecutor interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanAuction(row pgx.Row) (model.Auction, error) {
	auction := model.Auction{}
	err := row.Scan(
		&auction.AuctionID,
		&auction.ItemRef,
		&auction.SellerID,
		&auction.StartPrice,
		&auction.StartTime,
		&auction.EndTime,
		&auction.Status,
		&auction.SealedBidding,
		&auction.HighBidID,
		&auction.HighBidAmount,
		&auction.BidCount,
		&auction.WinnerID,
		&auction.WinningBidID,
		&auction.WinningAmount,
		&auction.SettledAt,
		&auction.Version,
		&auction.EventSeq,
		&auction.CreatedAt,
	)
	if err != nil {
		return model.Auction{}, err
	}
	return auction, nil
}

func scanBid(row pgx.Row) (model.Bid, error) {
	bid := model.Bid{}
	err := row.Scan(
		&bid.BidID,
		&bid.AuctionID,
		&bid.BidderID,
		&bid.Amount,
		&bid.CreatedAt,
	)
	if err != nil {
		return model.Bid{}, err
	}
	return bid, nil
}

func collectAuctions(rows pgx.Rows) ([]model.Auction, error) {
	var auctions []model.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, auction)
	}
	return auctions, rows.Err()
}

func collectBids(rows pgx.Rows) ([]model.Bid, error) {
	var bids []model.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}
