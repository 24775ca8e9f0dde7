package persistence_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/persistence"
	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/testutil"
)

// These tests need a running Postgres; they skip when none is reachable.

func setupWriter(t *testing.T) (*persistence.Writer, *sql.DB, func()) {
	t.Helper()
	db, cleanup := testutil.SetupTestDB(t)

	migrator := persistence.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := migrator.Up(context.Background()); err != nil {
		cleanup()
		t.Fatalf("migrate: %v", err)
	}
	return persistence.NewWriter(db), db, cleanup
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// ============================================================================
// Test: event log
// ============================================================================

func TestWriteEventBatch_Idempotent(t *testing.T) {
	w, db, cleanup := setupWriter(t)
	defer cleanup()
	ctx := context.Background()

	events := []persistence.EventRow{
		{ID: uuid.NewString(), EventType: "deposit", Market: "0xaa", Payload: []byte(`{"amount":"1"}`), Time: 100},
		{ID: uuid.NewString(), EventType: "trade_settled", Market: "0xaa", Payload: []byte(`{}`), Time: 101},
	}
	if err := w.WriteEventBatch(ctx, events); err != nil {
		t.Fatalf("WriteEventBatch: %v", err)
	}
	if got := countRows(t, db, "perp.events"); got != 2 {
		t.Errorf("events = %d, want 2", got)
	}

	// Replaying the same batch must not duplicate rows.
	if err := w.WriteEventBatch(ctx, events); err != nil {
		t.Fatalf("replay WriteEventBatch: %v", err)
	}
	if got := countRows(t, db, "perp.events"); got != 2 {
		t.Errorf("events after replay = %d, want 2", got)
	}
}

func TestWriteEventBatch_Empty(t *testing.T) {
	w, _, cleanup := setupWriter(t)
	defer cleanup()
	if err := w.WriteEventBatch(context.Background(), nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}

// ============================================================================
// Test: receipts
// ============================================================================

func TestUpsertReceipts_UpdatesMutableColumns(t *testing.T) {
	w, db, cleanup := setupWriter(t)
	defer cleanup()
	ctx := context.Background()

	row := persistence.ReceiptRow{
		Market:           "0xaa",
		ReceiptID:        0,
		Liquidator:       "0x01",
		Liquidatee:       "0x02",
		Price:            "950000000000000000000",
		EscrowedAmount:   "240000000000000000000",
		AmountLiquidated: "10000000000000000000",
		Side:             "long",
		Time:             100,
	}
	if err := w.UpsertReceipts(ctx, []persistence.ReceiptRow{row}); err != nil {
		t.Fatalf("UpsertReceipts: %v", err)
	}

	// Settlement shrinks the escrow; the same key must update in place.
	row.EscrowedAmount = "140000000000000000000"
	row.Settled = true
	if err := w.UpsertReceipts(ctx, []persistence.ReceiptRow{row}); err != nil {
		t.Fatalf("upsert settled: %v", err)
	}
	if got := countRows(t, db, "perp.receipts"); got != 1 {
		t.Fatalf("receipts = %d, want 1", got)
	}
	var settled bool
	var escrow string
	err := db.QueryRow(
		"SELECT settled, escrowed_amount FROM perp.receipts WHERE market = $1 AND receipt_id = $2",
		row.Market, row.ReceiptID,
	).Scan(&settled, &escrow)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !settled {
		t.Error("settled = false, want true")
	}
	if escrow != "140000000000000000000" {
		t.Errorf("escrow = %s, want 140000000000000000000", escrow)
	}
}

// ============================================================================
// Test: funding rates
// ============================================================================

func TestWriteFundingBatch_SkipsReplays(t *testing.T) {
	w, db, cleanup := setupWriter(t)
	defer cleanup()
	ctx := context.Background()

	rates := []persistence.FundingRateRow{
		{Market: "0xaa", History: "funding", Index: 1, Timestamp: 3600, InstantaneousRate: "0", CumulativeRate: "0"},
		{Market: "0xaa", History: "insurance", Index: 1, Timestamp: 3600, InstantaneousRate: "36523000000000", CumulativeRate: "36523000000000"},
	}
	if err := w.WriteFundingBatch(ctx, rates); err != nil {
		t.Fatalf("WriteFundingBatch: %v", err)
	}
	if err := w.WriteFundingBatch(ctx, rates); err != nil {
		t.Fatalf("replay WriteFundingBatch: %v", err)
	}
	if got := countRows(t, db, "perp.funding_rates"); got != 2 {
		t.Errorf("funding rows = %d, want 2", got)
	}
}
