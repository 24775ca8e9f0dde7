// Package persistence writes the market's audit trail to Postgres: the
// outbound event log, liquidation receipts, and funding-rate history.
// Writes use multi-row INSERT; switch to pgx CopyFrom if throughput ever
// demands it.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// EventRow is a row in perp.events.
type EventRow struct {
	ID        string
	EventType string
	Market    string
	Payload   []byte // JSON-encoded event payload
	Time      int64
}

// ReceiptRow is a row in perp.receipts. Rows are upserted: settlement and
// escrow release mutate an existing receipt.
type ReceiptRow struct {
	Market           string
	ReceiptID        int64
	Liquidator       string
	Liquidatee       string
	Price            string // WAD decimal string
	EscrowedAmount   string
	AmountLiquidated string
	Side             string
	Time             int64
	Released         bool
	Settled          bool
}

// FundingRateRow is a row in perp.funding_rates. History is "funding" or
// "insurance".
type FundingRateRow struct {
	Market            string
	History           string
	Index             int64
	Timestamp         int64
	InstantaneousRate string
	CumulativeRate    string
}

// Writer persists rows to Postgres.
type Writer struct {
	db *sql.DB
}

// NewWriter returns a writer over db.
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// WriteEventBatch inserts a batch of event rows. Idempotent on event id.
func (w *Writer) WriteEventBatch(ctx context.Context, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO perp.events (id, event_type, market, payload, time) VALUES `
	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*5)
	for i, e := range events {
		base := i * 5
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5))
		args = append(args, e.ID, e.EventType, e.Market, e.Payload, e.Time)
	}
	query += strings.Join(values, ", ")
	query += " ON CONFLICT (id) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

// UpsertReceipts writes receipt rows, replacing the mutable columns on
// conflict so settlement and escrow release land on the stored row.
func (w *Writer) UpsertReceipts(ctx context.Context, receipts []ReceiptRow) error {
	if len(receipts) == 0 {
		return nil
	}

	query := `INSERT INTO perp.receipts
		(market, receipt_id, liquidator, liquidatee, price, escrowed_amount, amount_liquidated, side, time, released, settled)
		VALUES `
	values := make([]string, 0, len(receipts))
	args := make([]interface{}, 0, len(receipts)*11)
	for i, r := range receipts {
		base := i * 11
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
			base+7, base+8, base+9, base+10, base+11,
		))
		args = append(args,
			r.Market, r.ReceiptID, r.Liquidator, r.Liquidatee,
			r.Price, r.EscrowedAmount, r.AmountLiquidated, r.Side,
			r.Time, r.Released, r.Settled,
		)
	}
	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (market, receipt_id) DO UPDATE SET
		escrowed_amount = EXCLUDED.escrowed_amount,
		released = EXCLUDED.released,
		settled = EXCLUDED.settled`

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

// WriteFundingBatch inserts funding-rate rows. Entries are append-only, so
// conflicts are replays and skipped.
func (w *Writer) WriteFundingBatch(ctx context.Context, rates []FundingRateRow) error {
	if len(rates) == 0 {
		return nil
	}

	query := `INSERT INTO perp.funding_rates
		(market, history, index, timestamp, instantaneous_rate, cumulative_rate)
		VALUES `
	values := make([]string, 0, len(rates))
	args := make([]interface{}, 0, len(rates)*6)
	for i, r := range rates {
		base := i * 6
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6))
		args = append(args,
			r.Market, r.History, r.Index, r.Timestamp,
			r.InstantaneousRate, r.CumulativeRate,
		)
	}
	query += strings.Join(values, ", ")
	query += " ON CONFLICT (market, history, index) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

// MarshalPayload serializes an event payload to JSON for storage.
func MarshalPayload(payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}
