package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/market"
)

// Recorder drains market events into Postgres in batches. It runs
// independently of the market core; a stalled database never blocks an
// operation, it only delays the audit trail.
type Recorder struct {
	writer       *Writer
	input        <-chan market.Event
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
}

// NewRecorder returns a recorder reading from input.
func NewRecorder(
	db *sql.DB,
	input <-chan market.Event,
	batchSize int,
	flushTimeout time.Duration,
	log zerolog.Logger,
) *Recorder {
	return &Recorder{
		writer:       NewWriter(db),
		input:        input,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          log,
	}
}

// Run batches incoming events and flushes when the batch fills or the
// flush timeout lapses. Blocks until ctx is cancelled or input closes; the
// remaining batch is flushed on the way out.
func (r *Recorder) Run(ctx context.Context) error {
	batch := make([]EventRow, 0, r.batchSize)
	timer := time.NewTimer(r.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flush(context.Background(), batch)
			return ctx.Err()

		case evt, ok := <-r.input:
			if !ok {
				r.flush(context.Background(), batch)
				return nil
			}
			row, err := eventToRow(evt)
			if err != nil {
				r.log.Warn().Err(err).Str("event", string(evt.Type)).Msg("event marshal failed, dropping")
				continue
			}
			batch = append(batch, row)
			if len(batch) >= r.batchSize {
				r.flush(ctx, batch)
				batch = batch[:0]
				timer.Reset(r.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				r.flush(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(r.flushTimeout)
		}
	}
}

func (r *Recorder) flush(ctx context.Context, batch []EventRow) {
	if len(batch) == 0 {
		return
	}
	if err := r.writer.WriteEventBatch(ctx, batch); err != nil {
		r.log.Error().Err(err).Int("events", len(batch)).Msg("event batch write failed")
	}
}

func eventToRow(evt market.Event) (EventRow, error) {
	payload, err := MarshalPayload(evt.Payload)
	if err != nil {
		return EventRow{}, err
	}
	return EventRow{
		ID:        evt.ID.String(),
		EventType: string(evt.Type),
		Market:    evt.Market,
		Payload:   payload,
		Time:      evt.Time,
	}, nil
}

// SyncReceipts upserts the market's receipts so the stored rows track
// settlement and escrow release.
func (r *Recorder) SyncReceipts(ctx context.Context, m *market.Market) error {
	receipts := m.Receipts()
	rows := make([]ReceiptRow, 0, len(receipts))
	for _, rc := range receipts {
		rows = append(rows, ReceiptRow{
			Market:           m.Address().Hex(),
			ReceiptID:        int64(rc.ID),
			Liquidator:       rc.Liquidator.Hex(),
			Liquidatee:       rc.Liquidatee.Hex(),
			Price:            rc.Price.String(),
			EscrowedAmount:   rc.EscrowedAmount.String(),
			AmountLiquidated: rc.AmountLiquidated.String(),
			Side:             rc.Side,
			Time:             rc.Time,
			Released:         rc.Released,
			Settled:          rc.Settled,
		})
	}
	return r.writer.UpsertReceipts(ctx, rows)
}

// SyncFundingRates appends the newest funding entries of both histories.
func (r *Recorder) SyncFundingRates(ctx context.Context, m *market.Market) error {
	funding := m.LatestFundingRate()
	insurance := m.LatestInsuranceFundingRate()
	rows := []FundingRateRow{
		{
			Market:            m.Address().Hex(),
			History:           "funding",
			Index:             int64(funding.Index),
			Timestamp:         funding.Timestamp,
			InstantaneousRate: funding.InstantaneousRate.String(),
			CumulativeRate:    funding.CumulativeRate.String(),
		},
		{
			Market:            m.Address().Hex(),
			History:           "insurance",
			Index:             int64(insurance.Index),
			Timestamp:         insurance.Timestamp,
			InstantaneousRate: insurance.InstantaneousRate.String(),
			CumulativeRate:    insurance.CumulativeRate.String(),
		},
	}
	return r.writer.WriteFundingBatch(ctx, rows)
}
