package market

import (
	"math/big"

	"github.com/google/uuid"
)

// EventType labels outbound events for downstream consumers.
type EventType string

const (
	EventTradeSettled         EventType = "trade_settled"
	EventDeposit              EventType = "deposit"
	EventWithdrawal           EventType = "withdrawal"
	EventFundingRate          EventType = "funding_rate"
	EventLiquidationTriggered EventType = "liquidation_triggered"
	EventReceiptClaimed       EventType = "receipt_claimed"
	EventEscrowReleased       EventType = "escrow_released"
	EventDeleveraging         EventType = "deleveraging"
	EventPoolDeposit          EventType = "pool_deposit"
	EventPoolWithdrawal       EventType = "pool_withdrawal"
)

// Event is an outbound notification of a completed state change. Events are
// informational: delivery is best-effort and consumers can rebuild from the
// query surface.
type Event struct {
	ID      uuid.UUID   `json:"id"`
	Type    EventType   `json:"type"`
	Market  string      `json:"market"`
	Time    int64       `json:"time"`
	Payload interface{} `json:"payload"`
}

// TradeSettledPayload describes one matched and settled order pair.
type TradeSettledPayload struct {
	Long      string   `json:"long"`
	Short     string   `json:"short"`
	Price     *big.Int `json:"price"`
	Amount    *big.Int `json:"amount"`
	LongHash  string   `json:"long_order"`
	ShortHash string   `json:"short_order"`
}

// LiquidationPayload describes a created or settled liquidation receipt.
type LiquidationPayload struct {
	ReceiptID  uint64   `json:"receipt_id"`
	Liquidator string   `json:"liquidator"`
	Liquidatee string   `json:"liquidatee"`
	Amount     *big.Int `json:"amount"`
	Escrowed   *big.Int `json:"escrowed"`
	Price      *big.Int `json:"price"`
}

// FundingRatePayload describes the newest funding entry.
type FundingRatePayload struct {
	Index             uint64   `json:"index"`
	InstantaneousRate *big.Int `json:"instantaneous_rate"`
	CumulativeRate    *big.Int `json:"cumulative_rate"`
}

// DeleveragingPayload describes a socialized liquidation shortfall.
type DeleveragingPayload struct {
	Shortfall *big.Int `json:"shortfall"`
	Side      string   `json:"side"`
}

// TransferPayload describes a deposit or withdrawal.
type TransferPayload struct {
	Account string   `json:"account"`
	Amount  *big.Int `json:"amount"`
}

// emit sends an event without blocking; the single-threaded core never
// stalls on a slow consumer.
func (m *Market) emit(t EventType, now int64, payload interface{}) {
	if m.events == nil {
		return
	}
	evt := Event{
		ID:      uuid.New(),
		Type:    t,
		Market:  m.addr.Hex(),
		Time:    now,
		Payload: payload,
	}
	select {
	case m.events <- evt:
	default:
		m.log.Warn().Str("event", string(t)).Msg("event channel full, dropping")
	}
}
