// Package query exposes read-only views over the market for the HTTP/JSON
// surface. Views report committed state; funding accrued since an account's
// last touch is not projected forward.
package query

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/market"
)

// AccountView is the JSON shape of one account.
type AccountView struct {
	Address                 string `json:"address"`
	Quote                   string `json:"quote"`
	Base                    string `json:"base"`
	TotalLeveragedValue     string `json:"total_leveraged_value"`
	LastUpdatedFundingIndex uint64 `json:"last_updated_funding_index"`
}

// PoolView is the JSON shape of the insurance pool.
type PoolView struct {
	BufferCollateral string `json:"buffer_collateral"`
	PublicCollateral string `json:"public_collateral"`
	Holdings         string `json:"holdings"`
	Target           string `json:"target"`
	PoolTokenSupply  string `json:"pool_token_supply"`
}

// ReceiptView is the JSON shape of a liquidation receipt.
type ReceiptView struct {
	ID               uint64 `json:"id"`
	Liquidator       string `json:"liquidator"`
	Liquidatee       string `json:"liquidatee"`
	Price            string `json:"price"`
	EscrowedAmount   string `json:"escrowed_amount"`
	AmountLiquidated string `json:"amount_liquidated"`
	Side             string `json:"side"`
	Time             int64  `json:"time"`
	Released         bool   `json:"released"`
	Settled          bool   `json:"settled"`
}

// FundingRateView is the JSON shape of a funding history entry.
type FundingRateView struct {
	Index             uint64 `json:"index"`
	Timestamp         int64  `json:"timestamp"`
	InstantaneousRate string `json:"instantaneous_rate"`
	CumulativeRate    string `json:"cumulative_rate"`
}

// MarketView is the JSON shape of the market summary.
type MarketView struct {
	Address             string `json:"address"`
	FairPrice           string `json:"fair_price"`
	TotalLeveragedValue string `json:"total_leveraged_value"`
	FeesCollected       string `json:"fees_collected"`
}

// Service serves views over one market.
type Service struct {
	market *market.Market
}

// NewService returns a query service over m.
func NewService(m *market.Market) *Service {
	return &Service{market: m}
}

// Account returns the committed state of the given account.
func (s *Service) Account(addr string) (AccountView, error) {
	if !common.IsHexAddress(addr) {
		return AccountView{}, fmt.Errorf("invalid address %q", addr)
	}
	a := s.market.Account(common.HexToAddress(addr))
	return AccountView{
		Address:                 common.HexToAddress(addr).Hex(),
		Quote:                   a.Quote.String(),
		Base:                    a.Base.String(),
		TotalLeveragedValue:     a.TotalLeveragedValue.String(),
		LastUpdatedFundingIndex: a.LastUpdatedFundingIndex,
	}, nil
}

// Pool returns the insurance pool state.
func (s *Service) Pool() PoolView {
	p := s.market.Pool()
	return PoolView{
		BufferCollateral: p.BufferCollateral.String(),
		PublicCollateral: p.PublicCollateral.String(),
		Holdings:         p.Holdings.String(),
		Target:           p.Target.String(),
		PoolTokenSupply:  p.PoolTokenSupply.String(),
	}
}

// Receipts returns all liquidation receipts in issue order.
func (s *Service) Receipts() []ReceiptView {
	receipts := s.market.Receipts()
	out := make([]ReceiptView, 0, len(receipts))
	for _, r := range receipts {
		out = append(out, ReceiptView{
			ID:               r.ID,
			Liquidator:       r.Liquidator.Hex(),
			Liquidatee:       r.Liquidatee.Hex(),
			Price:            r.Price.String(),
			EscrowedAmount:   r.EscrowedAmount.String(),
			AmountLiquidated: r.AmountLiquidated.String(),
			Side:             r.Side,
			Time:             r.Time,
			Released:         r.Released,
			Settled:          r.Settled,
		})
	}
	return out
}

// FundingRate returns the newest market funding entry.
func (s *Service) FundingRate() FundingRateView {
	e := s.market.LatestFundingRate()
	return FundingRateView{
		Index:             e.Index,
		Timestamp:         e.Timestamp,
		InstantaneousRate: e.InstantaneousRate.String(),
		CumulativeRate:    e.CumulativeRate.String(),
	}
}

// InsuranceFundingRate returns the newest insurance funding entry.
func (s *Service) InsuranceFundingRate() FundingRateView {
	e := s.market.LatestInsuranceFundingRate()
	return FundingRateView{
		Index:             e.Index,
		Timestamp:         e.Timestamp,
		InstantaneousRate: e.InstantaneousRate.String(),
		CumulativeRate:    e.CumulativeRate.String(),
	}
}

// Market returns the market summary at time now.
func (s *Service) Market(now int64) (MarketView, error) {
	fair, err := s.market.FairPrice(now)
	if err != nil {
		return MarketView{}, err
	}
	return MarketView{
		Address:             s.market.Address().Hex(),
		FairPrice:           fair.String(),
		TotalLeveragedValue: s.market.TotalLeveragedValue().String(),
		FeesCollected:       s.market.FeesCollected().String(),
	}, nil
}
