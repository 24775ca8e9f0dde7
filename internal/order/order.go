// Package order defines the order model and the pure matching validator.
// Authenticity (signatures) is checked upstream; this package only decides
// business-rule validity of a candidate match.
package order

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Side is the direction of an order.
type Side uint8

const (
	Long Side = iota
	Short
)

func (s Side) String() string {
	if s == Long {
		return "long"
	}
	return "short"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// Order is immutable once created. Fill progress is tracked externally,
// keyed by the order hash.
type Order struct {
	Maker   common.Address
	Market  common.Address
	Price   *big.Int // unsigned WAD
	Amount  *big.Int // unsigned WAD
	Side    Side
	Expires int64 // unix seconds
	Created int64 // unix seconds
}

// Hash returns the keccak digest of the order's canonical encoding. Two
// orders with identical fields hash identically; the digest is the key for
// external fill tracking.
func (o *Order) Hash() common.Hash {
	buf := make([]byte, 0, 2*common.AddressLength+2*32+1+16)
	buf = append(buf, o.Maker.Bytes()...)
	buf = append(buf, o.Market.Bytes()...)
	buf = append(buf, common.BigToHash(o.Price).Bytes()...)
	buf = append(buf, common.BigToHash(o.Amount).Bytes()...)
	buf = append(buf, byte(o.Side))
	buf = appendInt64BE(buf, o.Expires)
	buf = appendInt64BE(buf, o.Created)
	return crypto.Keccak256Hash(buf)
}

func appendInt64BE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v>>56),
		byte(v>>48),
		byte(v>>40),
		byte(v>>32),
		byte(v>>24),
		byte(v>>16),
		byte(v>>8),
		byte(v),
	)
}
