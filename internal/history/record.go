package history

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Status int

const (
	Pending Status = iota
	Confirmed
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Direction int

const (
	Sent Direction = iota
	Received
	Swap
)

func (d Direction) String() string {
	switch d {
	case Sent:
		return "sent"
	case Received:
		return "received"
	case Swap:
		return "swap"
	default:
		return "unknown"
	}
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Record is one transaction touching the observed address. To is nil for
// contract creation.
type Record struct {
	Hash           common.Hash     `json:"hash"`
	From           common.Address  `json:"from"`
	To             *common.Address `json:"to"`
	Value          *big.Int        `json:"value"`
	ValueNative    string          `json:"valueNative"`
	BlockNumber    uint64          `json:"blockNumber"`
	TxIndex        uint            `json:"txIndex"`
	BlockTimestamp uint64          `json:"blockTimestamp"`
	Status         Status          `json:"status"`
	Direction      Direction       `json:"direction"`
}
