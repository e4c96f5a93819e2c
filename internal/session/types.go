package session

import (
	"github.com/ethereum/go-ethereum/common"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is an immutable view of the wallet session. Address and ChainID
// are both set when State is Connected and both zero otherwise.
type Snapshot struct {
	Address common.Address `json:"address"`
	ChainID int64          `json:"chainId"`
	State   State          `json:"state"`
	Version uint64         `json:"version"`
}

func (s Snapshot) HasAddress() bool { return s.Address != (common.Address{}) }
func (s Snapshot) HasChain() bool   { return s.ChainID != 0 }

// Stamp is what derived operations capture before they start. A result is
// applied only if its stamp is still current when it completes.
type Stamp struct {
	Address common.Address
	ChainID int64
	Version uint64
}

func (s Snapshot) Stamp() Stamp {
	return Stamp{Address: s.Address, ChainID: s.ChainID, Version: s.Version}
}

func disconnected() Snapshot { return Snapshot{State: Disconnected} }

func connected(addr common.Address, chainID int64) Snapshot {
	return Snapshot{Address: addr, ChainID: chainID, State: Connected}
}
