package http

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/quantumauth-io/quantum-dex-client/internal/networks"
	"github.com/quantumauth-io/quantum-dex-client/internal/swap"
)

// chainIDParam accepts 11155111, "11155111" or "0xaa36a7".
type chainIDParam int64

func (p *chainIDParam) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		id, err := networks.ParseChainID(s)
		if err != nil {
			return err
		}
		*p = chainIDParam(id)
		return nil
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*p = chainIDParam(id)
	return nil
}

type switchNetworkReq struct {
	ChainID chainIDParam `json:"chainId" binding:"required"`
}

type quoteReq struct {
	From   string `json:"from"   binding:"required"`
	To     string `json:"to"     binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type executeReq struct {
	From            string  `json:"from"   binding:"required"`
	To              string  `json:"to"     binding:"required"`
	Amount          string  `json:"amount" binding:"required"`
	SlippageBps     *uint32 `json:"slippageBps,omitempty"`
	DeadlineSeconds int64   `json:"deadlineSeconds,omitempty"`
}

type sendReq struct {
	Asset  string `json:"asset"  binding:"required"`
	To     string `json:"to"     binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// quoteRes carries raw amounts plus display strings in each asset's units.
type quoteRes struct {
	swap.Route
	AmountInDisplay      string `json:"amountInDisplay"`
	QuotedOutputDisplay  string `json:"quotedOutputDisplay"`
	MinimumOutputDisplay string `json:"minimumOutputDisplay"`
}

type executeRes struct {
	swap.Execution
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

type sendRes struct {
	swap.Transfer
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

type errorRes struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// executeErrorRes carries the hashes of transactions a failed swap already
// submitted.
type executeErrorRes struct {
	errorRes
	Execution *swap.Execution `json:"execution,omitempty"`
}
