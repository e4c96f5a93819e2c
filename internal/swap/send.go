package swap

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/assets"
	"github.com/quantumauth-io/quantum-dex-client/internal/contracts"
	"github.com/quantumauth-io/quantum-dex-client/internal/gateway"
	"github.com/quantumauth-io/quantum-dex-client/internal/metrics"
	"github.com/quantumauth-io/quantum-dex-client/internal/session"
)

// Sender transfers native currency or an ERC20 token from the session account.
type Sender struct {
	sess   SessionView
	signer Signer
}

func NewSender(sess SessionView, signer Signer) *Sender {
	return &Sender{sess: sess, signer: signer}
}

type Transfer struct {
	ChainID int64          `json:"chainId"`
	Asset   common.Address `json:"asset"`
	To      common.Address `json:"to"`
	Amount  *big.Int       `json:"amount"`
	Tx      common.Hash    `json:"tx"`
}

// Send transfers amount of asset to the recipient and waits for the receipt.
func (s *Sender) Send(ctx context.Context, asset, to common.Address, amount *big.Int) (Transfer, error) {
	t, err := s.send(ctx, asset, to, amount)
	metrics.Sends.WithLabelValues(metrics.Outcome(err, classLabel)).Inc()
	return t, err
}

func (s *Sender) send(ctx context.Context, asset, to common.Address, amount *big.Int) (Transfer, error) {
	snap := s.sess.Snapshot()
	if snap.State != session.Connected {
		return Transfer{}, apperr.Newf(apperr.ErrNotConnected, "send")
	}
	if amount == nil || amount.Sign() <= 0 {
		return Transfer{}, apperr.Newf(apperr.ErrInvalidArgument, "send: amount must be positive")
	}
	if to == (common.Address{}) {
		return Transfer{}, apperr.Newf(apperr.ErrInvalidArgument, "send: recipient is the zero address")
	}

	t := Transfer{ChainID: snap.ChainID, Asset: asset, To: to, Amount: new(big.Int).Set(amount)}

	req := gateway.TxRequest{From: snap.Address, To: to, Value: amount, Label: "Send"}
	if !assets.IsNative(asset) {
		data, err := contracts.PackTransfer(to, amount)
		if err != nil {
			return t, apperr.Wrap(err, apperr.ErrSendFailed, "send: pack transfer")
		}
		req = gateway.TxRequest{From: snap.Address, To: asset, Data: data, Label: "Send token"}
	}

	hash, err := sendAndWait(ctx, s.signer, req)
	t.Tx = hash
	if err != nil {
		return t, apperr.Mark(err, apperr.ErrSendFailed)
	}

	log.Info("transfer confirmed", "chainId", snap.ChainID, "asset", asset.Hex(), "to", to.Hex(), "amount", amount.String(), "tx", hash.Hex())
	return t, nil
}
