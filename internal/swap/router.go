// Package swap quotes and executes swaps through a chain's Uniswap-V2 style
// router, and sends plain native or token transfers.
package swap

import (
	"context"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/assets"
	"github.com/quantumauth-io/quantum-dex-client/internal/constants"
	"github.com/quantumauth-io/quantum-dex-client/internal/contracts"
	"github.com/quantumauth-io/quantum-dex-client/internal/gateway"
	"github.com/quantumauth-io/quantum-dex-client/internal/ledger"
	"github.com/quantumauth-io/quantum-dex-client/internal/metrics"
	"github.com/quantumauth-io/quantum-dex-client/internal/session"
	"github.com/quantumauth-io/quantum-dex-client/internal/units"
)

// SessionView is the read side of session.Manager.
type SessionView interface {
	Snapshot() session.Snapshot
	IsCurrent(st session.Stamp) bool
}

// Signer submits transactions. gateway.Gateway implements it.
type Signer interface {
	Send(ctx context.Context, req gateway.TxRequest) (gateway.PendingTx, error)
}

type Config struct {
	DefaultSlippageBps uint32 `mapstructure:"defaultSlippageBps"`
	DeadlineSeconds    int64  `mapstructure:"deadlineSeconds"`

	// RevokeOnFailure resets the router allowance to zero when a swap fails
	// after its approval was mined.
	RevokeOnFailure bool `mapstructure:"revokeOnFailure"`
}

func (c Config) withDefaults() Config {
	if c.DeadlineSeconds <= 0 {
		c.DeadlineSeconds = constants.DefaultDeadlineSeconds
	}
	return c
}

// Route is a priced path. Never persisted; a new quote is taken per request.
type Route struct {
	ChainID       int64            `json:"chainId"`
	From          common.Address   `json:"from"`
	To            common.Address   `json:"to"`
	Path          []common.Address `json:"path"`
	AmountIn      *big.Int         `json:"amountIn"`
	QuotedOutput  *big.Int         `json:"quotedOutput"`
	MinimumOutput *big.Int         `json:"minimumOutput"`
	SlippageBps   uint32           `json:"slippageBps"`
}

type ExecuteRequest struct {
	From            common.Address
	To              common.Address
	AmountIn        *big.Int
	SlippageBps     *uint32
	DeadlineSeconds int64
}

type Execution struct {
	ID         string       `json:"id"`
	Route      Route        `json:"route"`
	Deadline   int64        `json:"deadline"`
	ApprovalTx *common.Hash `json:"approvalTx,omitempty"`
	SwapTx     common.Hash  `json:"swapTx"`
	// RevokeTx is set when a failed swap was followed by an allowance reset.
	RevokeTx *common.Hash `json:"revokeTx,omitempty"`
}

type Router struct {
	sess    SessionView
	signer  Signer
	readers ledger.ReaderSource
	assets  *assets.Registry
	cfg     Config

	now func() time.Time
}

func NewRouter(sess SessionView, signer Signer, readers ledger.ReaderSource, a *assets.Registry, cfg Config) *Router {
	return &Router{
		sess:    sess,
		signer:  signer,
		readers: readers,
		assets:  a,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
}

func (r *Router) Config() Config { return r.cfg }

// Quote prices amountIn of from in units of to on the session's chain. The
// route's MinimumOutput uses the default slippage.
func (r *Router) Quote(ctx context.Context, from, to common.Address, amountIn *big.Int) (Route, error) {
	snap := r.sess.Snapshot()
	if snap.State != session.Connected {
		return Route{}, apperr.Newf(apperr.ErrNotConnected, "swap: quote")
	}
	route, err := r.quote(ctx, snap.ChainID, from, to, amountIn, r.cfg.DefaultSlippageBps)
	metrics.SwapQuotes.WithLabelValues(metrics.Outcome(err, classLabel)).Inc()
	return route, err
}

func (r *Router) quote(ctx context.Context, chainID int64, from, to common.Address, amountIn *big.Int, bps uint32) (Route, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return Route{}, apperr.Newf(apperr.ErrInvalidArgument, "swap: amount must be positive")
	}

	ri, err := r.assets.Router(chainID)
	if err != nil {
		return Route{}, apperr.Mark(err, apperr.ErrQuoteUnavailable)
	}
	paths, err := ResolvePaths(ri, from, to)
	if err != nil {
		return Route{}, err
	}
	reader, err := r.readers.Reader(ctx, chainID)
	if err != nil {
		return Route{}, apperr.Mark(err, apperr.ErrQuoteUnavailable)
	}
	router := contracts.NewRouter(ri.Router, reader)

	path := paths.Primary
	amounts, err := router.GetAmountsOut(ctx, amountIn, path)
	if err != nil && paths.Fallback != nil {
		log.Info("direct pair not quotable, routing through wrapped native", "chainId", chainID, "error", err)
		path = paths.Fallback
		amounts, err = router.GetAmountsOut(ctx, amountIn, path)
	}
	if err != nil {
		return Route{}, apperr.Wrap(err, apperr.ErrQuoteUnavailable, "swap: getAmountsOut")
	}

	out := amounts[len(amounts)-1]
	if out.Sign() <= 0 {
		return Route{}, apperr.Newf(apperr.ErrQuoteUnavailable, "swap: router quoted zero output")
	}
	minOut, err := units.MinimumOutput(out, bps)
	if err != nil {
		return Route{}, apperr.Mark(err, apperr.ErrInvalidArgument)
	}

	return Route{
		ChainID:       chainID,
		From:          from,
		To:            to,
		Path:          path,
		AmountIn:      new(big.Int).Set(amountIn),
		QuotedOutput:  out,
		MinimumOutput: minOut,
		SlippageBps:   bps,
	}, nil
}

// Execute quotes and then swaps. Token sources are approved first and the
// approval must be mined before the swap is submitted. The returned
// Execution is populated as far as the sequence got, also on error.
func (r *Router) Execute(ctx context.Context, req ExecuteRequest) (Execution, error) {
	exec, err := r.execute(ctx, req)
	metrics.SwapExecutions.WithLabelValues(metrics.Outcome(err, classLabel)).Inc()
	if err != nil {
		log.Warn("swap failed", "id", exec.ID, "error", err)
	}
	return exec, err
}

func (r *Router) execute(ctx context.Context, req ExecuteRequest) (Execution, error) {
	exec := Execution{ID: uuid.NewString()}

	snap := r.sess.Snapshot()
	if snap.State != session.Connected {
		return exec, apperr.Newf(apperr.ErrNotConnected, "swap: execute")
	}
	stamp := snap.Stamp()

	bps := r.cfg.DefaultSlippageBps
	if req.SlippageBps != nil {
		bps = *req.SlippageBps
	}
	if bps > constants.MaxSlippageBps {
		return exec, apperr.Newf(apperr.ErrInvalidArgument, "swap: slippage %d bps is above %d", bps, constants.MaxSlippageBps)
	}
	deadlineSecs := req.DeadlineSeconds
	if deadlineSecs <= 0 {
		deadlineSecs = r.cfg.DeadlineSeconds
	}

	route, err := r.quote(ctx, snap.ChainID, req.From, req.To, req.AmountIn, bps)
	if err != nil {
		return exec, err
	}
	exec.Route = route
	exec.Deadline = r.now().Unix() + deadlineSecs
	deadline := big.NewInt(exec.Deadline)

	ri, err := r.assets.Router(snap.ChainID)
	if err != nil {
		return exec, err
	}
	owner := snap.Address

	log.Info("swap starting",
		"id", exec.ID,
		"chainId", snap.ChainID,
		"path", pathHex(route.Path),
		"amountIn", route.AmountIn.String(),
		"quoted", route.QuotedOutput.String(),
		"minOut", route.MinimumOutput.String(),
		"deadline", exec.Deadline,
	)

	if assets.IsNative(req.From) {
		data, err := contracts.PackSwapExactETHForTokens(route.MinimumOutput, route.Path, owner, deadline)
		if err != nil {
			return exec, apperr.Wrap(err, apperr.ErrSwapFailed, "swap: pack")
		}
		hash, err := r.sendAndWait(ctx, gateway.TxRequest{From: owner, To: ri.Router, Value: route.AmountIn, Data: data, Label: "Swap"})
		exec.SwapTx = hash
		if err != nil {
			return exec, apperr.Mark(err, apperr.ErrSwapFailed)
		}
		return exec, nil
	}

	approveData, err := contracts.PackApprove(ri.Router, route.AmountIn)
	if err != nil {
		return exec, apperr.Wrap(err, apperr.ErrApprovalFailed, "swap: pack approve")
	}
	approveHash, err := r.sendAndWait(ctx, gateway.TxRequest{From: owner, To: req.From, Data: approveData, Label: "Approve"})
	if approveHash != (common.Hash{}) {
		exec.ApprovalTx = &approveHash
	}
	if err != nil {
		return exec, apperr.Mark(err, apperr.ErrApprovalFailed)
	}

	if !r.sess.IsCurrent(stamp) {
		metrics.StaleResultsDropped.WithLabelValues("swap").Inc()
		return exec, apperr.Newf(apperr.ErrStaleSession, "swap: session changed after approval")
	}
	if err := r.checkAllowance(ctx, snap.ChainID, req.From, owner, ri.Router, route.AmountIn); err != nil {
		return exec, err
	}

	var swapData []byte
	if assets.IsNative(req.To) {
		swapData, err = contracts.PackSwapExactTokensForETH(route.AmountIn, route.MinimumOutput, route.Path, owner, deadline)
	} else {
		swapData, err = contracts.PackSwapExactTokensForTokens(route.AmountIn, route.MinimumOutput, route.Path, owner, deadline)
	}
	if err != nil {
		return exec, apperr.Wrap(err, apperr.ErrSwapFailed, "swap: pack")
	}

	hash, err := r.sendAndWait(ctx, gateway.TxRequest{From: owner, To: ri.Router, Data: swapData, Label: "Swap"})
	exec.SwapTx = hash
	if err != nil {
		err = apperr.Mark(err, apperr.ErrSwapFailed)
		if r.cfg.RevokeOnFailure && !errors.Is(err, context.Canceled) {
			exec.RevokeTx = r.revoke(ctx, owner, req.From, ri.Router)
		}
		return exec, err
	}

	log.Info("swap confirmed", "id", exec.ID, "tx", hash.Hex())
	return exec, nil
}

// checkAllowance confirms a mined approval left at least want for spender.
// A failed read is logged and the swap goes ahead.
func (r *Router) checkAllowance(ctx context.Context, chainID int64, token, owner, spender common.Address, want *big.Int) error {
	rd, err := r.readers.Reader(ctx, chainID)
	if err != nil {
		log.Warn("allowance check skipped", "token", token.Hex(), "error", err)
		return nil
	}
	got, err := contracts.NewERC20(token, rd).Allowance(ctx, owner, spender)
	if err != nil {
		log.Warn("allowance check skipped", "token", token.Hex(), "error", err)
		return nil
	}
	if got.Cmp(want) < 0 {
		return apperr.Newf(apperr.ErrApprovalFailed, "swap: allowance %s below %s after approval", got, want)
	}
	return nil
}

// revoke resets the router allowance. Failures are logged only.
func (r *Router) revoke(ctx context.Context, owner, token, router common.Address) *common.Hash {
	data, err := contracts.PackApprove(router, new(big.Int))
	if err != nil {
		return nil
	}
	hash, err := r.sendAndWait(ctx, gateway.TxRequest{From: owner, To: token, Data: data, Label: "Revoke approval"})
	if err != nil {
		log.Warn("allowance revoke failed, router allowance remains", "token", token.Hex(), "router", router.Hex(), "error", err)
		if hash == (common.Hash{}) {
			return nil
		}
	}
	return &hash
}

// sendAndWait submits req and waits for the receipt. A reverted receipt is
// an error. The hash is returned whenever the transaction was submitted.
func (r *Router) sendAndWait(ctx context.Context, req gateway.TxRequest) (common.Hash, error) {
	return sendAndWait(ctx, r.signer, req)
}

func sendAndWait(ctx context.Context, signer Signer, req gateway.TxRequest) (common.Hash, error) {
	ptx, err := signer.Send(ctx, req)
	if err != nil {
		return common.Hash{}, err
	}
	rcpt, err := ptx.Wait(ctx)
	if err != nil {
		return ptx.Hash, errors.Wrapf(err, "%s: waiting for %s", req.Label, ptx.Hash.Hex())
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return ptx.Hash, errors.Newf("%s: transaction %s reverted", req.Label, ptx.Hash.Hex())
	}
	return ptx.Hash, nil
}

func classLabel(err error) string { return string(apperr.ClassOf(err)) }

func pathHex(p []common.Address) []string {
	out := make([]string, len(p))
	for i, a := range p {
		out[i] = a.Hex()
	}
	return out
}
