package http

import (
	"context"
	"math/big"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/assets"
	"github.com/quantumauth-io/quantum-dex-client/internal/netstatus"
	"github.com/quantumauth-io/quantum-dex-client/internal/networks"
	"github.com/quantumauth-io/quantum-dex-client/internal/portfolio"
	"github.com/quantumauth-io/quantum-dex-client/internal/session"
	"github.com/quantumauth-io/quantum-dex-client/internal/swap"
	"github.com/quantumauth-io/quantum-dex-client/internal/units"
)

type SessionService interface {
	Snapshot() session.Snapshot
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SwitchNetwork(ctx context.Context, chainID int64) error
}

type PortfolioService interface {
	State() portfolio.State
	Refresh(ctx context.Context) error
}

type SwapService interface {
	Quote(ctx context.Context, from, to common.Address, amountIn *big.Int) (swap.Route, error)
	Execute(ctx context.Context, req swap.ExecuteRequest) (swap.Execution, error)
}

type SendService interface {
	Send(ctx context.Context, asset, to common.Address, amount *big.Int) (swap.Transfer, error)
}

type StatusSource interface {
	Status() netstatus.Status
}

// Deps are the services behind the UI API.
type Deps struct {
	Session   SessionService
	Portfolio PortfolioService
	Swaps     SwapService
	Sends     SendService
	Status    StatusSource
	Networks  *networks.Registry
	Assets    *assets.Registry
	Version   string
}

type Handler struct {
	session   SessionService
	portfolio PortfolioService
	swaps     SwapService
	sends     SendService
	status    StatusSource
	networks  *networks.Registry
	assets    *assets.Registry
	version   string
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		session:   d.Session,
		portfolio: d.Portfolio,
		swaps:     d.Swaps,
		sends:     d.Sends,
		status:    d.Status,
		networks:  d.Networks,
		assets:    d.Assets,
		version:   d.Version,
	}
}

// GET /api/health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{JSONKeyStatus: HTTPHealthStatusOKText, JSONKeyVersion: h.version})
}

// GET /api/networks
func (h *Handler) Networks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		JSONKeyNetworks: h.networks.List(),
		JSONKeyActive:   h.session.Snapshot().ChainID,
	})
}

// GET /api/session
func (h *Handler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// POST /api/session/connect
func (h *Handler) Connect(c *gin.Context) {
	if err := h.session.Connect(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// POST /api/session/disconnect
func (h *Handler) Disconnect(c *gin.Context) {
	if err := h.session.Disconnect(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// POST /api/session/network
func (h *Handler) SwitchNetwork(c *gin.Context) {
	var req switchNetworkReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.session.SwitchNetwork(c.Request.Context(), int64(req.ChainID)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// GET /api/portfolio
func (h *Handler) Portfolio(c *gin.Context) {
	c.JSON(http.StatusOK, h.portfolio.State())
}

// POST /api/portfolio/refresh
//
// A history failure still answers 200; the state carries historyError next to
// the fresh balances.
func (h *Handler) RefreshPortfolio(c *gin.Context) {
	err := h.portfolio.Refresh(c.Request.Context())
	if err != nil && !errors.Is(err, apperr.ErrQueryFailed) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.portfolio.State())
}

// POST /api/swap/quote
func (h *Handler) Quote(c *gin.Context) {
	var req quoteReq
	if !bindJSON(c, &req) {
		return
	}
	chainID, err := h.activeChain()
	if err != nil {
		writeError(c, err)
		return
	}
	from, fromDec, err := h.resolveAsset(chainID, req.From)
	if err != nil {
		writeError(c, err)
		return
	}
	to, toDec, err := h.resolveAsset(chainID, req.To)
	if err != nil {
		writeError(c, err)
		return
	}
	amount, err := parseAmount(req.Amount, fromDec)
	if err != nil {
		writeError(c, err)
		return
	}

	route, err := h.swaps.Quote(c.Request.Context(), from, to, amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quoteRes{
		Route:                route,
		AmountInDisplay:      units.FormatTrim(route.AmountIn, fromDec, DisplayMaxDecimals),
		QuotedOutputDisplay:  units.FormatTrim(route.QuotedOutput, toDec, DisplayMaxDecimals),
		MinimumOutputDisplay: units.FormatTrim(route.MinimumOutput, toDec, DisplayMaxDecimals),
	})
}

// POST /api/swap/execute
func (h *Handler) Execute(c *gin.Context) {
	var req executeReq
	if !bindJSON(c, &req) {
		return
	}
	chainID, err := h.activeChain()
	if err != nil {
		writeError(c, err)
		return
	}
	from, fromDec, err := h.resolveAsset(chainID, req.From)
	if err != nil {
		writeError(c, err)
		return
	}
	to, _, err := h.resolveAsset(chainID, req.To)
	if err != nil {
		writeError(c, err)
		return
	}
	amount, err := parseAmount(req.Amount, fromDec)
	if err != nil {
		writeError(c, err)
		return
	}

	exec, err := h.swaps.Execute(c.Request.Context(), swap.ExecuteRequest{
		From:            from,
		To:              to,
		AmountIn:        amount,
		SlippageBps:     req.SlippageBps,
		DeadlineSeconds: req.DeadlineSeconds,
	})
	if err != nil {
		writeExecuteError(c, err, exec)
		return
	}
	url, _ := h.networks.ExplorerTxURL(chainID, exec.SwapTx.Hex())
	c.JSON(http.StatusOK, executeRes{Execution: exec, ExplorerURL: url})
}

// POST /api/send
func (h *Handler) Send(c *gin.Context) {
	var req sendReq
	if !bindJSON(c, &req) {
		return
	}
	chainID, err := h.activeChain()
	if err != nil {
		writeError(c, err)
		return
	}
	asset, dec, err := h.resolveAsset(chainID, req.Asset)
	if err != nil {
		writeError(c, err)
		return
	}
	to, err := parseAddr(req.To)
	if err != nil {
		writeError(c, apperr.Mark(err, apperr.ErrInvalidArgument))
		return
	}
	amount, err := parseAmount(req.Amount, dec)
	if err != nil {
		writeError(c, err)
		return
	}

	t, err := h.sends.Send(c.Request.Context(), asset, to, amount)
	if err != nil {
		writeError(c, err)
		return
	}
	url, _ := h.networks.ExplorerTxURL(chainID, t.Tx.Hex())
	c.JSON(http.StatusOK, sendRes{Transfer: t, ExplorerURL: url})
}

// GET /api/status
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.status.Status())
}

func (h *Handler) activeChain() (int64, error) {
	snap := h.session.Snapshot()
	if snap.State != session.Connected {
		return 0, apperr.Newf(apperr.ErrNotConnected, "http: no active session")
	}
	return snap.ChainID, nil
}

// resolveAsset maps a symbol or address to an asset id and its decimals.
func (h *Handler) resolveAsset(chainID int64, s string) (common.Address, uint8, error) {
	n, ok := h.networks.Lookup(chainID)
	if !ok {
		return common.Address{}, 0, apperr.Newf(apperr.ErrUnsupportedChain, "http: chain %d", chainID)
	}
	addr, err := h.assets.Resolve(chainID, n.NativeSymbol, s)
	if err != nil {
		return common.Address{}, 0, err
	}
	if assets.IsNative(addr) {
		return addr, n.NativeDecimals, nil
	}
	tok, ok := h.assets.Token(chainID, addr)
	if !ok {
		return common.Address{}, 0, apperr.Newf(apperr.ErrInvalidArgument, "http: token %s is not configured on chain %d", addr.Hex(), chainID)
	}
	return addr, tok.Decimals, nil
}

func parseAmount(s string, decimals uint8) (*big.Int, error) {
	raw, err := units.ToRaw(s, decimals)
	if err != nil {
		return nil, apperr.Mark(err, apperr.ErrInvalidArgument)
	}
	if raw.Sign() == 0 {
		return nil, apperr.Newf(apperr.ErrInvalidArgument, "http: amount must be positive")
	}
	return raw, nil
}
