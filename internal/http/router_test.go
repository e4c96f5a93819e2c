package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/assets"
	"github.com/quantumauth-io/quantum-dex-client/internal/netstatus"
	"github.com/quantumauth-io/quantum-dex-client/internal/networks"
	"github.com/quantumauth-io/quantum-dex-client/internal/portfolio"
	"github.com/quantumauth-io/quantum-dex-client/internal/session"
	"github.com/quantumauth-io/quantum-dex-client/internal/swap"
)

const sepolia = int64(11155111)

var (
	account = common.HexToAddress("0x1111111111111111111111111111111111111111")
	usdc    = common.HexToAddress("0x94a9D9AC8a22534E3FaCa9F4e7F2E2cf85d5E4C8")
	tx      = common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000001")
)

type fakeSession struct {
	snap       session.Snapshot
	err        error
	switchedTo int64
}

func (f *fakeSession) Snapshot() session.Snapshot { return f.snap }

func (f *fakeSession) Connect(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.snap = session.Snapshot{Address: account, ChainID: sepolia, State: session.Connected, Version: f.snap.Version + 1}
	return nil
}

func (f *fakeSession) Disconnect(context.Context) error {
	f.snap = session.Snapshot{State: session.Disconnected, Version: f.snap.Version + 1}
	return nil
}

func (f *fakeSession) SwitchNetwork(_ context.Context, chainID int64) error {
	if f.err != nil {
		return f.err
	}
	f.switchedTo = chainID
	f.snap.ChainID = chainID
	return nil
}

type fakePortfolio struct {
	state    portfolio.State
	err      error
	refreshs int
}

func (f *fakePortfolio) State() portfolio.State { return f.state }

func (f *fakePortfolio) Refresh(context.Context) error {
	f.refreshs++
	return f.err
}

type fakeSwaps struct {
	quoteFrom, quoteTo common.Address
	quoteIn            *big.Int
	executed           swap.ExecuteRequest
	partial            swap.Execution
	err                error
}

func (f *fakeSwaps) Quote(_ context.Context, from, to common.Address, amountIn *big.Int) (swap.Route, error) {
	f.quoteFrom, f.quoteTo, f.quoteIn = from, to, amountIn
	if f.err != nil {
		return swap.Route{}, f.err
	}
	return swap.Route{
		ChainID:       sepolia,
		From:          from,
		To:            to,
		AmountIn:      amountIn,
		QuotedOutput:  big.NewInt(3_000_000_000),
		MinimumOutput: big.NewInt(2_985_000_000),
		SlippageBps:   50,
	}, nil
}

func (f *fakeSwaps) Execute(_ context.Context, req swap.ExecuteRequest) (swap.Execution, error) {
	f.executed = req
	if f.err != nil {
		return f.partial, f.err
	}
	return swap.Execution{ID: uuid.NewString(), SwapTx: tx}, nil
}

type fakeSends struct {
	asset, to common.Address
	amount    *big.Int
	err       error
}

func (f *fakeSends) Send(_ context.Context, asset, to common.Address, amount *big.Int) (swap.Transfer, error) {
	f.asset, f.to, f.amount = asset, to, amount
	if f.err != nil {
		return swap.Transfer{}, f.err
	}
	return swap.Transfer{ChainID: sepolia, Asset: asset, To: to, Amount: amount, Tx: tx}, nil
}

type fakeStatus netstatus.Status

func (f fakeStatus) Status() netstatus.Status { return netstatus.Status(f) }

type fixture struct {
	router    *gin.Engine
	session   *fakeSession
	portfolio *fakePortfolio
	swaps     *fakeSwaps
	sends     *fakeSends
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	nets, err := networks.NewRegistry(nil, "")
	require.NoError(t, err)
	reg, err := assets.NewRegistry(map[string][]assets.TokenConfig{
		"11155111": {{Address: usdc.Hex(), Symbol: "USDC", Name: "USD Coin", Decimals: 6}},
	}, nil)
	require.NoError(t, err)

	f := &fixture{
		session:   &fakeSession{snap: session.Snapshot{Address: account, ChainID: sepolia, State: session.Connected, Version: 1}},
		portfolio: &fakePortfolio{},
		swaps:     &fakeSwaps{},
		sends:     &fakeSends{},
	}
	h := NewHandler(Deps{
		Session:   f.session,
		Portfolio: f.portfolio,
		Swaps:     f.swaps,
		Sends:     f.sends,
		Status:    fakeStatus{ChainID: sepolia, Name: "Sepolia", Healthy: true, BlockNumber: 42, GasPriceGwei: "1.50"},
		Networks:  nets,
		Assets:    reg,
		Version:   "test",
	})
	f.router = NewRouter(h, []string{"http://localhost:3000"})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "127.0.0.1:50000"
	req.Host = "localhost:8090"
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestLocalOnlyGuards(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		remoteAddr string
		host       string
		want       int
	}{
		{"loopback v4", "127.0.0.1:1234", "127.0.0.1:8090", http.StatusOK},
		{"loopback v6", "[::1]:1234", "[::1]:8090", http.StatusOK},
		{"remote peer", "10.0.0.7:1234", "localhost:8090", http.StatusForbidden},
		{"rebinding host", "127.0.0.1:1234", "evil.example:8090", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			req.RemoteAddr = tt.remoteAddr
			req.Host = tt.host
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequestID(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/health", nil)
	_, err := uuid.Parse(w.Header().Get(HeaderRequestID))
	assert.NoError(t, err, "generated id is a uuid")

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "127.0.0.1:1"
	req.Host = "localhost"
	req.Header.Set(HeaderRequestID, id)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, id, w.Header().Get(HeaderRequestID))
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "127.0.0.1:1"
	req.Host = "localhost"
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req.Header.Set("Origin", "http://localhost:3000")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	f.session.snap = session.Snapshot{State: session.Disconnected}

	w := f.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "disconnected", decode(t, w)["state"])

	w = f.do(t, http.MethodPost, "/api/session/connect", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "connected", body["state"])
	assert.Equal(t, account.Hex(), body["address"])
	assert.EqualValues(t, sepolia, body["chainId"])

	w = f.do(t, http.MethodPost, "/api/session/disconnect", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "disconnected", decode(t, w)["state"])
}

func TestSwitchNetworkChainIDForms(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int64
	}{
		{"number", `{"chainId": 137}`, 137},
		{"decimal string", `{"chainId": "137"}`, 137},
		{"hex string", `{"chainId": "0xaa36a7"}`, sepolia},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := httptest.NewRequest(http.MethodPost, "/api/session/network", strings.NewReader(tt.body))
			req.RemoteAddr = "127.0.0.1:1"
			req.Host = "localhost"
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.want, f.session.switchedTo)
		})
	}

	t.Run("garbage", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/api/session/network", map[string]any{"chainId": "sepolia"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "InvalidArgument", decode(t, w)["error"])
	})
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		class  string
	}{
		{apperr.Newf(apperr.ErrUserRejected, "x"), http.StatusConflict, "UserRejected"},
		{apperr.Newf(apperr.ErrProviderUnavailable, "x"), http.StatusServiceUnavailable, "ProviderUnavailable"},
		{apperr.Newf(apperr.ErrUnsupportedChain, "x"), http.StatusUnprocessableEntity, "UnsupportedChain"},
		{apperr.Newf(apperr.ErrNetworkSwitchFailed, "x"), http.StatusBadGateway, "NetworkSwitchFailed"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "Internal"},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			f := newFixture(t)
			f.session.err = tt.err
			w := f.do(t, http.MethodPost, "/api/session/connect", nil)
			require.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.class, body["error"])
			assert.Equal(t, apperr.Message(tt.err), body["message"])
			assert.NotContains(t, w.Body.String(), "boom", "raw errors stay in the log")
		})
	}
}

func TestNetworks(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/networks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, sepolia, body["active"])
	assert.NotEmpty(t, body["networks"])
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/swap/quote", quoteReq{From: "ETH", To: "usdc", Amount: "1.5"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, assets.Native, f.swaps.quoteFrom)
	assert.Equal(t, usdc, f.swaps.quoteTo)
	assert.Equal(t, "1500000000000000000", f.swaps.quoteIn.String())

	body := decode(t, w)
	assert.Equal(t, "1.5", body["amountInDisplay"])
	assert.Equal(t, "3000", body["quotedOutputDisplay"])
	assert.Equal(t, "2985", body["minimumOutputDisplay"])
}

func TestQuoteRejectsInput(t *testing.T) {
	tests := []struct {
		name   string
		req    quoteReq
		status int
		class  string
	}{
		{"too many fraction digits", quoteReq{From: "USDC", To: "ETH", Amount: "1.1234567"}, http.StatusBadRequest, "InvalidArgument"},
		{"negative", quoteReq{From: "ETH", To: "USDC", Amount: "-1"}, http.StatusBadRequest, "InvalidArgument"},
		{"zero", quoteReq{From: "ETH", To: "USDC", Amount: "0"}, http.StatusBadRequest, "InvalidArgument"},
		{"unknown symbol", quoteReq{From: "ETH", To: "PEPE", Amount: "1"}, http.StatusBadRequest, "InvalidArgument"},
		{"unconfigured token address", quoteReq{From: "ETH", To: "0x2222222222222222222222222222222222222222", Amount: "1"}, http.StatusBadRequest, "InvalidArgument"},
		{"missing field", quoteReq{From: "ETH", Amount: "1"}, http.StatusBadRequest, "InvalidArgument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(t, http.MethodPost, "/api/swap/quote", tt.req)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.class, decode(t, w)["error"])
			assert.Nil(t, f.swaps.quoteIn, "router not called")
		})
	}

	t.Run("not connected", func(t *testing.T) {
		f := newFixture(t)
		f.session.snap = session.Snapshot{State: session.Disconnected}
		w := f.do(t, http.MethodPost, "/api/swap/quote", quoteReq{From: "ETH", To: "USDC", Amount: "1"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "NotConnected", decode(t, w)["error"])
	})

	t.Run("no liquidity", func(t *testing.T) {
		f := newFixture(t)
		f.swaps.err = apperr.Newf(apperr.ErrQuoteUnavailable, "no pair")
		w := f.do(t, http.MethodPost, "/api/swap/quote", quoteReq{From: "ETH", To: "USDC", Amount: "1"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "QuoteUnavailable", decode(t, w)["error"])
	})
}

func TestExecute(t *testing.T) {
	f := newFixture(t)
	bps := uint32(100)
	w := f.do(t, http.MethodPost, "/api/swap/execute", executeReq{
		From: "USDC", To: "ETH", Amount: "25", SlippageBps: &bps, DeadlineSeconds: 600,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := f.swaps.executed
	assert.Equal(t, usdc, got.From)
	assert.Equal(t, assets.Native, got.To)
	assert.Equal(t, "25000000", got.AmountIn.String())
	require.NotNil(t, got.SlippageBps)
	assert.Equal(t, uint32(100), *got.SlippageBps)
	assert.Equal(t, int64(600), got.DeadlineSeconds)

	body := decode(t, w)
	assert.Equal(t, "https://sepolia.etherscan.io/tx/"+tx.Hex(), body["explorerUrl"])
}

func TestExecuteApprovalFailure(t *testing.T) {
	f := newFixture(t)
	f.swaps.err = apperr.Newf(apperr.ErrApprovalFailed, "reverted")
	w := f.do(t, http.MethodPost, "/api/swap/execute", executeReq{From: "USDC", To: "ETH", Amount: "1"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "ApprovalFailed", decode(t, w)["error"])
	assert.Nil(t, f.swaps.executed.SlippageBps, "default slippage left to the router")
	assert.NotContains(t, decode(t, w), "execution", "nothing was submitted")
}

func TestExecuteFailureReportsSubmittedTxs(t *testing.T) {
	approval := common.HexToHash("0x0a")
	revoke := common.HexToHash("0x0c")

	f := newFixture(t)
	f.swaps.err = apperr.Newf(apperr.ErrSwapFailed, "reverted")
	f.swaps.partial = swap.Execution{ID: "op-1", ApprovalTx: &approval, SwapTx: tx, RevokeTx: &revoke}

	w := f.do(t, http.MethodPost, "/api/swap/execute", executeReq{From: "USDC", To: "ETH", Amount: "1"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	body := decode(t, w)
	assert.Equal(t, "SwapFailed", body["error"])
	assert.NotEmpty(t, body["message"])

	exec, ok := body["execution"].(map[string]any)
	require.True(t, ok, w.Body.String())
	assert.Equal(t, "op-1", exec["id"])
	assert.Equal(t, approval.Hex(), exec["approvalTx"])
	assert.Equal(t, tx.Hex(), exec["swapTx"])
	assert.Equal(t, revoke.Hex(), exec["revokeTx"])
}

func TestSend(t *testing.T) {
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")

	t.Run("native", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/api/send", sendReq{Asset: "ETH", To: recipient.Hex(), Amount: "0.01"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, assets.Native, f.sends.asset)
		assert.Equal(t, recipient, f.sends.to)
		assert.Equal(t, "10000000000000000", f.sends.amount.String())
		assert.Equal(t, "https://sepolia.etherscan.io/tx/"+tx.Hex(), decode(t, w)["explorerUrl"])
	})

	t.Run("token", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/api/send", sendReq{Asset: usdc.Hex(), To: recipient.Hex(), Amount: "2.5"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, usdc, f.sends.asset)
		assert.Equal(t, "2500000", f.sends.amount.String())
	})

	t.Run("bad recipient", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/api/send", sendReq{Asset: "ETH", To: "0x123", Amount: "1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, f.sends.amount)
	})

	t.Run("rejected in wallet", func(t *testing.T) {
		f := newFixture(t)
		f.sends.err = apperr.Mark(apperr.Newf(apperr.ErrUserRejected, "4001"), apperr.ErrSendFailed)
		w := f.do(t, http.MethodPost, "/api/send", sendReq{Asset: "ETH", To: recipient.Hex(), Amount: "1"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "UserRejected", decode(t, w)["error"])
	})
}

func TestPortfolio(t *testing.T) {
	f := newFixture(t)
	f.portfolio.state = portfolio.State{
		Session:      f.session.snap,
		HistoryError: apperr.Message(apperr.ErrQueryFailed),
	}

	w := f.do(t, http.MethodGet, "/api/portfolio", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "connected", decode(t, w)["session"].(map[string]any)["state"])

	f.portfolio.err = apperr.Newf(apperr.ErrQueryFailed, "latest block")
	w = f.do(t, http.MethodPost, "/api/portfolio/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code, "history failure keeps balances visible")
	assert.Equal(t, apperr.Message(apperr.ErrQueryFailed), decode(t, w)["historyError"])

	f.portfolio.err = apperr.Newf(apperr.ErrStaleSession, "moved on")
	w = f.do(t, http.MethodPost, "/api/portfolio/refresh", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 2, f.portfolio.refreshs)
}

func TestStatusAndMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["healthy"])
	assert.EqualValues(t, 42, body["blockNumber"])
	assert.Equal(t, "1.50", body["gasPriceGwei"])

	w = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `qdc_http_request_duration_seconds_count{method="GET",route="/api/status",status="200"}`)
}
