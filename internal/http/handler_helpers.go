package http

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
	"github.com/quantumauth-io/quantum-dex-client/internal/swap"
)

var classStatus = map[apperr.Class]int{
	apperr.ClassInvalidArgument:     http.StatusBadRequest,
	apperr.ClassUserRejected:        http.StatusConflict,
	apperr.ClassNotConnected:        http.StatusConflict,
	apperr.ClassStaleSession:        http.StatusConflict,
	apperr.ClassUnsupportedChain:    http.StatusUnprocessableEntity,
	apperr.ClassQuoteUnavailable:    http.StatusUnprocessableEntity,
	apperr.ClassProviderUnavailable: http.StatusServiceUnavailable,
	apperr.ClassNetworkSwitchFailed: http.StatusBadGateway,
	apperr.ClassApprovalFailed:      http.StatusBadGateway,
	apperr.ClassSwapFailed:          http.StatusBadGateway,
	apperr.ClassSendFailed:          http.StatusBadGateway,
	apperr.ClassQueryFailed:         http.StatusBadGateway,
}

func statusFor(class apperr.Class) int {
	if s, ok := classStatus[class]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": class, "message": text}. The raw error
// stays in the log.
func writeError(c *gin.Context, err error) {
	status, body := logError(c, err)
	c.AbortWithStatusJSON(status, body)
}

// writeExecuteError is writeError plus the partial execution when any
// transaction of the swap was submitted.
func writeExecuteError(c *gin.Context, err error, exec swap.Execution) {
	status, body := logError(c, err)
	res := executeErrorRes{errorRes: body}
	if exec.ApprovalTx != nil || exec.RevokeTx != nil || exec.SwapTx != (common.Hash{}) {
		res.Execution = &exec
	}
	c.AbortWithStatusJSON(status, res)
}

func logError(c *gin.Context, err error) (int, errorRes) {
	class := apperr.ClassOf(err)
	status := statusFor(class)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "route", c.FullPath(), "requestId", c.GetString(ContextKeyRequestID), "class", class, "error", err)
	} else {
		log.Info("request rejected", "route", c.FullPath(), "requestId", c.GetString(ContextKeyRequestID), "class", class, "error", err)
	}
	return status, errorRes{Error: string(class), Message: apperr.Message(err)}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, apperr.Wrap(err, apperr.ErrInvalidArgument, HTTPErrorInvalidJSONText))
		return false
	}
	return true
}
