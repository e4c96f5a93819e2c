package apperr

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassOf(t *testing.T) {
	cause := errors.New("execution reverted")

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ""},
		{"plain error", cause, ClassInternal},
		{"marked swap failure", Mark(cause, ErrSwapFailed), ClassSwapFailed},
		{"wrapped with fmt", fmt.Errorf("swap: %w", Mark(cause, ErrApprovalFailed)), ClassApprovalFailed},
		{"rejection wins over swap", Mark(Mark(cause, ErrUserRejected), ErrSwapFailed), ClassUserRejected},
		{"newf", Newf(ErrUnsupportedChain, "chain %d", 7), ClassUnsupportedChain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassOf(tt.err))
		})
	}
}

func TestMarkKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, ErrQueryFailed, "decimals")

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrQueryFailed))
	assert.Contains(t, err.Error(), "decimals")
	assert.NotEmpty(t, Message(err))
}

func TestMarkNil(t *testing.T) {
	assert.NoError(t, Mark(nil, ErrSwapFailed))
	assert.NoError(t, Wrap(nil, ErrSwapFailed, "x"))
	assert.Equal(t, "", Message(nil))
}

func TestClassVisibleToStdlibIs(t *testing.T) {
	cause := errors.New("execution reverted")

	tests := []struct {
		name  string
		err   error
		class error
	}{
		{"newf", Newf(ErrUserRejected, "x"), ErrUserRejected},
		{"mark", Mark(cause, ErrSwapFailed), ErrSwapFailed},
		{"wrap", Wrap(cause, ErrQueryFailed, "balanceOf"), ErrQueryFailed},
		{"wrapped again", errors.Wrap(Mark(cause, ErrApprovalFailed), "execute"), ErrApprovalFailed},
		{"fmt wrapped", fmt.Errorf("send: %w", Mark(cause, ErrSendFailed)), ErrSendFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, stderrors.Is(tt.err, tt.class))
			assert.True(t, errors.Is(tt.err, tt.class))
			assert.ErrorIs(t, tt.err, tt.class)
			assert.False(t, stderrors.Is(tt.err, ErrInvalidArgument))
		})
	}

	assert.True(t, stderrors.Is(Mark(cause, ErrSwapFailed), cause), "cause stays in the chain")
}
