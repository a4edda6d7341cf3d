package wallet

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalApprover_CancelledPromptKeepsSingleReader(t *testing.T) {
	in, w := io.Pipe()
	a := NewTerminalApprover(in, io.Discard)
	p := Prompt{Method: "personal_sign", Summary: "approve session key"}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.Approve(cancelled, p), context.Canceled)

	go func() {
		_, _ = io.WriteString(w, "n\n")
		_, _ = io.WriteString(w, " YES \n")
		_ = w.Close()
	}()

	err := a.Approve(context.Background(), p)
	require.Error(t, err)
	assert.True(t, IsUserRejected(err))

	assert.NoError(t, a.Approve(context.Background(), p))

	// input closed
	err = a.Approve(context.Background(), p)
	assert.True(t, IsUserRejected(err))
}
