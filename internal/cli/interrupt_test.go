package cli

import (
	"bytes"
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterruptHandler_Signal(t *testing.T) {
	var out bytes.Buffer
	handler := NewInterruptHandler(&out, "Worker stopped")

	ctx, stop := handler.HandleInterrupts(context.Background())
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not canceled by SIGINT")
	}

	assert.True(t, handler.WasInterrupted())
	assert.Contains(t, out.String(), "Worker stopped")
}

func TestInterruptHandler_StopWithoutSignal(t *testing.T) {
	handler := NewInterruptHandler(nil, "")

	ctx, stop := handler.HandleInterrupts(context.Background())
	stop()

	<-ctx.Done()
	assert.False(t, handler.WasInterrupted())
}
