package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/arb-engine/internal/types"
	"go.uber.org/zap"
)

func testIntent() types.OrderIntent {
	return types.OrderIntent{
		ID:   "intent-1",
		Path: types.AssetPath{"USDC", "USDT", "DAI"},
		Legs: []types.Leg{{Pair: "USDC/USDT", Side: "SELL", Quantity: 100}},
		Ts:   time.Now(),
	}
}

func TestPaperExecutor_FillsAfterDelay(t *testing.T) {
	exec := NewPaperExecutor(time.Millisecond, 5, zap.NewNop())

	require.NoError(t, exec.Submit(context.Background(), testIntent()))

	select {
	case fill := <-exec.Fills():
		assert.Equal(t, "intent-1", fill.OrderIntentID)
		assert.True(t, fill.Success)
		assert.InDelta(t, 1.0005, fill.ExecutedPrice, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("expected a fill, but got none")
	}
}

func TestPaperExecutor_CancelledContextDropsFill(t *testing.T) {
	exec := NewPaperExecutor(50*time.Millisecond, 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, exec.Submit(ctx, testIntent()))
	cancel()

	select {
	case <-exec.Fills():
		t.Fatal("expected no fill after cancellation")
	case <-time.After(150 * time.Millisecond):
	}
}
