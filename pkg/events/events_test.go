package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBusWithoutClientIsNoop(t *testing.T) {
	bus := NewBus(nil, "", zap.NewNop())
	require.NoError(t, bus.Publish(context.Background(), Change{Table: "quizzes", Kind: KindInsert}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.NoError(t, bus.Listen(ctx, func(context.Context, Change) {
		t.Fatal("no change expected")
	}))
}

func TestDispatchDecodesChange(t *testing.T) {
	bus := NewBus(nil, "test", nil)
	var received []Change
	handler := func(_ context.Context, change Change) { received = append(received, change) }

	bus.dispatch(context.Background(), []byte(`{"table":"quiz_results","kind":"UPDATE"}`), handler)
	bus.dispatch(context.Background(), []byte(`not json`), handler)
	bus.dispatch(context.Background(), []byte(`{"kind":"DELETE"}`), handler)

	require.Len(t, received, 1)
	assert.Equal(t, "quiz_results", received[0].Table)
	assert.Equal(t, KindUpdate, received[0].Kind)
}
