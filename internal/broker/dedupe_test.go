package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tradeoracle/engine/internal/models"
)

type countingChainBroker struct {
	MockBroker
	calls int32
}

func (c *countingChainBroker) GetOptionChain(ctx context.Context, underlying string, expiration time.Time) ([]models.OptionTick, error) {
	atomic.AddInt32(&c.calls, 1)
	time.Sleep(5 * time.Millisecond)
	return c.MockBroker.GetOptionChain(ctx, underlying, expiration)
}

func TestDedupingBroker_CollapsesConcurrentIdenticalChainFetches(t *testing.T) {
	inner := &countingChainBroker{MockBroker: *NewMockBroker()}
	d := NewDedupingBroker(inner)

	var wg sync.WaitGroup
	exp := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.GetOptionChain(context.Background(), "SPY", exp)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
}
