package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentpay/backend/internal/config"
)

func TestMemoryLedgerStore(t *testing.T) {
	testLedgerStore(t, NewMemoryLedgerStore())
}

func TestKeyedMutex_ReleasesIdleKeys(t *testing.T) {
	var k keyedMutex
	var wg sync.WaitGroup
	counts := make([]int, 5)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			defer k.lock(fmt.Sprintf("user-%d", n))()
			counts[n]++
		}(i % 5)
	}
	wg.Wait()

	assert.Empty(t, k.locks)
	assert.Equal(t, []int{10, 10, 10, 10, 10}, counts)
}

func TestMemoryContentStore(t *testing.T) {
	testContentStore(t, NewMemoryContentStore())
}

func TestOpen_Memory(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Driver = config.StorageMemory

	stores, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer stores.Close()

	assert.Nil(t, stores.Pool)
	assert.IsType(t, &MemoryLedgerStore{}, stores.Ledger)
	assert.IsType(t, &MemoryContentStore{}, stores.Content)
	assert.NoError(t, stores.Ping(context.Background()))
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Driver = "cassandra"

	_, err := Open(context.Background(), cfg)
	assert.EqualError(t, err, `unsupported storage driver "cassandra"`)
}
