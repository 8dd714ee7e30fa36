package devicecache_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-telemetry/pkg/devicecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFetcher is a test double for the devicecache.Fetcher interface.
type mockFetcher[K comparable, V any] struct {
	FetchFunc func(ctx context.Context, key K) (V, error)
}

func (m *mockFetcher[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, key)
	}
	var zero V
	return zero, fmt.Errorf("mock fetcher not implemented")
}

func (m *mockFetcher[K, V]) Close() error { return nil }

func TestInMemoryCache_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("miss with no fallback", func(t *testing.T) {
		c := devicecache.NewInMemoryCache[string, int](nil)

		_, err := c.Fetch(ctx, "miss")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found in cache and no fallback is configured")
	})

	t.Run("fallback failure", func(t *testing.T) {
		expectedErr := errors.New("source is down")
		mockSource := &mockFetcher[string, int]{
			FetchFunc: func(ctx context.Context, key string) (int, error) {
				return 0, expectedErr
			},
		}
		c := devicecache.NewInMemoryCache[string, int](mockSource)

		_, err := c.Fetch(ctx, "any-key")
		require.Error(t, err)
		assert.ErrorIs(t, err, expectedErr)
	})

	t.Run("fallback success and cache write-back", func(t *testing.T) {
		sensorID := uuid.New()
		var fetcherCallCount atomic.Int32
		mockSource := &mockFetcher[uuid.UUID, devicecache.SensorMetadata]{
			FetchFunc: func(ctx context.Context, key uuid.UUID) (devicecache.SensorMetadata, error) {
				fetcherCallCount.Add(1)
				if key == sensorID {
					return devicecache.SensorMetadata{ID: sensorID, Name: "Living Room Temperature", Location: "living-room"}, nil
				}
				return devicecache.SensorMetadata{}, errors.New("source not found")
			},
		}
		c := devicecache.NewInMemoryCache[uuid.UUID, devicecache.SensorMetadata](mockSource)

		// First fetch misses and pulls from the fallback.
		meta, err := c.Fetch(ctx, sensorID)
		require.NoError(t, err)
		assert.Equal(t, "Living Room Temperature", meta.Name)
		assert.Equal(t, int32(1), fetcherCallCount.Load())

		// Second fetch is a hit; the fallback stays untouched.
		meta, err = c.Fetch(ctx, sensorID)
		require.NoError(t, err)
		assert.Equal(t, "living-room", meta.Location)
		assert.Equal(t, int32(1), fetcherCallCount.Load(), "fallback should not be called on a cache hit")
	})
}

func TestInMemoryCache_Set(t *testing.T) {
	ctx := context.Background()
	c := devicecache.NewInMemoryCache[string, string](nil)

	require.NoError(t, c.Set(ctx, "k", "v"))
	val, err := c.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
}
