package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"naszgpt-backend/internal/cache"
)

const nbpBody = `{"table":"A","currency":"dolar amerykański","code":"USD","rates":[{"no":"128/A/NBP/2025","effectiveDate":"2025-07-04","mid":3.6123}]}`

func TestExchangeRate_FetchAndCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(nbpBody))
	}))
	defer srv.Close()

	svc := NewExchangeRateService(srv.URL, "PLN", time.Hour, cache.NewMemory())

	rate, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.6123").Equal(rate.Rate))
	assert.Equal(t, "2025-07-04", rate.EffectiveDate)
	assert.Equal(t, "USD", rate.Base)
	assert.Equal(t, "PLN", rate.Quote)

	_, err = svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestExchangeRate_ConcurrentMissesShareFetch(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte(nbpBody))
	}))
	defer srv.Close()

	svc := NewExchangeRateService(srv.URL, "PLN", time.Hour, cache.NewMemory())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Current(context.Background())
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
}

func TestExchangeRate_FailureIsRemembered(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := NewExchangeRateService(srv.URL, "PLN", time.Hour, cache.NewMemory())

	_, err := svc.Current(context.Background())
	assert.ErrorIs(t, err, ErrRateUnavailable)
	_, err = svc.Current(context.Background())
	assert.ErrorIs(t, err, ErrRateUnavailable)
	assert.Equal(t, int32(1), hits.Load())

	require.NoError(t, svc.Invalidate(context.Background()))
	_, err = svc.Current(context.Background())
	assert.ErrorIs(t, err, ErrRateUnavailable)
	assert.Equal(t, int32(2), hits.Load())
}

func TestExchangeRate_RejectsUnexpectedBody(t *testing.T) {
	for name, body := range map[string]string{
		"empty rates": `{"code":"USD","rates":[]}`,
		"not json":    `<html>maintenance</html>`,
		"zero mid":    `{"code":"USD","rates":[{"effectiveDate":"2025-07-04","mid":0}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewExchangeRateService(srv.URL, "PLN", time.Hour, nil).Current(context.Background())
			assert.ErrorIs(t, err, ErrRateUnavailable)
		})
	}
}
