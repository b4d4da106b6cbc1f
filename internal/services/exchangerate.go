package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"naszgpt-backend/internal/cache"
	"naszgpt-backend/internal/metrics"
	"naszgpt-backend/internal/models"
)

const (
	exchangeRateTimeout     = 5 * time.Second
	exchangeRateFailureTTL  = time.Minute
	exchangeRateBase        = "USD"
	exchangeRateMaxBodySize = 1 << 20
)

// ErrRateUnavailable means no rate could be obtained; costs in the local
// currency are shown as unavailable.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// nbpResponse is the JSON shape of the NBP "rates/A/USD" endpoint.
type nbpResponse struct {
	Code  string `json:"code"`
	Rates []struct {
		No            string          `json:"no"`
		EffectiveDate string          `json:"effectiveDate"`
		Mid           decimal.Decimal `json:"mid"`
	} `json:"rates"`
}

type ExchangeRateService struct {
	url      string
	currency string
	ttl      time.Duration
	cache    cache.Cache
	client   *http.Client
	group    singleflight.Group
	now      func() time.Time
}

func NewExchangeRateService(url, currency string, ttl time.Duration, c cache.Cache) *ExchangeRateService {
	if c == nil {
		c = cache.NewMemory()
	}
	return &ExchangeRateService{
		url:      url,
		currency: currency,
		ttl:      ttl,
		cache:    c,
		client:   &http.Client{Timeout: exchangeRateTimeout},
		now:      time.Now,
	}
}

func (s *ExchangeRateService) Currency() string {
	return s.currency
}

func (s *ExchangeRateService) cacheKey() string {
	return fmt.Sprintf("exchange_rate:%s:%s", exchangeRateBase, s.currency)
}

func (s *ExchangeRateService) failureKey() string {
	return s.cacheKey() + ":failed"
}

// Current returns the cached rate or fetches a fresh one. Concurrent misses
// share a single request. A failed fetch is remembered for a minute.
func (s *ExchangeRateService) Current(ctx context.Context) (*models.ExchangeRate, error) {
	if rate, ok := s.cached(ctx); ok {
		metrics.ExchangeRateFetches.WithLabelValues("hit").Inc()
		return rate, nil
	}
	if _, err := s.cache.Get(ctx, s.failureKey()); err == nil {
		return nil, ErrRateUnavailable
	}

	v, err, _ := s.group.Do(s.cacheKey(), func() (interface{}, error) {
		if rate, ok := s.cached(ctx); ok {
			return rate, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exchangeRateTimeout)
		defer cancel()

		rate, err := s.fetch(fetchCtx)
		if err != nil {
			metrics.ExchangeRateFetches.WithLabelValues("error").Inc()
			slog.Warn("exchange rate fetch failed", "url", s.url, "error", err)
			if cerr := s.cache.Set(ctx, s.failureKey(), []byte("1"), exchangeRateFailureTTL); cerr != nil {
				slog.Warn("failed to cache exchange rate failure", "error", cerr)
			}
			return nil, ErrRateUnavailable
		}
		metrics.ExchangeRateFetches.WithLabelValues("fetched").Inc()

		if b, err := json.Marshal(rate); err == nil {
			if err := s.cache.Set(ctx, s.cacheKey(), b, s.ttl); err != nil {
				slog.Warn("failed to cache exchange rate", "error", err)
			}
		}
		return rate, nil
	})
	if err != nil {
		return nil, err
	}
	rate := *v.(*models.ExchangeRate)
	return &rate, nil
}

// Invalidate drops the cached rate and any remembered failure.
func (s *ExchangeRateService) Invalidate(ctx context.Context) error {
	return s.cache.Delete(ctx, s.cacheKey(), s.failureKey())
}

func (s *ExchangeRateService) cached(ctx context.Context) (*models.ExchangeRate, bool) {
	b, err := s.cache.Get(ctx, s.cacheKey())
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("exchange rate cache read failed", "error", err)
		}
		return nil, false
	}
	var rate models.ExchangeRate
	if err := json.Unmarshal(b, &rate); err != nil {
		return nil, false
	}
	return &rate, true
}

func (s *ExchangeRateService) fetch(ctx context.Context) (*models.ExchangeRate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NBP HTTP %d", resp.StatusCode)
	}

	var body nbpResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, exchangeRateMaxBodySize)).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode NBP response: %w", err)
	}
	if len(body.Rates) == 0 || !body.Rates[0].Mid.IsPositive() {
		return nil, errors.New("unexpected NBP response structure")
	}

	base := body.Code
	if base == "" {
		base = exchangeRateBase
	}
	return &models.ExchangeRate{
		Base:          base,
		Quote:         s.currency,
		Rate:          body.Rates[0].Mid,
		EffectiveDate: body.Rates[0].EffectiveDate,
		FetchedAt:     s.now().UTC(),
	}, nil
}
