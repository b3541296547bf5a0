package alphavantage

// series.go — composición de barras completas a partir de la API.
//
// Cada ticker cuesta 7 requests: la serie OHLCV más seis endpoints de
// indicadores. Se disparan en goroutines concurrentes y el rate limiter
// (token bucket) en doWithRetry controla el ritmo automáticamente, igual
// con el free tier (5/min) que con un plan de pago.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
)

// Fetch descarga la serie del ticker con sus seis indicadores, los une por
// timestamp y devuelve solo las barras completas, con las columnas prev ya
// adjuntas. Implementa ports.BarProvider.
func (c *Client) Fetch(ctx context.Context, ticker string, start, end time.Time, interval string) ([]domain.Bar, error) {
	avInterval, err := mapInterval(interval)
	if err != nil {
		return nil, fmt.Errorf("alphavantage.Fetch %s: %w", ticker, err)
	}

	type fetchResult struct {
		endpoint string
		series   map[int64]domain.Bar
		values   map[int64]map[string]float64
		err      error
	}

	specs := indicatorSpecs()
	resultCh := make(chan fetchResult, 1+len(specs))
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		series, err := c.fetchSeries(ctx, ticker, avInterval)
		resultCh <- fetchResult{endpoint: "series", series: series, err: err}
	}()

	for _, spec := range specs {
		spec := spec
		wg.Add(1)
		go func() {
			defer wg.Done()
			values, err := c.fetchIndicator(ctx, ticker, avInterval, spec)
			resultCh <- fetchResult{endpoint: spec.function, values: values, err: err}
		}()
	}

	// Cerrar el canal cuando todos los goroutines terminen
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var series map[int64]domain.Bar
	indicators := make(map[int64]map[string]float64)
	var firstErr error

	for r := range resultCh {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("alphavantage.Fetch %s %s: %w", ticker, r.endpoint, r.err)
			}
			continue
		}
		if r.series != nil {
			series = r.series
			continue
		}
		for ts, cols := range r.values {
			if indicators[ts] == nil {
				indicators[ts] = make(map[string]float64, len(domain.RequiredIndicators))
			}
			for k, v := range cols {
				indicators[ts][k] = v
			}
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	bars := joinBars(series, indicators)
	if len(bars) == 0 {
		return nil, fmt.Errorf("alphavantage.Fetch %s: %w: no complete bars after join", ticker, domain.ErrDataUnavailable)
	}
	domain.AttachPrev(bars)
	bars = filterRange(bars, start, end)

	slog.Debug("series fetched",
		"ticker", ticker,
		"interval", interval,
		"bars", len(bars),
	)
	return bars, nil
}

// fetchSeries descarga la serie OHLCV cruda.
func (c *Client) fetchSeries(ctx context.Context, symbol, avInterval string) (map[int64]domain.Bar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("outputsize", "full")
	if avInterval == "daily" {
		params.Set("function", "TIME_SERIES_DAILY")
	} else {
		params.Set("function", "TIME_SERIES_INTRADAY")
		params.Set("interval", avInterval)
	}

	var payload map[string]json.RawMessage
	if err := c.get(ctx, params, &payload); err != nil {
		return nil, err
	}
	if err := checkNotice(payload); err != nil {
		return nil, err
	}

	raw, err := extractPrefixed(payload, "Time Series")
	if err != nil {
		return nil, err
	}
	var entries map[string]barRaw
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}
	return mapSeries(entries)
}

// fetchIndicator descarga un endpoint de indicador y renombra sus columnas.
func (c *Client) fetchIndicator(ctx context.Context, symbol, avInterval string, spec indicatorSpec) (map[int64]map[string]float64, error) {
	params := url.Values{}
	params.Set("function", spec.function)
	params.Set("symbol", symbol)
	params.Set("interval", avInterval)
	for k, v := range spec.params {
		params.Set(k, v)
	}

	var payload map[string]json.RawMessage
	if err := c.get(ctx, params, &payload); err != nil {
		return nil, err
	}
	if err := checkNotice(payload); err != nil {
		return nil, err
	}

	raw, err := extractPrefixed(payload, "Technical Analysis")
	if err != nil {
		return nil, err
	}
	var entries map[string]map[string]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", spec.function, err)
	}
	return mapIndicator(entries, spec.columns)
}
