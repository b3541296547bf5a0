package csvdir_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/adapters/csvdir"
	"github.com/alejandrodnm/tickerbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const csvHeader = "Ticker,Datetime,Open,High,Low,Close,Volume,RSI,MACD,Signal,Upper,Lower,SMA20,ADX,Stoch_K,Stoch_D,Volume_SMA"

func writeCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// fullRow genera una fila completa con barras a 5 minutos desde las 09:30.
func fullRow(i int, close float64) string {
	ts := time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC).Add(time.Duration(i) * 5 * time.Minute)
	return fmt.Sprintf("AAPL,%s,%.2f,%.2f,%.2f,%.2f,%d,50,0.2,0.1,105,95,100,20,50,50,1000",
		ts.Format("2006-01-02 15:04:05"), close-0.5, close+1, close-1, close, 1000+i)
}

func writeAAPL(t *testing.T, dir string) {
	rows := []string{
		fullRow(0, 100),
		fullRow(1, 101),
		fullRow(2, 102),
		// RSI vacío y ADX NaN: el equivalente al dropna del export
		"AAPL,2024-05-06 09:45:00,102.5,104,102,103,1003,,0.2,0.1,105,95,100,20,50,50,1000",
		"AAPL,2024-05-06 09:50:00,103.5,105,103,104,1004,50,0.2,0.1,105,95,100,NaN,50,50,1000",
	}
	writeCSV(t, dir, "AAPL_2024_05_5m.csv", csvHeader+"\n"+strings.Join(rows, "\n")+"\n")
}

func TestFetch_ParsesAndAttachesPrev(t *testing.T) {
	dir := t.TempDir()
	writeAAPL(t, dir)

	p := csvdir.NewProvider(dir)
	bars, err := p.Fetch(context.Background(), "AAPL", time.Time{}, time.Time{}, "5m")

	require.NoError(t, err)
	require.Len(t, bars, 3) // las dos filas incompletas se descartan

	first := bars[0]
	assert.Equal(t, time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC), first.Timestamp)
	assert.InDelta(t, 100.0, first.Close, 0.001)
	assert.InDelta(t, 1000.0, first.Volume, 0.001)
	assert.InDelta(t, 50.0, first.Indicators[domain.IndRSI], 0.001)
	assert.Equal(t, "", first.HasRequiredIndicators())

	_, ok := first.Indicator(domain.IndPrevClose)
	assert.False(t, ok)
	assert.InDelta(t, 100.0, bars[1].Indicators[domain.IndPrevClose], 0.001)
	assert.InDelta(t, 0.2, bars[1].Indicators[domain.IndPrevMACD], 0.001)
}

func TestFetch_TickerCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	writeAAPL(t, dir)

	p := csvdir.NewProvider(dir)
	bars, err := p.Fetch(context.Background(), "aapl", time.Time{}, time.Time{}, "5m")

	require.NoError(t, err)
	assert.Len(t, bars, 3)
}

func TestFetch_UnknownTicker(t *testing.T) {
	dir := t.TempDir()
	writeAAPL(t, dir)

	p := csvdir.NewProvider(dir)
	_, err := p.Fetch(context.Background(), "MSFT", time.Time{}, time.Time{}, "5m")
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestFetch_ComputesVolumeSMAWhenMissing(t *testing.T) {
	dir := t.TempDir()

	var sb strings.Builder
	sb.WriteString("Datetime,Open,High,Low,Close,Volume,RSI,MACD,Signal,Upper,Lower,SMA20,ADX,Stoch_K,Stoch_D\n")
	base := time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)
	for i := 1; i <= 12; i++ {
		close := 100 + 0.1*float64(i)
		fmt.Fprintf(&sb, "%s,%.2f,%.2f,%.2f,%.2f,%d,50,0.2,0.1,105,95,100,20,50,50\n",
			base.Add(time.Duration(i-1)*5*time.Minute).Format("2006-01-02 15:04:05"),
			close-0.5, close+1, close-1, close, 100*i)
	}
	writeCSV(t, dir, "MSFT_2024_05_5m.csv", sb.String())

	p := csvdir.NewProvider(dir)
	bars, err := p.Fetch(context.Background(), "MSFT", time.Time{}, time.Time{}, "5m")

	require.NoError(t, err)
	// ventana de 10: las 9 primeras filas quedan sin Volume_SMA y caen
	require.Len(t, bars, 3)
	assert.InDelta(t, 550.0, bars[0].Indicators[domain.IndVolumeSMA], 0.001) // mean(100..1000)
	assert.InDelta(t, 650.0, bars[1].Indicators[domain.IndVolumeSMA], 0.001)
	assert.InDelta(t, 101.0, bars[1].Indicators[domain.IndPrevClose], 0.001)
}

func TestFetch_RangeFilter(t *testing.T) {
	dir := t.TempDir()
	writeAAPL(t, dir)

	p := csvdir.NewProvider(dir)
	start := time.Date(2024, 5, 6, 9, 35, 0, 0, time.UTC)
	bars, err := p.Fetch(context.Background(), "AAPL", start, time.Time{}, "5m")

	require.NoError(t, err)
	require.Len(t, bars, 2)
	// el recorte va después del attach: la primera barra del rango
	// conserva sus columnas prev
	assert.InDelta(t, 100.0, bars[0].Indicators[domain.IndPrevClose], 0.001)
}

func TestFetch_PandasTimezoneOffset(t *testing.T) {
	dir := t.TempDir()
	rows := []string{
		"PLD,2025-07-15 09:30:00-04:00,99.5,101,99,100,1000,50,0.2,0.1,105,95,100,20,50,50,1000",
		"PLD,2025-07-15 09:45:00-04:00,100.5,102,100,101,1100,50,0.2,0.1,105,95,100,20,50,50,1000",
	}
	writeCSV(t, dir, "PLD_2025_07_15m.csv", csvHeader+"\n"+strings.Join(rows, "\n")+"\n")

	p := csvdir.NewProvider(dir)
	bars, err := p.Fetch(context.Background(), "PLD", time.Time{}, time.Time{}, "15m")

	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Timestamp.Equal(time.Date(2025, 7, 15, 13, 30, 0, 0, time.UTC)))
}

func TestFetch_MissingRequiredColumn(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL_2024.csv", "Datetime,Open,High,Low,Volume\n2024-05-06 09:30:00,1,2,0.5,100\n")

	p := csvdir.NewProvider(dir)
	_, err := p.Fetch(context.Background(), "AAPL", time.Time{}, time.Time{}, "5m")
	assert.ErrorContains(t, err, "Close")
}

func TestListTickers(t *testing.T) {
	dir := t.TempDir()
	writeAAPL(t, dir)
	writeCSV(t, dir, "MSFT_2024_05_5m.csv", csvHeader+"\n"+fullRow(0, 100)+"\n")
	writeCSV(t, dir, "GOOG.csv", csvHeader+"\n"+fullRow(0, 100)+"\n")
	writeCSV(t, dir, "notas.txt", "no soy un csv")

	p := csvdir.NewProvider(dir)
	tickers, err := p.ListTickers()

	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "GOOG", "MSFT"}, tickers)
}
