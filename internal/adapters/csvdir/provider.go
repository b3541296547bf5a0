package csvdir

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
)

// Ventana para calcular Volume_SMA cuando el CSV no trae la columna.
const volumeSMAWindow = 10

// csvTimeLayouts son los formatos de Datetime aceptados. Los exports de
// pandas llevan offset de zona; los escritos a mano suelen ser naive.
var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Provider sirve barras desde una carpeta de CSVs, un archivo por ticker,
// para backtests y replays sin red. El ticker es el prefijo del nombre de
// archivo hasta el primer guion bajo (AAPL_2025_07_15m.csv → AAPL).
//
// Columnas requeridas: Datetime, Open, High, Low, Close, Volume. El resto
// de columnas se adjuntan como indicadores con el nombre del header; la
// columna Ticker se ignora. Las filas con celdas vacías o no numéricas se
// descartan. Si falta la columna Volume_SMA se calcula sobre una ventana
// de 10 barras.
type Provider struct {
	dir string
}

// NewProvider crea el proveedor sobre la carpeta dada.
func NewProvider(dir string) *Provider {
	return &Provider{dir: dir}
}

// ListTickers devuelve los tickers disponibles en la carpeta, ordenados.
func (p *Provider) ListTickers() ([]string, error) {
	files, err := p.scan()
	if err != nil {
		return nil, err
	}
	tickers := make([]string, 0, len(files))
	for ticker := range files {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers, nil
}

// Fetch implementa ports.BarProvider. El intervalo se ignora: las barras
// son las que haya en el archivo.
func (p *Provider) Fetch(_ context.Context, ticker string, start, end time.Time, _ string) ([]domain.Bar, error) {
	files, err := p.scan()
	if err != nil {
		return nil, err
	}
	path, ok := files[strings.ToUpper(ticker)]
	if !ok {
		return nil, fmt.Errorf("csvdir.Fetch %s: %w: no CSV in %s", ticker, domain.ErrDataUnavailable, p.dir)
	}

	bars, skipped, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("csvdir.Fetch %s: %s: %w", ticker, filepath.Base(path), err)
	}
	if skipped > 0 {
		slog.Debug("incomplete rows skipped", "ticker", ticker, "file", filepath.Base(path), "rows", skipped)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	if len(bars) > 0 {
		if _, ok := bars[len(bars)-1].Indicator(domain.IndVolumeSMA); !ok {
			domain.AttachVolumeSMA(bars, volumeSMAWindow)
		}
	}
	bars = dropIncomplete(bars)
	if len(bars) == 0 {
		return nil, fmt.Errorf("csvdir.Fetch %s: %w: no complete rows in %s", ticker, domain.ErrDataUnavailable, filepath.Base(path))
	}
	domain.AttachPrev(bars)
	return filterRange(bars, start, end), nil
}

// scan indexa la carpeta: ticker → path. Con varios archivos del mismo
// ticker gana el primero en orden alfabético.
func (p *Provider) scan() (map[string]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("csvdir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	files := make(map[string]string, len(names))
	for _, name := range names {
		ticker := tickerFromFilename(name)
		if ticker == "" {
			slog.Warn("cannot extract ticker from filename, skipping", "file", name)
			continue
		}
		if _, dup := files[ticker]; !dup {
			files[ticker] = filepath.Join(p.dir, name)
		}
	}
	return files, nil
}

// tickerFromFilename extrae el ticker: prefijo hasta el primer guion bajo,
// sin extensión.
func tickerFromFilename(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if i := strings.Index(base, "_"); i >= 0 {
		base = base[:i]
	}
	return strings.ToUpper(strings.TrimSpace(base))
}

// readFile parsea un CSV a barras. Devuelve además el número de filas
// descartadas por celdas vacías o no numéricas.
func readFile(path string) ([]domain.Bar, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, 0, fmt.Errorf("%w: empty file", domain.ErrDataUnavailable)
	}
	if err != nil {
		return nil, 0, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, required := range []string{"Datetime", "Open", "High", "Low", "Close", "Volume"} {
		if _, ok := cols[required]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", required)
		}
	}

	var bars []domain.Bar
	skipped := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		bar, ok := parseRow(header, cols, record)
		if !ok {
			skipped++
			continue
		}
		bars = append(bars, bar)
	}
	return bars, skipped, nil
}

// parseRow convierte una fila en barra. ok es false si el timestamp o
// alguna celda numérica no parsea, el equivalente al dropna del export.
func parseRow(header []string, cols map[string]int, record []string) (domain.Bar, bool) {
	if cols["Datetime"] >= len(record) {
		return domain.Bar{}, false
	}
	ts, err := parseCSVTime(record[cols["Datetime"]])
	if err != nil {
		return domain.Bar{}, false
	}

	bar := domain.Bar{Timestamp: ts, Indicators: make(map[string]float64, len(header))}
	ohlcv := map[string]*float64{
		"Open":   &bar.Open,
		"High":   &bar.High,
		"Low":    &bar.Low,
		"Close":  &bar.Close,
		"Volume": &bar.Volume,
	}
	for i, name := range header {
		if name == "Datetime" || name == "Ticker" {
			continue
		}
		if i >= len(record) {
			return domain.Bar{}, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil || math.IsNaN(v) {
			return domain.Bar{}, false
		}
		if dst, ok := ohlcv[name]; ok {
			*dst = v
		} else {
			bar.Indicators[name] = v
		}
	}
	return bar, true
}

// parseCSVTime prueba los layouts de Datetime aceptados.
func parseCSVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// dropIncomplete descarta las barras sin todos los indicadores requeridos
// (el arranque de la ventana de Volume_SMA, columnas ausentes).
func dropIncomplete(bars []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.HasRequiredIndicators() == "" {
			out = append(out, b)
		}
	}
	return out
}

// filterRange recorta la serie al rango [start, end]. Los zero values no
// acotan por su extremo.
func filterRange(bars []domain.Bar, start, end time.Time) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
