package alphavantage

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
)

// Ventana de la media móvil de volumen. La API no ofrece SMA sobre volumen,
// así que se calcula aquí sobre la serie descargada.
const volumeSMAWindow = 10

// avTimeLayouts son los formatos de timestamp que usa la API: la serie
// intradía lleva segundos, los indicadores intradía no, y las series
// diarias solo fecha.
var avTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseAVTime prueba los layouts conocidos de la API.
func parseAVTime(s string) (time.Time, error) {
	for _, layout := range avTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// parseFloat convierte un valor numérico de la API (siempre strings).
func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// mapInterval traduce la notación corta del config ("5m", "1h", "1d") al
// intervalo de la API ("5min", "60min", "daily").
func mapInterval(interval string) (string, error) {
	switch interval {
	case "1m":
		return "1min", nil
	case "5m":
		return "5min", nil
	case "15m":
		return "15min", nil
	case "30m":
		return "30min", nil
	case "60m", "1h":
		return "60min", nil
	case "1d", "daily":
		return "daily", nil
	}
	return "", fmt.Errorf("unsupported interval %q", interval)
}

// mapSeries convierte las entradas raw de la serie a barras sin
// indicadores, indexadas por unix time.
func mapSeries(entries map[string]barRaw) (map[int64]domain.Bar, error) {
	bars := make(map[int64]domain.Bar, len(entries))
	for ts, r := range entries {
		t, err := parseAVTime(ts)
		if err != nil {
			return nil, fmt.Errorf("series: %w", err)
		}
		bars[t.Unix()] = domain.Bar{
			Timestamp: t,
			Open:      parseFloat(r.Open),
			High:      parseFloat(r.High),
			Low:       parseFloat(r.Low),
			Close:     parseFloat(r.Close),
			Volume:    parseFloat(r.Volume),
		}
	}
	return bars, nil
}

// mapIndicator convierte las entradas raw de un indicador renombrando las
// columnas de la API a nombres de domain.
func mapIndicator(entries map[string]map[string]string, columns map[string]string) (map[int64]map[string]float64, error) {
	out := make(map[int64]map[string]float64, len(entries))
	for ts, cols := range entries {
		t, err := parseAVTime(ts)
		if err != nil {
			return nil, err
		}
		vals := make(map[string]float64, len(columns))
		for apiCol, name := range columns {
			if s, ok := cols[apiCol]; ok {
				vals[name] = parseFloat(s)
			}
		}
		out[t.Unix()] = vals
	}
	return out, nil
}

// joinBars une la serie OHLCV con las columnas de indicadores por
// timestamp, calcula Volume_SMA y descarta las barras incompletas (el
// arranque de la serie, donde los indicadores de ventana aún no existen).
// Devuelve las barras ordenadas por timestamp ascendente.
func joinBars(series map[int64]domain.Bar, indicators map[int64]map[string]float64) []domain.Bar {
	bars := make([]domain.Bar, 0, len(series))
	for _, b := range series {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	domain.AttachVolumeSMA(bars, volumeSMAWindow)

	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if cols, ok := indicators[b.Timestamp.Unix()]; ok {
			if b.Indicators == nil {
				b.Indicators = make(map[string]float64, len(cols)+4)
			}
			for k, v := range cols {
				b.Indicators[k] = v
			}
		}
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
