package alphavantage

import (
	"encoding/json"
	"fmt"

	"github.com/alejandrodnm/tickerbot/internal/domain"
)

// DTOs raw de la API de Alpha Vantage. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.
//
// La API nombra el campo principal de cada respuesta según el endpoint:
// "Time Series (5min)", "Time Series (Daily)", "Technical Analysis: RSI"...
// Por eso las respuestas se decodifican a map[string]json.RawMessage y el
// campo se extrae por prefijo.

// barRaw es una entrada OHLCV de la serie temporal (todo strings).
type barRaw struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

// indicatorSpec describe un endpoint de indicador: función de la API,
// parámetros extra y mapeo de columnas de la respuesta a nombres de domain.
type indicatorSpec struct {
	function string
	params   map[string]string
	columns  map[string]string
}

// indicatorSpecs devuelve los seis endpoints que componen una barra
// completa. Los periodos son los clásicos: RSI(14), MACD(12,26,9) que es el
// default de la API, BBANDS(20, 2σ), SMA(20), ADX(14) y STOCH lento.
func indicatorSpecs() []indicatorSpec {
	return []indicatorSpec{
		{
			function: "RSI",
			params:   map[string]string{"time_period": "14", "series_type": "close"},
			columns:  map[string]string{"RSI": domain.IndRSI},
		},
		{
			function: "MACD",
			params:   map[string]string{"series_type": "close"},
			columns:  map[string]string{"MACD": domain.IndMACD, "MACD_Signal": domain.IndSignal},
		},
		{
			function: "BBANDS",
			params:   map[string]string{"time_period": "20", "series_type": "close", "nbdevup": "2", "nbdevdn": "2"},
			columns:  map[string]string{"Real Upper Band": domain.IndBBUpper, "Real Lower Band": domain.IndBBLower},
		},
		{
			function: "SMA",
			params:   map[string]string{"time_period": "20", "series_type": "close"},
			columns:  map[string]string{"SMA": domain.IndSMA20},
		},
		{
			function: "ADX",
			params:   map[string]string{"time_period": "14"},
			columns:  map[string]string{"ADX": domain.IndADX},
		},
		{
			function: "STOCH",
			columns:  map[string]string{"SlowK": domain.IndStochK, "SlowD": domain.IndStochD},
		},
	}
}

// checkNotice detecta los errores que la API devuelve con HTTP 200: ticker
// inexistente ("Error Message"), límite del free tier ("Note") o endpoint
// premium ("Information").
func checkNotice(payload map[string]json.RawMessage) error {
	for _, key := range []string{"Error Message", "Note", "Information"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
			return fmt.Errorf("%w: %s", domain.ErrDataUnavailable, msg)
		}
	}
	return nil
}

// extractPrefixed devuelve el primer campo del payload cuya clave empieza
// por prefix.
func extractPrefixed(payload map[string]json.RawMessage, prefix string) (json.RawMessage, error) {
	for key, raw := range payload {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("%w: no %q field in response", domain.ErrDataUnavailable, prefix)
}
