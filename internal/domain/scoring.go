package domain

import (
	"fmt"
	"time"
)

// Action es la decisión discreta derivada del score de una barra.
type Action string

const (
	ActionHold  Action = "HOLD"
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionClose Action = "CLOSE" // liquidación forzada (fin de datos), no la emite el scorer
)

// Label devuelve la etiqueta de consola de la acción.
func (a Action) Label() string {
	switch a {
	case ActionBuy:
		return "Comprar"
	case ActionSell:
		return "Vender"
	case ActionClose:
		return "Cerrar"
	default:
		return "Mantener"
	}
}

// Score combina los indicadores de una barra con el genoma en un único
// scalar y su acción. Seis reglas votan acumulando un score de compra y uno
// de venta, cada voto ponderado por su coeficiente; el Score devuelto es
// buy − sell.
//
//  1. Bollinger: cierre fuera de las bandas.
//  2. RSI: sobreventa / sobrecompra.
//  3. Cruce de MACD sobre su señal (necesita los valores de la barra
//     anterior; se salta si no están).
//  4. Estocástico: %K y %D ambos en zona extrema.
//  5. ADX: tendencia fuerte, dirección según cierre vs SMA20.
//  6. Spike de volumen en la dirección del movimiento.
//
// Filtro de volumen: si el volumen de la barra queda por debajo de
// Volume_SMA × VOLUME_SMA_MULTIPLIER el score se anula — sin operar en
// barras ilíquidas, el umbral convierte el 0 en Mantener.
//
// Acción: Comprar si Score > +BUY_SELL_THRESHOLD, Vender si
// Score < −BUY_SELL_THRESHOLD, Mantener en otro caso. Desigualdad estricta:
// los empates son Mantener.
//
// Función pura y determinista: misma (barra, genoma) → mismo resultado.
func Score(bar Bar, g Genome) (float64, Action, error) {
	if err := g.Validate(); err != nil {
		return 0, ActionHold, fmt.Errorf("domain.Score: %w", err)
	}
	if missing := bar.HasRequiredIndicators(); missing != "" {
		return 0, ActionHold, fmt.Errorf("domain.Score: bar %s: %w: %s",
			bar.Timestamp.Format(time.RFC3339), ErrMissingIndicator, missing)
	}

	ind := bar.Indicators
	var buy, sell float64

	// 1. Bandas de Bollinger
	if bar.Close < ind[IndBBLower] {
		buy += g[CoefBollinger]
	}
	if bar.Close > ind[IndBBUpper] {
		sell += g[CoefBollinger]
	}

	// 2. RSI
	if ind[IndRSI] < g[RSIOversold] {
		buy += g[CoefRSI]
	} else if ind[IndRSI] > g[RSIOverbought] {
		sell += g[CoefRSI]
	}

	// 3. Cruce de MACD — requiere la barra anterior
	prevMACD, okMACD := bar.Indicator(IndPrevMACD)
	prevSignal, okSignal := bar.Indicator(IndPrevSignal)
	if okMACD && okSignal {
		if ind[IndMACD] > ind[IndSignal] && prevMACD <= prevSignal {
			buy += g[CoefMACD]
		} else if ind[IndMACD] < ind[IndSignal] && prevMACD >= prevSignal {
			sell += g[CoefMACD]
		}
	}

	// 4. Estocástico
	if ind[IndStochK] < g[StochOversold] && ind[IndStochD] < g[StochOversold] {
		buy += g[CoefStoch]
	} else if ind[IndStochK] > g[StochOverbought] && ind[IndStochD] > g[StochOverbought] {
		sell += g[CoefStoch]
	}

	// 5. ADX + SMA20: con tendencia fuerte, el lado lo decide el cierre
	if ind[IndADX] > g[ADXTrendThreshold] {
		if bar.Close > ind[IndSMA20] {
			buy += g[CoefADXSMA]
		} else {
			sell += g[CoefADXSMA]
		}
	}

	// 6. Spike de volumen en la dirección del movimiento
	volumeFloor := g[VolumeSMAMultiplier] * ind[IndVolumeSMA]
	if bar.Volume > volumeFloor {
		if prevClose, ok := bar.Indicator(IndPrevClose); ok {
			if bar.Close > prevClose {
				buy += g[CoefVolume]
			} else if bar.Close < prevClose {
				sell += g[CoefVolume]
			}
		}
	}

	score := buy - sell

	// Filtro de volumen: barra ilíquida → score anulado → Mantener
	if bar.Volume < volumeFloor {
		score = 0
	}

	action := ActionHold
	switch {
	case score > g[BuySellThreshold]:
		action = ActionBuy
	case score < -g[BuySellThreshold]:
		action = ActionSell
	}
	return score, action, nil
}

// TickerSignal es una fila del watchlist: el score y la acción de la última
// barra de un ticker con el genoma activo.
type TickerSignal struct {
	Ticker string
	At     time.Time
	Close  float64
	Score  float64
	Action Action
}
