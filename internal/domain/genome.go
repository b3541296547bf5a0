package domain

import (
	"fmt"
	"math/rand"
)

// Índices del vector de coeficientes. El orden es fijo: es el mismo orden
// en que se serializa (13 floats planos) y en que se persiste en SQLite.
const (
	CoefBollinger = iota
	CoefRSI
	CoefMACD
	CoefStoch
	CoefADXSMA
	CoefVolume
	ADXTrendThreshold
	BuySellThreshold
	RSIOverbought
	RSIOversold
	StochOverbought
	StochOversold
	VolumeSMAMultiplier

	NumCoefficients // 13
)

// CoefficientNames da nombre legible a cada posición del genoma.
var CoefficientNames = [NumCoefficients]string{
	"COEF_BOLLINGER",
	"COEF_RSI",
	"COEF_MACD",
	"COEF_STOCH",
	"COEF_ADX_SMA",
	"COEF_VOLUME",
	"ADX_TREND_THRESHOLD",
	"BUY_SELL_THRESHOLD",
	"RSI_OVERBOUGHT",
	"RSI_OVERSOLD",
	"STOCH_OVERBOUGHT",
	"STOCH_OVERSOLD",
	"VOLUME_SMA_MULTIPLIER",
}

// Range es el rango válido de un coeficiente. Se usa para la inicialización
// aleatoria y para re-acotar tras crossover/mutación.
type Range struct {
	Min, Max float64
}

// Width devuelve el ancho del rango.
func (r Range) Width() float64 { return r.Max - r.Min }

// Clamp acota v dentro del rango.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// CoefficientRanges declara el rango válido de cada coeficiente.
var CoefficientRanges = [NumCoefficients]Range{
	CoefBollinger:       {0.5, 2.0},
	CoefRSI:             {0.5, 3.0},
	CoefMACD:            {0.5, 3.0},
	CoefStoch:           {0.5, 3.0},
	CoefADXSMA:          {0.5, 2.0},
	CoefVolume:          {0.5, 2.0},
	ADXTrendThreshold:   {10, 40},
	BuySellThreshold:    {0.5, 2.5},
	RSIOverbought:       {60, 80},
	RSIOversold:         {10, 40},
	StochOverbought:     {70, 90},
	StochOversold:       {10, 40},
	VolumeSMAMultiplier: {1.0, 3.0},
}

// Genome es el vector de 13 coeficientes que pondera los indicadores y fija
// los umbrales de decisión. Es un value type: los operadores genéticos
// producen genomas nuevos, nunca mutan uno ya evaluado.
type Genome [NumCoefficients]float64

// DefaultGenome devuelve la configuración de trading de referencia.
func DefaultGenome() Genome {
	return Genome{
		CoefBollinger:       0.8,
		CoefRSI:             2.4,
		CoefMACD:            1.55,
		CoefStoch:           2.0,
		CoefADXSMA:          0.75,
		CoefVolume:          1.0,
		ADXTrendThreshold:   25,
		BuySellThreshold:    1.4,
		RSIOverbought:       70,
		RSIOversold:         30,
		StochOverbought:     80,
		StochOversold:       20,
		VolumeSMAMultiplier: 1.5,
	}
}

// RandomGenome genera un genoma uniforme dentro de los rangos declarados.
func RandomGenome(rng *rand.Rand) Genome {
	var g Genome
	for i, r := range CoefficientRanges {
		g[i] = r.Min + rng.Float64()*r.Width()
	}
	return g
}

// Validate comprueba que cada coeficiente está dentro de su rango.
// Devuelve ErrInvalidGenome envuelto con el coeficiente ofensor.
func (g Genome) Validate() error {
	for i, r := range CoefficientRanges {
		if g[i] < r.Min || g[i] > r.Max {
			return fmt.Errorf("%w: %s=%.4f outside [%.2f, %.2f]",
				ErrInvalidGenome, CoefficientNames[i], g[i], r.Min, r.Max)
		}
	}
	return nil
}

// Clamped devuelve una copia con cada coeficiente acotado a su rango.
func (g Genome) Clamped() Genome {
	for i, r := range CoefficientRanges {
		g[i] = r.Clamp(g[i])
	}
	return g
}

// Map devuelve el genoma como mapa nombre→valor, para logs y reportes.
func (g Genome) Map() map[string]float64 {
	m := make(map[string]float64, NumCoefficients)
	for i, name := range CoefficientNames {
		m[name] = g[i]
	}
	return m
}
