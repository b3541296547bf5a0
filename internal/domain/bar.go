package domain

import "time"

// Nombres de las columnas de indicadores que el proveedor de datos adjunta
// a cada barra. Coinciden con los headers de los CSV de fixtures.
const (
	IndRSI       = "RSI"
	IndMACD      = "MACD"
	IndSignal    = "Signal"
	IndBBUpper   = "Upper"
	IndBBLower   = "Lower"
	IndSMA20     = "SMA20"
	IndADX       = "ADX"
	IndStochK    = "Stoch_K"
	IndStochD    = "Stoch_D"
	IndVolumeSMA = "Volume_SMA"

	// Columnas desplazadas de la barra anterior. Opcionales: las reglas que
	// las necesitan se saltan cuando faltan (primera barra de la serie).
	IndPrevMACD   = "prev_MACD"
	IndPrevSignal = "prev_Signal"
	IndPrevClose  = "prev_Close"
)

// RequiredIndicators son las columnas que la fórmula de scoring exige en
// cada barra. Si falta alguna, el scorer falla con ErrMissingIndicator.
var RequiredIndicators = []string{
	IndRSI, IndMACD, IndSignal, IndBBUpper, IndBBLower,
	IndSMA20, IndADX, IndStochK, IndStochD, IndVolumeSMA,
}

// Bar es una muestra OHLCV de un intervalo fijo con sus indicadores ya
// calculados por el proveedor. Inmutable para el core: el scorer y el
// simulador solo la leen.
type Bar struct {
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	Indicators map[string]float64
}

// Indicator devuelve el valor del indicador y si está presente.
func (b Bar) Indicator(name string) (float64, bool) {
	v, ok := b.Indicators[name]
	return v, ok
}

// HasRequiredIndicators devuelve el nombre del primer indicador requerido
// que falta, o "" si la barra está completa.
func (b Bar) HasRequiredIndicators() string {
	for _, name := range RequiredIndicators {
		if _, ok := b.Indicators[name]; !ok {
			return name
		}
	}
	return ""
}

// AttachPrev adjunta a cada barra las columnas desplazadas de la barra
// anterior (prev_MACD, prev_Signal, prev_Close) que el scorer usa para el
// cruce de MACD y la dirección del spike de volumen. Las series llegan del
// proveedor ordenadas por timestamp; la primera barra queda sin columnas
// prev y sus reglas dependientes se saltan.
//
// Muta los mapas de indicadores de las barras recibidas: el proveedor que
// construyó la serie es su dueño en ese punto.
func AttachPrev(bars []Bar) {
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1]
		if bars[i].Indicators == nil {
			bars[i].Indicators = make(map[string]float64, 3)
		}
		if v, ok := prev.Indicator(IndMACD); ok {
			bars[i].Indicators[IndPrevMACD] = v
		}
		if v, ok := prev.Indicator(IndSignal); ok {
			bars[i].Indicators[IndPrevSignal] = v
		}
		bars[i].Indicators[IndPrevClose] = prev.Close
	}
}

// AttachVolumeSMA calcula la media móvil de volumen sobre window barras y
// la adjunta como Volume_SMA donde la ventana está completa. Los
// proveedores la usan cuando la fuente no trae la columna: las APIs de
// indicadores no ofrecen SMA sobre volumen. Las barras deben venir
// ordenadas por timestamp ascendente.
func AttachVolumeSMA(bars []Bar, window int) {
	if window <= 0 {
		return
	}
	var sum float64
	for i := range bars {
		sum += bars[i].Volume
		if i >= window {
			sum -= bars[i-window].Volume
		}
		if i >= window-1 {
			if bars[i].Indicators == nil {
				bars[i].Indicators = make(map[string]float64, len(RequiredIndicators))
			}
			bars[i].Indicators[IndVolumeSMA] = sum / float64(window)
		}
	}
}
