package domain

import "errors"

// Errores sentinela del core. Se envuelven con fmt.Errorf("...: %w") para
// añadir contexto (ticker, coeficiente, rango) y se comprueban con errors.Is.
var (
	// ErrInvalidGenome indica un vector de coeficientes malformado: longitud
	// incorrecta o algún valor fuera de su rango declarado. Fatal para la
	// llamada; nunca se corrige silenciosamente.
	ErrInvalidGenome = errors.New("invalid genome")

	// ErrMissingIndicator indica que una barra no trae una columna que la
	// fórmula de scoring requiere. Violación de contrato del proveedor.
	ErrMissingIndicator = errors.New("missing indicator")

	// ErrInsufficientData indica una secuencia de barras vacía.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDataUnavailable indica que el proveedor no pudo entregar datos para
	// un ticker (red, ticker inexistente). El evaluador de fitness lo
	// recupera saltando ese ticker; para un backtest manual es fatal.
	ErrDataUnavailable = errors.New("data unavailable")
)
