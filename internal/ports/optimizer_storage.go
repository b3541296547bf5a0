package ports

import (
	"context"

	"github.com/alejandrodnm/tickerbot/internal/domain"
)

// OptimizerStorage persists optimizer state: generation snapshots and the
// active genome the watcher trades with.
type OptimizerStorage interface {
	// SaveGeneration persiste la instantánea completa de una generación.
	// Reemplaza cualquier instantánea previa del mismo índice.
	SaveGeneration(ctx context.Context, rec domain.GenerationRecord) error

	// LoadLastGeneration devuelve la última generación persistida.
	// ok es false si el optimizador nunca ha corrido.
	LoadLastGeneration(ctx context.Context) (rec domain.GenerationRecord, ok bool, err error)

	// ResetOptimizer borra todas las generaciones. No toca el genoma activo.
	ResetOptimizer(ctx context.Context) error

	// SaveActiveGenome fija el genoma con el que operan watcher y paper
	// trader. source documenta su procedencia ("default", "optimizer",
	// "manual").
	SaveActiveGenome(ctx context.Context, g domain.Genome, source string) error

	// LoadActiveGenome devuelve el genoma activo y su procedencia.
	// ok es false si nunca se ha fijado uno.
	LoadActiveGenome(ctx context.Context) (g domain.Genome, source string, ok bool, err error)
}
