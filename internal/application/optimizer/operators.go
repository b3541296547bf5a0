package optimizer

// operators.go — operadores genéticos sobre el genoma.
//
// Selección por torneo, cruce blend (BLX-α) y mutación gaussiana con σ
// proporcional al ancho del rango de cada coeficiente. Todos devuelven
// genomas nuevos re-acotados a sus rangos: ningún genoma fuera de rango
// llega jamás a evaluarse.

import (
	"math/rand"

	"github.com/alejandrodnm/tickerbot/internal/domain"
)

const (
	// blendAlpha extiende el intervalo de mezcla del cruce más allá de los
	// padres, para poder explorar fuera del segmento que los une.
	blendAlpha = 0.5

	// mutationSigmaFactor escala la σ de la mutación gaussiana al ancho del
	// rango del coeficiente: un umbral en [10, 40] muta en pasos
	// comparables a un peso en [0.5, 2.0].
	mutationSigmaFactor = 0.1

	// geneMutationProb es la probabilidad de mutar cada coeficiente dentro
	// de un individuo ya seleccionado para mutación.
	geneMutationProb = 0.2
)

// tournament devuelve el individuo con mejor fitness de k elegidos al azar
// con reemplazo.
func tournament(rng *rand.Rand, pop []domain.Individual, k int) domain.Individual {
	best := pop[rng.Intn(len(pop))]
	for i := 1; i < k; i++ {
		cand := pop[rng.Intn(len(pop))]
		if cand.Fitness > best.Fitness {
			best = cand
		}
	}
	return best
}

// blendCrossover cruza dos genomas gen a gen: cada coeficiente del hijo se
// toma de un punto aleatorio del segmento entre los padres extendido un
// factor α por ambos lados (BLX-α).
func blendCrossover(rng *rand.Rand, a, b domain.Genome) domain.Genome {
	var child domain.Genome
	for i := range child {
		gamma := (1+2*blendAlpha)*rng.Float64() - blendAlpha
		child[i] = (1-gamma)*a[i] + gamma*b[i]
	}
	return child.Clamped()
}

// mutate perturba cada coeficiente con probabilidad geneMutationProb con
// ruido gaussiano de σ proporcional al ancho de su rango.
func mutate(rng *rand.Rand, g domain.Genome) domain.Genome {
	for i := range g {
		if rng.Float64() >= geneMutationProb {
			continue
		}
		sigma := mutationSigmaFactor * domain.CoefficientRanges[i].Width()
		g[i] += rng.NormFloat64() * sigma
	}
	return g.Clamped()
}
