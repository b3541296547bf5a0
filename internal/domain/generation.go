package domain

// Individual es un candidato de la población del optimizador: un genoma y
// su fitness. Evaluated marca si el fitness es real o todavía el valor
// heredado/cero, para no reevaluar clones intactos.
type Individual struct {
	Genome    Genome
	Fitness   float64
	Evaluated bool
}

// GenerationRecord es la instantánea de una generación completa del
// optimizador: población evaluada, mejor individuo y estadísticas. Es lo
// que se persiste y lo que consume la salida de consola.
type GenerationRecord struct {
	Gen        int
	Population []Individual
	Best       Individual
	MaxFitness float64
	AvgFitness float64
	MinFitness float64
}

// Stats recalcula max/avg/min a partir de la población. Los individuos no
// evaluados (fitness centinela) cuentan igual, como en cualquier resumen
// estadístico de la población real.
func (g *GenerationRecord) Stats() {
	if len(g.Population) == 0 {
		return
	}
	max := g.Population[0].Fitness
	min := g.Population[0].Fitness
	var sum float64
	for _, ind := range g.Population {
		if ind.Fitness > max {
			max = ind.Fitness
		}
		if ind.Fitness < min {
			min = ind.Fitness
		}
		sum += ind.Fitness
	}
	g.MaxFitness = max
	g.MinFitness = min
	g.AvgFitness = sum / float64(len(g.Population))
}
