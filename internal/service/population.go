package service

import (
	"fmt"
	"math/rand/v2"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/store"
)

// Endowment bounds the total property, in cents, a participant starts with.
type Endowment struct {
	MinProperty int64
	MaxProperty int64
}

// Populate creates count participants with ids 1..count. Each draws a total
// property uniformly from the endowment range and splits it with random
// weights between cash and every instrument; shares are bought at the
// current price and the remainder goes to cash.
func Populate(participants *store.ParticipantStore, instruments *domain.InstrumentRegistry, count int, e Endowment, rng *rand.Rand) error {
	if count <= 0 {
		return domain.ErrNoParticipants
	}
	if e.MinProperty <= 0 || e.MaxProperty < e.MinProperty {
		return &domain.ValidationError{
			Message: fmt.Sprintf("invalid endowment range %d..%d", e.MinProperty, e.MaxProperty),
		}
	}

	quotes := instruments.Quotes()
	for id := 1; id <= count; id++ {
		property := e.MinProperty + rng.Int64N(e.MaxProperty-e.MinProperty+1)

		// one weight for cash plus one per instrument
		weights := make([]float64, len(quotes)+1)
		var total float64
		for i := range weights {
			weights[i] = rng.Float64()
			total += weights[i]
		}

		holdings := make(map[string]int64, len(quotes))
		spent := int64(0)
		for i, q := range quotes {
			if q.Price <= 0 || total == 0 {
				continue
			}
			share := int64(float64(property) * weights[i+1] / total)
			qty := share / q.Price
			holdings[q.Symbol] = qty
			spent += qty * q.Price
		}

		p := domain.NewParticipant(id, property-spent, holdings)
		if err := participants.Create(p); err != nil {
			return fmt.Errorf("create participant %d: %w", id, err)
		}
	}
	return nil
}
