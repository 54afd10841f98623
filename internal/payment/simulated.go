package payment

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// Rand is the random source used to decide simulated outcomes.
type Rand interface {
	Float64() float64
}

type RandFunc func() float64

func (f RandFunc) Float64() float64 { return f() }

var declineReasons = []string{"card_declined", "insufficient_funds", "processing_error"}

// Simulator approves a charge when a draw from its random source is at most
// the success rate.
type Simulator struct {
	successRate float64
	rnd         Rand
}

func NewSimulator(successRate float64, rnd Rand) *Simulator {
	if rnd == nil {
		rnd = RandFunc(rand.Float64)
	}
	return &Simulator{successRate: successRate, rnd: rnd}
}

func (s *Simulator) settle(prefix string, metadata map[string]string) Result {
	draw := s.rnd.Float64()
	if draw <= s.successRate {
		return Result{
			Success:       true,
			TransactionID: prefix + "_" + uuid.NewString(),
			Metadata:      metadata,
		}
	}
	reason := declineReasons[int(draw*1000)%len(declineReasons)]
	return Result{Success: false, DeclineReason: reason, Metadata: metadata}
}
