package service

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/Barahlush/housekeeper-tg-bot/internal/model"
)

// TaskCounter reports how many tasks of a chat a user has been executor of.
type TaskCounter interface {
	CountTasksByExecutor(ctx context.Context, chatID, userID uint) (int64, error)
}

// Selector picks an executor with probability proportional to
// exp(-tasks done), so members with fewer tasks are offered more often.
type Selector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSelector draws from src. Pass a seeded source for reproducible draws.
func NewSelector(src rand.Source) *Selector {
	return &Selector{rnd: rand.New(src)}
}

// NewRandomSelector seeds the selector from the runtime random source.
func NewRandomSelector() *Selector {
	return NewSelector(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Select reads the historical counts through counter and draws one candidate.
// Callers that persist the choice pass a transactional counter so the counts
// and the write share one unit of work.
func (s *Selector) Select(ctx context.Context, counter TaskCounter, chatID uint, candidates []model.User) (model.User, error) {
	if len(candidates) == 0 {
		return model.User{}, ErrNoCandidates
	}

	counts := make([]int64, len(candidates))
	for i, user := range candidates {
		n, err := counter.CountTasksByExecutor(ctx, chatID, user.ID)
		if err != nil {
			return model.User{}, err
		}
		counts[i] = n
	}

	return candidates[s.draw(Weights(counts))], nil
}

// Weights returns the softmax of the negated counts. The shift by the maximum
// keeps exp from underflowing to zero for large counts.
func Weights(counts []int64) []float64 {
	if len(counts) == 0 {
		return nil
	}

	shift := math.Inf(-1)
	for _, c := range counts {
		shift = math.Max(shift, -float64(c))
	}

	weights := make([]float64, len(counts))
	var sum float64
	for i, c := range counts {
		weights[i] = math.Exp(-float64(c) - shift)
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

func (s *Selector) draw(weights []float64) int {
	s.mu.Lock()
	r := s.rnd.Float64()
	s.mu.Unlock()

	var acc float64
	for i, w := range weights {
		acc += w
		if r < acc {
			return i
		}
	}
	// Rounding can leave acc slightly below 1.
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return len(weights) - 1
}
