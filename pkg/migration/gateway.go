package migration

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/erpflow/erpflow/pkg/errors"
)

// LoadOutcome reports one load call's record counts and per-record errors.
type LoadOutcome struct {
	Loaded int      `json:"loaded"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

// Loader is the target-system write gateway.
type Loader interface {
	Load(ctx context.Context, objectID string, records []map[string]interface{}) (*LoadOutcome, error)
}

// mockErrorRate is the simulated per-record failure rate of the mock
// gateway, roughly matching what a real target system rejects.
const mockErrorRate = 0.02

// MockGateway simulates a target system. A seeded RNG decides which records
// fail, so test runs are reproducible.
type MockGateway struct {
	mu        sync.Mutex
	rng       *rand.Rand
	errorRate float64
	loaded    map[string][]map[string]interface{}
}

// NewMockGateway creates a mock gateway with the default error rate.
func NewMockGateway(seed int64) *MockGateway {
	return &MockGateway{
		rng:       rand.New(rand.NewSource(seed)),
		errorRate: mockErrorRate,
		loaded:    make(map[string][]map[string]interface{}),
	}
}

// WithErrorRate overrides the simulated failure rate. Zero makes every load
// succeed, which scenario tests rely on.
func (g *MockGateway) WithErrorRate(rate float64) *MockGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errorRate = rate
	return g
}

// Load simulates writing records to the target.
func (g *MockGateway) Load(ctx context.Context, objectID string, records []map[string]interface{}) (*LoadOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeLoadFailed, "load cancelled")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	outcome := &LoadOutcome{}
	for i, rec := range records {
		if g.rng.Float64() < g.errorRate {
			outcome.Failed++
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("record %d: target rejected write", i))
			continue
		}
		g.loaded[objectID] = append(g.loaded[objectID], rec)
		outcome.Loaded++
	}
	return outcome, nil
}

// Loaded returns the records accepted so far for an object.
func (g *MockGateway) Loaded(objectID string) []map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loaded[objectID]
}
