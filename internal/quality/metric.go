package quality

import (
	"context"
	"fmt"

	"persona/internal/evidence"
	"persona/internal/persona"
)

// Input carries everything a metric may inspect. Metrics never mutate it.
type Input struct {
	Candidate *persona.Candidate
	Siblings  []*persona.Candidate
	Linker    evidence.Linker
	Config    Config
}

// Evaluation is one dimension's verdict. Links is populated only by the
// evidence metric; the calling stage decides whether to attach them to the
// candidate (the metric itself must not mutate its input).
type Evaluation struct {
	Score  float64 // [0,1]
	Issues []string
	Links  []persona.EvidenceLink
}

// Metric scores a single quality dimension.
type Metric interface {
	Dimension() persona.Dimension
	Evaluate(ctx context.Context, in Input) (Evaluation, error)
}

// Registry is a typed, ordered collection of metrics keyed by dimension.
// Metrics are registered explicitly at construction; there is no dynamic
// discovery, which keeps the set injectable for tests.
type Registry struct {
	order   []persona.Dimension
	metrics map[persona.Dimension]Metric
}

// NewRegistry builds a registry from the given metrics, rejecting duplicates.
func NewRegistry(metrics ...Metric) (*Registry, error) {
	r := &Registry{metrics: make(map[persona.Dimension]Metric, len(metrics))}
	for _, m := range metrics {
		dim := m.Dimension()
		if _, dup := r.metrics[dim]; dup {
			return nil, fmt.Errorf("duplicate metric for dimension %s", dim)
		}
		r.metrics[dim] = m
		r.order = append(r.order, dim)
	}
	return r, nil
}

// DefaultRegistry wires the five standard dimensions.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		&completenessMetric{},
		&consistencyMetric{},
		&evidenceMetric{},
		&distinctivenessMetric{},
		&realismMetric{},
	)
	if err != nil {
		// The default set is static; a duplicate here is a programming error.
		panic(err)
	}
	return r
}

// Metrics returns the registered metrics in registration order.
func (r *Registry) Metrics() []Metric {
	out := make([]Metric, 0, len(r.order))
	for _, dim := range r.order {
		out = append(out, r.metrics[dim])
	}
	return out
}
