package projector

import (
	"context"

	"rbyrct/internal/parallel"
	"rbyrct/pkg/geometry"
	"rbyrct/pkg/volume"
)

// Cache precomputes the contribution set of every ray once per
// geometry/grid pair. It trades memory (one slice per ray) for skipping
// traversal in every iteration, which pays off when the engine runs many
// iterations over a static geometry. The cached sets are read-only after
// construction and safe to share across workers.
type Cache struct {
	p    *Projector
	rays [][]Contribution
	max  int
}

// NewCache traces all rays of p using up to workers goroutines.
func NewCache(ctx context.Context, p *Projector, workers int) (*Cache, error) {
	c := &Cache{
		p:    p,
		rays: make([][]Contribution, p.RayCount()),
	}
	err := parallel.Ranges(ctx, workers, p.RayCount(), func(_, start, end int) error {
		for r := start; r < end; r++ {
			contribs := p.Contributions(r, make([]Contribution, 0, p.MaxContributions()))
			if len(contribs) > 0 {
				c.rays[r] = contribs
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, cs := range c.rays {
		if len(cs) > c.max {
			c.max = len(cs)
		}
	}
	return c, nil
}

// Grid implements Operator.
func (c *Cache) Grid() volume.Grid { return c.p.grid }

// Geometry implements Operator.
func (c *Cache) Geometry() geometry.Geometry { return c.p.geom }

// MaxContributions implements Operator.
func (c *Cache) MaxContributions() int { return c.max }

// Contributions implements Operator. The buf argument is ignored; the cached
// slice is returned directly and must not be mutated.
func (c *Cache) Contributions(ray int, _ []Contribution) []Contribution {
	return c.rays[ray]
}
