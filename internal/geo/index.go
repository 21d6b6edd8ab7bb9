package geo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/logger"
)

// Hit is a territory returned by a proximity query
type Hit struct {
	Territory      *domain.Territory `json:"territory"`
	DistanceMeters float64           `json:"distance_meters"`
}

// Index is the spatial lookup of territories near a point
//
//go:generate mockgen -source=index.go -destination=../mocks/geo_index.go -package=mocks -mock_names=Index=MockGeoIndex
type Index interface {
	// QueryNearby returns territories whose center lies within radiusMeters, nearest first
	QueryNearby(lat, lon, radiusMeters float64) []Hit
	// Upsert inserts or replaces a territory entry. Entries older than the indexed version are ignored.
	Upsert(t *domain.Territory) bool
	// Get returns the indexed copy of a territory
	Get(id string) (*domain.Territory, bool)
	// Len returns the number of indexed territories
	Len() int
}

// Lister pages through every territory of the backing store
type Lister interface {
	List(ctx context.Context, afterID string, limit int) ([]*domain.Territory, error)
}

type entry struct {
	cell      string
	territory *domain.Territory
}

// geoIndex buckets territories by geohash cell. Reads take a shared lock only.
type geoIndex struct {
	grid Grid

	mu    sync.RWMutex
	cells map[string]map[string]*domain.Territory
	byID  map[string]entry
}

// NewIndex creates an empty index over the given grid
func NewIndex(grid Grid) Index {
	return &geoIndex{
		grid:  grid,
		cells: make(map[string]map[string]*domain.Territory),
		byID:  make(map[string]entry),
	}
}

// Upsert inserts or replaces a territory, moving it between cells if its center changed
func (i *geoIndex) Upsert(t *domain.Territory) bool {
	if t == nil {
		return false
	}
	cell := i.grid.Encode(t.Center)
	stored := t.Clone()

	i.mu.Lock()
	defer i.mu.Unlock()

	prev, ok := i.byID[t.ID]
	if ok && prev.territory.Version > t.Version {
		return false
	}
	if ok && prev.cell != cell {
		bucket := i.cells[prev.cell]
		delete(bucket, t.ID)
		if len(bucket) == 0 {
			delete(i.cells, prev.cell)
		}
	}

	bucket, ok := i.cells[cell]
	if !ok {
		bucket = make(map[string]*domain.Territory)
		i.cells[cell] = bucket
	}
	bucket[t.ID] = stored
	i.byID[t.ID] = entry{cell: cell, territory: stored}
	return true
}

// Get returns a copy of the indexed territory
func (i *geoIndex) Get(id string) (*domain.Territory, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	e, ok := i.byID[id]
	if !ok {
		return nil, false
	}
	return e.territory.Clone(), true
}

// Len returns the number of indexed territories
func (i *geoIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.byID)
}

// QueryNearby returns territories within radiusMeters of (lat, lon) sorted by distance
func (i *geoIndex) QueryNearby(lat, lon, radiusMeters float64) []Hit {
	origin := domain.Location{Lat: lat, Lon: lon}
	cells, fullScan := i.grid.Cover(origin, radiusMeters)

	i.mu.RLock()
	var hits []Hit
	collect := func(t *domain.Territory) {
		d := Distance(origin, t.Center)
		if d <= radiusMeters {
			hits = append(hits, Hit{Territory: t.Clone(), DistanceMeters: d})
		}
	}
	if fullScan {
		for _, e := range i.byID {
			collect(e.territory)
		}
	} else {
		for _, cell := range cells {
			for _, t := range i.cells[cell] {
				collect(t)
			}
		}
	}
	i.mu.RUnlock()

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].DistanceMeters == hits[b].DistanceMeters {
			return hits[a].Territory.ID < hits[b].Territory.ID
		}
		return hits[a].DistanceMeters < hits[b].DistanceMeters
	})

	return hits
}

// Warm loads every territory from the lister into the index
func Warm(ctx context.Context, idx Index, lister Lister, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = 500
	}

	total := 0
	afterID := ""
	for {
		page, err := lister.List(ctx, afterID, pageSize)
		if err != nil {
			return total, fmt.Errorf("failed to list territories after %q: %w", afterID, err)
		}
		for _, t := range page {
			idx.Upsert(t)
		}
		total += len(page)

		if len(page) < pageSize {
			break
		}
		afterID = page[len(page)-1].ID
	}

	logger.InfoCtx(ctx, "Geo index warmed", zap.Int("territories", total))
	return total, nil
}
