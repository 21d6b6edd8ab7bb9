package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/feral-file/territory-arbiter/internal/adapter"
	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/geo"
	"github.com/feral-file/territory-arbiter/internal/logger"
	"github.com/feral-file/territory-arbiter/internal/store"
)

// Territory is one entry of a seed file
type Territory struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	Lat          float64 `yaml:"lat"`
	Lon          float64 `yaml:"lon"`
	RadiusMeters float64 `yaml:"radius_meters"`
	Level        int     `yaml:"level"`
}

// File is the structure of a territory seed file
type File struct {
	Version     int         `yaml:"version"`
	Territories []Territory `yaml:"territories"`
}

// Result counts the outcome of a seeding run
type Result struct {
	Created int
	Skipped int
}

// Loader reads territory seed files
type Loader interface {
	// Load reads, validates and converts the territories of the seed file at filePath
	Load(filePath string) ([]*domain.Territory, error)
}

type loader struct {
	fs   adapter.FileSystem
	grid geo.Grid
}

// NewLoader creates a seed loader. The grid assigns the geohash prefix of every territory.
func NewLoader(fs adapter.FileSystem, grid geo.Grid) Loader {
	return &loader{
		fs:   fs,
		grid: grid,
	}
}

func (l *loader) Load(filePath string) ([]*domain.Territory, error) {
	data, err := l.fs.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Territories))
	territories := make([]*domain.Territory, 0, len(file.Territories))
	for i, entry := range file.Territories {
		if err := entry.validate(); err != nil {
			return nil, fmt.Errorf("territory #%d: %w", i, err)
		}
		if _, ok := seen[entry.ID]; ok {
			return nil, fmt.Errorf("territory #%d: duplicate id %q", i, entry.ID)
		}
		seen[entry.ID] = struct{}{}

		center := domain.Location{Lat: entry.Lat, Lon: entry.Lon}
		territories = append(territories, &domain.Territory{
			ID:            entry.ID,
			Name:          entry.Name,
			Center:        center,
			RadiusMeters:  entry.RadiusMeters,
			GeohashPrefix: l.grid.Encode(center),
			Level:         entry.Level,
		})
	}

	return territories, nil
}

func (t Territory) validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("id is required")
	}
	if !(domain.Location{Lat: t.Lat, Lon: t.Lon}).Valid() {
		return fmt.Errorf("center %f,%f is out of range", t.Lat, t.Lon)
	}
	if t.RadiusMeters <= 0 {
		return fmt.Errorf("radius_meters must be positive, got %f", t.RadiusMeters)
	}
	if t.Level < 0 {
		return fmt.Errorf("level must not be negative, got %d", t.Level)
	}
	return nil
}

// Seed creates every territory that does not exist yet. Existing territories are left untouched.
func Seed(ctx context.Context, s store.Store, territories []*domain.Territory) (Result, error) {
	var result Result
	for _, t := range territories {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		err := s.Create(ctx, t)
		switch {
		case err == nil:
			result.Created++
		case errors.Is(err, domain.ErrTerritoryAlreadyExists):
			logger.Debug("Territory already seeded", zap.String("territory_id", t.ID))
			result.Skipped++
		default:
			return result, fmt.Errorf("failed to create territory %s: %w", t.ID, err)
		}
	}

	return result, nil
}
