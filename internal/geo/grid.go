package geo

import (
	"math"

	geohash "github.com/TomiHiltunen/geohash-golang"

	"github.com/feral-file/territory-arbiter/internal/domain"
)

const (
	// MAX_PRECISION is the longest geohash the grid will use
	MAX_PRECISION = 12
	// DEFAULT_MAX_COVER_CELLS bounds a cover before queries fall back to a full scan
	DEFAULT_MAX_COVER_CELLS = 256
)

// Grid is the geohash cell grid of a fixed precision.
//
// Cells are addressed by (row, col): rows run south to north from -90°, columns
// west to east from -180°. Columns wrap at the antimeridian and rows are clamped
// at the poles, so neighbor expansion never falls off the edge of the grid.
type Grid struct {
	precision     int
	rows          int
	cols          int
	cellLat       float64
	cellLon       float64
	maxCoverCells int
}

// NewGrid creates a grid for the given geohash precision (1..12)
func NewGrid(precision int, maxCoverCells int) Grid {
	precision = max(1, min(MAX_PRECISION, precision))
	if maxCoverCells <= 0 {
		maxCoverCells = DEFAULT_MAX_COVER_CELLS
	}

	latBits, lonBits := bitsForPrecision(precision)
	rows := 1 << latBits
	cols := 1 << lonBits

	return Grid{
		precision:     precision,
		rows:          rows,
		cols:          cols,
		cellLat:       180 / float64(rows),
		cellLon:       360 / float64(cols),
		maxCoverCells: maxCoverCells,
	}
}

// PrecisionForRadius returns the finest precision whose cell edge is at least radiusMeters
// at the equator, so a query of that radius touches at most the 3x3 block around its cell.
func PrecisionForRadius(radiusMeters float64) int {
	for p := MAX_PRECISION; p >= 1; p-- {
		height, width := CellSizeMeters(p)
		if math.Min(height, width) >= radiusMeters {
			return p
		}
	}
	return 1
}

// CellSizeMeters returns the (height, width) of a cell at the equator
func CellSizeMeters(precision int) (float64, float64) {
	latBits, lonBits := bitsForPrecision(precision)
	height := 180 / float64(int64(1)<<latBits) * METERS_PER_DEGREE_LAT
	width := 360 / float64(int64(1)<<lonBits) * METERS_PER_DEGREE_LAT
	return height, width
}

// Precision returns the geohash length of the grid cells
func (g Grid) Precision() int {
	return g.precision
}

// Encode returns the geohash cell key containing loc
func (g Grid) Encode(loc domain.Location) string {
	return geohash.EncodeWithPrecision(loc.Lat, loc.Lon, g.precision)
}

// Cover returns the keys of every cell intersecting the circle around center.
// When the circle contains a pole or the cover would exceed the configured cell
// budget, it returns fullScan=true and the caller must scan every entry instead.
func (g Grid) Cover(center domain.Location, radiusMeters float64) (cells []string, fullScan bool) {
	radiusMeters = math.Max(0, radiusMeters)
	delta := radiusMeters / EARTH_RADIUS_METERS // angular radius in radians
	if delta >= math.Pi/2 {
		return nil, true
	}

	deltaDeg := delta * 180 / math.Pi
	latMin := center.Lat - deltaDeg
	latMax := center.Lat + deltaDeg

	rowMin := g.rowOf(latMin)
	rowMax := g.rowOf(latMax)

	allCols := latMax >= 90 || latMin <= -90
	var colMin, colCount int
	if !allCols {
		// Exact longitude half-extent of a spherical cap
		sinDelta := math.Sin(delta)
		cosLat := math.Cos(toRadians(center.Lat))
		if sinDelta >= cosLat {
			allCols = true
		} else {
			halfSpan := math.Asin(sinDelta/cosLat) * 180 / math.Pi
			if 2*halfSpan >= 360-g.cellLon {
				allCols = true
			} else {
				colMin = g.colOf(center.Lon - halfSpan)
				colMax := g.colOf(center.Lon + halfSpan)
				colCount = (colMax-colMin+g.cols)%g.cols + 1
			}
		}
	}
	if allCols {
		colMin = 0
		colCount = g.cols
	}

	rowCount := rowMax - rowMin + 1
	if rowCount*colCount > g.maxCoverCells {
		return nil, true
	}

	seen := make(map[string]struct{}, rowCount*colCount)
	cells = make([]string, 0, rowCount*colCount)
	for row := rowMin; row <= rowMax; row++ {
		for i := 0; i < colCount; i++ {
			col := (colMin + i) % g.cols
			key := g.Encode(g.cellCenter(row, col))
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			cells = append(cells, key)
		}
	}

	return cells, false
}

func (g Grid) rowOf(lat float64) int {
	row := int(math.Floor((clampLat(lat) + 90) / g.cellLat))
	return max(0, min(g.rows-1, row))
}

func (g Grid) colOf(lon float64) int {
	col := int(math.Floor((wrapLon(lon) + 180) / g.cellLon))
	return ((col % g.cols) + g.cols) % g.cols
}

func (g Grid) cellCenter(row, col int) domain.Location {
	return domain.Location{
		Lat: -90 + (float64(row)+0.5)*g.cellLat,
		Lon: -180 + (float64(col)+0.5)*g.cellLon,
	}
}

// bitsForPrecision splits the 5*precision geohash bits between latitude and longitude.
// Longitude takes the extra bit when the total is odd.
func bitsForPrecision(precision int) (latBits, lonBits int) {
	total := 5 * precision
	lonBits = (total + 1) / 2
	latBits = total / 2
	return latBits, lonBits
}
