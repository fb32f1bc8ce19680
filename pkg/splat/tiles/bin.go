package tiles

import (
	"cmp"
	"context"
	"fmt"
	gomath "math"
	"slices"

	"github.com/Faultbox/gsplat/internal/parallel"
	"github.com/Faultbox/gsplat/pkg/splat"
	"github.com/Faultbox/gsplat/pkg/splat/project"
)

// DefaultMaxIntersections bounds the number of records one call may emit.
const DefaultMaxIntersections = 1 << 28

// Record is one (tile, slot) intersection with its sort key.
type Record struct {
	Tile  int
	Slot  int
	Depth float64
}

// compareRecords orders records by tile, then depth, then slot.
func compareRecords(a, b Record) int {
	if c := cmp.Compare(a.Tile, b.Tile); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Depth, b.Depth); c != 0 {
		return c
	}
	return cmp.Compare(a.Slot, b.Slot)
}

// Bins is the sorted intersection list of a projection set.
type Bins struct {
	Grid    Grid
	Records []Record

	// Offsets[t] is the index of tile t's first record. Empty tiles hold
	// the next tile's start.
	Offsets []int

	// TilesTouched counts the tiles each slot overlaps.
	TilesTouched []int
}

// Range returns the record range [start, end) of a tile.
func (b *Bins) Range(tile int) (start, end int) {
	start = b.Offsets[tile]
	if tile+1 < len(b.Offsets) {
		return start, b.Offsets[tile+1]
	}
	return start, len(b.Records)
}

// Bin enumerates the tiles every visible footprint overlaps and sorts the
// records front to back within each tile. The result is identical for
// identical input regardless of scheduling. More than maxIntersections
// records fail with splat.ErrTooManyIntersections.
func Bin(ctx context.Context, pool *parallel.Pool, set *project.Set, grid Grid, maxIntersections int) (*Bins, error) {
	if maxIntersections <= 0 {
		maxIntersections = DefaultMaxIntersections
	}
	maxIntersections = min(maxIntersections, gomath.MaxInt32)

	n := set.Len()
	touched := make([]int, n)
	err := pool.ForEach(ctx, n, func(slot int) {
		fp := &set.Footprints[slot]
		if !fp.Visible() {
			return
		}
		minX, minY, maxX, maxY := grid.Rect(fp.Mean2D.X, fp.Mean2D.Y, fp.Radius)
		touched[slot] = (maxX - minX) * (maxY - minY)
	})
	if err != nil {
		return nil, err
	}

	starts := make([]int, n+1)
	for slot, c := range touched {
		starts[slot+1] = starts[slot] + c
		if starts[slot+1] > maxIntersections {
			return nil, fmt.Errorf("%w: more than %d tile intersections", splat.ErrTooManyIntersections, maxIntersections)
		}
	}

	unsorted := make([]Record, starts[n])
	err = pool.ForEach(ctx, n, func(slot int) {
		if touched[slot] == 0 {
			return
		}
		fp := &set.Footprints[slot]
		camera := set.ViewIDs[slot]
		minX, minY, maxX, maxY := grid.Rect(fp.Mean2D.X, fp.Mean2D.Y, fp.Radius)
		i := starts[slot]
		for ty := minY; ty < maxY; ty++ {
			for tx := minX; tx < maxX; tx++ {
				unsorted[i] = Record{Tile: grid.ID(camera, tx, ty), Slot: slot, Depth: fp.Depth}
				i++
			}
		}
	})
	if err != nil {
		return nil, err
	}

	records, offsets := countingSort(unsorted, grid.Len())
	err = pool.ForEach(ctx, grid.Len(), func(tile int) {
		end := len(records)
		if tile+1 < len(offsets) {
			end = offsets[tile+1]
		}
		slices.SortFunc(records[offsets[tile]:end], compareRecords)
	})
	if err != nil {
		return nil, err
	}

	return &Bins{Grid: grid, Records: records, Offsets: offsets, TilesTouched: touched}, nil
}

// countingSort groups records by tile, keeping their relative order, and
// returns the per-tile start offsets.
func countingSort(in []Record, tiles int) ([]Record, []int) {
	offsets := make([]int, tiles)
	for _, r := range in {
		if r.Tile+1 < tiles {
			offsets[r.Tile+1]++
		}
	}
	for t := 1; t < tiles; t++ {
		offsets[t] += offsets[t-1]
	}

	out := make([]Record, len(in))
	next := append([]int(nil), offsets...)
	for _, r := range in {
		out[next[r.Tile]] = r
		next[r.Tile]++
	}
	return out, offsets
}

// EncodeOffsets derives the per-tile start offsets from records sorted by
// tile. Tiles without records get the start of the next non-empty tile, or
// len(records) past the last one.
func EncodeOffsets(records []Record, tiles int) []int {
	offsets := make([]int, tiles)
	prev := -1
	for i, r := range records {
		for t := prev + 1; t <= r.Tile; t++ {
			offsets[t] = i
		}
		prev = r.Tile
	}
	for t := prev + 1; t < tiles; t++ {
		offsets[t] = len(records)
	}
	return offsets
}

// Verify checks that records are ordered by (tile, depth, slot) and that
// offsets delimit each tile exactly.
func Verify(records []Record, offsets []int) error {
	for i := 1; i < len(records); i++ {
		if compareRecords(records[i-1], records[i]) > 0 {
			return fmt.Errorf("records %d and %d are out of order: %+v, %+v", i-1, i, records[i-1], records[i])
		}
	}
	for t := range offsets {
		start := offsets[t]
		end := len(records)
		if t+1 < len(offsets) {
			end = offsets[t+1]
		}
		if start > end || end > len(records) {
			return fmt.Errorf("tile %d has invalid range [%d, %d)", t, start, end)
		}
		for i := start; i < end; i++ {
			if records[i].Tile != t {
				return fmt.Errorf("record %d in the range of tile %d belongs to tile %d", i, t, records[i].Tile)
			}
		}
	}
	if len(offsets) > 0 && offsets[0] != 0 && len(records) > 0 {
		return fmt.Errorf("first tile starts at %d, not 0", offsets[0])
	}
	return nil
}
