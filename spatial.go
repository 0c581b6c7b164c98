package main

import (
	"math"
	"sort"
)

// SpatialEntityData is the per-entity snapshot the grid stores and hands
// back to callers. Movement-hot queries copy these into caller-owned
// buffers instead of allocating.
type SpatialEntityData struct {
	ID              int
	X, Y            float64
	Radius          float64
	Flying          bool
	State           UnitState
	PlayerID        int
	Team            int
	CollisionRadius float64
	Worker          bool
	MaxSpeed        float64
}

// cellKey packs signed cell coordinates into one map key
type cellKey int64

func packCell(cx, cy int) cellKey {
	return cellKey(int64(cx)<<32 | int64(uint32(cy)))
}

// spatialEntry is an indexed entity plus its current cell membership.
// Fine and coarse keys are always updated together through insertCells/
// removeCells — an entity is in both grids or in neither.
type spatialEntry struct {
	data      SpatialEntityData
	fineKey   cellKey
	coarseKey cellKey
}

// SpatialGrid is a dual-resolution uniform grid over all positioned
// entities. The fine grid serves short-range queries and cheap per-tick
// position updates; the coarse grid (cells a fixed multiple larger) bounds
// the number of cells visited by long-range queries.
type SpatialGrid struct {
	width, height  float64
	fineCellSize   float64
	coarseCellSize float64

	entries     map[int]*spatialEntry
	fineCells   map[cellKey][]int
	coarseCells map[cellKey][]int

	// playerID -> team, maintained on UpdateFull so enemy queries can
	// resolve the querying player's alliance without an entity handle
	playerTeams map[int]int
}

// NewSpatialGrid creates a grid covering width x height world units.
// The coarse cell size is derived from the fine size, never configured.
func NewSpatialGrid(width, height, fineCellSize float64) *SpatialGrid {
	if fineCellSize <= 0 {
		fineCellSize = FineCellSize
	}
	return &SpatialGrid{
		width:          width,
		height:         height,
		fineCellSize:   fineCellSize,
		coarseCellSize: fineCellSize * CoarseCellFactor,
		entries:        make(map[int]*spatialEntry),
		fineCells:      make(map[cellKey][]int),
		coarseCells:    make(map[cellKey][]int),
		playerTeams:    make(map[int]int),
	}
}

func (g *SpatialGrid) fineCell(x, y float64) cellKey {
	return packCell(int(math.Floor(x/g.fineCellSize)), int(math.Floor(y/g.fineCellSize)))
}

func (g *SpatialGrid) coarseCell(x, y float64) cellKey {
	return packCell(int(math.Floor(x/g.coarseCellSize)), int(math.Floor(y/g.coarseCellSize)))
}

// insertCells adds the entry's id to both grids. This is the only code
// path that grows cell membership.
func (g *SpatialGrid) insertCells(e *spatialEntry) {
	e.fineKey = g.fineCell(e.data.X, e.data.Y)
	e.coarseKey = g.coarseCell(e.data.X, e.data.Y)
	g.fineCells[e.fineKey] = append(g.fineCells[e.fineKey], e.data.ID)
	g.coarseCells[e.coarseKey] = append(g.coarseCells[e.coarseKey], e.data.ID)
}

// removeCells drops the entry's id from both grids
func (g *SpatialGrid) removeCells(e *spatialEntry) {
	g.fineCells[e.fineKey] = removeID(g.fineCells[e.fineKey], e.data.ID)
	if len(g.fineCells[e.fineKey]) == 0 {
		delete(g.fineCells, e.fineKey)
	}
	g.coarseCells[e.coarseKey] = removeID(g.coarseCells[e.coarseKey], e.data.ID)
	if len(g.coarseCells[e.coarseKey]) == 0 {
		delete(g.coarseCells, e.coarseKey)
	}
}

func removeID(bucket []int, id int) []int {
	for i, v := range bucket {
		if v == id {
			bucket[i] = bucket[len(bucket)-1]
			return bucket[:len(bucket)-1]
		}
	}
	return bucket
}

// UpdateFull inserts or replaces an entity with its complete state.
// Used at spawn and on full state changes (side switch, state flips that
// queries must see).
func (g *SpatialGrid) UpdateFull(data SpatialEntityData) {
	if math.IsNaN(data.X) || math.IsNaN(data.Y) {
		return
	}
	g.playerTeams[data.PlayerID] = data.Team
	if e, ok := g.entries[data.ID]; ok {
		g.removeCells(e)
		e.data = data
		g.insertCells(e)
		return
	}
	e := &spatialEntry{data: data}
	g.entries[data.ID] = e
	g.insertCells(e)
}

// UpdatePosition is the cheap per-tick path: position only. Returns true
// only when the entity crossed into a different fine cell, so callers can
// skip dependent invalidation. When the fine cell is unchanged no bucket
// mutates at all — that is the dominant per-tick saving.
func (g *SpatialGrid) UpdatePosition(id int, x, y float64) bool {
	if math.IsNaN(x) || math.IsNaN(y) {
		return false
	}
	e, ok := g.entries[id]
	if !ok {
		return false
	}
	newFine := g.fineCell(x, y)
	if newFine == e.fineKey {
		e.data.X = x
		e.data.Y = y
		return false
	}
	g.removeCells(e)
	e.data.X = x
	e.data.Y = y
	g.insertCells(e)
	return true
}

// Remove deletes an entity from both grids
func (g *SpatialGrid) Remove(id int) {
	e, ok := g.entries[id]
	if !ok {
		return
	}
	g.removeCells(e)
	delete(g.entries, id)
}

// Has reports whether an entity is indexed
func (g *SpatialGrid) Has(id int) bool {
	_, ok := g.entries[id]
	return ok
}

// GetEntityData returns the stored snapshot, or nil for unknown ids
func (g *SpatialGrid) GetEntityData(id int) *SpatialEntityData {
	e, ok := g.entries[id]
	if !ok {
		return nil
	}
	d := e.data
	return &d
}

// GetEntityPosition returns the stored position; ok is false for unknown ids
func (g *SpatialGrid) GetEntityPosition(id int) (x, y float64, ok bool) {
	e, found := g.entries[id]
	if !found {
		return 0, 0, false
	}
	return e.data.X, e.data.Y, true
}

// Clear resets all buckets and entities
func (g *SpatialGrid) Clear() {
	g.entries = make(map[int]*spatialEntry)
	g.fineCells = make(map[cellKey][]int)
	g.coarseCells = make(map[cellKey][]int)
	g.playerTeams = make(map[int]int)
}

// useFineGrid picks the fine grid for small radii; beyond ~2 fine cells the
// coarse grid visits far fewer buckets for the same area.
func (g *SpatialGrid) useFineGrid(r float64) bool {
	return r <= 2*g.fineCellSize
}

// visitCells calls fn with every candidate id in cells overlapping the
// bounding box. Iteration order is bucket order; callers that return ids
// must sort before returning them.
func (g *SpatialGrid) visitCells(minX, minY, maxX, maxY float64, fine bool, fn func(id int) bool) {
	cellSize := g.coarseCellSize
	cells := g.coarseCells
	if fine {
		cellSize = g.fineCellSize
		cells = g.fineCells
	}
	minCX := int(math.Floor(minX / cellSize))
	maxCX := int(math.Floor(maxX / cellSize))
	minCY := int(math.Floor(minY / cellSize))
	maxCY := int(math.Floor(maxY / cellSize))
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			for _, id := range cells[packCell(cx, cy)] {
				if !fn(id) {
					return
				}
			}
		}
	}
}

// QueryRadius returns the ids of all entities within r of (x, y), sorted
// ascending. Degenerate inputs yield an empty result.
func (g *SpatialGrid) QueryRadius(x, y, r float64) []int {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsNaN(r) || r <= 0 {
		return nil
	}
	var out []int
	r2 := r * r
	g.visitCells(x-r, y-r, x+r, y+r, g.useFineGrid(r), func(id int) bool {
		e := g.entries[id]
		if DistanceSq(x, y, e.data.X, e.data.Y) <= r2 {
			out = append(out, id)
		}
		return true
	})
	sort.Ints(out)
	return out
}

// QueryRect returns ids of entities inside the rect with min corner (x, y)
// and extents (w, h), inclusive, sorted ascending.
func (g *SpatialGrid) QueryRect(x, y, w, h float64) []int {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsNaN(w) || math.IsNaN(h) || w <= 0 || h <= 0 {
		return nil
	}
	var out []int
	fine := g.useFineGrid(math.Max(w, h) / 2)
	g.visitCells(x, y, x+w, y+h, fine, func(id int) bool {
		e := g.entries[id]
		if e.data.X >= x && e.data.X <= x+w && e.data.Y >= y && e.data.Y <= y+h {
			out = append(out, id)
		}
		return true
	})
	sort.Ints(out)
	return out
}

// QueryRadiusWithData writes full snapshots of entities within r of (x, y)
// into buf, capped at len(buf), and returns the count. Results are sorted
// by ascending id. No allocation happens on this path.
func (g *SpatialGrid) QueryRadiusWithData(x, y, r float64, buf []SpatialEntityData) int {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsNaN(r) || r <= 0 || len(buf) == 0 {
		return 0
	}
	n := 0
	r2 := r * r
	g.visitCells(x-r, y-r, x+r, y+r, g.useFineGrid(r), func(id int) bool {
		e := g.entries[id]
		if DistanceSq(x, y, e.data.X, e.data.Y) <= r2 {
			if n < len(buf) {
				buf[n] = e.data
				n++
			}
		}
		return n < len(buf)
	})
	sort.Slice(buf[:n], func(i, j int) bool { return buf[i].ID < buf[j].ID })
	return n
}

// isEnemy applies the alliance rule: the same player is never its own
// enemy; team 0 is hostile to everyone; distinct players on the same
// non-zero team are allies; everyone else is an enemy.
func isEnemy(playerA, teamA, playerB, teamB int) bool {
	if playerA == playerB {
		return false
	}
	if teamA == 0 || teamB == 0 {
		return true
	}
	return teamA != teamB
}

// HasEnemyInRadius reports whether any living entity within r of (x, y) is
// hostile to playerID. Short-circuits on the first match.
func (g *SpatialGrid) HasEnemyInRadius(x, y, r float64, playerID int) bool {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsNaN(r) || r <= 0 {
		return false
	}
	team := g.playerTeams[playerID]
	found := false
	r2 := r * r
	g.visitCells(x-r, y-r, x+r, y+r, g.useFineGrid(r), func(id int) bool {
		e := g.entries[id]
		if e.data.State == StateDead {
			return true
		}
		if !isEnemy(playerID, team, e.data.PlayerID, e.data.Team) {
			return true
		}
		if DistanceSq(x, y, e.data.X, e.data.Y) <= r2 {
			found = true
			return false
		}
		return true
	})
	return found
}

// GetHotCells returns the set of coarse cells currently occupied by two or
// more distinct players. Used as a cheap pre-filter before per-unit enemy
// scans.
func (g *SpatialGrid) GetHotCells() map[cellKey]struct{} {
	hot := make(map[cellKey]struct{})
	for key, bucket := range g.coarseCells {
		if len(bucket) < 2 {
			continue
		}
		first := g.entries[bucket[0]].data.PlayerID
		for _, id := range bucket[1:] {
			if g.entries[id].data.PlayerID != first {
				hot[key] = struct{}{}
				break
			}
		}
	}
	return hot
}

// IsInHotCell reports whether the position falls in a hot cell
func (g *SpatialGrid) IsInHotCell(x, y float64, hot map[cellKey]struct{}) bool {
	if math.IsNaN(x) || math.IsNaN(y) || len(hot) == 0 {
		return false
	}
	_, ok := hot[g.coarseCell(x, y)]
	return ok
}

// GridStats are diagnostic counters
type GridStats struct {
	Entities    int
	FineCells   int
	CoarseCells int
}

// GetStats returns entity and occupied-cell counts
func (g *SpatialGrid) GetStats() GridStats {
	return GridStats{
		Entities:    len(g.entries),
		FineCells:   len(g.fineCells),
		CoarseCells: len(g.coarseCells),
	}
}

// GridInfo describes the grid dimensions
type GridInfo struct {
	Width          float64
	Height         float64
	FineCellSize   float64
	CoarseCellSize float64
}

// GetGridInfo returns the configured dimensions
func (g *SpatialGrid) GetGridInfo() GridInfo {
	return GridInfo{
		Width:          g.width,
		Height:         g.height,
		FineCellSize:   g.fineCellSize,
		CoarseCellSize: g.coarseCellSize,
	}
}
