package main

import (
	"hash/fnv"
	"math"
)

// EntityVelocityCache maps entity id to its velocity from the previous
// tick. Alignment needs neighbor velocities, which the spatial grid
// snapshots don't carry at steering precision; the movement system
// maintains this cache and passes it in.
type EntityVelocityCache map[int]Vec2

// forceCache holds one throttled force result. The vector is reused
// verbatim until its interval elapses, then recomputed unconditionally.
type forceCache struct {
	tick  uint64
	force Vec2
	valid bool
}

func (c *forceCache) fresh(now uint64, interval uint64) bool {
	return c.valid && now-c.tick < interval
}

// flockEntry is all per-entity flocking state: the four force caches, the
// velocity history ring, and stuck bookkeeping. Purged by CleanupUnit.
type flockEntry struct {
	sep   forceCache
	coh   forceCache
	align forceCache
	push  forceCache

	velHist  [VelocityHistoryLen]Vec2
	histLen  int
	histHead int

	committed   bool
	commitDir   Vec2
	stableTicks int

	stuckTicks    int
	stuckEpisodes uint32
	lastCheckX    float64
	lastCheckY    float64
	hasLastCheck  bool

	neighbors     []SpatialEntityData
	neighborCount int
	neighborsTick uint64
	hasNeighbors  bool
}

// FlockingBehavior computes per-unit steering forces from spatial grid
// queries. It owns only internal caches; gameplay effects flow through the
// caller-supplied output vectors. One instance per simulation — two games
// never share one.
type FlockingBehavior struct {
	entries map[int]*flockEntry
	tick    uint64
}

// NewFlockingBehavior creates an empty behavior state
func NewFlockingBehavior() *FlockingBehavior {
	return &FlockingBehavior{entries: make(map[int]*flockEntry)}
}

// BeginTick advances the internal tick counter. The movement system calls
// this once per simulation tick before any force queries.
func (f *FlockingBehavior) BeginTick(tick uint64) {
	f.tick = tick
}

func (f *FlockingBehavior) entry(id int) *flockEntry {
	e, ok := f.entries[id]
	if !ok {
		e = &flockEntry{neighbors: make([]SpatialEntityData, MaxFlockNeighbors)}
		f.entries[id] = e
	}
	return e
}

// CleanupUnit purges all cached state for an entity. Must run exactly once
// at destruction; a recycled id that skips this would see stale caches.
func (f *FlockingBehavior) CleanupUnit(id int) {
	delete(f.entries, id)
}

// PreBatchNeighbors runs the one spatial query all four forces share this
// tick. Optional — forces fetch on demand when it wasn't called.
func (f *FlockingBehavior) PreBatchNeighbors(u *Unit, grid *SpatialGrid) {
	e := f.entry(u.ID)
	e.neighborCount = grid.QueryRadiusWithData(u.X, u.Y, CohesionRadius, e.neighbors)
	e.neighborsTick = f.tick
	e.hasNeighbors = true
}

// neighborsFor returns this tick's shared neighbor batch, querying the
// grid if PreBatchNeighbors hasn't run yet this tick.
func (f *FlockingBehavior) neighborsFor(u *Unit, grid *SpatialGrid) []SpatialEntityData {
	e := f.entry(u.ID)
	if !e.hasNeighbors || e.neighborsTick != f.tick {
		f.PreBatchNeighbors(u, grid)
	}
	return e.neighbors[:e.neighborCount]
}

// SeparationStrength resolves the situational separation multiplier.
// Precedence: gathering/building workers are exempt, then arrival spread,
// then combat, then travel. distToDest < 0 means "no destination".
func (f *FlockingBehavior) SeparationStrength(u *Unit, distToDest float64) float64 {
	if u.Worker && (u.State == StateGathering || u.State == StateBuilding) {
		return 0
	}
	if distToDest >= 0 && distToDest <= ArrivalSpreadRadius {
		return SeparationArrivingStr
	}
	if u.State == StateAttacking {
		return SeparationCombatStr
	}
	if u.Moving() {
		return SeparationMovingStr
	}
	return SeparationIdleStr
}

// CalculateSeparation writes the separation force for u into out. Pushes
// away from each living same-domain neighbor, proportional to overlap
// depth, clamped to MaxSeparationForce. Throttled per entity.
func (f *FlockingBehavior) CalculateSeparation(u *Unit, distToDest float64, grid *SpatialGrid, out *Vec2) {
	e := f.entry(u.ID)
	if e.sep.fresh(f.tick, SeparationInterval) {
		*out = e.sep.force
		return
	}

	var force Vec2
	strength := f.SeparationStrength(u, distToDest)
	if strength > 0 {
		for _, n := range f.neighborsFor(u, grid) {
			if n.ID == u.ID || n.State == StateDead {
				continue
			}
			if n.Flying != u.Flying {
				continue // ground never separates from air
			}
			if u.Worker && n.Worker {
				continue // workers clump freely at resources
			}
			if n.State == StateGathering {
				continue
			}
			sepDist := (u.CollisionRadius + n.CollisionRadius) * SeparationRadiusFactor
			if sepDist <= 1e-9 {
				continue
			}
			distSq := DistanceSq(u.X, u.Y, n.X, n.Y)
			if distSq >= sepDist*sepDist || distSq <= 1e-8 {
				continue
			}
			dist := math.Sqrt(distSq)
			push := strength * (1 - dist/sepDist)
			force.X += (u.X - n.X) / dist * push
			force.Y += (u.Y - n.Y) / dist * push
		}
		force = force.ClampLen(MaxSeparationForce)
	}

	e.sep = forceCache{tick: f.tick, force: force, valid: true}
	*out = force
}

// CalculateCohesion writes the cohesion force: steer toward the centroid
// of living same-state neighbors. Workers and idle units get zero — they
// have nowhere to herd toward. Longest throttle of the four forces.
func (f *FlockingBehavior) CalculateCohesion(u *Unit, grid *SpatialGrid, out *Vec2) {
	e := f.entry(u.ID)
	if e.coh.fresh(f.tick, CohesionInterval) {
		*out = e.coh.force
		return
	}

	var force Vec2
	if !u.Worker && u.State != StateIdle {
		var sumX, sumY float64
		count := 0
		for _, n := range f.neighborsFor(u, grid) {
			if n.ID == u.ID || n.State == StateDead || n.State != u.State {
				continue
			}
			if DistanceSq(u.X, u.Y, n.X, n.Y) >= CohesionRadius*CohesionRadius {
				continue
			}
			sumX += n.X
			sumY += n.Y
			count++
		}
		if count > 0 {
			centroid := Vec2{sumX/float64(count) - u.X, sumY/float64(count) - u.Y}
			dir := centroid.Normalized()
			force = Vec2{dir.X * CohesionStrength, dir.Y * CohesionStrength}
		}
	}

	e.coh = forceCache{tick: f.tick, force: force, valid: true}
	*out = force
}

// CalculateAlignment writes the alignment force: match the average heading
// of moving same-domain neighbors inside the (smaller) alignment radius.
// Needs the velocity cache — grid snapshots alone can't supply headings.
func (f *FlockingBehavior) CalculateAlignment(u *Unit, grid *SpatialGrid, velCache EntityVelocityCache, out *Vec2) {
	e := f.entry(u.ID)
	if e.align.fresh(f.tick, AlignmentInterval) {
		*out = e.align.force
		return
	}

	var force Vec2
	if !u.Worker && u.State != StateIdle {
		var sumX, sumY float64
		count := 0
		for _, n := range f.neighborsFor(u, grid) {
			if n.ID == u.ID || n.State == StateDead || n.Flying != u.Flying {
				continue
			}
			if DistanceSq(u.X, u.Y, n.X, n.Y) >= AlignmentRadius*AlignmentRadius {
				continue
			}
			v, ok := velCache[n.ID]
			if !ok {
				continue
			}
			speed := v.Len()
			if speed <= MinMovingSpeed {
				continue
			}
			sumX += v.X / speed
			sumY += v.Y / speed
			count++
		}
		if count > 0 {
			avg := Vec2{sumX / float64(count), sumY / float64(count)}
			dir := avg.Normalized()
			force = Vec2{dir.X * AlignmentStrength, dir.Y * AlignmentStrength}
		}
	}

	e.align = forceCache{tick: f.tick, force: force, valid: true}
	*out = force
}

// CalculatePhysicsPush writes the positional-correction push for
// overlapping ground units. Asymmetric: a mover shoves an idler aside far
// harder than the reverse, so marching columns don't stall on bystanders.
// Shortest throttle of the four.
func (f *FlockingBehavior) CalculatePhysicsPush(u *Unit, grid *SpatialGrid, out *Vec2) {
	e := f.entry(u.ID)
	if e.push.fresh(f.tick, PhysicsPushInterval) {
		*out = e.push.force
		return
	}

	var force Vec2
	if !u.Flying {
		for _, n := range f.neighborsFor(u, grid) {
			if n.ID == u.ID || n.State == StateDead || n.Flying {
				continue
			}
			if u.Worker && n.Worker {
				continue
			}
			combined := u.CollisionRadius + n.CollisionRadius
			distSq := DistanceSq(u.X, u.Y, n.X, n.Y)
			if distSq >= combined*combined || combined <= 1e-9 {
				continue
			}
			dist := math.Sqrt(distSq)
			overlap := combined - dist

			strength := PhysicsPushBase
			if overlap > OverlapFalloff {
				strength = OverlapPushStrength
			}
			neighborMoving := n.State == StateMoving || n.State == StateAttackMoving || n.State == StatePatrolling
			if u.Moving() && !neighborMoving {
				strength *= PushReceiveMoving
			} else if !u.Moving() && neighborMoving {
				strength *= PushReceiveIdle
			}

			var dirX, dirY float64
			if dist > 1e-9 {
				dirX = (u.X - n.X) / dist
				dirY = (u.Y - n.Y) / dist
			} else {
				// exactly coincident: deterministic id-based split
				angle := stuckAngle(u.ID, 0)
				dirX = math.Cos(angle)
				dirY = math.Sin(angle)
			}
			force.X += dirX * overlap * strength
			force.Y += dirY * overlap * strength
		}
		force = force.ClampLen(MaxPhysicsPush)
	}

	e.push = forceCache{tick: f.tick, force: force, valid: true}
	*out = force
}

// SmoothVelocity blends the desired velocity against the entity's recent
// history and its committed direction. Once a heading has been stable for
// several ticks, sudden large-angle reversals are damped toward the
// previous velocity; small corrections pass through. Pure function of the
// call sequence — no clock, no randomness.
func (f *FlockingBehavior) SmoothVelocity(id int, vx, vy, prevVX, prevVY float64) (float64, float64) {
	e := f.entry(id)
	desired := Vec2{vx, vy}

	e.velHist[e.histHead] = desired
	e.histHead = (e.histHead + 1) % VelocityHistoryLen
	if e.histLen < VelocityHistoryLen {
		e.histLen++
	}

	// Blend toward the recent history average so single-tick force spikes
	// don't jerk the unit around.
	var histAvg Vec2
	for i := 0; i < e.histLen; i++ {
		histAvg.X += e.velHist[i].X
		histAvg.Y += e.velHist[i].Y
	}
	histAvg.X /= float64(e.histLen)
	histAvg.Y /= float64(e.histLen)
	smoothed := Vec2{
		desired.X*(1-VelocitySmoothFactor) + histAvg.X*VelocitySmoothFactor,
		desired.Y*(1-VelocitySmoothFactor) + histAvg.Y*VelocitySmoothFactor,
	}

	speed := smoothed.Len()
	if speed < MinMovingSpeed {
		e.committed = false
		e.stableTicks = 0
		return smoothed.X, smoothed.Y
	}
	dir := Vec2{smoothed.X / speed, smoothed.Y / speed}

	if e.committed {
		cosTurn := dir.X*e.commitDir.X + dir.Y*e.commitDir.Y
		if cosTurn < math.Cos(CommitAngleThreshold) {
			// Large-angle reversal against a committed heading: damp it,
			// then drop the commitment so a persistent turn wins next.
			smoothed.X = smoothed.X*(1-CommitDampStrength) + prevVX*CommitDampStrength
			smoothed.Y = smoothed.Y*(1-CommitDampStrength) + prevVY*CommitDampStrength
			e.committed = false
			e.stableTicks = 0
			e.commitDir = smoothed.Normalized()
			return smoothed.X, smoothed.Y
		}
	} else {
		cosDrift := dir.X*e.commitDir.X + dir.Y*e.commitDir.Y
		if e.stableTicks == 0 || cosDrift > math.Cos(0.5) {
			e.stableTicks++
		} else {
			e.stableTicks = 1
		}
		if e.stableTicks >= DirectionCommitTicks {
			e.committed = true
		}
	}
	e.commitDir = dir
	return smoothed.X, smoothed.Y
}

// HandleStuckDetection nudges a unit that wants to move but hasn't. The
// nudge direction is a deterministic function of the entity id and how
// many times it has already been nudged, so replays reproduce exactly.
func (f *FlockingBehavior) HandleStuckDetection(u *Unit, currentSpeed, distToTarget float64, out *Vec2) {
	*out = Vec2{}
	e := f.entry(u.ID)

	if distToTarget <= ArriveRadius || currentSpeed > StuckSpeedEpsilon {
		e.stuckTicks = 0
		e.lastCheckX = u.X
		e.lastCheckY = u.Y
		e.hasLastCheck = true
		return
	}
	if !e.hasLastCheck {
		e.lastCheckX = u.X
		e.lastCheckY = u.Y
		e.hasLastCheck = true
		return
	}

	if DistanceSq(e.lastCheckX, e.lastCheckY, u.X, u.Y) > StuckMoveDelta*StuckMoveDelta {
		e.stuckTicks = 0
		e.lastCheckX = u.X
		e.lastCheckY = u.Y
		return
	}

	e.stuckTicks++
	if e.stuckTicks < StuckDurationTicks {
		return
	}

	angle := stuckAngle(u.ID, e.stuckEpisodes)
	out.X = math.Cos(angle) * StuckNudge
	out.Y = math.Sin(angle) * StuckNudge
	e.stuckEpisodes++
	e.stuckTicks = 0
	e.lastCheckX = u.X
	e.lastCheckY = u.Y
}

// stuckAngle maps (entity id, episode) to a stable angle in [0, 2pi)
func stuckAngle(id int, episode uint32) float64 {
	h := fnv.New64a()
	var b [12]byte
	v := uint64(id)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	for i := 0; i < 4; i++ {
		b[8+i] = byte(episode >> (8 * i))
	}
	h.Write(b[:])
	return float64(h.Sum64()%360000) / 360000 * 2 * math.Pi
}
