package main

import (
	"math"
	"testing"
)

func indexTestUnit(grid *SpatialGrid, u *Unit) {
	grid.UpdateFull(SpatialEntityData{
		ID:              u.ID,
		X:               u.X,
		Y:               u.Y,
		Radius:          u.Radius,
		Flying:          u.Flying,
		State:           u.State,
		PlayerID:        u.PlayerID,
		Team:            u.Team,
		CollisionRadius: u.CollisionRadius,
		Worker:          u.Worker,
		MaxSpeed:        u.MaxSpeed,
	})
}

func TestSeparationStrengthOrdering(t *testing.T) {
	flock := NewFlockingBehavior()

	moving := NewUnit(1, 1, 1, 10, 10, false, false)
	moving.State = StateMoving
	idle := NewUnit(2, 1, 1, 10, 10, false, false)
	attacking := NewUnit(3, 1, 1, 10, 10, false, false)
	attacking.State = StateAttacking

	sMoving := flock.SeparationStrength(moving, -1)
	sIdle := flock.SeparationStrength(idle, -1)
	sAttack := flock.SeparationStrength(attacking, -1)

	if !(sMoving <= sIdle && sIdle <= sAttack) {
		t.Errorf("strength ordering violated: moving=%v idle=%v attacking=%v", sMoving, sIdle, sAttack)
	}
}

func TestSeparationStrengthArrival(t *testing.T) {
	flock := NewFlockingBehavior()

	u := NewUnit(1, 1, 1, 10, 10, false, false)
	u.State = StateMoving

	far := flock.SeparationStrength(u, ArrivalSpreadRadius*2)
	near := flock.SeparationStrength(u, ArrivalSpreadRadius/2)
	if far != SeparationMovingStr {
		t.Errorf("far from destination = %v, want moving strength %v", far, SeparationMovingStr)
	}
	if near != SeparationArrivingStr {
		t.Errorf("near destination = %v, want arriving strength %v", near, SeparationArrivingStr)
	}
	if near != flock.SeparationStrength(u, 0) {
		t.Error("arriving strength should hold all the way to the destination")
	}
}

func TestSeparationStrengthGatheringWorker(t *testing.T) {
	flock := NewFlockingBehavior()

	w := NewUnit(1, 1, 1, 10, 10, true, false)
	w.State = StateGathering
	if s := flock.SeparationStrength(w, -1); s != 0 {
		t.Errorf("gathering worker strength = %v, want 0", s)
	}
	w.State = StateBuilding
	if s := flock.SeparationStrength(w, -1); s != 0 {
		t.Errorf("building worker strength = %v, want 0", s)
	}
	// A non-worker in the same states still separates
	g := NewUnit(2, 1, 1, 10, 10, false, false)
	g.State = StateGathering
	if s := flock.SeparationStrength(g, -1); s == 0 {
		t.Error("non-worker gathering should still separate")
	}
}

func TestSeparationForceOverlappingIdle(t *testing.T) {
	grid := NewSpatialGrid(WorldWidth, WorldHeight, FineCellSize)
	flock := NewFlockingBehavior()
	flock.BeginTick(0)

	u := NewUnit(1, 1, 1, 10, 10, false, false)
	n := NewUnit(2, 1, 1, 10.3, 10, false, false)
	indexTestUnit(grid, u)
	indexTestUnit(grid, n)

	var force Vec2
	flock.CalculateSeparation(u, -1, grid, &force)

	if force.X == 0 && force.Y == 0 {
		t.Fatal("overlapping units produced zero separation force")
	}
	// Away from the neighbor along the connecting line: -X, no Y
	if force.X >= 0 {
		t.Errorf("force.X = %v, want negative (away from neighbor at +X)", force.X)
	}
	if math.Abs(force.Y) > 1e-12 {
		t.Errorf("force.Y = %v, want 0 (neighbor is on the X axis)", force.Y)
	}
}

func TestSeparationGroundVsFlying(t *testing.T) {
	grid := NewSpatialGrid(WorldWidth, WorldHeight, FineCellSize)
	flock := NewFlockingBehavior()
	flock.BeginTick(0)

	ground := NewUnit(1, 1, 1, 10, 10, false, false)
	air := NewUnit(2, 1, 1, 10, 10, false, true)
	indexTestUnit(grid, ground)
	indexTestUnit(grid, air)

	var sep, push Vec2
	flock.CalculateSeparation(ground, -1, grid, &sep)
	if sep.X != 0 || sep.Y != 0 {
		t.Errorf("ground unit separated from flyer: %v", sep)
	}
	flock.CalculatePhysicsPush(ground, grid, &push)
	if push.X != 0 || push.Y != 0 {
		t.Errorf("ground unit pushed by flyer: %v", push)
	}

	// And the flyer never receives physics push at all
	flock.CalculatePhysicsPush(air, grid, &push)
	if push.X != 0 || push.Y != 0 {
		t.Errorf("flyer received physics push: %v", push)
	}
}

func TestCohesionAlignmentZeroForWorkerAndIdle(t *testing.T) {
	grid := NewSpatialGrid(WorldWidth, WorldHeight, FineCellSize)
	flock := NewFlockingBehavior()
	flock.BeginTick(0)

	// A cluster of movers to herd toward
	for i := 10; i < 14; i++ {
		m := NewUnit(i, 1, 1, 12+float64(i-10), 10, false, false)
		m.State = StateMoving
		indexTestUnit(grid, m)
	}
	velCache := EntityVelocityCache{
		10: {1, 0}, 11: {1, 0}, 12: {1, 0}, 13: {1, 0},
	}

	worker := NewUnit(1, 1, 1, 10, 10, true, false)
	worker.State = StateMoving
	indexTestUnit(grid, worker)

	idle := NewUnit(2, 1, 1, 10, 10, false, false)
	indexTestUnit(grid, idle)

	var coh, align Vec2
	flock.CalculateCohesion(worker, grid, &coh)
	flock.CalculateAlignment(worker, grid, velCache, &align)
	if coh != (Vec2{}) || align != (Vec2{}) {
		t.Errorf("worker got cohesion %v alignment %v, want zero", coh, align)
	}

	flock.CalculateCohesion(idle, grid, &coh)
	flock.CalculateAlignment(idle, grid, velCache, &align)
	if coh != (Vec2{}) || align != (Vec2{}) {
		t.Errorf("idle unit got cohesion %v alignment %v, want zero", coh, align)
	}

	// A moving non-worker in the same spot does get both
	mover := NewUnit(3, 1, 1, 10, 10, false, false)
	mover.State = StateMoving
	indexTestUnit(grid, mover)
	flock.CalculateCohesion(mover, grid, &coh)
	flock.CalculateAlignment(mover, grid, velCache, &align)
	if coh == (Vec2{}) {
		t.Error("moving unit near same-state cluster should cohere")
	}
	if align == (Vec2{}) {
		t.Error("moving unit near moving neighbors should align")
	}
}

func TestAlignmentIgnoresSlowNeighbors(t *testing.T) {
	grid := NewSpatialGrid(WorldWidth, WorldHeight, FineCellSize)
	flock := NewFlockingBehavior()
	flock.BeginTick(0)

	u := NewUnit(1, 1, 1, 10, 10, false, false)
	u.State = StateMoving
	indexTestUnit(grid, u)

	n := NewUnit(2, 1, 1, 11, 10, false, false)
	n.State = StateMoving
	indexTestUnit(grid, n)

	// Neighbor crawling below the moving threshold contributes nothing
	velCache := EntityVelocityCache{2: {MinMovingSpeed / 2, 0}}
	var align Vec2
	flock.CalculateAlignment(u, grid, velCache, &align)
	if align != (Vec2{}) {
		t.Errorf("alignment from sub-threshold neighbor = %v, want zero", align)
	}
}

func TestSeparationThrottleReusesCache(t *testing.T) {
	grid := NewSpatialGrid(WorldWidth, WorldHeight, FineCellSize)
	flock := NewFlockingBehavior()

	u := NewUnit(1, 1, 1, 10, 10, false, false)
	n := NewUnit(2, 1, 1, 10.3, 10, false, false)
	indexTestUnit(grid, u)
	indexTestUnit(grid, n)

	var first Vec2
	flock.BeginTick(0)
	flock.CalculateSeparation(u, -1, grid, &first)
	if first == (Vec2{}) {
		t.Fatal("expected nonzero initial separation")
	}

	// Change the grid; within the throttle window the cached vector must
	// come back bit-identical anyway.
	n.X = 10.6
	indexTestUnit(grid, n)

	for tick := uint64(1); tick < SeparationInterval; tick++ {
		var got Vec2
		flock.BeginTick(tick)
		flock.CalculateSeparation(u, -1, grid, &got)
		if got != first {
			t.Fatalf("tick %d inside window: got %v, want cached %v", tick, got, first)
		}
	}

	// After expiry the force is recomputed against the changed grid
	var after Vec2
	flock.BeginTick(SeparationInterval)
	flock.CalculateSeparation(u, -1, grid, &after)
	if after == first {
		t.Error("expired cache returned stale force despite grid change")
	}
}

func TestForceThrottleOrdering(t *testing.T) {
	if !(PhysicsPushInterval < SeparationInterval &&
		SeparationInterval < AlignmentInterval &&
		AlignmentInterval < CohesionInterval) {
		t.Error("throttle intervals must order physics push fastest, cohesion slowest")
	}
}

func TestFlockingDeterminism(t *testing.T) {
	run := func() (Vec2, Vec2, Vec2, Vec2, float64, float64) {
		grid := NewSpatialGrid(WorldWidth, WorldHeight, FineCellSize)
		flock := NewFlockingBehavior()

		u := NewUnit(1, 1, 1, 10, 10, false, false)
		u.State = StateMoving
		indexTestUnit(grid, u)
		for i := 2; i <= 5; i++ {
			n := NewUnit(i, 1, 1, 10+float64(i)*0.2, 10+float64(i)*0.1, false, false)
			n.State = StateMoving
			indexTestUnit(grid, n)
		}
		velCache := EntityVelocityCache{2: {1, 0.5}, 3: {0.8, 0.2}, 4: {1.2, 0}, 5: {0.9, 0.9}}

		var sep, coh, align, push Vec2
		var vx, vy float64
		for tick := uint64(0); tick < 10; tick++ {
			flock.BeginTick(tick)
			flock.CalculateSeparation(u, 5.0, grid, &sep)
			flock.CalculateCohesion(u, grid, &coh)
			flock.CalculateAlignment(u, grid, velCache, &align)
			flock.CalculatePhysicsPush(u, grid, &push)
			vx, vy = flock.SmoothVelocity(u.ID, 1.0+sep.X, 0.5+sep.Y, vx, vy)
		}
		return sep, coh, align, push, vx, vy
	}

	s1, c1, a1, p1, vx1, vy1 := run()
	s2, c2, a2, p2, vx2, vy2 := run()

	if s1 != s2 || c1 != c2 || a1 != a2 || p1 != p2 {
		t.Errorf("forces diverged between identical runs:\n%v %v %v %v\n%v %v %v %v", s1, c1, a1, p1, s2, c2, a2, p2)
	}
	if vx1 != vx2 || vy1 != vy2 {
		t.Errorf("smoothed velocity diverged: (%v,%v) vs (%v,%v)", vx1, vy1, vx2, vy2)
	}
}

func TestPhysicsPushAsymmetry(t *testing.T) {
	grid := NewSpatialGrid(WorldWidth, WorldHeight, FineCellSize)
	flock := NewFlockingBehavior()
	flock.BeginTick(0)

	idle := NewUnit(1, 1, 1, 10, 10, false, false)
	mover := NewUnit(2, 1, 1, 10.3, 10, false, false)
	mover.State = StateMoving
	indexTestUnit(grid, idle)
	indexTestUnit(grid, mover)

	var idlePush, moverPush Vec2
	flock.CalculatePhysicsPush(idle, grid, &idlePush)
	flock.CalculatePhysicsPush(mover, grid, &moverPush)

	// The idler is shoved aside harder than the mover is deflected
	if idlePush.Len() <= moverPush.Len() {
		t.Errorf("idle push %v should exceed mover push %v", idlePush.Len(), moverPush.Len())
	}
}

func TestSmoothVelocityDampsReversal(t *testing.T) {
	flock := NewFlockingBehavior()

	// Commit to heading +X
	var vx, vy float64
	for i := 0; i < DirectionCommitTicks+2; i++ {
		vx, vy = flock.SmoothVelocity(1, 2.0, 0, vx, vy)
	}
	if vx <= 0 {
		t.Fatalf("expected positive committed velocity, got %v", vx)
	}

	// A hard reversal gets damped toward the previous velocity instead of
	// flipping outright
	nvx, _ := flock.SmoothVelocity(1, -2.0, 0, vx, vy)
	if nvx <= -2.0 {
		t.Errorf("reversal not damped: got vx=%v", nvx)
	}
	if nvx >= vx {
		t.Errorf("damped reversal should still move toward the new heading: %v -> %v", vx, nvx)
	}
}

func TestStuckDetectionNudges(t *testing.T) {
	flock := NewFlockingBehavior()
	u := NewUnit(7, 1, 1, 10, 10, false, false)
	u.State = StateMoving

	var nudge Vec2
	// First call primes the position check, then the counter builds
	for i := 0; i <= StuckDurationTicks; i++ {
		flock.HandleStuckDetection(u, 0, 50, &nudge)
		if i < StuckDurationTicks && (nudge.X != 0 || nudge.Y != 0) {
			t.Fatalf("nudge fired early at call %d: %v", i, nudge)
		}
	}
	if nudge.X == 0 && nudge.Y == 0 {
		t.Fatal("expected a nudge after the stuck duration elapsed")
	}
	mag := nudge.Len()
	if math.Abs(mag-StuckNudge) > 1e-9 {
		t.Errorf("nudge magnitude = %v, want %v", mag, StuckNudge)
	}
}

func TestStuckDetectionResets(t *testing.T) {
	flock := NewFlockingBehavior()
	u := NewUnit(7, 1, 1, 10, 10, false, false)
	u.State = StateMoving

	var nudge Vec2
	// Build up most of the stuck counter
	for i := 0; i < StuckDurationTicks-2; i++ {
		flock.HandleStuckDetection(u, 0, 50, &nudge)
	}

	// Actual progress resets the counter
	u.X += StuckMoveDelta * 2
	flock.HandleStuckDetection(u, 0, 50, &nudge)
	for i := 0; i < StuckDurationTicks-2; i++ {
		flock.HandleStuckDetection(u, 0, 50, &nudge)
		if nudge.X != 0 || nudge.Y != 0 {
			t.Fatal("nudge fired after position progress reset the counter")
		}
	}

	// Arrival also resets: no nudge while within the arrive radius
	flock.HandleStuckDetection(u, 0, ArriveRadius/2, &nudge)
	if nudge.X != 0 || nudge.Y != 0 {
		t.Error("arrived unit should never be nudged")
	}
}

func TestStuckNudgeDeterministic(t *testing.T) {
	if stuckAngle(7, 0) != stuckAngle(7, 0) {
		t.Error("stuck angle must be stable for identical inputs")
	}
	if stuckAngle(7, 0) == stuckAngle(7, 1) {
		t.Error("consecutive episodes should pick different directions")
	}
	if stuckAngle(7, 0) == stuckAngle(8, 0) {
		t.Error("different entities should pick different directions")
	}
	a := stuckAngle(12345, 42)
	if a < 0 || a >= 2*math.Pi {
		t.Errorf("stuck angle %v out of [0, 2pi)", a)
	}
}

func TestCleanupUnitPurgesState(t *testing.T) {
	grid := NewSpatialGrid(WorldWidth, WorldHeight, FineCellSize)
	flock := NewFlockingBehavior()
	flock.BeginTick(0)

	u := NewUnit(1, 1, 1, 10, 10, false, false)
	n := NewUnit(2, 1, 1, 10.3, 10, false, false)
	indexTestUnit(grid, u)
	indexTestUnit(grid, n)

	var force Vec2
	flock.CalculateSeparation(u, -1, grid, &force)
	if _, ok := flock.entries[1]; !ok {
		t.Fatal("expected cached entry after force computation")
	}

	flock.CleanupUnit(1)
	if _, ok := flock.entries[1]; ok {
		t.Error("CleanupUnit left stale state behind")
	}

	// A recycled id starts cold: within what would have been the throttle
	// window it recomputes rather than reusing the old cache.
	grid.Remove(2)
	flock.BeginTick(1)
	flock.CalculateSeparation(u, -1, grid, &force)
	if force != (Vec2{}) {
		t.Errorf("recycled id reused stale cache: %v", force)
	}
}
