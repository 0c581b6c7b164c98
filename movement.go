package main

import "math"

// Movement integrates unit motion each tick: pathfollow heading toward the
// current waypoint, plus the four flocking forces, smoothing and stuck
// recovery, then grid re-indexing. It owns nothing globally — the Game
// constructs one Movement per simulation with its own grid and flocking.
type Movement struct {
	grid     *SpatialGrid
	flock    *FlockingBehavior
	velCache EntityVelocityCache
}

// NewMovement wires the movement system to its collaborators
func NewMovement(grid *SpatialGrid, flock *FlockingBehavior) *Movement {
	return &Movement{
		grid:     grid,
		flock:    flock,
		velCache: make(EntityVelocityCache),
	}
}

// Step advances every unit one tick. order must be the unit ids in
// ascending order — map iteration order must never leak into positions.
func (m *Movement) Step(units map[int]*Unit, order []int, dt float64, tick uint64) {
	m.flock.BeginTick(tick)

	for _, id := range order {
		u := units[id]
		if u == nil || !u.Alive() {
			continue
		}
		m.stepUnit(u, dt)
	}

	// Velocity cache holds this tick's outcome for next tick's alignment
	for _, id := range order {
		if u := units[id]; u != nil && u.Alive() {
			m.velCache[id] = Vec2{u.VX, u.VY}
		}
	}
}

func (m *Movement) stepUnit(u *Unit, dt float64) {
	m.updateOrderState(u)

	// Desired heading from the pathfinding collaborator. Here that is a
	// straight line to the current waypoint; flocking only perturbs it.
	var pathV Vec2
	distToDest := -1.0
	if tx, ty, ok := u.currentWaypoint(); ok {
		distToDest = Distance(u.X, u.Y, tx, ty)
		if distToDest > ArriveRadius {
			dir := Vec2{tx - u.X, ty - u.Y}.Normalized()
			speed := u.MaxSpeed
			// ease in on final approach so arrival doesn't overshoot
			if distToDest < ArrivalSpreadRadius {
				speed *= Clamp(distToDest/ArrivalSpreadRadius, 0.3, 1.0)
			}
			pathV = Vec2{dir.X * speed, dir.Y * speed}
		}
	}

	m.flock.PreBatchNeighbors(u, m.grid)

	var sep, coh, align, push, nudge Vec2
	m.flock.CalculateSeparation(u, distToDest, m.grid, &sep)
	m.flock.CalculateCohesion(u, m.grid, &coh)
	m.flock.CalculateAlignment(u, m.grid, m.velCache, &align)
	m.flock.CalculatePhysicsPush(u, m.grid, &push)

	currentSpeed := math.Sqrt(u.VX*u.VX + u.VY*u.VY)
	m.flock.HandleStuckDetection(u, currentSpeed, distToDest, &nudge)

	desiredVX := pathV.X + (sep.X+coh.X+align.X+nudge.X)*SteeringWeight
	desiredVY := pathV.Y + (sep.Y+coh.Y+align.Y+nudge.Y)*SteeringWeight

	vx, vy := m.flock.SmoothVelocity(u.ID, desiredVX, desiredVY, u.VX, u.VY)
	v := Vec2{vx, vy}.ClampLen(u.MaxSpeed)
	u.VX = v.X
	u.VY = v.Y

	// Physics push is a positional correction, applied outside the
	// steering blend so deep overlaps resolve even at zero velocity.
	u.X += (u.VX + push.X) * dt
	u.Y += (u.VY + push.Y) * dt

	// The grid assumes pre-clamped coordinates; the movement system is
	// the caller, so it clamps here.
	u.X = Clamp(u.X, 0, WorldWidth)
	u.Y = Clamp(u.Y, 0, WorldHeight)

	m.grid.UpdatePosition(u.ID, u.X, u.Y)
}

// updateOrderState runs arrival and engagement transitions before
// steering, so this tick's forces see the new state.
func (m *Movement) updateOrderState(u *Unit) {
	switch u.Order {
	case OrderMove:
		if Distance(u.X, u.Y, u.TargetX, u.TargetY) <= ArriveRadius {
			u.Order = OrderNone
			u.State = StateIdle
			u.VX = 0
			u.VY = 0
			m.syncGridState(u)
		}
	case OrderAttackMove:
		if m.grid.HasEnemyInRadius(u.X, u.Y, AcquireRadius, u.PlayerID) {
			if u.State != StateAttacking {
				u.State = StateAttacking
				m.syncGridState(u)
			}
		} else if u.State == StateAttacking {
			// enemy gone, resume the march
			u.State = StateAttackMoving
			m.syncGridState(u)
		}
		if u.State != StateAttacking && Distance(u.X, u.Y, u.TargetX, u.TargetY) <= ArriveRadius {
			u.Order = OrderNone
			u.State = StateIdle
			u.VX = 0
			u.VY = 0
			m.syncGridState(u)
		}
	case OrderPatrol:
		tx, ty, _ := u.currentWaypoint()
		if Distance(u.X, u.Y, tx, ty) <= ArriveRadius {
			u.PatrolToTarget = !u.PatrolToTarget
		}
	}
}

// syncGridState pushes a state change into the grid so enemy/neighbor
// queries made by other units this tick see it
func (m *Movement) syncGridState(u *Unit) {
	m.grid.UpdateFull(SpatialEntityData{
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

// IndexUnit inserts or fully refreshes a unit in the grid
func (m *Movement) IndexUnit(u *Unit) {
	m.syncGridState(u)
}

// RemoveUnit drops a unit from the grid, flocking caches and velocity
// cache. Exactly once per destruction.
func (m *Movement) RemoveUnit(id int) {
	m.grid.Remove(id)
	m.flock.CleanupUnit(id)
	delete(m.velCache, id)
}
