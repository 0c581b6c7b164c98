package main

// UnitState describes what a unit is currently doing. Several movement
// rules key off this: separation strength, cohesion/alignment grouping,
// and the alliance check skips Dead units entirely.
type UnitState uint8

const (
	StateIdle UnitState = iota
	StateMoving
	StateAttacking
	StateAttackMoving
	StateGathering
	StateBuilding
	StatePatrolling
	StateDead
)

var unitStateNames = [...]string{
	"idle", "moving", "attacking", "attackmoving",
	"gathering", "building", "patrolling", "dead",
}

func (s UnitState) String() string {
	if int(s) < len(unitStateNames) {
		return unitStateNames[s]
	}
	return "unknown"
}

// OrderKind is the standing order a unit is executing
type OrderKind uint8

const (
	OrderNone OrderKind = iota
	OrderMove
	OrderAttackMove
	OrderPatrol
)

// Unit is one controllable entity. Position/velocity are integrated by the
// movement system; the unit itself holds no behavior.
type Unit struct {
	ID       int
	PlayerID int
	Team     int

	X, Y   float64
	VX, VY float64

	State           UnitState
	Order           OrderKind
	TargetX         float64 // current waypoint (supplied by pathfinding)
	TargetY         float64
	PatrolX         float64 // patrol return point
	PatrolY         float64
	PatrolToTarget  bool    // heading toward Target (true) or back to Patrol point

	Radius          float64 // query radius
	CollisionRadius float64
	MaxSpeed        float64
	Worker          bool
	Flying          bool
}

// NewUnit creates a unit at the given position with default dimensions
func NewUnit(id, playerID, team int, x, y float64, worker, flying bool) *Unit {
	u := &Unit{
		ID:              id,
		PlayerID:        playerID,
		Team:            team,
		X:               x,
		Y:               y,
		State:           StateIdle,
		Radius:          1.0,
		CollisionRadius: 0.5,
		MaxSpeed:        3.5,
	}
	if worker {
		u.Worker = true
		u.MaxSpeed = 3.0
	}
	if flying {
		u.Flying = true
		u.CollisionRadius = 0.4
		u.MaxSpeed = 5.0
	}
	return u
}

// Alive reports whether the unit participates in movement
func (u *Unit) Alive() bool {
	return u.State != StateDead
}

// Moving reports whether the unit's state implies it wants to travel
func (u *Unit) Moving() bool {
	switch u.State {
	case StateMoving, StateAttackMoving, StatePatrolling:
		return true
	}
	return false
}

// OrderMoveTo issues a move order toward (x, y)
func (u *Unit) OrderMoveTo(x, y float64) {
	u.Order = OrderMove
	u.TargetX = x
	u.TargetY = y
	u.State = StateMoving
}

// OrderAttackMoveTo issues an attack-move order toward (x, y)
func (u *Unit) OrderAttackMoveTo(x, y float64) {
	u.Order = OrderAttackMove
	u.TargetX = x
	u.TargetY = y
	u.State = StateAttackMoving
}

// OrderPatrolTo starts patrolling between the current position and (x, y)
func (u *Unit) OrderPatrolTo(x, y float64) {
	u.Order = OrderPatrol
	u.TargetX = x
	u.TargetY = y
	u.PatrolX = u.X
	u.PatrolY = u.Y
	u.PatrolToTarget = true
	u.State = StatePatrolling
}

// OrderStop cancels any standing order
func (u *Unit) OrderStop() {
	u.Order = OrderNone
	u.State = StateIdle
	u.VX = 0
	u.VY = 0
}

// currentWaypoint returns the waypoint the unit is heading toward, or false
// when it has no destination
func (u *Unit) currentWaypoint() (float64, float64, bool) {
	switch u.Order {
	case OrderMove, OrderAttackMove:
		return u.TargetX, u.TargetY, true
	case OrderPatrol:
		if u.PatrolToTarget {
			return u.TargetX, u.TargetY, true
		}
		return u.PatrolX, u.PatrolY, true
	}
	return 0, 0, false
}

// ToSnapshot converts the unit to its wire representation
func (u *Unit) ToSnapshot() UnitSnapshot {
	return UnitSnapshot{
		ID:       u.ID,
		PlayerID: u.PlayerID,
		Team:     u.Team,
		X:        round2(u.X),
		Y:        round2(u.Y),
		VX:       round2(u.VX),
		VY:       round2(u.VY),
		State:    uint8(u.State),
		Worker:   u.Worker,
		Flying:   u.Flying,
	}
}
