package main

const (
	WorldWidth  = 160.0 // world units
	WorldHeight = 160.0
)

const (
	// Spatial index. The coarse cell size is always derived from the fine
	// size — never tuned on its own, or the two grids drift apart.
	FineCellSize     = 5.0
	CoarseCellFactor = 4 // coarse cell = 4x fine cell
)

// Separation strengths by situation. Ordering matters:
// moving <= idle <= combat == arriving. The two strongest are equal so
// units hold shape both while fighting and while piling up at a goal.
const (
	SeparationRadiusFactor  = 1.0 // separation distance = combined radii * this
	SeparationMovingStr     = 0.8
	SeparationIdleStr       = 1.5
	SeparationCombatStr     = 2.2
	SeparationArrivingStr   = 2.2
	MaxSeparationForce      = 2.5
	ArrivalSpreadRadius     = 3.0 // within this of destination, use arriving strength
)

const (
	CohesionRadius   = 8.0
	CohesionStrength = 0.1

	AlignmentRadius   = 4.0
	AlignmentStrength = 0.3
	MinMovingSpeed    = 0.1 // below this a neighbor doesn't contribute to alignment
)

// Physics push is a positional correction, not a steering force.
const (
	PhysicsPushBase     = 0.6
	OverlapPushStrength = 1.8  // deep interpenetration
	OverlapFalloff      = 0.25 // overlap depth beyond which the strong push kicks in
	PushReceiveIdle     = 1.6  // idle unit shoved by a mover
	PushReceiveMoving   = 0.4  // mover barely deflected by an idler
	MaxPhysicsPush      = 3.0
)

// Throttle intervals in ticks, fastest to slowest. Uncorrected overlap
// degrades visuals faster than stale steering, so physics push leads.
const (
	PhysicsPushInterval = 2
	SeparationInterval  = 3
	AlignmentInterval   = 4
	CohesionInterval    = 6
)

const (
	VelocityHistoryLen   = 6
	DirectionCommitTicks = 4   // stable heading ticks before committing
	CommitAngleThreshold = 2.0 // radians; larger turns get damped once committed
	CommitDampStrength   = 0.35
)

const (
	StuckSpeedEpsilon  = 0.05
	StuckMoveDelta     = 0.3 // positional change that counts as progress
	StuckDurationTicks = 24  // consecutive stuck ticks before nudging
	StuckNudge         = 1.2
)

const (
	VelocitySmoothFactor = 0.25 // blend toward recent velocity history
	MaxFlockNeighbors    = 64   // cap on neighbors considered per unit
)

const (
	ArriveRadius   = 0.6  // close enough to a waypoint to consider it reached
	AcquireRadius  = 10.0 // attack-movers stop when an enemy is this close
	SteeringWeight = 1.0  // flocking force contribution vs path heading
)
