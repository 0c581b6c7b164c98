package main

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	TickRate       = 20 // simulation ticks per second
	TickDuration   = time.Second / TickRate
	BroadcastEvery = 2 // broadcast every Nth tick

	// Fixed-timestep accumulator guards: a stalled frame never produces a
	// giant delta, and catch-up never runs away after a pause.
	MaxFrameDelta   = 250 * time.Millisecond
	MaxCatchUpTicks = 5
)

const (
	maxPlayersPerSession = 8
	maxUnitsPerPlayer    = 200
	maxSpawnPerCommand   = 50
)

// Broadcaster interface for sending messages to clients
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// GamePlayer is one participant in a session
type GamePlayer struct {
	PlayerID     int
	Name         string
	Team         int
	AuthPlayerID int64 // 0 = guest
	UnitsSpawned int
	UnitsLost    int
}

// timedCommand is a queued command stamped with the tick it executes on
type timedCommand struct {
	playerID int
	team     int
	cmd      CommandMsg
}

// Game holds one independent simulation: its own grid, flocking state and
// movement system. Two games share nothing, so replay resimulation can run
// beside a live session.
type Game struct {
	mu       sync.Mutex
	grid     *SpatialGrid
	flock    *FlockingBehavior
	movement *Movement

	units     map[int]*Unit
	unitOrder []int // ascending ids; the only iteration order used
	players   map[int]*GamePlayer
	clients   map[int]Broadcaster

	nextUnitID   int
	nextPlayerID int
	tick         uint64

	pending  []timedCommand
	recorder *ReplayRecorder
	departed []GamePlayer

	accumulator time.Duration
	running     bool
	stop        chan struct{}
	startedAt   time.Time
}

// NewGame creates a fresh simulation with its own spatial index and
// flocking behavior
func NewGame() *Game {
	grid := NewSpatialGrid(WorldWidth, WorldHeight, FineCellSize)
	flock := NewFlockingBehavior()
	return &Game{
		grid:       grid,
		flock:      flock,
		movement:   NewMovement(grid, flock),
		units:      make(map[int]*Unit),
		players:    make(map[int]*GamePlayer),
		clients:    make(map[int]Broadcaster),
		nextUnitID: 1,
		recorder:   NewReplayRecorder(),
		stop:       make(chan struct{}),
		startedAt:  time.Now(),
	}
}

// Run starts the real-time game loop
func (g *Game) Run() {
	g.mu.Lock()
	g.running = true
	g.mu.Unlock()

	ticker := time.NewTicker(TickDuration / 2)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case now := <-ticker.C:
			g.Advance(now.Sub(last))
			last = now
		case <-g.stop:
			return
		}
	}
}

// Stop terminates the game loop
func (g *Game) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		g.running = false
		close(g.stop)
	}
}

// Advance feeds a frame delta into the fixed-timestep accumulator and runs
// however many whole ticks fit, bounded by MaxCatchUpTicks.
func (g *Game) Advance(frameDelta time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frameDelta > MaxFrameDelta {
		frameDelta = MaxFrameDelta
	}
	g.accumulator += frameDelta

	ran := 0
	for g.accumulator >= TickDuration && ran < MaxCatchUpTicks {
		g.step()
		g.accumulator -= TickDuration
		ran++
	}
	if ran == MaxCatchUpTicks && g.accumulator > TickDuration {
		// long stall: drop the backlog instead of spiraling
		g.accumulator = 0
	}
}

// StepOnce runs exactly one simulation tick. Used by tests and replay
// resimulation, where wall time is irrelevant.
func (g *Game) StepOnce() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.step()
}

// step runs one atomic tick: queued commands first, then movement, then
// broadcast. Callers hold g.mu.
func (g *Game) step() {
	for _, tc := range g.pending {
		g.recorder.Record(g.tick, tc.playerID, tc.team, tc.cmd)
		g.applyCommand(tc.playerID, tc.team, tc.cmd)
	}
	g.pending = g.pending[:0]

	g.movement.Step(g.units, g.unitOrder, 1.0/float64(TickRate), g.tick)
	g.reapDead()
	g.tick++

	if g.tick%BroadcastEvery == 0 && len(g.clients) > 0 {
		g.broadcastState()
	}
}

// AddPlayer adds a participant and returns it, or nil when full
func (g *Game) AddPlayer(name string, team int) *GamePlayer {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.players) >= maxPlayersPerSession {
		return nil
	}
	g.nextPlayerID++
	p := &GamePlayer{
		PlayerID: g.nextPlayerID,
		Name:     name,
		Team:     team,
	}
	g.players[p.PlayerID] = p
	return p
}

// RemovePlayer removes a participant and destroys their units
func (g *Game) RemovePlayer(playerID int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range g.unitOrder {
		if u := g.units[id]; u != nil && u.PlayerID == playerID {
			u.State = StateDead
		}
	}
	g.reapDead()
	if p := g.players[playerID]; p != nil {
		g.departed = append(g.departed, *p)
	}
	delete(g.players, playerID)
	delete(g.clients, playerID)
}

// SetClient associates a broadcaster with a player
func (g *Game) SetClient(playerID int, client Broadcaster) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[playerID] = client
}

// HasPlayer reports whether the player id is in the session
func (g *Game) HasPlayer(playerID int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.players[playerID]
	return ok
}

// PlayerCount returns the number of players
func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

// UnitCount returns the number of living units
func (g *Game) UnitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.units)
}

// Tick returns the current simulation tick
func (g *Game) Tick() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tick
}

// QueueCommand enqueues a player command for the next tick. Commands apply
// in arrival order at tick start, which keeps the simulation a pure
// function of the command sequence.
func (g *Game) QueueCommand(playerID int, cmd CommandMsg) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[playerID]
	if !ok {
		return
	}
	g.pending = append(g.pending, timedCommand{playerID: playerID, team: p.Team, cmd: cmd})
}

// applyCommand executes one command. Callers hold g.mu.
func (g *Game) applyCommand(playerID, team int, cmd CommandMsg) {
	switch cmd.Kind {
	case CmdSpawn:
		g.spawnUnits(playerID, team, cmd)
	case CmdMove:
		g.forOwnUnits(playerID, cmd.Units, func(u *Unit) {
			u.OrderMoveTo(cmd.X, cmd.Y)
			g.movement.IndexUnit(u)
		})
	case CmdAttackMove:
		g.forOwnUnits(playerID, cmd.Units, func(u *Unit) {
			u.OrderAttackMoveTo(cmd.X, cmd.Y)
			g.movement.IndexUnit(u)
		})
	case CmdPatrol:
		g.forOwnUnits(playerID, cmd.Units, func(u *Unit) {
			u.OrderPatrolTo(cmd.X, cmd.Y)
			g.movement.IndexUnit(u)
		})
	case CmdStop:
		g.forOwnUnits(playerID, cmd.Units, func(u *Unit) {
			u.OrderStop()
			g.movement.IndexUnit(u)
		})
	case CmdRemove:
		g.forOwnUnits(playerID, cmd.Units, func(u *Unit) {
			u.State = StateDead
		})
	}
}

func (g *Game) spawnUnits(playerID, team int, cmd CommandMsg) {
	count := cmd.Count
	if count < 1 {
		count = 1
	}
	if count > maxSpawnPerCommand {
		count = maxSpawnPerCommand
	}
	owned := 0
	for _, id := range g.unitOrder {
		if u := g.units[id]; u != nil && u.PlayerID == playerID {
			owned++
		}
	}

	x := Clamp(cmd.X, 0, WorldWidth)
	y := Clamp(cmd.Y, 0, WorldHeight)
	for i := 0; i < count && owned < maxUnitsPerPlayer; i++ {
		id := g.nextUnitID
		g.nextUnitID++
		// ring placement so a batch doesn't spawn perfectly stacked
		angle := stuckAngle(id, 0)
		offset := float64(i%8) * 0.3
		u := NewUnit(id, playerID, team,
			Clamp(x+offset*math.Cos(angle), 0, WorldWidth),
			Clamp(y+offset*math.Sin(angle), 0, WorldHeight),
			cmd.Worker, cmd.Flying)
		g.units[id] = u
		g.unitOrder = append(g.unitOrder, id) // ids are monotonic, stays sorted
		g.movement.IndexUnit(u)
		owned++
		if p, ok := g.players[playerID]; ok {
			p.UnitsSpawned++
		}
	}
}

// forOwnUnits applies fn to each listed living unit owned by the player
func (g *Game) forOwnUnits(playerID int, ids []int, fn func(u *Unit)) {
	for _, id := range ids {
		u, ok := g.units[id]
		if !ok || u.PlayerID != playerID || !u.Alive() {
			continue
		}
		fn(u)
	}
}

// reapDead removes dead units from the simulation and all caches.
// Callers hold g.mu.
func (g *Game) reapDead() {
	dead := false
	for _, id := range g.unitOrder {
		if u := g.units[id]; u != nil && u.State == StateDead {
			g.movement.RemoveUnit(id)
			if p, ok := g.players[u.PlayerID]; ok {
				p.UnitsLost++
			}
			delete(g.units, id)
			dead = true
		}
	}
	if !dead {
		return
	}
	order := g.unitOrder[:0]
	for _, id := range g.unitOrder {
		if _, ok := g.units[id]; ok {
			order = append(order, id)
		}
	}
	g.unitOrder = order
}

// Snapshot returns the current wire-format state. Units are emitted in
// ascending id order.
func (g *Game) Snapshot() GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Game) snapshotLocked() GameState {
	state := GameState{
		Tick:  g.tick,
		Units: make([]UnitSnapshot, 0, len(g.units)),
	}
	for _, id := range g.unitOrder {
		if u := g.units[id]; u != nil {
			state.Units = append(state.Units, u.ToSnapshot())
		}
	}
	return state
}

// broadcastState sends the msgpack state frame to all clients.
// Callers hold g.mu.
func (g *Game) broadcastState() {
	data, err := msgpack.Marshal(g.snapshotLocked())
	if err != nil {
		return
	}
	for _, client := range g.clients {
		client.SendBinary(data)
	}
}

// Replay returns an encoded replay of everything queued so far
func (g *Game) Replay() ([]byte, error) {
	g.mu.Lock()
	ticks := g.tick
	g.mu.Unlock()
	return g.recorder.Encode(ticks)
}

// MatchResult summarizes a finished session for persistence
type MatchResult struct {
	Duration float64
	Players  []GamePlayer
}

// Result builds the match summary. The winner is not decided here —
// combat resolution lives outside this server.
func (g *Game) Result() MatchResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	res := MatchResult{Duration: time.Since(g.startedAt).Seconds()}
	res.Players = append(res.Players, g.departed...)
	ids := make([]int, 0, len(g.players))
	for id := range g.players {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		res.Players = append(res.Players, *g.players[id])
	}
	return res
}
