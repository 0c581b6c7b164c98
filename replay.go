package main

import (
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

const replayFormatVersion = 1

// ReplayCommand is one recorded command with the tick it executed on and
// the team resolved at record time, so resimulation needs no player table.
type ReplayCommand struct {
	Tick     uint64     `msgpack:"t"`
	PlayerID int        `msgpack:"p"`
	Team     int        `msgpack:"tm"`
	Cmd      CommandMsg `msgpack:"c"`
}

// Replay is a complete msgpack-encoded command log. Because the simulation
// is deterministic given the command sequence, this is all a resimulation
// needs.
type Replay struct {
	Version  int             `msgpack:"v"`
	Ticks    uint64          `msgpack:"ticks"`
	Commands []ReplayCommand `msgpack:"cmds"`
}

// ReplayRecorder accumulates the command log for a running game
type ReplayRecorder struct {
	mu       sync.Mutex
	commands []ReplayCommand
}

// NewReplayRecorder creates an empty recorder
func NewReplayRecorder() *ReplayRecorder {
	return &ReplayRecorder{}
}

// Record appends one executed command
func (r *ReplayRecorder) Record(tick uint64, playerID, team int, cmd CommandMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, ReplayCommand{
		Tick:     tick,
		PlayerID: playerID,
		Team:     team,
		Cmd:      cmd,
	})
}

// Encode serializes the log through the given tick count
func (r *ReplayRecorder) Encode(ticks uint64) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return msgpack.Marshal(Replay{
		Version:  replayFormatVersion,
		Ticks:    ticks,
		Commands: r.commands,
	})
}

// DecodeReplay parses an encoded replay
func DecodeReplay(data []byte) (*Replay, error) {
	var rep Replay
	if err := msgpack.Unmarshal(data, &rep); err != nil {
		return nil, err
	}
	if rep.Version != replayFormatVersion {
		return nil, fmt.Errorf("unsupported replay version %d", rep.Version)
	}
	return &rep, nil
}

// Resimulate replays the command log on a fresh Game and returns it after
// running the recorded number of ticks. The result must match the original
// run exactly; anything else is a determinism bug.
func Resimulate(rep *Replay) *Game {
	g := NewGame()
	idx := 0
	for t := uint64(0); t < rep.Ticks; t++ {
		g.mu.Lock()
		for idx < len(rep.Commands) && rep.Commands[idx].Tick == t {
			rc := rep.Commands[idx]
			g.pending = append(g.pending, timedCommand{playerID: rc.PlayerID, team: rc.Team, cmd: rc.Cmd})
			idx++
		}
		g.step()
		g.mu.Unlock()
	}
	return g
}
