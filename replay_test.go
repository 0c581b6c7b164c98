package main

import (
	"reflect"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestReplayEncodeDecodeRoundtrip(t *testing.T) {
	rec := NewReplayRecorder()
	rec.Record(0, 1, 1, CommandMsg{Kind: CmdSpawn, X: 40, Y: 40, Count: 4})
	rec.Record(3, 1, 1, CommandMsg{Kind: CmdMove, Units: []int{1, 2}, X: 80, Y: 80})

	data, err := rec.Encode(10)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	rep, err := DecodeReplay(data)
	if err != nil {
		t.Fatalf("DecodeReplay: %v", err)
	}
	if rep.Version != replayFormatVersion {
		t.Errorf("Version = %d, want %d", rep.Version, replayFormatVersion)
	}
	if rep.Ticks != 10 {
		t.Errorf("Ticks = %d, want 10", rep.Ticks)
	}
	if len(rep.Commands) != 2 {
		t.Fatalf("Commands = %d, want 2", len(rep.Commands))
	}
	if rep.Commands[1].Tick != 3 || rep.Commands[1].Cmd.Kind != CmdMove {
		t.Errorf("command 1 = %+v, want tick-3 move", rep.Commands[1])
	}
	if !reflect.DeepEqual(rep.Commands[1].Cmd.Units, []int{1, 2}) {
		t.Errorf("unit list lost in roundtrip: %v", rep.Commands[1].Cmd.Units)
	}
}

func TestDecodeReplayRejectsBadVersion(t *testing.T) {
	rec := NewReplayRecorder()
	data, _ := rec.Encode(1)

	rep, _ := DecodeReplay(data)
	rep.Version = 99
	bad, err := msgpack.Marshal(rep)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeReplay(bad); err == nil {
		t.Error("expected error for unsupported replay version")
	}
}

func TestResimulateReproducesState(t *testing.T) {
	g := NewGame()
	p1 := g.AddPlayer("Alice", 1)
	p2 := g.AddPlayer("Bob", 2)

	g.QueueCommand(p1.PlayerID, CommandMsg{Kind: CmdSpawn, X: 30, Y: 30, Count: 6})
	g.QueueCommand(p2.PlayerID, CommandMsg{Kind: CmdSpawn, X: 70, Y: 70, Count: 6})
	g.StepOnce()

	snap := g.Snapshot()
	var p1Units, p2Units []int
	for _, u := range snap.Units {
		if u.PlayerID == p1.PlayerID {
			p1Units = append(p1Units, u.ID)
		} else {
			p2Units = append(p2Units, u.ID)
		}
	}
	g.QueueCommand(p1.PlayerID, CommandMsg{Kind: CmdMove, Units: p1Units, X: 70, Y: 70})
	g.QueueCommand(p2.PlayerID, CommandMsg{Kind: CmdAttackMove, Units: p2Units, X: 30, Y: 30})
	for i := 0; i < 50; i++ {
		g.StepOnce()
	}
	g.QueueCommand(p1.PlayerID, CommandMsg{Kind: CmdStop, Units: p1Units})
	for i := 0; i < 20; i++ {
		g.StepOnce()
	}

	data, err := g.Replay()
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	rep, err := DecodeReplay(data)
	if err != nil {
		t.Fatalf("DecodeReplay: %v", err)
	}

	resim := Resimulate(rep)

	want := g.Snapshot()
	got := resim.Snapshot()
	if !reflect.DeepEqual(want, got) {
		t.Errorf("resimulation diverged from live run at tick %d", want.Tick)
	}
}
