package main

import "encoding/json"

// Client -> Server message types
const (
	MsgJoin     = "join"
	MsgLeave    = "leave"
	MsgCreate   = "create"  // create session
	MsgList     = "list"    // list sessions
	MsgCheck    = "check"   // check if session exists
	MsgCommand  = "cmd"     // unit command
	MsgRegister = "register"
	MsgLogin    = "login"
	MsgAuth     = "auth" // token re-auth
	MsgProfile  = "profile"
)

// Server -> Client message types
const (
	MsgState       = "state" // binary msgpack GameState
	MsgWelcome     = "welcome"
	MsgSessions    = "sessions"
	MsgJoined      = "joined"
	MsgCreated     = "created"
	MsgChecked     = "checked"
	MsgError       = "error"
	MsgAuthOK      = "auth_ok"
	MsgProfileData = "profile_data"
)

// Envelope wraps all outgoing JSON messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages — json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// Command kinds understood by the simulation
const (
	CmdSpawn      = "spawn"
	CmdMove       = "move"
	CmdAttackMove = "attackmove"
	CmdPatrol     = "patrol"
	CmdStop       = "stop"
	CmdRemove     = "remove" // destroy own units
)

// CommandMsg is one unit command from a player. Units lists the ids the
// command applies to; spawn uses Count/Worker/Flying instead.
type CommandMsg struct {
	Kind   string  `json:"k"`
	Units  []int   `json:"u,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Count  int     `json:"n,omitempty"`
	Worker bool    `json:"w,omitempty"`
	Flying bool    `json:"f,omitempty"`
}

// JoinMsg is sent when a player wants to join a session
type JoinMsg struct {
	Name      string `json:"name"`
	SessionID string `json:"sid"`
	Team      int    `json:"team"`
}

// CreateMsg is sent when a player wants to create a session
type CreateMsg struct {
	Name        string `json:"name"`
	SessionName string `json:"sname"`
}

// CheckMsg asks whether a session exists
type CheckMsg struct {
	SID string `json:"sid"`
}

// CheckedMsg is the session check response
type CheckedMsg struct {
	SID     string `json:"sid"`
	Exists  bool   `json:"exists"`
	Name    string `json:"name,omitempty"`
	Players int    `json:"players,omitempty"`
}

// WelcomeMsg tells a joining client its player id and team
type WelcomeMsg struct {
	PlayerID int `json:"pid"`
	Team     int `json:"team"`
}

// ErrorMsg carries a human-readable error
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// SessionInfo describes a joinable session
type SessionInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Players int    `json:"players"`
}

// RegisterMsg creates an account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg authenticates with credentials
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg authenticates with a previously issued token
type AuthMsg struct {
	Token string `json:"token"`
}

// AuthOKMsg confirms authentication
type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	PlayerID int64  `json:"pid"`
}

// ProfileDataMsg carries persisted account stats
type ProfileDataMsg struct {
	Username     string  `json:"username"`
	Matches      int     `json:"matches"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	UnitsOwned   int     `json:"units"`
	Playtime     float64 `json:"playtime"`
}

// UnitSnapshot is the per-unit wire state, broadcast each tick as part of
// the msgpack-encoded GameState
type UnitSnapshot struct {
	ID       int     `msgpack:"id" json:"id"`
	PlayerID int     `msgpack:"p" json:"p"`
	Team     int     `msgpack:"tm" json:"tm"`
	X        float64 `msgpack:"x" json:"x"`
	Y        float64 `msgpack:"y" json:"y"`
	VX       float64 `msgpack:"vx" json:"vx"`
	VY       float64 `msgpack:"vy" json:"vy"`
	State    uint8   `msgpack:"s" json:"s"`
	Worker   bool    `msgpack:"w" json:"w"`
	Flying   bool    `msgpack:"f" json:"f"`
}

// GameState is the full simulation snapshot broadcast to clients
type GameState struct {
	Tick  uint64         `msgpack:"tick" json:"tick"`
	Units []UnitSnapshot `msgpack:"u" json:"u"`
}
