// Package protocol defines the realtime wire format: every frame is an
// envelope {"t": type, "p": payload}.
package protocol

import (
	"encoding/json"
)

// Client actions.
const (
	ActCreateRoom   = "create_room"
	ActJoinRoom     = "join_room"
	ActAutoMatch    = "auto_match"
	ActStartGame    = "start_game"
	ActSubmitDajare = "submit_dajare"
	ActVote         = "vote"
	ActLeave        = "leave"
	ActUseAbility   = "use_ability"
	ActEndGame      = "end_game"
	ActSpectate     = "spectate_room"
	ActRoomList     = "get_room_list"
)

// Server replies sent only to the acting connection. Room events use the
// names published by the game package.
const (
	MsgWelcome       = "welcome"
	MsgRoomCreated   = "room_created"
	MsgRoomJoined    = "room_joined"
	MsgRoomList      = "room_list"
	MsgVoteSubmitted = "vote_submitted"
	MsgLeftRoom      = "left_room"
	MsgError         = "error"
)

// Envelope is one frame on the wire.
type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p"`
}

type CreateRoom struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Ruleset    string `json:"ruleset"`
	Capacity   int    `json:"capacity"`
	MaxRounds  int    `json:"maxRounds"`
}

type JoinRoom struct {
	RoomID     string `json:"roomId"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type AutoMatch struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// PlayerAction carries the actor for payload-less actions: start, leave,
// ability, end.
type PlayerAction struct {
	PlayerID string `json:"playerId"`
}

type SubmitDajare struct {
	PlayerID string `json:"playerId"`
	Dajare   string `json:"dajare"`
}

type Vote struct {
	PlayerID     string `json:"playerId"`
	SubmissionID int    `json:"submissionId"`
}

type Spectate struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

type Welcome struct {
	ConnectionID string `json:"connectionId"`
}

// RoomJoined confirms a create, join or spectate. Role is the caller's own
// role when the join dealt roles.
type RoomJoined struct {
	RoomID    string `json:"roomId"`
	PlayerID  string `json:"playerId"`
	Created   bool   `json:"created,omitempty"`
	Spectator bool   `json:"spectator,omitempty"`
	Role      string `json:"role,omitempty"`
	Room      any    `json:"room"`
}

type Error struct {
	Message string `json:"message"`
}
