package gateway

import (
	"context"
	"fmt"

	"azukibar/internal/game"
	"azukibar/internal/protocol"
)

func (s *session) handle(ctx context.Context, raw []byte) {
	if !s.limiter.Allow() {
		s.fail(errRateLimited)
		return
	}
	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		s.fail(fmt.Errorf("%w: %v", game.ErrValidation, err))
		return
	}
	if err := s.dispatch(ctx, env); err != nil {
		s.g.log.Debug().Err(err).Str("conn", s.id).Str("action", env.T).Msg("action rejected")
		s.fail(err)
	}
}

func (s *session) dispatch(ctx context.Context, env protocol.Envelope) error {
	switch env.T {
	case protocol.ActCreateRoom:
		return s.createRoom(env)
	case protocol.ActJoinRoom:
		return s.joinRoom(env)
	case protocol.ActAutoMatch:
		return s.autoMatch(env)
	case protocol.ActStartGame:
		return s.playerAction(env, (*game.Room).Start)
	case protocol.ActEndGame:
		return s.playerAction(env, (*game.Room).End)
	case protocol.ActUseAbility:
		return s.playerAction(env, (*game.Room).UseAbility)
	case protocol.ActSubmitDajare:
		return s.submit(ctx, env)
	case protocol.ActVote:
		return s.vote(env)
	case protocol.ActLeave:
		return s.leave(env)
	case protocol.ActSpectate:
		return s.spectate(env)
	case protocol.ActRoomList:
		s.send(protocol.MsgRoomList, map[string]any{"rooms": s.g.reg.Rooms()})
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", game.ErrValidation, env.T)
	}
}

func decode[T any](env protocol.Envelope) (T, error) {
	v, err := protocol.DecodePayload[T](env)
	if err != nil {
		return v, fmt.Errorf("%w: %v", game.ErrValidation, err)
	}
	return v, nil
}

// claim picks the player id for a create or join. A connection keeps the id
// it first played under.
func (s *session) claim(requested string) (string, error) {
	if s.playerID != "" && !s.spectator {
		if requested != "" && requested != s.playerID {
			return "", fmt.Errorf("%w: connection is bound to player %s", game.ErrValidation, s.playerID)
		}
		return s.playerID, nil
	}
	s.stopSpectating()
	if requested != "" {
		return requested, nil
	}
	return s.id, nil
}

// actor resolves the bound player and their room.
func (s *session) actor(requested string) (string, *game.Room, error) {
	if s.playerID == "" || s.spectator {
		return "", nil, fmt.Errorf("%w: join a room first", game.ErrState)
	}
	if requested != "" && requested != s.playerID {
		return "", nil, fmt.Errorf("%w: connection is bound to player %s", game.ErrValidation, s.playerID)
	}
	room, ok := s.g.reg.PlayerRoom(s.playerID)
	if !ok {
		return "", nil, fmt.Errorf("%w: player %s is not in a room", game.ErrNotFound, s.playerID)
	}
	return s.playerID, room, nil
}

// joined binds the session to its seat. The join that fills a roles room
// deals roles before the session subscribes, so the reply carries the role.
func (s *session) joined(msg string, room *game.Room, playerID string, created bool) {
	s.playerID = playerID
	s.spectator = false
	s.follow(room.ID(), playerID)
	role, _ := room.Role(playerID)
	s.send(msg, protocol.RoomJoined{
		RoomID:   room.ID(),
		PlayerID: playerID,
		Created:  created,
		Role:     string(role),
		Room:     room.Snapshot(),
	})
}

func (s *session) createRoom(env protocol.Envelope) error {
	req, err := decode[protocol.CreateRoom](env)
	if err != nil {
		return err
	}
	playerID, err := s.claim(req.PlayerID)
	if err != nil {
		return err
	}
	room, err := s.g.reg.Create(playerID, req.PlayerName, game.RoomRequest{
		Ruleset:   game.Ruleset(req.Ruleset),
		Capacity:  req.Capacity,
		MaxRounds: req.MaxRounds,
	})
	if err != nil {
		return err
	}
	s.joined(protocol.MsgRoomCreated, room, playerID, true)
	return nil
}

func (s *session) joinRoom(env protocol.Envelope) error {
	req, err := decode[protocol.JoinRoom](env)
	if err != nil {
		return err
	}
	if req.RoomID == "" {
		return fmt.Errorf("%w: roomId required", game.ErrValidation)
	}
	playerID, err := s.claim(req.PlayerID)
	if err != nil {
		return err
	}
	room, err := s.g.reg.Join(req.RoomID, playerID, req.PlayerName)
	if err != nil {
		return err
	}
	s.joined(protocol.MsgRoomJoined, room, playerID, false)
	return nil
}

func (s *session) autoMatch(env protocol.Envelope) error {
	req, err := decode[protocol.AutoMatch](env)
	if err != nil {
		return err
	}
	playerID, err := s.claim(req.PlayerID)
	if err != nil {
		return err
	}
	room, created, err := s.g.reg.AutoMatch(playerID, req.PlayerName)
	if err != nil {
		return err
	}
	s.joined(protocol.MsgRoomJoined, room, playerID, created)
	return nil
}

func (s *session) playerAction(env protocol.Envelope, act func(*game.Room, string) error) error {
	req, err := decode[protocol.PlayerAction](env)
	if err != nil {
		return err
	}
	playerID, room, err := s.actor(req.PlayerID)
	if err != nil {
		return err
	}
	return act(room, playerID)
}

func (s *session) submit(ctx context.Context, env protocol.Envelope) error {
	req, err := decode[protocol.SubmitDajare](env)
	if err != nil {
		return err
	}
	playerID, room, err := s.actor(req.PlayerID)
	if err != nil {
		return err
	}
	_, err = room.Submit(ctx, playerID, req.Dajare)
	return err
}

func (s *session) vote(env protocol.Envelope) error {
	req, err := decode[protocol.Vote](env)
	if err != nil {
		return err
	}
	playerID, room, err := s.actor(req.PlayerID)
	if err != nil {
		return err
	}
	if err := room.Vote(playerID, req.SubmissionID); err != nil {
		return err
	}
	s.send(protocol.MsgVoteSubmitted, map[string]int{"submissionId": req.SubmissionID})
	return nil
}

func (s *session) leave(env protocol.Envelope) error {
	req, err := decode[protocol.PlayerAction](env)
	if err != nil {
		return err
	}
	if s.spectator {
		roomID := s.roomID
		s.stopSpectating()
		s.send(protocol.MsgLeftRoom, map[string]string{"roomId": roomID})
		return nil
	}
	playerID, _, err := s.actor(req.PlayerID)
	if err != nil {
		return err
	}
	roomID, _, err := s.g.reg.Leave(playerID)
	if err != nil {
		return err
	}
	s.unfollow()
	s.send(protocol.MsgLeftRoom, map[string]string{"roomId": roomID})
	return nil
}

func (s *session) spectate(env protocol.Envelope) error {
	req, err := decode[protocol.Spectate](env)
	if err != nil {
		return err
	}
	if !s.spectator && s.playerID != "" {
		if room, ok := s.g.reg.PlayerRoom(s.playerID); ok {
			return fmt.Errorf("%w: already playing in room %s", game.ErrState, room.ID())
		}
	}
	s.stopSpectating()
	name := req.Name
	if name == "" {
		name = "spectator"
	}
	room, err := s.g.reg.Spectate(req.RoomID, s.id, name)
	if err != nil {
		return err
	}
	s.playerID = s.id
	s.spectator = true
	s.follow(room.ID(), s.id)
	s.send(protocol.MsgRoomJoined, protocol.RoomJoined{
		RoomID:    room.ID(),
		PlayerID:  s.id,
		Spectator: true,
		Room:      room.Snapshot(),
	})
	return nil
}

func (s *session) stopSpectating() {
	if !s.spectator {
		return
	}
	if room, ok := s.g.reg.Room(s.roomID); ok {
		room.RemoveSpectator(s.id)
	}
	s.unfollow()
	s.spectator = false
	s.playerID = ""
}
