package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeVote(t *testing.T) {
	b, err := Encode(ActVote, Vote{PlayerID: "p1", SubmissionID: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"vote","p":{"playerId":"p1","submissionId":3}}`, string(b))

	env, err := DecodeEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, ActVote, env.T)
	v, err := DecodePayload[Vote](env)
	require.NoError(t, err)
	assert.Equal(t, Vote{PlayerID: "p1", SubmissionID: 3}, v)
}

func TestEncodeRejectsEmpty(t *testing.T) {
	_, err := Encode("", Error{})
	assert.Error(t, err)
	_, err = Encode(MsgError, nil)
	assert.Error(t, err)
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	for _, in := range []string{"", "not json", `{"p":{}}`} {
		_, err := DecodeEnvelope([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestDecodePayload(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"t":"get_room_list"}`))
	require.NoError(t, err)
	_, err = DecodePayload[PlayerAction](env)
	assert.NoError(t, err, "missing payload is allowed")

	env, err = DecodeEnvelope([]byte(`{"t":"vote","p":{"submissionId":"three"}}`))
	require.NoError(t, err)
	_, err = DecodePayload[Vote](env)
	assert.Error(t, err)
}

func TestActionNames(t *testing.T) {
	want := map[string]string{
		ActCreateRoom:   "create_room",
		ActJoinRoom:     "join_room",
		ActAutoMatch:    "auto_match",
		ActStartGame:    "start_game",
		ActSubmitDajare: "submit_dajare",
		ActVote:         "vote",
		ActLeave:        "leave",
	}
	for got, w := range want {
		if got != w {
			t.Fatalf("action = %q, want %q", got, w)
		}
	}
}
