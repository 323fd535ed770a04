package appfw

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnknownUser = errors.New("unknown user")

func TestEncodeTargetDropsEmptyFields(t *testing.T) {
	wire, err := encodeTarget(Target{AppID: "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", wire.AppID)
	assert.Empty(t, wire.Label)
	assert.Nil(t, wire.User)
	assert.Zero(t, wire.Process)
}

func TestEncodeTargetResolvesUser(t *testing.T) {
	lookup := func(name string) (int, error) {
		if name == "alice" {
			return 1001, nil
		}
		return 0, errUnknownUser
	}
	wire, err := encodeTarget(Target{User: "alice", Process: 12}, lookup)
	require.NoError(t, err)
	require.NotNil(t, wire.User)
	assert.Equal(t, 1001, *wire.User)
	assert.Equal(t, 12, wire.Process)

	_, err = encodeTarget(Target{User: "mallory"}, lookup)
	var te *TargetError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "user", te.Field)
	assert.ErrorIs(t, err, ErrTarget)
	assert.ErrorIs(t, err, errUnknownUser)
}

func TestTargetIsZero(t *testing.T) {
	assert.True(t, Target{}.IsZero())
	assert.False(t, Target{Process: 1}.IsZero())
	assert.False(t, Target{User: "root"}.IsZero())
}

func TestLookupUserUnknown(t *testing.T) {
	_, err := LookupUser("no-such-user-appfw-test")
	assert.Error(t, err)
}
