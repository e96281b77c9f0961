package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Issue(Identity{UserID: 2, Role: RolePatient, DoctorID: 1}, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id.UserID)
	assert.Equal(t, RolePatient, id.Role)
	assert.Equal(t, int64(1), id.DoctorID)
}

func TestVerifyDoctorWithoutAssignment(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Issue(Identity{UserID: 7, Role: RoleDoctor}, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, id.Role)
	assert.Zero(t, id.DoctorID)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewVerifier("test-secret")

	_, err := v.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewVerifier("secret-a")
	verifier := NewVerifier("secret-b")

	token, err := issuer.Issue(Identity{UserID: 3, Role: RoleDoctor}, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Issue(Identity{UserID: 3, Role: RoleDoctor}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Issue(Identity{UserID: 3, Role: Role("admin")}, time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("doctor")
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, role)

	_, err = ParseRole("nurse")
	assert.Error(t, err)
}
