package biometric

import (
	"context"
	"testing"
	"time"

	"facebox/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastConfig keeps ticker-driven tests quick without changing semantics.
func fastConfig() EnrollConfig {
	return EnrollConfig{
		Interval: time.Millisecond,
		Target:   5,
		Timeout:  5 * time.Second,
	}
}

func TestEnrollmentBindsOwnUserID(t *testing.T) {
	creds := newTestCreds(t)

	userID, err := creds.Register("alice", "secret1")
	require.NoError(t, err)

	cam := &fakeCamera{}
	rec := &fakeRecognizer{}
	trainer := &fakeTrainer{}

	e := NewEnrollment(creds, &fakeOpener{cam: cam}, rec, trainer, fastConfig())

	results, err := e.Start(context.Background(), userID)
	require.NoError(t, err)

	res := <-results
	require.NoError(t, res.Err)
	require.NotNil(t, res.User)

	assert.Equal(t, userID, res.User.ID)
	require.NotNil(t, res.User.BiometricID)
	assert.Equal(t, userID, *res.User.BiometricID)

	assert.EqualValues(t, 1, trainer.runs.Load())
	assert.EqualValues(t, 5, rec.samples.Load())
	assert.True(t, cam.released.Load())
	assert.Equal(t, EnrollBound, e.Progress().State)

	// And the bound id authenticates
	user, err := creds.AuthenticateByBiometricID(userID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
}

func TestEnrollmentUnknownUser(t *testing.T) {
	creds := newTestCreds(t)

	e := NewEnrollment(creds, &fakeOpener{cam: &fakeCamera{}}, &fakeRecognizer{}, &fakeTrainer{}, fastConfig())

	_, err := e.Start(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrUserNotFound)
	assert.Equal(t, EnrollIdle, e.Progress().State)
}

func TestEnrollmentCameraUnavailable(t *testing.T) {
	creds := newTestCreds(t)

	userID, err := creds.Register("alice", "secret1")
	require.NoError(t, err)

	e := NewEnrollment(creds, &fakeOpener{err: errFakeCamera}, &fakeRecognizer{}, &fakeTrainer{}, fastConfig())

	results, err := e.Start(context.Background(), userID)
	require.NoError(t, err)

	res := <-results
	assert.ErrorIs(t, res.Err, ErrCameraUnavailable)
	assert.Equal(t, EnrollIdle, e.Progress().State)
}

func TestEnrollmentTrainingFailureIsRetriable(t *testing.T) {
	creds := newTestCreds(t)

	userID, err := creds.Register("alice", "secret1")
	require.NoError(t, err)

	cam := &fakeCamera{}
	trainer := &fakeTrainer{err: errFakeCamera}

	e := NewEnrollment(creds, &fakeOpener{cam: cam}, &fakeRecognizer{}, trainer, fastConfig())

	results, err := e.Start(context.Background(), userID)
	require.NoError(t, err)

	res := <-results
	assert.ErrorIs(t, res.Err, ErrTrainingFailed)
	assert.True(t, cam.released.Load())

	// No partial bind happened
	_, err = creds.AuthenticateByBiometricID(userID)
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	// Controller is back in idle with progress reset, a retry works
	p := e.Progress()
	assert.Equal(t, EnrollIdle, p.State)
	assert.Zero(t, p.Samples)

	trainer.err = nil
	cam.released.Store(false)

	results, err = e.Start(context.Background(), userID)
	require.NoError(t, err)

	res = <-results
	require.NoError(t, res.Err)
	require.NotNil(t, res.User.BiometricID)
	assert.Equal(t, userID, *res.User.BiometricID)
}

func TestEnrollmentInsufficientSamples(t *testing.T) {
	creds := newTestCreds(t)

	userID, err := creds.Register("alice", "secret1")
	require.NoError(t, err)

	cam := &fakeCamera{}
	cfg := fastConfig()
	cfg.Timeout = 50 * time.Millisecond

	e := NewEnrollment(creds, &fakeOpener{cam: cam}, &fakeRecognizer{acceptNone: true}, &fakeTrainer{}, cfg)

	results, err := e.Start(context.Background(), userID)
	require.NoError(t, err)

	res := <-results
	assert.ErrorIs(t, res.Err, ErrInsufficientSamples)
	assert.True(t, cam.released.Load())
	assert.Equal(t, EnrollIdle, e.Progress().State)
}

func TestEnrollmentStartWhileRunningIsNoop(t *testing.T) {
	creds := newTestCreds(t)

	userID, err := creds.Register("alice", "secret1")
	require.NoError(t, err)

	// Block the trainer so the first run stays active
	trainer := &fakeTrainer{block: make(chan struct{})}
	opener := &fakeOpener{cam: &fakeCamera{}}

	e := NewEnrollment(creds, opener, &fakeRecognizer{}, trainer, fastConfig())

	first, err := e.Start(context.Background(), userID)
	require.NoError(t, err)

	// Wait until the run reaches training
	require.Eventually(t, func() bool {
		return e.Progress().State == EnrollTraining
	}, 5*time.Second, time.Millisecond)

	second, err := e.Start(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	opener.mu.Lock()
	opens := opener.opens
	opener.mu.Unlock()
	assert.Equal(t, 1, opens)

	close(trainer.block)
	res := <-first
	require.NoError(t, res.Err)
}

func TestEnrollmentCancelReleasesCameraWithoutBind(t *testing.T) {
	creds := newTestCreds(t)

	userID, err := creds.Register("alice", "secret1")
	require.NoError(t, err)

	cam := &fakeCamera{}
	trainer := &fakeTrainer{block: make(chan struct{})}

	e := NewEnrollment(creds, &fakeOpener{cam: cam}, &fakeRecognizer{}, trainer, fastConfig())

	results, err := e.Start(context.Background(), userID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return e.Progress().State == EnrollTraining
	}, 5*time.Second, time.Millisecond)

	e.Stop()

	// Channel closes without delivering a result
	_, ok := <-results
	assert.False(t, ok)

	assert.True(t, cam.released.Load())
	assert.Equal(t, EnrollIdle, e.Progress().State)

	_, err = creds.AuthenticateByBiometricID(userID)
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}
