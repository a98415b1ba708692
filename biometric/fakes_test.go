package biometric

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"facebox/db"
	"facebox/pkg/security"
	"facebox/store"

	"github.com/stretchr/testify/require"
)

func newTestCreds(t *testing.T) *store.Credentials {
	t.Helper()

	conn, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	return store.NewCredentials(conn, security.NewArgon2ID())
}

type fakeCamera struct {
	released atomic.Bool
}

func (c *fakeCamera) ReadFrame() (Frame, bool) { return Frame{0x01}, true }
func (c *fakeCamera) Release()                 { c.released.Store(true) }

type fakeOpener struct {
	cam *fakeCamera
	err error

	mu    sync.Mutex
	opens int
}

func (o *fakeOpener) Open() (Camera, error) {
	o.mu.Lock()
	o.opens++
	o.mu.Unlock()

	if o.err != nil {
		return nil, o.err
	}
	return o.cam, nil
}

// fakeRecognizer accepts every frame as a sample and classifies every
// frame as classifyID when set.
type fakeRecognizer struct {
	loaded     bool
	classifyID uint
	classifyOK bool
	acceptNone bool

	samples atomic.Int32
}

func (r *fakeRecognizer) ModelLoaded() bool { return r.loaded }

func (r *fakeRecognizer) DetectAndClassify(Frame) (uint, bool) {
	return r.classifyID, r.classifyOK
}

func (r *fakeRecognizer) CaptureSample(userID uint, f Frame) bool {
	if r.acceptNone {
		return false
	}

	r.samples.Add(1)
	return true
}

type fakeTrainer struct {
	err   error
	block chan struct{}

	runs atomic.Int32
}

func (tr *fakeTrainer) Train(ctx context.Context) error {
	tr.runs.Add(1)

	if tr.block != nil {
		select {
		case <-tr.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return tr.err
}

var errFakeCamera = errors.New("device busy")
