package biometric

import (
	"context"
	"errors"
	"sync"
	"time"

	"facebox/model"
	"facebox/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrCameraUnavailable   = errors.New("camera unavailable")
	ErrTrainingFailed      = errors.New("model training failed")
	ErrInsufficientSamples = errors.New("could not capture enough face samples")
)

// EnrollState is the enrollment state machine position.
type EnrollState int

const (
	EnrollIdle EnrollState = iota
	EnrollCapturing
	EnrollTraining
	EnrollBound
)

func (s EnrollState) String() string {
	switch s {
	case EnrollIdle:
		return "idle"
	case EnrollCapturing:
		return "capturing"
	case EnrollTraining:
		return "training"
	case EnrollBound:
		return "bound"
	default:
		return "unknown"
	}
}

// EnrollProgress is a snapshot for the presentation layer.
type EnrollProgress struct {
	State   EnrollState
	Samples int
	Target  int
}

// EnrollResult is delivered exactly once per run. On success User is the
// enrolled account, now authenticated. On failure Err holds one of the
// sentinel errors above and the controller is back in idle, ready for a
// retry.
type EnrollResult struct {
	User *model.User
	Err  error
}

// EnrollConfig carries the capture cadence and sample target.
type EnrollConfig struct {
	// Interval between frame polls. The reference cadence is 30 frames
	// per second.
	Interval time.Duration

	// Samples to collect before training starts.
	Target int

	// Overall budget for the capture phase. Running out means the
	// collaborator never saw enough usable faces.
	Timeout time.Duration
}

// Enrollment drives the capture → train → bind sequence for one user.
// A single goroutine owns every state transition, so the Training →
// Bound edge can only ever be taken once per run.
type Enrollment struct {
	creds   *store.Credentials
	cams    CameraOpener
	rec     Recognizer
	trainer Trainer
	cfg     EnrollConfig

	// Optional display hook, called with every frame read during
	// capture. Must not block.
	OnFrame func(Frame)

	mu      sync.Mutex
	state   EnrollState
	samples int
	cancel  context.CancelFunc
	results chan EnrollResult
}

func NewEnrollment(creds *store.Credentials, cams CameraOpener, rec Recognizer, trainer Trainer, cfg EnrollConfig) *Enrollment {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second / 30
	}
	if cfg.Target <= 0 {
		cfg.Target = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Enrollment{
		creds:   creds,
		cams:    cams,
		rec:     rec,
		trainer: trainer,
		cfg:     cfg,
	}
}

// Start begins a capture session for userID. The user must already be
// registered. Calling Start while a session is running is a no-op that
// returns the running session's result channel. The channel receives at
// most one EnrollResult and is closed when the run ends.
func (e *Enrollment) Start(ctx context.Context, userID uint) (<-chan EnrollResult, error) {
	e.mu.Lock()
	// A finished run left the controller bound, a fresh Start begins a
	// new session. A run that's still going makes this call a no-op.
	if e.state == EnrollBound && e.cancel == nil {
		e.state = EnrollIdle
		e.samples = 0
	}
	if e.state != EnrollIdle {
		ch := e.results
		e.mu.Unlock()
		return ch, nil
	}
	e.mu.Unlock()

	// Resolve the target user before touching the camera. Enrollment
	// for an account that was never registered makes no sense.
	user, err := e.creds.ByID(userID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	// Re-check under the lock, another Start may have won the race
	if e.state != EnrollIdle {
		ch := e.results
		e.mu.Unlock()
		cancel()
		return ch, nil
	}
	e.state = EnrollCapturing
	e.samples = 0
	e.cancel = cancel
	e.results = make(chan EnrollResult, 1)
	ch := e.results
	e.mu.Unlock()

	go e.run(runCtx, user)

	return ch, nil
}

// Stop cancels the running session, if any. The camera is released and
// no database write happens unless the bind already completed.
func (e *Enrollment) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Progress returns the current state snapshot.
func (e *Enrollment) Progress() EnrollProgress {
	e.mu.Lock()
	defer e.mu.Unlock()

	return EnrollProgress{
		State:   e.state,
		Samples: e.samples,
		Target:  e.cfg.Target,
	}
}

func (e *Enrollment) run(ctx context.Context, user *model.User) {
	e.mu.Lock()
	results := e.results
	e.mu.Unlock()

	res, delivered := e.runSession(ctx, user)

	// Settle the state machine before anything is delivered, so a
	// caller reacting to the result always sees the final state.
	e.finish()

	if delivered {
		results <- res
	}
	close(results)
}

// runSession walks the capture → train → bind sequence. delivered is
// false when the run was cancelled before reaching an outcome.
func (e *Enrollment) runSession(ctx context.Context, user *model.User) (res EnrollResult, delivered bool) {
	sid := uuid.NewString()
	log := zap.L().With(zap.String("session_id", sid), zap.Uint("user_id", user.ID))

	cam, err := e.cams.Open()
	if err != nil {
		log.Warn("Camera acquisition failed", zap.Error(err))
		return EnrollResult{Err: ErrCameraUnavailable}, true
	}
	defer cam.Release()

	log.Info("Capture started", zap.Int("target", e.cfg.Target))

	if err := e.capture(ctx, cam, user.ID, log); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return EnrollResult{}, false
		}
		return EnrollResult{Err: err}, true
	}

	e.setState(EnrollTraining)
	log.Info("Training started")

	// The trainer blocks for however long the external process takes.
	// Run it off the loop goroutine and wait on the channel so a
	// cancelled context still wins.
	trained := make(chan error, 1)
	go func() { trained <- e.trainer.Train(ctx) }()

	select {
	case <-ctx.Done():
		return EnrollResult{}, false
	case err := <-trained:
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return EnrollResult{}, false
		}

		if err != nil {
			log.Warn("Training failed", zap.Error(err))
			return EnrollResult{Err: ErrTrainingFailed}, true
		}
	}

	// The classifier ID is chosen equal to the user's own ID, which
	// keeps the biometric-id-to-user mapping one to one.
	if err := e.creds.BindBiometricID(user.ID, user.ID); err != nil {
		log.Error("Bind failed after successful training", zap.Error(err))
		return EnrollResult{Err: err}, true
	}

	bound, err := e.creds.AuthenticateByBiometricID(user.ID)
	if err != nil {
		return EnrollResult{Err: err}, true
	}

	e.setState(EnrollBound)
	log.Info("Enrollment complete")
	return EnrollResult{User: bound}, true
}

func (e *Enrollment) capture(ctx context.Context, cam Camera, userID uint, log *zap.Logger) error {
	tick := time.NewTicker(e.cfg.Interval)
	defer tick.Stop()

	deadline := time.NewTimer(e.cfg.Timeout)
	defer deadline.Stop()

	collected := 0
	for collected < e.cfg.Target {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			log.Warn("Capture timed out", zap.Int("collected", collected))
			return ErrInsufficientSamples
		case <-tick.C:
			frame, ok := cam.ReadFrame()
			if !ok {
				continue
			}

			if e.OnFrame != nil {
				e.OnFrame(frame)
			}

			if e.rec.CaptureSample(userID, frame) {
				collected++
				e.setSamples(collected)
				log.Debug("Sample captured", zap.Int("collected", collected))
			}
		}
	}

	return nil
}

// finish resets to idle unless the run ended bound. Either way the next
// Start gets a clean controller.
func (e *Enrollment) finish() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}

	if e.state != EnrollBound {
		e.state = EnrollIdle
		e.samples = 0
	}
}

func (e *Enrollment) setState(s EnrollState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Enrollment) setSamples(n int) {
	e.mu.Lock()
	e.samples = n
	e.mu.Unlock()
}
