package biometric

import (
	"context"
	"sync"
	"time"

	"facebox/model"
	"facebox/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScanState is the face-login state machine position.
type ScanState int

const (
	ScanIdle ScanState = iota
	ScanScanning
	ScanMatched
)

func (s ScanState) String() string {
	switch s {
	case ScanIdle:
		return "idle"
	case ScanScanning:
		return "scanning"
	case ScanMatched:
		return "matched"
	default:
		return "unknown"
	}
}

// Scanner polls camera frames and resolves the first recognized face to
// a user record. It scans until matched or cancelled.
type Scanner struct {
	creds *store.Credentials
	cams  CameraOpener
	rec   Recognizer

	// Interval between frame polls, defaults to 30 per second.
	Interval time.Duration

	// Optional display hook, called with every frame read. Must not
	// block.
	OnFrame func(Frame)

	mu     sync.Mutex
	state  ScanState
	cancel context.CancelFunc
}

func NewScanner(creds *store.Credentials, cams CameraOpener, rec Recognizer) *Scanner {
	return &Scanner{
		creds:    creds,
		cams:     cams,
		rec:      rec,
		Interval: time.Second / 30,
	}
}

// Start acquires the camera and begins polling. The camera is acquired
// synchronously so an unavailable device is reported right here, with
// nothing left scheduled. The returned channel delivers at most one
// user, then closes.
func (s *Scanner) Start(ctx context.Context) (<-chan *model.User, error) {
	s.mu.Lock()
	if s.state == ScanScanning {
		s.mu.Unlock()
		return nil, nil
	}
	s.mu.Unlock()

	cam, err := s.cams.Open()
	if err != nil {
		zap.L().Warn("Camera acquisition failed", zap.Error(err))
		return nil, ErrCameraUnavailable
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.state == ScanScanning {
		s.mu.Unlock()
		cancel()
		cam.Release()
		return nil, nil
	}
	s.state = ScanScanning
	s.cancel = cancel
	s.mu.Unlock()

	matched := make(chan *model.User, 1)
	go s.run(runCtx, cam, matched)

	return matched, nil
}

// Stop halts polling and releases the camera. Safe to call in any
// state, including after a Start that failed.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// State returns the current state machine position.
func (s *Scanner) State() ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scanner) run(ctx context.Context, cam Camera, matched chan<- *model.User) {
	defer close(matched)
	defer cam.Release()
	defer s.finish()

	sid := uuid.NewString()
	log := zap.L().With(zap.String("session_id", sid))

	log.Info("Face scan started")

	tick := time.NewTicker(s.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			frame, ok := cam.ReadFrame()
			if !ok {
				continue
			}

			if s.OnFrame != nil {
				s.OnFrame(frame)
			}

			if !s.rec.ModelLoaded() {
				continue
			}

			id, ok := s.rec.DetectAndClassify(frame)
			if !ok {
				continue
			}

			user, err := s.creds.AuthenticateByBiometricID(id)
			if err != nil {
				// A stale or never-bound classifier ID. Log the miss
				// and keep scanning.
				log.Debug("No user for biometric id", zap.Uint("biometric_id", id), zap.Error(err))
				continue
			}

			s.setMatched()
			log.Info("Face matched", zap.Uint("user_id", user.ID))
			matched <- user
			return
		}
	}
}

func (s *Scanner) setMatched() {
	s.mu.Lock()
	s.state = ScanMatched
	s.mu.Unlock()
}

// finish returns the scanner to idle unless it matched, and in either
// case drops the cancel func so Stop becomes a no-op.
func (s *Scanner) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if s.state != ScanMatched {
		s.state = ScanIdle
	}
}

// Reset returns a matched scanner to idle.
func (s *Scanner) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		s.state = ScanIdle
	}
}
