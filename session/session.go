// Package session models the application's five screens as explicit
// states with typed transition functions. The router only consumes
// controller outcomes, all real work happens in the stores and the
// biometric controllers.
package session

import (
	"context"
	"errors"
	"fmt"

	"facebox/internal"
	"facebox/model"
	"facebox/store"
)

var (
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrNotLoggedIn      = errors.New("not logged in")
	ErrWrongStage       = errors.New("operation not allowed in this state")
)

// Stage identifies the active screen.
type Stage int

const (
	LoggedOut Stage = iota
	Registering
	Enrolling
	BiometricScanning
	LoggedIn
)

func (s Stage) String() string {
	switch s {
	case LoggedOut:
		return "logged out"
	case Registering:
		return "registering"
	case Enrolling:
		return "enrolling"
	case BiometricScanning:
		return "scanning"
	case LoggedIn:
		return "logged in"
	default:
		return "unknown"
	}
}

// Router owns the session state. It is not safe for concurrent use, the
// presentation layer drives it from a single loop.
type Router struct {
	deps  *internal.Deps
	stage Stage
	user  *model.User
}

func NewRouter(deps *internal.Deps) *Router {
	return &Router{deps: deps}
}

func (r *Router) Stage() Stage { return r.stage }

// User returns the authenticated user, nil unless LoggedIn.
func (r *Router) User() *model.User { return r.user }

// Login authenticates by password and transitions LoggedOut → LoggedIn.
func (r *Router) Login(username, password string) error {
	if r.stage != LoggedOut {
		return ErrWrongStage
	}

	user, err := r.deps.Creds.Authenticate(username, password)
	if err != nil {
		return err
	}

	r.user = user
	r.stage = LoggedIn
	return nil
}

// BeginRegistration transitions LoggedOut → Registering.
func (r *Router) BeginRegistration() error {
	if r.stage != LoggedOut {
		return ErrWrongStage
	}

	r.stage = Registering
	return nil
}

// Register creates the account and moves on to enrollment. The
// confirmation check lives here rather than in the store, matching the
// registration form's behavior.
func (r *Router) Register(username, password, confirm string) (uint, error) {
	if r.stage != Registering {
		return 0, ErrWrongStage
	}

	if password != confirm {
		return 0, ErrPasswordMismatch
	}

	id, err := r.deps.Creds.Register(username, password)
	if err != nil {
		return 0, err
	}

	r.stage = Enrolling
	return id, nil
}

// Enroll runs the capture → train → bind sequence and, on success,
// establishes the session as the enrolled user. Failure keeps the
// session in Enrolling so the user can retry or cancel.
func (r *Router) Enroll(ctx context.Context, userID uint) error {
	if r.stage != Enrolling {
		return ErrWrongStage
	}

	results, err := r.deps.Enroll.Start(ctx, userID)
	if err != nil {
		return err
	}

	res, ok := <-results
	if !ok {
		// Cancelled before any outcome
		if err := ctx.Err(); err != nil {
			return err
		}
		return context.Canceled
	}

	if res.Err != nil {
		return res.Err
	}

	r.user = res.User
	r.stage = LoggedIn
	return nil
}

// CancelEnrollment abandons enrollment and returns to LoggedOut. The
// account stays registered, without a biometric id.
func (r *Router) CancelEnrollment() {
	r.deps.Enroll.Stop()
	r.user = nil
	r.stage = LoggedOut
}

// BeginFaceLogin transitions LoggedOut → BiometricScanning and starts
// the scanner. The caller then waits on FaceLogin or cancels.
func (r *Router) BeginFaceLogin(ctx context.Context) (<-chan *model.User, error) {
	if r.stage != LoggedOut {
		return nil, ErrWrongStage
	}

	matched, err := r.deps.Scanner.Start(ctx)
	if err != nil {
		return nil, err
	}

	r.stage = BiometricScanning
	return matched, nil
}

// CompleteFaceLogin consumes the scanner outcome. A nil user means the
// scan was cancelled, which returns the session to LoggedOut.
func (r *Router) CompleteFaceLogin(user *model.User) {
	if user != nil {
		r.user = user
		r.stage = LoggedIn
	} else {
		r.stage = LoggedOut
	}

	r.deps.Scanner.Reset()
}

// CancelFaceLogin stops the scanner and returns to LoggedOut.
func (r *Router) CancelFaceLogin() {
	r.deps.Scanner.Stop()
	r.stage = LoggedOut
}

// SendMessage delivers a message from the logged-in user.
func (r *Router) SendMessage(receiver, body string) error {
	if r.stage != LoggedIn {
		return ErrNotLoggedIn
	}

	return r.deps.Mailbox.SendMessage(r.user.ID, receiver, body)
}

// SendFile copies srcPath into the shared uploads directory and records
// it for the receiver.
func (r *Router) SendFile(receiver, srcPath string) error {
	if r.stage != LoggedIn {
		return ErrNotLoggedIn
	}

	rel, err := r.deps.Uploads.Store(srcPath)
	if err != nil {
		return err
	}

	return r.deps.Mailbox.SendFile(r.user.ID, receiver, rel)
}

// Inbox returns the logged-in user's messages and files, both newest
// first.
func (r *Router) Inbox() ([]store.InboxMessage, []store.InboxFile, error) {
	if r.stage != LoggedIn {
		return nil, nil, ErrNotLoggedIn
	}

	msgs, err := r.deps.Mailbox.Inbox(r.user.ID)
	if err != nil {
		return nil, nil, err
	}

	files, err := r.deps.Mailbox.Files(r.user.ID)
	if err != nil {
		return nil, nil, err
	}

	return msgs, files, nil
}

// ResumeSession restores a remembered login from a signed token.
func (r *Router) ResumeSession(token string) error {
	if r.stage != LoggedOut {
		return ErrWrongStage
	}

	userID, err := VerifyToken(token)
	if err != nil {
		return err
	}

	user, err := r.deps.Creds.ByID(userID)
	if err != nil {
		return err
	}

	r.user = user
	r.stage = LoggedIn
	return nil
}

// RememberToken issues a signed token for the logged-in user.
func (r *Router) RememberToken() (string, error) {
	if r.stage != LoggedIn {
		return "", ErrNotLoggedIn
	}

	return IssueToken(r.user.ID)
}

// Logout returns to LoggedOut from any state, stopping whatever
// controller may still be running.
func (r *Router) Logout() {
	r.deps.Enroll.Stop()
	r.deps.Scanner.Stop()
	r.user = nil
	r.stage = LoggedOut
}

// Back leaves Registering or Enrolling without completing it.
func (r *Router) Back() error {
	switch r.stage {
	case Registering:
		r.stage = LoggedOut
		return nil
	case Enrolling:
		r.CancelEnrollment()
		return nil
	default:
		return fmt.Errorf("cannot go back from %s state", r.stage)
	}
}
