// Package biometric contains the enrollment and face-login controllers.
// The camera, the face detector/classifier and the external trainer are
// collaborators behind narrow interfaces, this package only does the
// sequencing, state tracking and the final bind to a user record.
package biometric

import "context"

// Frame is an opaque camera frame. The controllers never look inside,
// they just hand frames to the Recognizer and optionally to a display
// callback.
type Frame []byte

// Camera is an acquired frame source. Release must be safe to call
// after a failed read.
type Camera interface {
	// ReadFrame returns the current frame, ok is false when no frame
	// was available this tick.
	ReadFrame() (f Frame, ok bool)
	Release()
}

// CameraOpener acquires the camera. Open failing (device busy, missing)
// is a normal, user-visible condition, not a programming error.
type CameraOpener interface {
	Open() (Camera, error)
}

// Recognizer wraps the face detection/classification collaborator. The
// underlying model lives entirely outside this package.
type Recognizer interface {
	ModelLoaded() bool

	// DetectAndClassify runs the loaded model against f and returns the
	// biometric ID of the recognized face, ok is false when no known
	// face is in the frame.
	DetectAndClassify(f Frame) (id uint, ok bool)

	// CaptureSample stores one training sample for userID taken from f
	// and reports whether a usable face was found in the frame.
	CaptureSample(userID uint, f Frame) bool
}

// Trainer rebuilds the recognition model from the accumulated samples.
// The contract is pass/fail only.
type Trainer interface {
	Train(ctx context.Context) error
}
