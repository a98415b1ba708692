package internal

import (
	"facebox/biometric"
	"facebox/internal/service"
	"facebox/pkg/security"
	"facebox/store"

	"gorm.io/gorm"
)

// Deps bundles everything the session router and controllers need. It
// is built once at startup and passed by reference.
type Deps struct {
	DB      *gorm.DB
	Argon   *security.Argon2ID
	Creds   *store.Credentials
	Mailbox *store.Mailbox
	Uploads *service.Uploads
	Enroll  *biometric.Enrollment
	Scanner *biometric.Scanner
}
