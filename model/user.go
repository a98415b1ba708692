package model

// User is an account row. BiometricID stays NULL until the user finishes
// face enrollment, after which it always equals the user's own ID.
type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	BiometricID  *uint  `gorm:"uniqueIndex"`
}
