// Package model defines database models
package model

import "time"

// FileRef records an image shared between two users. Only the relative
// path inside the shared uploads directory is stored, the artifact itself
// is copied there by the upload service before the row is written.
type FileRef struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	SenderID   uint      `gorm:"index;not null"`
	ReceiverID uint      `gorm:"index;not null"`
	RelPath    string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (FileRef) TableName() string {
	return "files"
}
