package store

import (
	"errors"
	"fmt"
	"time"

	"facebox/model"
	"facebox/validators"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNoSuchReceiver = errors.New("receiver not found")

// InboxMessage is one row of a user's message inbox, already joined with
// the sender's username.
type InboxMessage struct {
	Sender string
	Body   string
	SentAt time.Time
}

// InboxFile is one row of a user's file inbox.
type InboxFile struct {
	Sender  string
	RelPath string
	SentAt  time.Time
}

type Mailbox struct {
	db *gorm.DB
}

func NewMailbox(db *gorm.DB) *Mailbox {
	return &Mailbox{db: db}
}

// SendMessage resolves the receiver by username and inserts the message
// with a server-assigned timestamp. Nothing is written when the receiver
// doesn't resolve.
func (s *Mailbox) SendMessage(senderID uint, receiverUsername, body string) error {
	receiverID, err := s.resolveReceiver(receiverUsername)
	if err != nil {
		return err
	}

	m := model.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		CreatedAt:  time.Now(),
	}

	if err := s.db.Create(&m).Error; err != nil {
		return fmt.Errorf("failed to insert message, %w", err)
	}

	zap.L().Debug("Message sent",
		zap.Uint("sender_id", senderID),
		zap.Uint("receiver_id", receiverID))

	return nil
}

// Inbox returns all messages addressed to userID, newest first. Each
// call is a fresh query, no cursor state is kept.
func (s *Mailbox) Inbox(userID uint) ([]InboxMessage, error) {
	var out []InboxMessage

	err := s.db.Model(&model.Message{}).
		Select("users.username AS sender, messages.body AS body, messages.created_at AS sent_at").
		Joins("JOIN users ON users.id = messages.sender_id").
		Where("messages.receiver_id = ?", userID).
		Order("messages.created_at DESC, messages.id DESC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch inbox, %w", err)
	}

	return out, nil
}

// SendFile records a shared image for the receiver. The extension check
// runs before the receiver lookup so an unsupported type never touches
// the users table. relPath must already point inside the shared uploads
// directory, copying it there is the upload service's job.
func (s *Mailbox) SendFile(senderID uint, receiverUsername, relPath string) error {
	if err := validators.ImageExtValidator(relPath); err != nil {
		return err
	}

	receiverID, err := s.resolveReceiver(receiverUsername)
	if err != nil {
		return err
	}

	f := model.FileRef{
		SenderID:   senderID,
		ReceiverID: receiverID,
		RelPath:    relPath,
		CreatedAt:  time.Now(),
	}

	if err := s.db.Create(&f).Error; err != nil {
		return fmt.Errorf("failed to insert file record, %w", err)
	}

	zap.L().Debug("File shared",
		zap.Uint("sender_id", senderID),
		zap.Uint("receiver_id", receiverID),
		zap.String("rel_path", relPath))

	return nil
}

// Files returns all shared files addressed to userID, newest first.
func (s *Mailbox) Files(userID uint) ([]InboxFile, error) {
	var out []InboxFile

	err := s.db.Model(&model.FileRef{}).
		Select("users.username AS sender, files.rel_path AS rel_path, files.created_at AS sent_at").
		Joins("JOIN users ON users.id = files.sender_id").
		Where("files.receiver_id = ?", userID).
		Order("files.created_at DESC, files.id DESC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch files, %w", err)
	}

	return out, nil
}

func (s *Mailbox) resolveReceiver(username string) (uint, error) {
	var u model.User

	if err := s.db.Select("id").Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNoSuchReceiver
		}

		return 0, fmt.Errorf("failed to resolve receiver, %w", err)
	}

	return u.ID, nil
}
