package store

import (
	"testing"

	"facebox/model"
	"facebox/pkg/security"
	"facebox/validators"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestMailbox(t *testing.T) (*Mailbox, *Credentials, *gorm.DB) {
	t.Helper()

	conn := newTestDB(t)
	return NewMailbox(conn), NewCredentials(conn, security.NewArgon2ID()), conn
}

func TestSendMessageUnknownReceiver(t *testing.T) {
	mbox, creds, conn := newTestMailbox(t)

	aliceID, err := creds.Register("alice", "secret1")
	require.NoError(t, err)

	err = mbox.SendMessage(aliceID, "nobody", "hi")
	assert.ErrorIs(t, err, ErrNoSuchReceiver)

	var count int64
	require.NoError(t, conn.Model(&model.Message{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestInboxOrdering(t *testing.T) {
	mbox, creds, _ := newTestMailbox(t)

	aliceID, err := creds.Register("alice", "secret1")
	require.NoError(t, err)
	_, err = creds.Register("bob", "secret2")
	require.NoError(t, err)

	for _, body := range []string{"m1", "m2", "m3"} {
		require.NoError(t, mbox.SendMessage(aliceID, "bob", body))
	}

	bob, err := creds.LookupByUsername("bob")
	require.NoError(t, err)

	msgs, err := mbox.Inbox(bob.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	// Newest first
	assert.Equal(t, "m3", msgs[0].Body)
	assert.Equal(t, "m2", msgs[1].Body)
	assert.Equal(t, "m1", msgs[2].Body)

	for _, m := range msgs {
		assert.Equal(t, "alice", m.Sender)
	}
}

func TestInboxOnlyReceiversMessages(t *testing.T) {
	mbox, creds, _ := newTestMailbox(t)

	aliceID, err := creds.Register("alice", "secret1")
	require.NoError(t, err)
	bobID, err := creds.Register("bob", "secret2")
	require.NoError(t, err)

	require.NoError(t, mbox.SendMessage(aliceID, "bob", "for bob"))
	require.NoError(t, mbox.SendMessage(bobID, "alice", "for alice"))

	msgs, err := mbox.Inbox(bobID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "for bob", msgs[0].Body)
}

func TestSendFileUnsupportedTypeBeforeReceiverLookup(t *testing.T) {
	mbox, creds, conn := newTestMailbox(t)

	aliceID, err := creds.Register("alice", "secret1")
	require.NoError(t, err)
	_, err = creds.Register("bob", "secret2")
	require.NoError(t, err)

	// Even with a valid receiver the gif is rejected and nothing is
	// written
	err = mbox.SendFile(aliceID, "bob", "photo.gif")
	assert.ErrorIs(t, err, validators.ErrFileTypeUnsupported)

	// Same failure for a receiver that doesn't exist, proving the type
	// check ran first
	err = mbox.SendFile(aliceID, "nobody", "photo.gif")
	assert.ErrorIs(t, err, validators.ErrFileTypeUnsupported)

	var count int64
	require.NoError(t, conn.Model(&model.FileRef{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSendFileUnknownReceiver(t *testing.T) {
	mbox, creds, conn := newTestMailbox(t)

	aliceID, err := creds.Register("alice", "secret1")
	require.NoError(t, err)

	err = mbox.SendFile(aliceID, "nobody", "uploads/photo.jpg")
	assert.ErrorIs(t, err, ErrNoSuchReceiver)

	var count int64
	require.NoError(t, conn.Model(&model.FileRef{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestFilesNewestFirst(t *testing.T) {
	mbox, creds, _ := newTestMailbox(t)

	aliceID, err := creds.Register("alice", "secret1")
	require.NoError(t, err)
	bobID, err := creds.Register("bob", "secret2")
	require.NoError(t, err)

	require.NoError(t, mbox.SendFile(aliceID, "bob", "uploads/first.png"))
	require.NoError(t, mbox.SendFile(aliceID, "bob", "uploads/second.jpg"))

	files, err := mbox.Files(bobID)
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "uploads/second.jpg", files[0].RelPath)
	assert.Equal(t, "uploads/first.png", files[1].RelPath)
	assert.Equal(t, "alice", files[0].Sender)
}
