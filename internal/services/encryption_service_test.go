package services

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mydiary/internal/models"
)

func TestEncryptionService_RoundTripsEntry(t *testing.T) {
	svc, err := NewEncryptionService(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	e := models.Entry{Title: "Monday", Content: "rain again", Mood: models.MoodSad}
	require.NoError(t, svc.EncryptEntry(&e))
	assert.NotEqual(t, "Monday", e.Title)
	assert.NotEqual(t, "rain again", e.Content)
	assert.Equal(t, models.MoodSad, e.Mood)

	require.NoError(t, svc.DecryptEntry(&e))
	assert.Equal(t, "Monday", e.Title)
	assert.Equal(t, "rain again", e.Content)
}

func TestNewEncryptionService_BadKey(t *testing.T) {
	_, err := NewEncryptionService([]byte("nope"))
	assert.Error(t, err)
}
