package broadcast

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhotoUploadedJSONShape(t *testing.T) {
	data, err := json.Marshal(NewPhotoUploaded("s1", "p1", 1, 3, 100.0/3))
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Equal(t, "PHOTO_UPLOADED", fields["type"])
	assert.Equal(t, "s1", fields["sessionId"])
	assert.Equal(t, "p1", fields["photoId"])
	assert.Equal(t, float64(1), fields["uploadedCount"])
	assert.Equal(t, float64(3), fields["totalCount"])
	assert.InDelta(t, 33.333, fields["progressPercent"], 0.001)
	assert.Contains(t, fields, "timestamp")
}

func TestDecodeMessage(t *testing.T) {
	messages := []Message{
		NewPhotoUploaded("s1", "p1", 1, 2, 50),
		NewPhotoFailed("s1", "p2", "checksum mismatch", 1, 1, 2),
		NewSessionCompleted("s1", 2, 1, 2),
		NewUploadCompleteNotification("s1", 2, 2),
	}

	for _, msg := range messages {
		t.Run(string(msg.MessageType()), func(t *testing.T) {
			data, err := json.Marshal(msg)
			require.NoError(t, err)

			decoded, err := DecodeMessage(msg.MessageType(), data)
			require.NoError(t, err)
			assert.Equal(t, msg.MessageType(), decoded.MessageType())
			assert.IsType(t, msg, decoded)
		})
	}
}

func TestDecodeMessage_UnknownType(t *testing.T) {
	_, err := DecodeMessage("SOMETHING_ELSE", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "upload-sessions/abc", SessionTopic("abc"))
	assert.Equal(t, "user-notifications/u1", UserTopic("u1"))

	assert.True(t, IsValidTopic("upload-sessions/abc"))
	assert.True(t, IsValidTopic("user-notifications/u1"))
	assert.False(t, IsValidTopic("upload-sessions/"))
	assert.False(t, IsValidTopic("upload-sessions/a/b"))
	assert.False(t, IsValidTopic("upload-sessions/*"))
	assert.False(t, IsValidTopic("something/else"))
}
