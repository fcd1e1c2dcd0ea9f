package broadcast

import "strings"

const (
	sessionTopicPrefix = "upload-sessions/"
	userTopicPrefix    = "user-notifications/"
)

// SessionTopic is the topic carrying progress for one upload session
func SessionTopic(sessionID string) string {
	return sessionTopicPrefix + sessionID
}

// UserTopic is the topic carrying notifications addressed to one user
func UserTopic(userID string) string {
	return userTopicPrefix + userID
}

// IsValidTopic reports whether topic names a session or user channel with a non-empty id
func IsValidTopic(topic string) bool {
	for _, prefix := range []string{sessionTopicPrefix, userTopicPrefix} {
		if id, ok := strings.CutPrefix(topic, prefix); ok {
			return id != "" && !strings.ContainsAny(id, "/*")
		}
	}
	return false
}
