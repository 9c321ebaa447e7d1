package chat

import "encoding/base64"

const fingerprintEncodedLen = 50

// TurnFingerprint derives the response cache key for a user's raw message.
// Messages whose base64 encodings share the first 50 characters collide.
func TurnFingerprint(userID, message string) string {
	enc := base64.StdEncoding.EncodeToString([]byte(message))
	if len(enc) > fingerprintEncodedLen {
		enc = enc[:fingerprintEncodedLen]
	}
	return "gemini:" + userID + ":" + enc
}

// FactCacheKey is where a fact's plaintext value is mirrored for other readers.
func FactCacheKey(userID, key string) string {
	return "memory:" + userID + ":" + key
}
