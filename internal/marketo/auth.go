package marketo

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// timestampFormat is the W3C datetime form Marketo expects in requestTimestamp
const timestampFormat = "2006-01-02T15:04:05-07:00"

// Sign computes the requestSignature for a timestamp: the hex HMAC-SHA1 of
// timestamp+userID keyed with the encryption key
func Sign(encryptionKey, userID, timestamp string) string {
	mac := hmac.New(sha1.New, []byte(encryptionKey))
	mac.Write([]byte(timestamp + userID))
	return hex.EncodeToString(mac.Sum(nil))
}

func newAuthenticationHeader(userID, encryptionKey string, now time.Time) authenticationHeader {
	timestamp := now.Format(timestampFormat)
	return authenticationHeader{
		UserID:    userID,
		Signature: Sign(encryptionKey, userID, timestamp),
		Timestamp: timestamp,
	}
}
