package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var sessionTokenRegex = regexp.MustCompile(`^ses_[0-9]{10}_[0-9a-f]{8}$`)

// GenerateSessionToken returns a fresh session token of the form
// ses_<unix10>_<hex8>.
func GenerateSessionToken() (string, error) {
	timestamp := time.Now().Unix()
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return fmt.Sprintf("ses_%010d_%s", timestamp, hex.EncodeToString(randomBytes)), nil
}

// ValidateSessionToken reports whether token matches the generated format.
// Caller-supplied tokens bypass this check and are taken as-is.
func ValidateSessionToken(token string) bool {
	return sessionTokenRegex.MatchString(token)
}

// ParseSessionTimestamp extracts the creation time embedded in a generated
// session token.
func ParseSessionTimestamp(token string) (time.Time, error) {
	if !ValidateSessionToken(token) {
		return time.Time{}, fmt.Errorf("invalid session token format: %s", token)
	}
	ts, err := strconv.ParseInt(token[4:14], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp from token %s: %w", token, err)
	}
	return time.Unix(ts, 0), nil
}
