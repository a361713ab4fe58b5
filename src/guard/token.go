package guard

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CallbackPrefix namespaces verification buttons among other component interactions.
const CallbackPrefix = "guard:verify:"

// NewToken returns a 32 character hex token backed by 122 bits of crypto/rand entropy.
func NewToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// CallbackData encodes a token into the payload attached to the confirm button.
func CallbackData(token string) string {
	return CallbackPrefix + token
}

// ParseCallbackData extracts the token from a confirm button payload.
func ParseCallbackData(data string) (string, bool) {
	token, ok := strings.CutPrefix(data, CallbackPrefix)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}
