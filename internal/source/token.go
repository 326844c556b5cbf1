package source

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

// encodeToken produces an opaque page token bound to one action type.
func encodeToken(at models.ActionType, page int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%d", at, page)))
}

// decodeToken returns the page a token points at. The empty token is page 1.
func decodeToken(at models.ActionType, token string) (int, error) {
	if token == "" {
		return 1, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("malformed page token: %w", err)
	}
	owner, pageStr, ok := strings.Cut(string(raw), ":")
	if !ok {
		return 0, fmt.Errorf("malformed page token %q", token)
	}
	if models.ActionType(owner) != at {
		return 0, fmt.Errorf("page token belongs to %s, not %s", owner, at)
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("malformed page number in token %q", token)
	}
	return page, nil
}

// PageNumber reports the page a token addresses. Used for logging and audit references.
func PageNumber(at models.ActionType, token string) int {
	n, err := decodeToken(at, token)
	if err != nil {
		return 0
	}
	return n
}
