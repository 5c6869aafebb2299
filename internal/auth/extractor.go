package auth

import "strings"

// ExtractToken returns the bearer token of an Authorization header value.
func ExtractToken(header string) (string, error) {
	parts := strings.Fields(header)
	switch {
	case len(parts) == 0:
		return "", newError(KindMissingAuthHeader, nil)
	case !strings.EqualFold(parts[0], "bearer"):
		return "", newError(KindMalformedAuthScheme, nil)
	case len(parts) == 1:
		return "", newError(KindMissingToken, nil)
	case len(parts) > 2:
		return "", newError(KindMalformedAuthHeader, nil)
	}
	return parts[1], nil
}
