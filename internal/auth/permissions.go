package auth

import (
	"slices"

	"github.com/pershin-daniil/MeetingBoard/pkg/models"
)

// CheckPermission requires the permissions claim to be present and to list required.
func CheckPermission(claims *models.Claims, required string) error {
	if claims == nil || claims.Permissions == nil {
		return newError(KindNoPermissionsClaim, nil)
	}
	if !slices.Contains(claims.Permissions, required) {
		return newError(KindForbidden, nil)
	}
	return nil
}
