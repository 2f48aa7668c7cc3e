package domain

import "slices"

// AnyScope grants access to every room scope.
const AnyScope = "*"

// Identity is a verified user as supplied by the identity collaborator.
// Scopes are the course or study-group scopes the user is entitled to.
type Identity struct {
	UserID UserID
	Scopes []string
}

func (i Identity) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope) || slices.Contains(i.Scopes, AnyScope)
}
