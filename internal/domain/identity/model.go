package identity

import (
	"errors"
	"strings"

	json "github.com/goccy/go-json"
)

// StorageKey is the client-side storage key the application reads to decide
// whether the user is authenticated.
const StorageKey = "sessionInformation"

// Role constants
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// TokenType is the token scheme the login endpoint reports.
const TokenType = "Bearer"

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleAdmin, RoleUser}

// State is the authentication state derived from the stored record.
type State string

// State constants
const (
	StateAnonymous     State = "anonymous"
	StateAuthenticated State = "authenticated"
)

// Domain errors
var (
	ErrInvalidRole   = errors.New("role must be one of: admin, user")
	ErrInvalidID     = errors.New("identity id must be positive")
	ErrEmptyToken    = errors.New("identity token cannot be empty")
	ErrEmptyUsername = errors.New("identity username cannot be empty")
)

// Identity is the record written to client storage after a successful login.
type Identity struct {
	ID        int64  `json:"id"`
	Token     string `json:"token"`
	Type      string `json:"type,omitempty"`
	Username  string `json:"username"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Admin     bool   `json:"admin,omitempty"`
}

// ForRole returns the canonical identity for a role, carrying the given token.
// PRE: role is admin or user, token is non-empty
// POST: Returns a valid identity
func ForRole(role, token string) (Identity, error) {
	var id Identity
	switch role {
	case RoleAdmin:
		id = Identity{ID: 1, Username: "yoga@studio.com", FirstName: "Admin", LastName: "Admin", Admin: true}
	case RoleUser:
		id = Identity{ID: 2, Username: "user@studio.com", FirstName: "Alice", LastName: "Martin"}
	default:
		return Identity{}, ErrInvalidRole
	}
	id.Token = token
	id.Type = TokenType
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Validate checks if the Identity has valid data.
// PRE: Identity struct is populated
// POST: Returns nil if valid, error otherwise
func (i *Identity) Validate() error {
	if i.ID <= 0 {
		return ErrInvalidID
	}
	if strings.TrimSpace(i.Token) == "" {
		return ErrEmptyToken
	}
	if strings.TrimSpace(i.Username) == "" {
		return ErrEmptyUsername
	}
	return nil
}

// Role returns the role the identity acts as.
// INVARIANT: Identity fields are not mutated
func (i *Identity) Role() string {
	if i.Admin {
		return RoleAdmin
	}
	return RoleUser
}

// Encode returns the JSON stored under StorageKey.
func (i *Identity) Encode() (string, error) {
	raw, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Decode parses a stored record.
func Decode(raw string) (Identity, error) {
	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// StateOf maps record presence to an authentication state.
// Presence of the record is the only signal the application uses.
func StateOf(present bool) State {
	if present {
		return StateAuthenticated
	}
	return StateAnonymous
}

// IsValidRole reports whether role is known.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
