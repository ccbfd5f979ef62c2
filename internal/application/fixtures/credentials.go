package fixtures

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"yogastudio/internal/domain/identity"
	"yogastudio/internal/domain/intercept"
)

// DefaultBcryptCost matches the cost used for stored account passwords.
const DefaultBcryptCost = 12

// AliasRegister names the POST rule the register form calls.
const AliasRegister = "register"

var (
	ErrEmptyEmail     = errors.New("email cannot be empty")
	ErrEmptyPassword  = errors.New("password cannot be empty")
	ErrEmptyFirstName = errors.New("first name cannot be empty")
	ErrEmptyLastName  = errors.New("last name cannot be empty")
	ErrEmailTaken     = errors.New("email is already taken")
)

// Registered is the body of a successful registration.
var Registered = MessageBody{Message: "User registered successfully!"}

// LoginRequest is the body the login form posts.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body the register form posts.
type RegisterRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

// Validate checks every form field is filled in.
// POST: Returns the first blank field's error, nil otherwise
func (r *RegisterRequest) Validate() error {
	switch {
	case normalizeEmail(r.Email) == "":
		return ErrEmptyEmail
	case strings.TrimSpace(r.FirstName) == "":
		return ErrEmptyFirstName
	case strings.TrimSpace(r.LastName) == "":
		return ErrEmptyLastName
	case r.Password == "":
		return ErrEmptyPassword
	}
	return nil
}

type credential struct {
	hash []byte
	id   identity.Identity
}

// CredentialBook answers the login endpoint from a set of known accounts.
// Passwords are held only as bcrypt hashes.
type CredentialBook struct {
	mu    sync.RWMutex
	cost  int
	creds map[string]credential
}

// NewCredentialBook creates an empty book hashing with cost.
// PRE: cost is 0 (default) or within bcrypt's accepted range
func NewCredentialBook(cost int) *CredentialBook {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	return &CredentialBook{cost: cost, creds: make(map[string]credential)}
}

// Add registers an account. A later Add for the same email replaces it.
// PRE: email and password are non-empty, id passes Validate
// POST: Check(email, password) returns id
func (b *CredentialBook) Add(email, password string, id identity.Identity) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrEmptyEmail
	}
	if password == "" {
		return ErrEmptyPassword
	}
	if err := id.Validate(); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creds[email] = credential{hash: hash, id: id}
	return nil
}

// Check returns the identity for valid credentials.
// POST: Returns ErrEmptyEmail/ErrEmptyPassword for blank input and
// ok=false for an unknown email or wrong password
func (b *CredentialBook) Check(email, password string) (identity.Identity, bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return identity.Identity{}, false, ErrEmptyEmail
	}
	if password == "" {
		return identity.Identity{}, false, ErrEmptyPassword
	}
	b.mu.RLock()
	c, ok := b.creds[email]
	b.mu.RUnlock()
	if !ok {
		return identity.Identity{}, false, nil
	}
	if err := bcrypt.CompareHashAndPassword(c.hash, []byte(password)); err != nil {
		return identity.Identity{}, false, nil
	}
	return c.id, true, nil
}

// Respond answers a login call: 200 with the identity, 401 for bad
// credentials, 400 for a malformed or incomplete body.
func (b *CredentialBook) Respond(req intercept.Request) intercept.Response {
	var in LoginRequest
	if err := json.Unmarshal(req.Body, &in); err != nil {
		return intercept.Response{StatusCode: http.StatusBadRequest, Body: MessageBody{Message: "Malformed login request"}}
	}
	id, ok, err := b.Check(in.Email, in.Password)
	if err != nil {
		slog.Info("auth_event", "event", "login_rejected", "email", in.Email, "reason", err.Error())
		return intercept.Response{StatusCode: http.StatusBadRequest, Body: MessageBody{Message: err.Error()}}
	}
	if !ok {
		slog.Info("auth_event", "event", "login_failed", "email", in.Email)
		return intercept.Response{StatusCode: http.StatusUnauthorized, Body: InvalidCredentials}
	}
	slog.Info("auth_event", "event", "login_success", "email", in.Email, "role", id.Role())
	return intercept.Response{StatusCode: http.StatusOK, Body: id}
}

// SignUp adds a non-admin account under the next free id.
// POST: Returns the Validate error for a blank field and ErrEmailTaken for
// a known email; otherwise Check(in.Email, in.Password) returns the new
// identity
func (b *CredentialBook) SignUp(in RegisterRequest) (identity.Identity, error) {
	if err := in.Validate(); err != nil {
		return identity.Identity{}, err
	}
	email := normalizeEmail(in.Email)
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), b.cost)
	if err != nil {
		return identity.Identity{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, taken := b.creds[email]; taken {
		return identity.Identity{}, ErrEmailTaken
	}
	var last int64
	for _, c := range b.creds {
		if c.id.ID > last {
			last = c.id.ID
		}
	}
	id := identity.Identity{
		ID:        last + 1,
		Token:     uuid.NewString(),
		Type:      identity.TokenType,
		Username:  email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	}
	b.creds[email] = credential{hash: hash, id: id}
	return id, nil
}

// RespondRegister answers a register call: 200 with Registered, 400 for a
// malformed or incomplete body or an email already in the book.
func (b *CredentialBook) RespondRegister(req intercept.Request) intercept.Response {
	var in RegisterRequest
	if err := json.Unmarshal(req.Body, &in); err != nil {
		return intercept.Response{StatusCode: http.StatusBadRequest, Body: MessageBody{Message: "Malformed register request"}}
	}
	id, err := b.SignUp(in)
	if err != nil {
		slog.Info("auth_event", "event", "register_rejected", "email", in.Email, "reason", err.Error())
		return intercept.Response{StatusCode: http.StatusBadRequest, Body: MessageBody{Message: err.Error()}}
	}
	slog.Info("auth_event", "event", "registered", "email", id.Username, "id", id.ID)
	return intercept.Response{StatusCode: http.StatusOK, Body: Registered}
}

// RegisterRule returns the POST register rule backed by the book.
func (b *CredentialBook) RegisterRule(prefix string) intercept.Rule {
	return intercept.Rule{
		Method:  http.MethodPost,
		Pattern: intercept.MustParsePattern(Path(prefix, "/auth/register")),
		Respond: b.RespondRegister,
		Alias:   AliasRegister,
	}
}

// LoginRule returns the POST login rule backed by the book.
func (b *CredentialBook) LoginRule(prefix string) intercept.Rule {
	return intercept.Rule{
		Method:  http.MethodPost,
		Pattern: intercept.MustParsePattern(Path(prefix, "/auth/login")),
		Respond: b.Respond,
		Alias:   AliasLogin,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
