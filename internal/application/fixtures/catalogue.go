// Package fixtures holds the canned bodies and stateful responders tests
// register against the interception engine.
package fixtures

import (
	"fmt"
	"net/http"
	"time"

	"yogastudio/internal/domain/booking"
	"yogastudio/internal/domain/identity"
	"yogastudio/internal/domain/intercept"
)

// DefaultAPIPrefix is where the application's backend calls are rooted.
const DefaultAPIPrefix = "/api"

// Canonical aliases used by the scenario tests.
const (
	AliasLogin       = "login"
	AliasGetSessions = "getSessions"
	AliasGetSession  = "getSession"
	AliasGetTeachers = "getTeachers"
	AliasGetUser     = "getUser"
	AliasDeleteUser  = "deleteUser"
)

// MessageBody is the error/acknowledgement body the backend returns.
type MessageBody struct {
	Message string `json:"message"`
}

// InvalidCredentials is the 401 body for a rejected login.
var InvalidCredentials = MessageBody{Message: "Invalid credentials"}

// Teachers returns the two teachers every session fixture refers to.
func Teachers(now time.Time) []booking.Teacher {
	return []booking.Teacher{
		{ID: 1, LastName: "Doe", FirstName: "John", CreatedAt: now, UpdatedAt: now},
		{ID: 2, LastName: "Dupont", FirstName: "Louis", CreatedAt: now, UpdatedAt: now},
	}
}

// NewSession builds a session with no participants.
// PRE: the result should still pass Validate; callers pick a non-empty name
// and description and a teacher id from Teachers
func NewSession(id int64, name, description string, teacherID int64, now time.Time) booking.Session {
	return booking.Session{
		ID:          id,
		Name:        name,
		Date:        now,
		TeacherID:   teacherID,
		Description: description,
		Users:       []int64{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// DefaultSessions returns the morning/evening pair used by list scenarios.
func DefaultSessions(now time.Time) []booking.Session {
	return []booking.Session{
		NewSession(1, "Morning Yoga", "Morning session", 1, now),
		NewSession(2, "Evening Pilates", "Evening session", 2, now),
	}
}

// UserProfile builds the account page body for an identity.
func UserProfile(id identity.Identity, email string, createdAt time.Time) booking.User {
	return booking.User{
		ID:        id.ID,
		Email:     email,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		Admin:     id.Admin,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// Path joins the API prefix and a resource path.
func Path(prefix, format string, args ...any) string {
	if prefix == "" {
		prefix = DefaultAPIPrefix
	}
	return prefix + fmt.Sprintf(format, args...)
}

// LoginSuccess returns the login rule answering with id.
func LoginSuccess(prefix string, id identity.Identity) intercept.Rule {
	return staticRule(http.MethodPost, Path(prefix, "/auth/login"), http.StatusOK, id, AliasLogin)
}

// LoginFailure returns the login rule answering 401 Invalid credentials.
func LoginFailure(prefix string) intercept.Rule {
	return staticRule(http.MethodPost, Path(prefix, "/auth/login"), http.StatusUnauthorized, InvalidCredentials, AliasLogin)
}

// SessionList returns the GET session list rule.
func SessionList(prefix string, sessions []booking.Session) intercept.Rule {
	return staticRule(http.MethodGet, Path(prefix, "/session"), http.StatusOK, sessions, AliasGetSessions)
}

// SessionDetail returns a GET rule for one session.
func SessionDetail(prefix string, s booking.Session, alias string) intercept.Rule {
	return staticRule(http.MethodGet, Path(prefix, "/session/%d", s.ID), http.StatusOK, s, alias)
}

// TeacherList returns the GET teacher list rule.
func TeacherList(prefix string, teachers []booking.Teacher) intercept.Rule {
	return staticRule(http.MethodGet, Path(prefix, "/teacher"), http.StatusOK, teachers, AliasGetTeachers)
}

// UserDetail returns the GET rule for the account page.
func UserDetail(prefix string, u booking.User) intercept.Rule {
	return staticRule(http.MethodGet, Path(prefix, "/user/%d", u.ID), http.StatusOK, u, AliasGetUser)
}

// UserDeletion returns the DELETE rule for the account page.
func UserDeletion(prefix string, userID int64) intercept.Rule {
	return staticRule(http.MethodDelete, Path(prefix, "/user/%d", userID), http.StatusOK,
		MessageBody{Message: "User deleted successfully"}, AliasDeleteUser)
}

func staticRule(method, path string, status int, body any, alias string) intercept.Rule {
	return intercept.Rule{
		Method:   method,
		Pattern:  intercept.MustParsePattern(path),
		Response: intercept.Response{StatusCode: status, Body: body},
		Alias:    alias,
	}
}
