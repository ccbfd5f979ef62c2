package booking

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Max length constants for user-editable fields.
const (
	MaxNameLength        = 50
	MaxDescriptionLength = 2500
)

// Domain errors
var (
	ErrEmptyName            = errors.New("session name cannot be empty")
	ErrNameTooLong          = errors.New("session name cannot exceed 50 characters")
	ErrEmptyDescription     = errors.New("session description cannot be empty")
	ErrDescriptionTooLong   = errors.New("session description cannot exceed 2500 characters")
	ErrMissingDate          = errors.New("session date is required")
	ErrMissingTeacher       = errors.New("session teacher is required")
	ErrAlreadyParticipating = errors.New("user already participates in this session")
	ErrNotParticipating     = errors.New("user does not participate in this session")
	ErrInvalidParticipantID = errors.New("participant id must be positive")
	ErrSessionNotFound      = errors.New("session not found")
)

// Session is a bookable yoga class.
type Session struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	TeacherID   int64     `json:"teacher_id"`
	Description string    `json:"description"`
	Users       []int64   `json:"users"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks if the Session has valid data.
// PRE: Session struct is populated
// POST: Returns nil if valid, error otherwise
func (s *Session) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(s.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	if strings.TrimSpace(s.Description) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(s.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if s.Date.IsZero() {
		return ErrMissingDate
	}
	if s.TeacherID <= 0 {
		return ErrMissingTeacher
	}
	return nil
}

// HasParticipant returns true if userID is booked on the session.
// INVARIANT: Session fields are not mutated
func (s *Session) HasParticipant(userID int64) bool {
	for _, u := range s.Users {
		if u == userID {
			return true
		}
	}
	return false
}

// Participate books userID onto the session.
// PRE: userID > 0
// POST: userID is in Users exactly once
// INVARIANT: Users never contains duplicates
func (s *Session) Participate(userID int64, now time.Time) error {
	if userID <= 0 {
		return ErrInvalidParticipantID
	}
	if s.HasParticipant(userID) {
		return ErrAlreadyParticipating
	}
	s.Users = append(s.Users, userID)
	s.UpdatedAt = now
	return nil
}

// Unparticipate removes userID from the session.
// PRE: userID is booked
// POST: userID is no longer in Users
func (s *Session) Unparticipate(userID int64, now time.Time) error {
	if !s.HasParticipant(userID) {
		return ErrNotParticipating
	}
	kept := make([]int64, 0, len(s.Users)-1)
	for _, u := range s.Users {
		if u != userID {
			kept = append(kept, u)
		}
	}
	s.Users = kept
	s.UpdatedAt = now
	return nil
}

// Attendees returns the number of booked users.
func (s *Session) Attendees() int {
	return len(s.Users)
}

// Teacher leads sessions.
type Teacher struct {
	ID        int64     `json:"id"`
	LastName  string    `json:"lastName"`
	FirstName string    `json:"firstName"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// User is the account profile shown on the account page.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
