package fixtures

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"yogastudio/internal/domain/booking"
	"yogastudio/internal/domain/intercept"
)

// AliasCreateSession names the POST rule the create form calls.
const AliasCreateSession = "createSession"

// ErrInvalidDate is returned for a session date in neither form the
// create form sends.
var ErrInvalidDate = errors.New("session date must be YYYY-MM-DD or RFC 3339")

// SessionRequest is the body the session form posts.
type SessionRequest struct {
	Name        string `json:"name"`
	Date        string `json:"date"`
	TeacherID   int64  `json:"teacher_id"`
	Description string `json:"description"`
}

// Session converts the form body into an unsaved session.
// POST: Returns ErrInvalidDate for an unparseable date; a blank date
// yields a zero Date for Validate to reject
func (in SessionRequest) Session() (booking.Session, error) {
	s := booking.Session{
		Name:        in.Name,
		TeacherID:   in.TeacherID,
		Description: in.Description,
		Users:       []int64{},
	}
	if in.Date == "" {
		return s, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339Nano} {
		if d, err := time.Parse(layout, in.Date); err == nil {
			s.Date = d
			return s, nil
		}
	}
	return booking.Session{}, ErrInvalidDate
}

// Roster is a stateful session list. Its responders let a test book and
// cancel participation and see the change on the next detail fetch.
type Roster struct {
	mu       sync.Mutex
	prefix   string
	sessions map[int64]*booking.Session
	now      func() time.Time
}

// NewRoster creates a roster holding copies of sessions.
// PRE: session ids are unique
func NewRoster(prefix string, sessions ...booking.Session) *Roster {
	r := &Roster{prefix: prefix, sessions: make(map[int64]*booking.Session), now: time.Now}
	for _, s := range sessions {
		s := s
		s.Users = append([]int64{}, s.Users...)
		r.sessions[s.ID] = &s
	}
	return r
}

// Session returns a copy of one session.
func (r *Roster) Session(id int64) (booking.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return booking.Session{}, false
	}
	return copySession(s), true
}

// List returns copies of every session ordered by id.
func (r *Roster) List() []booking.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]booking.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, copySession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Participate books userID on sessionID.
// POST: Returns booking.ErrSessionNotFound or booking.ErrAlreadyParticipating on failure
func (r *Roster) Participate(sessionID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return booking.ErrSessionNotFound
	}
	return s.Participate(userID, r.now())
}

// Unparticipate cancels userID's booking on sessionID.
// POST: Returns booking.ErrSessionNotFound or booking.ErrNotParticipating on failure
func (r *Roster) Unparticipate(sessionID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return booking.ErrSessionNotFound
	}
	return s.Unparticipate(userID, r.now())
}

// Create stores a new session under the next free id.
// PRE: s carries the form fields; its ID and timestamps are ignored
// POST: Returns the stored copy, or the booking.Session Validate error
// with the roster unchanged
func (r *Roster) Create(s booking.Session) (booking.Session, error) {
	if err := s.Validate(); err != nil {
		return booking.Session{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var last int64
	for id := range r.sessions {
		if id > last {
			last = id
		}
	}
	now := r.now()
	s.ID = last + 1
	s.Users = []int64{}
	s.CreatedAt, s.UpdatedAt = now, now
	r.sessions[s.ID] = &s
	return copySession(&s), nil
}

// Remove deletes a session; later calls for it answer 404.
func (r *Roster) Remove(sessionID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// ParticipateAlias names the POST participation rule of one session.
func ParticipateAlias(sessionID int64) string {
	return fmt.Sprintf("participate%d", sessionID)
}

// UnparticipateAlias names the DELETE participation rule of one session.
func UnparticipateAlias(sessionID int64) string {
	return fmt.Sprintf("unparticipate%d", sessionID)
}

// Rules returns the list, create, detail and per-session participation
// rules. The participation path has two ids, so one rule pair is registered
// per session with the user id as the dynamic segment. Sessions created
// after Rules is called get no participation rules.
func (r *Roster) Rules() []intercept.Rule {
	rules := []intercept.Rule{
		{
			Method:  http.MethodGet,
			Pattern: intercept.MustParsePattern(Path(r.prefix, "/session")),
			Respond: func(intercept.Request) intercept.Response {
				return intercept.Response{StatusCode: http.StatusOK, Body: r.List()}
			},
			Alias: AliasGetSessions,
		},
		{
			Method:  http.MethodPost,
			Pattern: intercept.MustParsePattern(Path(r.prefix, "/session")),
			Respond: r.respondCreate,
			Alias:   AliasCreateSession,
		},
		{
			Method:  http.MethodGet,
			Pattern: intercept.MustParsePattern(Path(r.prefix, "/session/{id}")),
			Respond: r.respondDetail,
			Alias:   AliasGetSession,
		},
	}
	for _, s := range r.List() {
		id := s.ID
		rules = append(rules,
			intercept.Rule{
				Method:  http.MethodPost,
				Pattern: intercept.MustParsePattern(Path(r.prefix, "/session/%d/participate/{userId}", id)),
				Respond: func(req intercept.Request) intercept.Response {
					return r.respondParticipation(req, id, r.Participate)
				},
				Alias: ParticipateAlias(id),
			},
			intercept.Rule{
				Method:  http.MethodDelete,
				Pattern: intercept.MustParsePattern(Path(r.prefix, "/session/%d/participate/{userId}", id)),
				Respond: func(req intercept.Request) intercept.Response {
					return r.respondParticipation(req, id, r.Unparticipate)
				},
				Alias: UnparticipateAlias(id),
			},
		)
	}
	return rules
}

func (r *Roster) respondDetail(req intercept.Request) intercept.Response {
	id, err := strconv.ParseInt(req.Param, 10, 64)
	if err != nil {
		return intercept.Response{StatusCode: http.StatusBadRequest, Body: MessageBody{Message: "Invalid session id"}}
	}
	s, ok := r.Session(id)
	if !ok {
		return intercept.Response{StatusCode: http.StatusNotFound, Body: MessageBody{Message: booking.ErrSessionNotFound.Error()}}
	}
	return intercept.Response{StatusCode: http.StatusOK, Body: s}
}

func (r *Roster) respondCreate(req intercept.Request) intercept.Response {
	var in SessionRequest
	if err := json.Unmarshal(req.Body, &in); err != nil {
		return intercept.Response{StatusCode: http.StatusBadRequest, Body: MessageBody{Message: "Malformed session request"}}
	}
	s, err := in.Session()
	if err == nil {
		s, err = r.Create(s)
	}
	if err != nil {
		slog.Info("booking_event", "event", "session_rejected", "name", in.Name, "reason", err.Error())
		return intercept.Response{StatusCode: http.StatusBadRequest, Body: MessageBody{Message: err.Error()}}
	}
	slog.Info("booking_event", "event", "session_created", "session_id", s.ID, "teacher_id", s.TeacherID)
	return intercept.Response{StatusCode: http.StatusOK, Body: s}
}

func (r *Roster) respondParticipation(req intercept.Request, sessionID int64, op func(sessionID, userID int64) error) intercept.Response {
	userID, err := strconv.ParseInt(req.Param, 10, 64)
	if err != nil {
		return intercept.Response{StatusCode: http.StatusBadRequest, Body: MessageBody{Message: "Invalid user id"}}
	}
	err = op(sessionID, userID)
	switch {
	case err == nil:
		slog.Info("booking_event", "event", "participation_changed", "method", req.Method, "session_id", sessionID, "user_id", userID)
		return intercept.Response{StatusCode: http.StatusOK}
	case errors.Is(err, booking.ErrSessionNotFound):
		return intercept.Response{StatusCode: http.StatusNotFound, Body: MessageBody{Message: err.Error()}}
	default:
		slog.Info("booking_event", "event", "participation_rejected", "method", req.Method, "session_id", sessionID, "user_id", userID, "reason", err.Error())
		return intercept.Response{StatusCode: http.StatusBadRequest, Body: MessageBody{Message: err.Error()}}
	}
}

func copySession(s *booking.Session) booking.Session {
	c := *s
	c.Users = append([]int64{}, s.Users...)
	return c
}
