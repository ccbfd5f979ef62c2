package fixtures

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"yogastudio/internal/adapters/interceptor"
	"yogastudio/internal/domain/booking"
	"yogastudio/internal/domain/identity"
	"yogastudio/internal/domain/intercept"
)

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func serve(t *testing.T, rules ...intercept.Rule) (*interceptor.Engine, *httptest.Server) {
	t.Helper()
	engine := interceptor.NewEngine()
	for _, r := range rules {
		if err := engine.Register(r); err != nil {
			t.Fatalf("Register %s: %v", r.Key(), err)
		}
	}
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return engine, srv
}

func call(t *testing.T, srv *httptest.Server, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

// TestCatalogue_RulesValidate verifies every canned rule registers cleanly.
func TestCatalogue_RulesValidate(t *testing.T) {
	admin, _ := identity.ForRole(identity.RoleAdmin, "tok")
	rules := []intercept.Rule{
		LoginSuccess("", admin),
		SessionList("", DefaultSessions(fixedNow)),
		SessionDetail("/api", DefaultSessions(fixedNow)[0], AliasGetSession),
		TeacherList("", Teachers(fixedNow)),
		UserDetail("", UserProfile(admin, "yoga@studio.com", fixedNow)),
		UserDeletion("", admin.ID),
	}
	engine := interceptor.NewEngine()
	for _, r := range rules {
		if err := engine.Register(r); err != nil {
			t.Errorf("Register %s: %v", r.Key(), err)
		}
	}
	if got := len(engine.Rules()); got != len(rules) {
		t.Errorf("Rules() = %d, want %d", got, len(rules))
	}
	for _, s := range DefaultSessions(fixedNow) {
		if err := s.Validate(); err != nil {
			t.Errorf("session %d invalid: %v", s.ID, err)
		}
	}
}

// TestLoginFailure_Body verifies the 401 payload.
func TestLoginFailure_Body(t *testing.T) {
	_, srv := serve(t, LoginFailure(""))
	status, body := call(t, srv, http.MethodPost, "/api/auth/login", `{}`)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d", status)
	}
	if string(body) != `{"message":"Invalid credentials"}` {
		t.Errorf("body = %s", body)
	}
}

// TestCredentialBook_Respond tests the login responder outcomes.
func TestCredentialBook_Respond(t *testing.T) {
	book := NewCredentialBook(bcrypt.MinCost)
	admin, _ := identity.ForRole(identity.RoleAdmin, "tok-admin")
	if err := book.Add("Yoga@Studio.com", "test!1234", admin); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, srv := serve(t, book.LoginRule(""))

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "valid", body: `{"email":"yoga@studio.com","password":"test!1234"}`, wantStatus: http.StatusOK},
		{name: "wrong password", body: `{"email":"yoga@studio.com","password":"wrongpassword"}`, wantStatus: http.StatusUnauthorized},
		{name: "unknown email", body: `{"email":"wrong@domain.com","password":"test!1234"}`, wantStatus: http.StatusUnauthorized},
		{name: "empty email", body: `{"email":"","password":"test!1234"}`, wantStatus: http.StatusBadRequest},
		{name: "empty password", body: `{"email":"yoga@studio.com","password":""}`, wantStatus: http.StatusBadRequest},
		{name: "both empty", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `not json`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, srv, http.MethodPost, "/api/auth/login", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", status, tt.wantStatus, body)
			}
			if status != http.StatusOK {
				return
			}
			got, err := identity.Decode(string(body))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != admin {
				t.Errorf("identity = %+v, want %+v", got, admin)
			}
		})
	}
}

// TestCredentialBook_Add_Invalid verifies blank input is rejected.
func TestCredentialBook_Add_Invalid(t *testing.T) {
	book := NewCredentialBook(bcrypt.MinCost)
	user, _ := identity.ForRole(identity.RoleUser, "tok")
	if err := book.Add(" ", "pw", user); !errors.Is(err, ErrEmptyEmail) {
		t.Errorf("empty email: %v", err)
	}
	if err := book.Add("a@b.c", "", user); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("empty password: %v", err)
	}
	if err := book.Add("a@b.c", "pw", identity.Identity{}); !errors.Is(err, identity.ErrInvalidID) {
		t.Errorf("invalid identity: %v", err)
	}
}

// TestRoster_ParticipationFlow drives participate/unparticipate through the engine.
func TestRoster_ParticipationFlow(t *testing.T) {
	roster := NewRoster("", NewSession(1, "Test", "A small description", 1, fixedNow))
	engine, srv := serve(t, roster.Rules()...)

	steps := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodPost, "/api/session/1/participate/2", http.StatusOK},
		{http.MethodPost, "/api/session/1/participate/2", http.StatusBadRequest},
		{http.MethodDelete, "/api/session/1/participate/2", http.StatusOK},
		{http.MethodDelete, "/api/session/1/participate/2", http.StatusBadRequest},
		{http.MethodPost, "/api/session/1/participate/abc", http.StatusBadRequest},
		{http.MethodPost, "/api/session/1/participate/0", http.StatusBadRequest},
		{http.MethodGet, "/api/session/9", http.StatusNotFound},
		{http.MethodGet, "/api/session/x", http.StatusBadRequest},
	}
	for _, s := range steps {
		if status, body := call(t, srv, s.method, s.path, ""); status != s.wantStatus {
			t.Errorf("%s %s = %d, want %d (%s)", s.method, s.path, status, s.wantStatus, body)
		}
	}

	ctx := context.Background()
	if _, err := engine.Await(ctx, ParticipateAlias(1), time.Second); err != nil {
		t.Errorf("Await participate: %v", err)
	}
	if _, err := engine.Await(ctx, UnparticipateAlias(1), time.Second); err != nil {
		t.Errorf("Await unparticipate: %v", err)
	}

	roster.Remove(1)
	if status, _ := call(t, srv, http.MethodPost, "/api/session/1/participate/2", ""); status != http.StatusNotFound {
		t.Errorf("removed session status = %d, want 404", status)
	}
}

// TestRoster_DetailReflectsBooking verifies the detail body tracks participation.
func TestRoster_DetailReflectsBooking(t *testing.T) {
	roster := NewRoster("/api", DefaultSessions(fixedNow)...)
	_, srv := serve(t, roster.Rules()...)

	if status, _ := call(t, srv, http.MethodPost, "/api/session/2/participate/7", ""); status != http.StatusOK {
		t.Fatalf("participate status = %d", status)
	}
	status, body := call(t, srv, http.MethodGet, "/api/session/2", "")
	if status != http.StatusOK {
		t.Fatalf("detail status = %d", status)
	}
	var s booking.Session
	if err := json.Unmarshal(body, &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !s.HasParticipant(7) || s.Attendees() != 1 {
		t.Errorf("users = %v, want [7]", s.Users)
	}

	_, body = call(t, srv, http.MethodGet, "/api/session", "")
	var list []booking.Session
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 || list[0].Attendees() != 0 || list[1].Attendees() != 1 {
		t.Errorf("list = %+v", list)
	}
}

// TestRoster_CopiesAreIsolated verifies callers cannot mutate roster state.
func TestRoster_CopiesAreIsolated(t *testing.T) {
	seed := NewSession(1, "Test", "desc", 1, fixedNow)
	roster := NewRoster("", seed)
	seed.Users = append(seed.Users, 99)

	s, _ := roster.Session(1)
	s.Users = append(s.Users, 42)

	got, _ := roster.Session(1)
	if got.Attendees() != 0 {
		t.Errorf("roster mutated through copy: %v", got.Users)
	}
}

// TestRoster_Create tests the create responder against the session rules.
func TestRoster_Create(t *testing.T) {
	long := strings.Repeat("x", booking.MaxNameLength+1)
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantErr    string
	}{
		{name: "form date", body: `{"name":"Test","date":"2023-01-01","teacher_id":1,"description":"description"}`, wantStatus: http.StatusOK},
		{name: "rfc3339 date", body: `{"name":"Test","date":"2023-01-01T10:00:00Z","teacher_id":2,"description":"description"}`, wantStatus: http.StatusOK},
		{name: "empty name", body: `{"name":" ","date":"2023-01-01","teacher_id":1,"description":"description"}`, wantStatus: http.StatusBadRequest, wantErr: booking.ErrEmptyName.Error()},
		{name: "name too long", body: `{"name":"` + long + `","date":"2023-01-01","teacher_id":1,"description":"description"}`, wantStatus: http.StatusBadRequest, wantErr: booking.ErrNameTooLong.Error()},
		{name: "no description", body: `{"name":"Test","date":"2023-01-01","teacher_id":1}`, wantStatus: http.StatusBadRequest, wantErr: booking.ErrEmptyDescription.Error()},
		{name: "no date", body: `{"name":"Test","teacher_id":1,"description":"description"}`, wantStatus: http.StatusBadRequest, wantErr: booking.ErrMissingDate.Error()},
		{name: "bad date", body: `{"name":"Test","date":"01/01/2023","teacher_id":1,"description":"description"}`, wantStatus: http.StatusBadRequest, wantErr: ErrInvalidDate.Error()},
		{name: "no teacher", body: `{"name":"Test","date":"2023-01-01","description":"description"}`, wantStatus: http.StatusBadRequest, wantErr: booking.ErrMissingTeacher.Error()},
		{name: "malformed", body: `not json`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roster := NewRoster("", DefaultSessions(fixedNow)...)
			roster.now = func() time.Time { return fixedNow }
			_, srv := serve(t, roster.Rules()...)

			status, body := call(t, srv, http.MethodPost, "/api/session", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", status, tt.wantStatus, body)
			}
			if status != http.StatusOK {
				var msg MessageBody
				if err := json.Unmarshal(body, &msg); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if tt.wantErr != "" && msg.Message != tt.wantErr {
					t.Errorf("message = %q, want %q", msg.Message, tt.wantErr)
				}
				if n := len(roster.List()); n != 2 {
					t.Errorf("rejected create stored a session: %d sessions", n)
				}
				return
			}
			var created booking.Session
			if err := json.Unmarshal(body, &created); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if created.ID != 3 || created.Name != "Test" || !created.CreatedAt.Equal(fixedNow) {
				t.Errorf("created = %+v", created)
			}
			if _, ok := roster.Session(3); !ok {
				t.Error("created session missing from roster")
			}
			status, _ = call(t, srv, http.MethodGet, "/api/session/3", "")
			if status != http.StatusOK {
				t.Errorf("detail of created session = %d", status)
			}
		})
	}
}

// TestCredentialBook_Register tests the register responder and that a new
// account can then log in.
func TestCredentialBook_Register(t *testing.T) {
	book := NewCredentialBook(bcrypt.MinCost)
	admin, _ := identity.ForRole(identity.RoleAdmin, "tok-admin")
	if err := book.Add("yoga@studio.com", "test!1234", admin); err != nil {
		t.Fatalf("Add: %v", err)
	}
	engine, srv := serve(t, book.RegisterRule(""), book.LoginRule(""))

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{name: "valid", body: `{"email":"test@test.com","firstName":"Test","lastName":"User","password":"password"}`, wantStatus: http.StatusOK, wantMsg: Registered.Message},
		{name: "taken", body: `{"email":"Yoga@Studio.com","firstName":"Test","lastName":"User","password":"password"}`, wantStatus: http.StatusBadRequest, wantMsg: ErrEmailTaken.Error()},
		{name: "no email", body: `{"firstName":"Test","lastName":"User","password":"password"}`, wantStatus: http.StatusBadRequest, wantMsg: ErrEmptyEmail.Error()},
		{name: "no first name", body: `{"email":"a@b.c","lastName":"User","password":"password"}`, wantStatus: http.StatusBadRequest, wantMsg: ErrEmptyFirstName.Error()},
		{name: "no last name", body: `{"email":"a@b.c","firstName":"Test","password":"password"}`, wantStatus: http.StatusBadRequest, wantMsg: ErrEmptyLastName.Error()},
		{name: "no password", body: `{"email":"a@b.c","firstName":"Test","lastName":"User"}`, wantStatus: http.StatusBadRequest, wantMsg: ErrEmptyPassword.Error()},
		{name: "malformed", body: `{`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, srv, http.MethodPost, "/api/auth/register", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", status, tt.wantStatus, body)
			}
			var msg MessageBody
			if err := json.Unmarshal(body, &msg); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.wantMsg != "" && msg.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", msg.Message, tt.wantMsg)
			}
		})
	}

	status, body := call(t, srv, http.MethodPost, "/api/auth/login", `{"email":"test@test.com","password":"password"}`)
	if status != http.StatusOK {
		t.Fatalf("login after register = %d (%s)", status, body)
	}
	id, err := identity.Decode(string(body))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if id.ID != admin.ID+1 || id.Admin || id.FirstName != "Test" || id.Validate() != nil {
		t.Errorf("registered identity = %+v", id)
	}
	hit, err := engine.Await(context.Background(), AliasRegister, time.Second)
	if err != nil || hit.StatusCode != http.StatusOK {
		t.Errorf("first register hit = %+v, %v", hit, err)
	}
}
