package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"yogastudio/internal/domain/intercept"
)

// Login form selectors used by the application.
const (
	EmailSelector    = "input[formControlName=email]"
	PasswordSelector = "input[formControlName=password]"
	SubmitSelector   = "button[type=submit]"
)

// LoginForm is the page surface the login flow drives.
type LoginForm interface {
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
}

// AliasAwaiter waits for an aliased call to be answered.
type AliasAwaiter interface {
	Await(ctx context.Context, alias string, timeout time.Duration) (intercept.Hit, error)
}

// LoginInput carries input for the login orchestrator.
type LoginInput struct {
	Email    string
	Password string
	// LoginAlias is awaited after submit; empty when the form is expected
	// to fail without a backend call.
	LoginAlias string
	// FollowUp aliases are awaited in order after the login call.
	FollowUp []string
	Timeout  time.Duration
}

// LoginResult carries the hits observed during login.
type LoginResult struct {
	Login    intercept.Hit
	FollowUp []intercept.Hit
}

// LoginDeps holds dependencies for Login.
type LoginDeps struct {
	Form    LoginForm
	Awaiter AliasAwaiter
}

// ExecuteLogin fills and submits the login form, then waits for the login
// call and any follow-up calls the application makes after it.
// PRE: the login page is open and the login rule is registered
// POST: every awaited alias was hit once, in order
// INVARIANT: empty fields are left untouched so validation can be exercised
func ExecuteLogin(ctx context.Context, input LoginInput, deps LoginDeps) (LoginResult, error) {
	if input.Email != "" {
		if err := deps.Form.Fill(ctx, EmailSelector, input.Email); err != nil {
			return LoginResult{}, fmt.Errorf("failed to fill email: %w", err)
		}
	}
	if input.Password != "" {
		if err := deps.Form.Fill(ctx, PasswordSelector, input.Password); err != nil {
			return LoginResult{}, fmt.Errorf("failed to fill password: %w", err)
		}
	}
	if err := deps.Form.Click(ctx, SubmitSelector); err != nil {
		return LoginResult{}, fmt.Errorf("failed to submit login form: %w", err)
	}

	var res LoginResult
	if input.LoginAlias == "" {
		slog.Info("auth_event", "event", "login_submitted", "email", input.Email, "awaited", false)
		return res, nil
	}
	hit, err := deps.Awaiter.Await(ctx, input.LoginAlias, input.Timeout)
	if err != nil {
		return LoginResult{}, err
	}
	res.Login = hit

	for _, alias := range input.FollowUp {
		h, err := deps.Awaiter.Await(ctx, alias, input.Timeout)
		if err != nil {
			return LoginResult{}, err
		}
		res.FollowUp = append(res.FollowUp, h)
	}

	slog.Info("auth_event", "event", "login_submitted", "email", input.Email, "status", hit.StatusCode, "follow_up", len(res.FollowUp))
	return res, nil
}
