package services

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/cppla/incentive/models"
)

var tokenPattern = regexp.MustCompile(`^GV-2026-[A-Z0-9]{6}$`)

// revoke clears the user's token so the next Issue mints again.
func (e *engine) revoke(t *testing.T, userID uint) {
	t.Helper()
	if err := e.db.Model(&models.User{}).Where("id = ?", userID).Update("exclusive_token", nil).Error; err != nil {
		t.Fatalf("revoke: %v", err)
	}
}

func TestMintTokenFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		token, err := MintToken("GV", 2026)
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		if !tokenPattern.MatchString(token) {
			t.Fatalf("token %q does not match %s", token, tokenPattern)
		}
	}
}

func TestIssueIsIdempotentForHolder(t *testing.T) {
	e := newEngine(t)
	u := e.employee(t, "ann@example.com")
	ctx := t.Context()

	first, err := e.tokens.Issue(ctx, " ANN@example.com ")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !tokenPattern.MatchString(first) {
		t.Fatalf("token = %q", first)
	}
	second, err := e.tokens.Issue(ctx, "ann@example.com")
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if second != first {
		t.Fatalf("reissue = %q, want %q", second, first)
	}
	if n, _ := e.tokens.IssuedThisMonth(ctx, "ann@example.com"); n != 1 {
		t.Fatalf("issued = %d, want 1", n)
	}
	stored := e.reload(t, u.ID)
	if !stored.HasToken() || *stored.ExclusiveToken != first || stored.TokenIssuedAt == nil {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestIssuePreconditions(t *testing.T) {
	e := newEngine(t)
	unverified := models.User{Email: "new@example.com", DisplayName: "new", Role: models.RoleEmployee}
	if err := e.db.Create(&unverified).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.tokens.Issue(t.Context(), "new@example.com"); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("unverified err = %v", err)
	}
	if _, err := e.tokens.Issue(t.Context(), "ghost@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown err = %v", err)
	}
}

func TestIssueMonthlyQuota(t *testing.T) {
	e := newEngine(t)
	u := e.employee(t, "ann@example.com")
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		if _, err := e.tokens.Issue(ctx, u.Email); err != nil {
			t.Fatalf("issue %d: %v", i+1, err)
		}
		e.revoke(t, u.ID)
		e.clock.Advance(24 * time.Hour)
	}
	if _, err := e.tokens.Issue(ctx, u.Email); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("fourth err = %v, want ErrQuotaExceeded", err)
	}
	if e.reload(t, u.ID).HasToken() {
		t.Fatalf("rejected issuance stored a token")
	}

	e.clock.Set(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC))
	token, err := e.tokens.Issue(ctx, u.Email)
	if err != nil {
		t.Fatalf("next month: %v", err)
	}
	if !tokenPattern.MatchString(token) {
		t.Fatalf("token = %q", token)
	}
	var total int64
	e.db.Model(&models.TokenIssuance{}).Where("email = ?", u.Email).Count(&total)
	if total != 4 {
		t.Fatalf("issuances = %d, want 4", total)
	}
}

func TestDisableIsIdempotent(t *testing.T) {
	e := newEngine(t)
	u := e.employee(t, "ann@example.com")
	e.withToken(t, &u, "GV-2026-AAAAAA", longAgo)
	ctx := t.Context()

	changed, err := e.tokens.Disable(ctx, u.ID, "3-day inactivity")
	if err != nil || !changed {
		t.Fatalf("first disable = %v, %v", changed, err)
	}
	first := e.reload(t, u.ID)

	e.clock.Advance(time.Hour)
	changed, err = e.tokens.Disable(ctx, u.ID, "other")
	if err != nil || changed {
		t.Fatalf("second disable = %v, %v", changed, err)
	}
	second := e.reload(t, u.ID)
	if !second.TokenDisabledAt.Equal(*first.TokenDisabledAt) || second.TokenDisabledReason != "3-day inactivity" {
		t.Fatalf("disable state changed: %+v", second)
	}

	if ok, err := e.tokens.Reactivate(ctx, u.ID); err != nil || !ok {
		t.Fatalf("reactivate = %v, %v", ok, err)
	}
	if e.reload(t, u.ID).TokenDisabledAt != nil {
		t.Fatalf("token still disabled")
	}
}

func TestIssueKeepsDisablementWithoutToken(t *testing.T) {
	e := newEngine(t)
	u := e.employee(t, "ann@example.com")
	ctx := t.Context()

	if changed, err := e.tokens.Disable(ctx, u.ID, "policy"); err != nil || !changed {
		t.Fatalf("disable = %v, %v", changed, err)
	}
	_, err := e.tokens.Issue(ctx, u.Email)
	var disabled *TokenDisabledError
	if !errors.As(err, &disabled) || disabled.Reason != "policy" {
		t.Fatalf("issue err = %v, want TokenDisabledError", err)
	}

	stored := e.reload(t, u.ID)
	if stored.HasToken() || stored.TokenDisabledAt == nil || stored.TokenDisabledReason != "policy" {
		t.Fatalf("stored = %+v", stored)
	}
	if n, _ := e.tokens.IssuedThisMonth(ctx, u.Email); n != 0 {
		t.Fatalf("issued = %d, want 0", n)
	}

	if ok, err := e.tokens.Reactivate(ctx, u.ID); err != nil || !ok {
		t.Fatalf("reactivate = %v, %v", ok, err)
	}
	if _, err := e.tokens.Issue(ctx, u.Email); err != nil {
		t.Fatalf("issue after reactivation: %v", err)
	}
}

func TestDisableUnknownUser(t *testing.T) {
	e := newEngine(t)
	ctx := t.Context()
	if _, err := e.tokens.Disable(ctx, 4242, "policy"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("disable err = %v, want ErrUserNotFound", err)
	}
	if _, err := e.tokens.Reactivate(ctx, 4242); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("reactivate err = %v, want ErrUserNotFound", err)
	}

	u := e.employee(t, "ann@example.com")
	if changed, err := e.tokens.Reactivate(ctx, u.ID); err != nil || changed {
		t.Fatalf("reactivate active = %v, %v", changed, err)
	}
}

func TestAuthenticateGateOrder(t *testing.T) {
	e := newEngine(t)
	ctx := t.Context()
	u := e.employee(t, "ann@example.com")
	e.withToken(t, &u, "GV-2026-ABC123", longAgo)
	if _, err := e.tokens.Register(ctx, RegisterInput{Email: u.Email, Token: "GV-2026-ABC123", DisplayName: "Ann", Password: "secret-pass"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := e.tokens.Authenticate(ctx, u.Email, "wrong-pass", "GV-2026-XXXXXX"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("bad token err = %v", err)
	}
	if _, err := e.tokens.Authenticate(ctx, "ghost@example.com", "secret-pass", "GV-2026-ABC123"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("unknown user err = %v", err)
	}
	if _, err := e.tokens.Authenticate(ctx, u.Email, "wrong-pass", "GV-2026-ABC123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("bad password err = %v", err)
	}
	got, err := e.tokens.Authenticate(ctx, u.Email, "secret-pass", "GV-2026-ABC123")
	if err != nil || got.ID != u.ID {
		t.Fatalf("login = %v, %v", got, err)
	}

	e.tokens.Disable(ctx, u.ID, "3-day inactivity")
	_, err = e.tokens.Authenticate(ctx, u.Email, "secret-pass", "GV-2026-ABC123")
	var disabled *TokenDisabledError
	if !errors.As(err, &disabled) {
		t.Fatalf("disabled err = %v, want TokenDisabledError", err)
	}
	if disabled.Reason != "3-day inactivity" || !disabled.DisabledAt.Equal(baseTime) {
		t.Fatalf("disabled = %+v", disabled)
	}
}

func TestRegisterCompletesAccountOnce(t *testing.T) {
	e := newEngine(t)
	ctx := t.Context()
	u := e.employee(t, "ann@example.com")
	e.withToken(t, &u, "GV-2026-ABC123", longAgo)

	if _, err := e.tokens.Register(ctx, RegisterInput{Email: u.Email, Token: "GV-2026-ZZZZZZ", Password: "secret-pass"}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong token err = %v", err)
	}
	if _, err := e.tokens.Register(ctx, RegisterInput{Email: u.Email, Token: "GV-2026-ABC123", Password: "123"}); err == nil {
		t.Fatalf("short password accepted")
	}

	got, err := e.tokens.Register(ctx, RegisterInput{Email: u.Email, Token: "GV-2026-ABC123", DisplayName: "Ann", Password: "secret-pass"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if got.DisplayName != "Ann" || got.PasswordHash == "" {
		t.Fatalf("user = %+v", got)
	}
	var accounts int64
	e.db.Model(&models.PointsAccount{}).Where("user_id = ?", u.ID).Count(&accounts)
	if accounts != 1 {
		t.Fatalf("accounts = %d, want 1", accounts)
	}

	if _, err := e.tokens.Register(ctx, RegisterInput{Email: u.Email, Token: "GV-2026-ABC123", Password: "another-pass"}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("second register err = %v", err)
	}
}

func TestRegisterWithDisabledToken(t *testing.T) {
	e := newEngine(t)
	u := e.employee(t, "ann@example.com")
	e.withToken(t, &u, "GV-2026-ABC123", longAgo)
	e.tokens.Disable(t.Context(), u.ID, "3-day inactivity")

	_, err := e.tokens.Register(t.Context(), RegisterInput{Email: u.Email, Token: "GV-2026-ABC123", Password: "secret-pass"})
	var disabled *TokenDisabledError
	if !errors.As(err, &disabled) {
		t.Fatalf("err = %v, want TokenDisabledError", err)
	}
}
