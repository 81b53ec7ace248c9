package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	tm := NewTokenManager("secret", "larder", time.Hour)
	tok, err := tm.Issue(42, "admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := tm.Validate(tok, PurposeAccess)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != 42 || claims.Role != "admin" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateRejects(t *testing.T) {
	tm := NewTokenManager("secret", "larder", time.Hour)
	access, _ := tm.Issue(1, "user")
	reset, _ := tm.IssueReset(1, "stamp", time.Hour)

	other := NewTokenManager("other-secret", "larder", time.Hour)
	forged, _ := other.Issue(1, "admin")

	otherIssuer := NewTokenManager("secret", "someone-else", time.Hour)
	foreign, _ := otherIssuer.Issue(1, "user")

	expiredTM := NewTokenManager("secret", "larder", time.Hour)
	expiredTM.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := expiredTM.Issue(1, "user")

	tests := []struct {
		name    string
		token   string
		purpose string
	}{
		{"wrong secret", forged, PurposeAccess},
		{"wrong issuer", foreign, PurposeAccess},
		{"expired", expired, PurposeAccess},
		{"reset used as access", reset, PurposeAccess},
		{"access used as reset", access, PurposeReset},
		{"garbage", "not-a-token", PurposeAccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tm.Validate(tt.token, tt.purpose); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := tm.Validate(reset, PurposeAccess); !errors.Is(err, ErrWrongPurpose) {
		t.Errorf("err = %v, want ErrWrongPurpose", err)
	}
}

func TestIssueRequiresUser(t *testing.T) {
	tm := NewTokenManager("secret", "", 0)
	if _, err := tm.Issue(0, "user"); err == nil {
		t.Error("expected error for zero user id")
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def", "abc.def", false},
		{"bearer abc", "abc", false},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ExtractToken(tt.header)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, %v", tt.header, got, err)
		}
	}
}

func TestResetTokenCarriesStamp(t *testing.T) {
	tm := NewTokenManager("secret", "larder", time.Hour)
	tok, err := tm.IssueReset(4, "abc123", time.Hour)
	if err != nil {
		t.Fatalf("issue reset: %v", err)
	}
	claims, err := tm.Validate(tok, PurposeReset)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Stamp != "abc123" || claims.UserID != 4 {
		t.Errorf("claims = %+v", claims)
	}
}
