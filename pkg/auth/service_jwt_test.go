package auth

import (
	"strings"
	"testing"
	"time"
)

func TestServiceTokenRoundTrip(t *testing.T) {
	a, err := NewServiceJWTAuth("test-secret", time.Minute)
	if err != nil {
		t.Fatalf("NewServiceJWTAuth: %v", err)
	}

	token, err := a.GenerateToken("channel-adapter")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	service, err := a.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if service != "channel-adapter" {
		t.Errorf("expected channel-adapter, got %q", service)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a, _ := NewServiceJWTAuth("secret-one", time.Minute)
	b, _ := NewServiceJWTAuth("secret-two", time.Minute)

	token, err := a.GenerateToken("channel-adapter")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := b.VerifyToken(token); err == nil {
		t.Errorf("token signed with another secret must be rejected")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	a, _ := NewServiceJWTAuth("test-secret", -time.Minute)

	token, err := a.GenerateToken("channel-adapter")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := a.VerifyToken(token); err == nil {
		t.Errorf("expired token must be rejected")
	}
}

func TestExtractToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", false},
		{"bearer abc", "abc", false},
		{"Basic abc", "", true},
		{"", "", true},
		{"Bearer ", "", true},
	}
	for _, tc := range cases {
		got, err := ExtractToken(tc.header)
		if tc.wantErr != (err != nil) {
			t.Errorf("header %q: err=%v, wantErr=%v", tc.header, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && !strings.EqualFold(got, tc.want) {
			t.Errorf("header %q: got %q, want %q", tc.header, got, tc.want)
		}
	}
}
