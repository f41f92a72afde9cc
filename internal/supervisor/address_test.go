package supervisor

import (
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestBuildAddress(t *testing.T) {
	tests := []struct {
		name           string
		base           string
		creds          Credentials
		conversationID string
		want           map[string]string
		absent         []string
		wantErr        bool
	}{
		{
			name:  "identity and token",
			base:  "ws://localhost:8000/ws",
			creds: Credentials{UserID: "42", Username: "Ana Maria", Token: "t0k"},
			want: map[string]string{
				"user_id":  "42",
				"username": "Ana Maria",
				"token":    "t0k",
			},
			absent: []string{"conversation_id"},
		},
		{
			name:           "known conversation",
			base:           "wss://chat.example.com/ws",
			creds:          Credentials{UserID: "42", Token: "t0k"},
			conversationID: "c-9",
			want:           map[string]string{"conversation_id": "c-9"},
			absent:         []string{"username"},
		},
		{
			name:   "stale conversation on base is dropped",
			base:   "ws://localhost:8000/ws?conversation_id=old",
			creds:  Credentials{UserID: "42"},
			absent: []string{"conversation_id"},
		},
		{
			name:    "http scheme rejected",
			base:    "http://localhost:8000/ws",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildAddress(tt.base, tt.creds, tt.conversationID)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			u, err := url.Parse(got)
			if err != nil {
				t.Fatalf("result is not a url: %v", err)
			}
			q := u.Query()
			for k, v := range tt.want {
				if q.Get(k) != v {
					t.Errorf("%s = %q, want %q", k, q.Get(k), v)
				}
			}
			for _, k := range tt.absent {
				if q.Has(k) {
					t.Errorf("%s should be absent, got %q", k, q.Get(k))
				}
			}
		})
	}
}

func TestClassifyClose(t *testing.T) {
	tests := map[int]CloseClass{
		1000: CloseClean,
		1001: CloseRetryable,
		1006: CloseRetryable,
		1008: CloseAuthRejected,
		1011: CloseAuthRejected,
		4001: CloseAuthRejected,
		4002: CloseRetryable,
		4003: CloseAuthRejected,
		4999: CloseRetryable,
	}
	for code, want := range tests {
		if got := ClassifyClose(code); got != want {
			t.Errorf("ClassifyClose(%d) = %s, want %s", code, got, want)
		}
	}
}

func TestCredentialExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sign := func(exp time.Time) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	if !credentialExpired(sign(now.Add(-time.Minute)), now) {
		t.Error("past exp should be expired")
	}
	if credentialExpired(sign(now.Add(time.Hour)), now) {
		t.Error("future exp should be valid")
	}
	if credentialExpired("not-a-jwt", now) {
		t.Error("opaque token should be left to the server")
	}
	if credentialExpired("", now) {
		t.Error("empty token should not be expired")
	}
}
