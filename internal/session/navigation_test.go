package session

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCallback(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"plain page", "https://app.example.com/members", false},
		{"code and state", "https://app.example.com/?code=abc&state=xyz", true},
		{"error and state", "https://app.example.com/?error=access_denied&state=xyz", true},
		{"code without state", "https://app.example.com/?code=abc", false},
		{"fragment access token", "https://app.example.com/#access_token=t&token_type=bearer", true},
		{"fragment id token", "https://app.example.com/#state=s&id_token=t", true},
		{"unrelated fragment", "https://app.example.com/#section-2", false},
		{"unrelated query", "https://app.example.com/members?cursor=abc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, IsCallback(u))
		})
	}
	assert.False(t, IsCallback(nil))
}

func TestStripCallback(t *testing.T) {
	u, _ := url.Parse("https://app.example.com/members?code=abc&state=xyz&session_state=s&size=20")
	assert.Equal(t, "/members?size=20", StripCallback(u))

	u, _ = url.Parse("https://app.example.com/?error=access_denied&state=xyz")
	assert.Equal(t, "/", StripCallback(u))
}

func TestSafeRedirectPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/members/42", "/members/42"},
		{"/members?cursor=abc", "/members?cursor=abc"},
		{"https://evil.example.com/", "/"},
		{"//evil.example.com", "/"},
		{"/\\evil.example.com", "/"},
		{"members", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeRedirectPath(tt.in), "input %q", tt.in)
	}
}
