package server

import (
	"net/http/httptest"
	"testing"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name       string
		configured []string
		origin     string
		want       bool
	}{
		{"exact match", []string{"http://localhost:3000"}, "http://localhost:3000", true},
		{"case insensitive", []string{"HTTP://LocalHost:3000"}, "http://localhost:3000", true},
		{"path ignored", []string{"http://localhost:3000/board"}, "http://localhost:3000", true},
		{"different port", []string{"http://localhost:3000"}, "http://localhost:4000", false},
		{"different scheme", []string{"http://localhost:3000"}, "https://localhost:3000", false},
		{"missing header", []string{"http://localhost:3000"}, "", false},
		{"garbage header", []string{"http://localhost:3000"}, "not an origin", false},
		{"wildcard", []string{"*"}, "https://anything.example", true},
		{"wildcard still needs an origin", []string{"*"}, "", false},
		{"invalid config entries ignored", []string{"nonsense", " ", "http://ok.example"}, "http://ok.example", true},
		{"nothing configured", nil, "http://localhost:3000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.configured)
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := policy.allow(r); got != tt.want {
				t.Errorf("allow(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
