package oauth

import (
	"reflect"
	"testing"
)

func TestParseGrantType(t *testing.T) {
	tests := []struct {
		in   string
		want GrantType
		ok   bool
	}{
		{"authorization_code", GrantAuthorizationCode, true},
		{"refresh_token", GrantRefreshToken, true},
		{"client_credentials", GrantClientCredentials, true},
		{"password", "", false},
		{"AUTHORIZATION_CODE", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := ParseGrantType(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseGrantType(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestScopes(t *testing.T) {
	tests := []struct {
		scope string
		want  []string
	}{
		{"read write", []string{"read", "write"}},
		{"  read   write ", []string{"read", "write"}},
		{"read", []string{"read"}},
		{"", []string{}},
	}
	for _, tc := range tests {
		// Called on the bare literal: handlers build the request inline.
		got := AuthorizeRequest{Scope: tc.scope}.Scopes()
		if len(got) != len(tc.want) {
			t.Errorf("Scopes(%q) = %v, want %v", tc.scope, got, tc.want)
			continue
		}
		if len(got) > 0 && !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Scopes(%q) = %v, want %v", tc.scope, got, tc.want)
		}
	}
}
