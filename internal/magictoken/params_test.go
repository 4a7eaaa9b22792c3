package magictoken

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/google/magic-github-proxy/internal/core"
)

type scopeSet []string

func (s scopeSet) Has(name string) bool { return slices.Contains(s, name) }
func (s scopeSet) Names() []string      { return s }

func TestParseParams(t *testing.T) {
	scopes := scopeSet{"repo:status", "user:read"}

	tests := []struct {
		name    string
		params  map[string]any
		want    *CreateParams
		wantErr error
	}{
		{
			name:    "nil",
			params:  nil,
			wantErr: core.ErrNotJSON,
		},
		{
			name:    "empty",
			params:  map[string]any{},
			wantErr: core.ErrNotJSON,
		},
		{
			name:    "missing token",
			params:  map[string]any{"scopes": []any{"user:read"}},
			wantErr: core.ErrMissingToken,
		},
		{
			name:    "token not a string",
			params:  map[string]any{"token": 42},
			wantErr: core.ErrMissingToken,
		},
		{
			name:    "scopes and allowed",
			params:  map[string]any{"token": "t", "scopes": []any{}, "allowed": []any{}},
			wantErr: core.ErrConflictingGrant,
		},
		{
			name:    "scopes not a list",
			params:  map[string]any{"token": "t", "scopes": "user:read"},
			wantErr: core.ErrValidation,
		},
		{
			name:    "scopes not strings",
			params:  map[string]any{"token": "t", "scopes": []any{"user:read", 1}},
			wantErr: core.ErrValidation,
		},
		{
			name:    "allowed not a list",
			params:  map[string]any{"token": "t", "allowed": "GET /user"},
			wantErr: core.ErrInvalidAllowed,
		},
		{
			name:    "allowed not strings",
			params:  map[string]any{"token": "t", "allowed": []any{true}},
			wantErr: core.ErrInvalidAllowed,
		},
		{
			name:    "allowed without method",
			params:  map[string]any{"token": "t", "allowed": []any{"/user"}},
			wantErr: core.ErrInvalidAllowed,
		},
		{
			name:    "allowed with invalid pattern",
			params:  map[string]any{"token": "t", "allowed": []any{"GET /user/(unclosed"}},
			wantErr: core.ErrInvalidAllowed,
		},
		{
			name:   "token only",
			params: map[string]any{"token": "t"},
			want:   &CreateParams{Token: "t"},
		},
		{
			name:   "valid scopes",
			params: map[string]any{"token": "t", "scopes": []any{"user:read"}},
			want:   &CreateParams{Token: "t", Scopes: []string{"user:read"}},
		},
		{
			name:   "valid allowed",
			params: map[string]any{"token": "t", "allowed": []string{"GET /user", "* /repos/.*"}},
			want:   &CreateParams{Token: "t", Allowed: []string{"GET /user", "* /repos/.*"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseParams(scopes, tc.params)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("ParseParams() error = %v, want %v", err, tc.wantErr)
				}
				if !errors.Is(err, core.ErrValidation) {
					t.Errorf("expected %v to be a validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseParams() unexpected error = %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ParseParams() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseParams_UnknownScope(t *testing.T) {
	scopes := scopeSet{"repo:status", "user:read"}
	err := ValidateParams(scopes, map[string]any{
		"token":  "t",
		"scopes": []any{"user:read", "admin", "delete"},
	})

	var scopeErr *core.InvalidScopeError
	if !errors.As(err, &scopeErr) {
		t.Fatalf("ValidateParams() error = %v, want *InvalidScopeError", err)
	}
	want := &core.InvalidScopeError{
		Invalid: []string{"admin", "delete"},
		Valid:   []string{"repo:status", "user:read"},
	}
	if diff := cmp.Diff(want, scopeErr); diff != "" {
		t.Errorf("InvalidScopeError mismatch (-want +got):\n%s", diff)
	}
}
