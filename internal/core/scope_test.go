package core

import (
	"context"
	"errors"
	"testing"
)

type matcherOnly struct{}

func (matcherOnly) IsRequestAllowed(context.Context, string, string) (bool, error) {
	return true, nil
}

type observerOnly struct{}

func (observerOnly) ResponseCallback(context.Context, ObservedResponse) error {
	return nil
}

type both struct {
	matcherOnly
	observerOnly
}

func TestNewExtensionScope(t *testing.T) {
	tests := []struct {
		name         string
		extension    any
		wantMatcher  bool
		wantObserver bool
		wantErr      bool
	}{
		{name: "Matcher Only", extension: matcherOnly{}, wantMatcher: true},
		{name: "Observer Only", extension: observerOnly{}, wantObserver: true},
		{name: "Both", extension: both{}, wantMatcher: true, wantObserver: true},
		{name: "Neither", extension: struct{}{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewExtensionScope("ext", tt.extension)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPlugin) {
					t.Fatalf("NewExtensionScope() error = %v, want ErrInvalidPlugin", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewExtensionScope() unexpected error: %v", err)
			}
			if s.Kind != ExtensionScope {
				t.Errorf("Kind = %v, want %v", s.Kind, ExtensionScope)
			}
			if (s.Matcher != nil) != tt.wantMatcher {
				t.Errorf("Matcher set = %v, want %v", s.Matcher != nil, tt.wantMatcher)
			}
			if (s.Observer != nil) != tt.wantObserver {
				t.Errorf("Observer set = %v, want %v", s.Observer != nil, tt.wantObserver)
			}
		})
	}
}
