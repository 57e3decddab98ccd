package identity

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      Identity
		wantErr bool
	}{
		{"google", Identity{ExternalID: "1234", Provider: ProviderGoogle}, false},
		{"github", Identity{ExternalID: "octocat", Provider: ProviderGitHub, DisplayName: "Octo"}, false},
		{"unknown provider", Identity{ExternalID: "x", Provider: "gitlab"}, true},
		{"blank external id", Identity{ExternalID: "  ", Provider: ProviderGoogle}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("Expected ErrInvalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}
