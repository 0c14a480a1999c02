package validation_test

import (
	"errors"
	"testing"

	"github.com/deppfellow/cardrelay/internal/errs"
	"github.com/deppfellow/cardrelay/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type credentials struct {
	Key     string `koanf:"api_key" validate:"required,trellokey"`
	Token   string `koanf:"api_token" validate:"required,trellotoken"`
	LabelID string `form:"label_id" validate:"omitempty,trelloid"`
	Kind    string `validate:"omitempty,oneof=a b"`
}

const (
	validKey   = "0123456789abcdef0123456789ABCDEF"
	validToken = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
)

func TestValidator_TrelloTags(t *testing.T) {
	tests := []struct {
		name  string
		input credentials
		want  []errs.FieldError
	}{
		{
			name:  "valid",
			input: credentials{Key: validKey, Token: validToken, LabelID: "5f0c1d2e3a4b5c6d7e8f9012"},
		},
		{
			name:  "missing key",
			input: credentials{Token: validToken},
			want:  []errs.FieldError{{Field: "api_key", Error: "is required"}},
		},
		{
			name:  "short token",
			input: credentials{Key: validKey, Token: "abc"},
			want:  []errs.FieldError{{Field: "api_token", Error: "must be 64 hexadecimal characters"}},
		},
		{
			name:  "label with non-hex characters",
			input: credentials{Key: validKey, Token: validToken, LabelID: "5f0c1d2e3a4b5c6d7e8f901z"},
			want:  []errs.FieldError{{Field: "label_id", Error: "must be 24 hexadecimal characters"}},
		},
		{
			name:  "key of wrong length",
			input: credentials{Key: validKey + "0", Token: validToken},
			want:  []errs.FieldError{{Field: "api_key", Error: "must be 32 hexadecimal characters"}},
		},
		{
			name:  "oneof",
			input: credentials{Key: validKey, Token: validToken, Kind: "c"},
			want:  []errs.FieldError{{Field: "kind", Error: "must be one of: a b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.Validator().Struct(tt.input)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.want, validation.ExtractFieldErrors(err))
		})
	}
}

func TestValidator_IsShared(t *testing.T) {
	assert.Same(t, validation.Validator(), validation.Validator())
}

func TestIsValidTrelloID(t *testing.T) {
	assert.True(t, validation.IsValidTrelloID("5f0c1d2e3a4b5c6d7e8f9012"))
	assert.True(t, validation.IsValidTrelloID("5F0C1D2E3A4B5C6D7E8F9012"))
	assert.False(t, validation.IsValidTrelloID(""))
	assert.False(t, validation.IsValidTrelloID("5f0c1d2e3a4b5c6d7e8f901"))
	assert.False(t, validation.IsValidTrelloID("5f0c1d2e3a4b5c6d7e8f90123"))
	assert.False(t, validation.IsValidTrelloID("5f0c1d2e3a4b5c6d7e8f901g"))
}

func TestExtractFieldErrors(t *testing.T) {
	custom := validation.CustomValidationErrors{
		{Field: "cover", Message: "only one cover file is allowed"},
	}
	assert.Equal(t, []errs.FieldError{{Field: "cover", Error: "only one cover file is allowed"}}, validation.ExtractFieldErrors(custom))

	assert.Nil(t, validation.ExtractFieldErrors(errors.New("boom")))
}
