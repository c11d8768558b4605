package validation

import (
	"errors"
	"testing"

	apperrors "github.com/Automobile-System/backend-sub001/internal/errors"
	"github.com/Automobile-System/backend-sub001/internal/auth/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStruct(t *testing.T) {
	t.Run("valid input", func(t *testing.T) {
		err := Struct(&dto.LoginInput{Email: "user@example.com", Password: "secret"})
		assert.NoError(t, err)
	})

	t.Run("first error wins", func(t *testing.T) {
		err := Struct(&dto.LoginInput{Email: "", Password: ""})
		require.Error(t, err)

		var ve *apperrors.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "email", ve.Field)
		assert.Equal(t, "email is required", ve.Message)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("parameterised message", func(t *testing.T) {
		err := Struct(&dto.RegisterInput{
			Email:     "new@example.com",
			Password:  "short",
			FirstName: "Ana",
			LastName:  "Silva",
		})

		var ve *apperrors.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "password", ve.Field)
		assert.Equal(t, "password must be at least 8", ve.Message)
	})

	t.Run("bad email", func(t *testing.T) {
		err := Struct(&dto.LoginInput{Email: "not-an-email", Password: "x"})

		var ve *apperrors.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "email must be a valid email address", ve.Message)
	})
}
