package store

import (
	"errors"
	"testing"

	"github.com/memoryweaver/memory-weaver/internal/model"
	"github.com/stretchr/testify/require"
)

func TestValidateMemory(t *testing.T) {
	m := model.Memory{UserID: " u1 ", Date: "2024-01-01", Description: "walk"}
	require.NoError(t, ValidateMemory(&m))
	require.Equal(t, "u1", m.UserID)
	require.NotNil(t, m.Tags)

	cases := map[string]model.Memory{
		"user_id":     {Date: "2024-01-01", Description: "walk"},
		"date":        {UserID: "u1", Description: "walk"},
		"description": {UserID: "u1", Date: "2024-01-01", Description: "  "},
	}
	for field, m := range cases {
		t.Run(field, func(t *testing.T) {
			err := ValidateMemory(&m)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, field, verr.Field)
		})
	}
}

func TestSelectUnknown(t *testing.T) {
	_, err := Select("does-not-exist")
	require.Error(t, err)
}

func TestNotFoundMessageOverride(t *testing.T) {
	err := &NotFoundError{Resource: "memories", ID: "u1", Message: "No memories found for this user"}
	require.Equal(t, "No memories found for this user", err.Error())
	require.Equal(t, "memories not found: u1", (&NotFoundError{Resource: "memories", ID: "u1"}).Error())
}
