package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry()
	action := NewSendEmailAction(&fakeMailer{}, nil, testLogger())
	registry.Register(action)

	got, err := registry.Get(models.ActionSendEmail)
	require.NoError(t, err)
	assert.Equal(t, models.ActionSendEmail, got.Type())
}

func TestRegistryUnknownAction(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Get(models.ActionType("launch_rocket"))
	assert.ErrorIs(t, err, ErrUnsupportedAction)
}
