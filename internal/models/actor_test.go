package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActor_IsSystem(t *testing.T) {
	assert.True(t, SystemActor.IsSystem())
	assert.Equal(t, SystemUserID, SystemActor.UserID)

	assert.False(t, Actor{UserID: SystemUserID}.IsSystem())
	assert.False(t, Actor{UserID: SystemUserID, Admin: true}.IsSystem())
	assert.False(t, Actor{}.IsSystem())
}
