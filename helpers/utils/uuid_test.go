package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUUID(t *testing.T) {
	id := GenerateUUID()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.NotEqual(t, id, GenerateUUID())
}

func TestGenerateJobID(t *testing.T) {
	id := GenerateJobID()
	assert.True(t, IsJobID(id), id)
	assert.Len(t, id, 36)

	assert.False(t, IsJobID(""))
	assert.False(t, IsJobID("job_123"))
	assert.False(t, IsJobID(GenerateUUID()))
}
