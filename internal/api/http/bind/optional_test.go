package bind

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	AssigneeID Optional[string] `json:"assigneeId"`
}

func TestOptional(t *testing.T) {
	var absent, null, set body
	require.NoError(t, json.Unmarshal([]byte(`{}`), &absent))
	require.NoError(t, json.Unmarshal([]byte(`{"assigneeId": null}`), &null))
	require.NoError(t, json.Unmarshal([]byte(`{"assigneeId": "u1"}`), &set))

	assert.False(t, absent.AssigneeID.Set)
	assert.Nil(t, absent.AssigneeID.Ptr())
	assert.False(t, absent.AssigneeID.Cleared())

	assert.True(t, null.AssigneeID.Cleared())
	assert.Nil(t, null.AssigneeID.Ptr())

	require.NotNil(t, set.AssigneeID.Ptr())
	assert.Equal(t, "u1", *set.AssigneeID.Ptr())
	assert.False(t, set.AssigneeID.Cleared())
}

func TestOptional_TypeMismatch(t *testing.T) {
	var b body
	assert.Error(t, json.Unmarshal([]byte(`{"assigneeId": 7}`), &b))
}
