package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	data, err := generate()
	require.NoError(t, err)

	var schema struct {
		ID         string `json:"$id"`
		Properties map[string]struct {
			Properties map[string]struct {
				Enum []string `json:"enum"`
			} `json:"properties"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.Equal(t, schemaID, schema.ID)
	for _, section := range []string{"logging", "metadata", "journal", "lock", "metrics"} {
		assert.Contains(t, schema.Properties, section)
	}
	assert.Contains(t, schema.Properties["metadata"].Properties, "block_size")
	assert.Contains(t, schema.Properties["lock"].Properties, "base_dir")
	assert.Equal(t, []string{"filesystem", "badger", "memory"}, schema.Properties["journal"].Properties["type"].Enum)
}
