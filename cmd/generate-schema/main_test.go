package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchema(t *testing.T) {
	schema := generateSchema()
	assert.Equal(t, "dittodir Configuration", schema.Title)

	data, err := json.Marshal(schema)
	require.NoError(t, err)

	var doc struct {
		Properties map[string]struct {
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	for _, section := range []string{"logging", "partition", "metrics", "backup"} {
		assert.Contains(t, doc.Properties, section)
	}
	assert.Contains(t, doc.Properties["partition"].Properties, "suffix")
	assert.Contains(t, doc.Properties["partition"].Properties, "replica_id")
	assert.Contains(t, doc.Properties["partition"].Properties, "store")
}
