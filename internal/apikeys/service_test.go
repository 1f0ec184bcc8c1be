package apikeys

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/crewdeck/crewdeck/internal/models"
)

func TestCreatedWireShape(t *testing.T) {
	created := &Created{
		Key: &models.APIKey{ID: uuid.New(), Name: "builder", Scopes: []string{}},
		Raw: "cd_secret",
	}

	data, err := json.Marshal(created)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if _, ok := body["api_key"]; !ok {
		t.Error("response missing api_key field")
	}
	if got := string(body["key"]); got != `"cd_secret"` {
		t.Errorf("key = %s, want \"cd_secret\"", got)
	}
	for _, field := range []string{"Key", "Raw"} {
		if _, ok := body[field]; ok {
			t.Errorf("response leaked exported field name %s", field)
		}
	}

	// The raw secret lives beside the record, never inside it, and the
	// stored hash stays out of the wire shape entirely.
	var key map[string]any
	if err := json.Unmarshal(body["api_key"], &key); err != nil {
		t.Fatalf("unmarshal api_key: %v", err)
	}
	if _, ok := key["key_hash"]; ok {
		t.Error("api_key leaked key_hash")
	}
	if got := key["name"]; got != "builder" {
		t.Errorf("api_key name = %v, want builder", got)
	}
}
