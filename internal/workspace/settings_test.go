package workspace

import (
	"encoding/json"
	"testing"
)

func TestParseSettings(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		s := ParseSettings(nil)
		if s.DudeMode || s.PlanMode || s.ProjectContext != "" {
			t.Errorf("empty input produced non-defaults: %+v", s)
		}
	})

	t.Run("recognized keys", func(t *testing.T) {
		s := ParseSettings(json.RawMessage(`{"dude_mode":true,"plan_mode":true,"project_context":"Go service"}`))
		if !s.DudeMode || !s.PlanMode || s.ProjectContext != "Go service" {
			t.Errorf("parse mismatch: %+v", s)
		}
	})

	t.Run("wrong value types degrade to defaults", func(t *testing.T) {
		s := ParseSettings(json.RawMessage(`{"dude_mode":"yes","project_context":7}`))
		if s.DudeMode || s.ProjectContext != "" {
			t.Errorf("bad types not ignored: %+v", s)
		}
	})

	t.Run("malformed json degrades to defaults", func(t *testing.T) {
		s := ParseSettings(json.RawMessage(`{not json`))
		if s.DudeMode || s.PlanMode || s.ProjectContext != "" {
			t.Errorf("malformed input produced non-defaults: %+v", s)
		}
	})

	t.Run("unknown keys preserved", func(t *testing.T) {
		s := ParseSettings(json.RawMessage(`{"dude_mode":true,"theme":"dark"}`))
		if s.Extra["theme"] != "dark" {
			t.Errorf("unknown key dropped: %+v", s.Extra)
		}
	})
}

func TestSettingsRoundTrip(t *testing.T) {
	in := json.RawMessage(`{"dude_mode":true,"plan_mode":false,"project_context":"ctx","theme":"dark"}`)
	s := ParseSettings(in)

	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	again := ParseSettings(out)

	if again.DudeMode != s.DudeMode || again.PlanMode != s.PlanMode || again.ProjectContext != s.ProjectContext {
		t.Errorf("round trip changed recognized keys: %+v vs %+v", again, s)
	}
	if again.Extra["theme"] != "dark" {
		t.Error("round trip dropped unknown key")
	}
}

func TestSettingsMarshalOmitsEmptyContext(t *testing.T) {
	out, err := json.Marshal(Settings{Extra: map[string]any{}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var bag map[string]any
	if err := json.Unmarshal(out, &bag); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := bag["project_context"]; ok {
		t.Error("empty project_context serialized")
	}
	if _, ok := bag["dude_mode"]; !ok {
		t.Error("dude_mode missing from serialized settings")
	}
}
