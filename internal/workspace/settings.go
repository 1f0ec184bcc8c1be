package workspace

import (
	"encoding/json"
)

// Settings are the recognized workspace settings plus a pass-through
// bag for unknown keys, so forward-compatible settings written by newer
// clients survive read-modify-write cycles.
type Settings struct {
	DudeMode       bool
	PlanMode       bool
	ProjectContext string
	Extra          map[string]any
}

func ParseSettings(raw json.RawMessage) Settings {
	var bag map[string]any
	if len(raw) > 0 {
		// Malformed settings degrade to defaults rather than failing
		// the read path.
		_ = json.Unmarshal(raw, &bag)
	}
	s := Settings{Extra: map[string]any{}}
	for k, v := range bag {
		switch k {
		case "dude_mode":
			s.DudeMode, _ = v.(bool)
		case "plan_mode":
			s.PlanMode, _ = v.(bool)
		case "project_context":
			s.ProjectContext, _ = v.(string)
		default:
			s.Extra[k] = v
		}
	}
	return s
}

func (s Settings) MarshalJSON() ([]byte, error) {
	bag := make(map[string]any, len(s.Extra)+3)
	for k, v := range s.Extra {
		bag[k] = v
	}
	bag["dude_mode"] = s.DudeMode
	bag["plan_mode"] = s.PlanMode
	if s.ProjectContext != "" {
		bag["project_context"] = s.ProjectContext
	}
	return json.Marshal(bag)
}
