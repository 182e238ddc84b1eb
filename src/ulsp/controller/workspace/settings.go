package workspace

import (
	"encoding/json"
	"fmt"

	"github.com/uber/project-lsp/src/ulsp/entity"
)

// ParseSettings reads client settings sent either under the SettingsSection key or as a bare object.
// A nil value means the client sent no settings and nil is returned.
func ParseSettings(raw interface{}) (*entity.ClientSettings, error) {
	if raw == nil {
		return nil, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encoding client settings: %w", err)
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("client settings must be an object: %w", err)
	}
	if section, ok := sections[SettingsSection]; ok {
		data = section
	}

	settings := &entity.ClientSettings{}
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("decoding client settings: %w", err)
	}
	return settings, nil
}
