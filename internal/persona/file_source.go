package persona

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dronefleet/orchestrator/internal/model"
)

// FileSource returns a Source that reads "<dir>/<personaID>.yaml", the way
// the teacher reads queue/result files one-id-per-file under .maestro/.
// The YAML document is unmarshalled into a generic map and wrapped as
// persona traits; a missing file yields ErrNotFound.
func FileSource(dir string) Source {
	return func(ctx context.Context, personaID string) (Persona, error) {
		path := filepath.Join(dir, personaID+".yaml")
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return Persona{}, ErrNotFound
		}
		if err != nil {
			return Persona{}, fmt.Errorf("persona: read %s: %w", path, err)
		}

		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Persona{}, fmt.Errorf("persona: parse %s: %w", path, err)
		}
		return Persona{PersonaID: personaID, Traits: model.NewValue(raw)}, nil
	}
}
