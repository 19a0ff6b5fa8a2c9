package yaml

import (
	"fmt"
	"os"

	"github.com/BDNK1/chatflow/runtime"
	goyaml "gopkg.in/yaml.v3"
)

// FlowLoader loads chat flow definitions from YAML files. JSON exports from the
// flow editor load as well, since JSON is valid YAML.
type FlowLoader struct{}

func NewFlowLoader() *FlowLoader {
	return &FlowLoader{}
}

func (l *FlowLoader) Extensions() []string {
	return []string{"*.yaml", "*.yml", "*.json"}
}

func (l *FlowLoader) Load(filePath string) (runtime.ChatFlow, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return runtime.ChatFlow{}, fmt.Errorf("error reading flow file: %w", err)
	}
	return Parse(data)
}

// Parse decodes one flow. Steps keep their file order; sort_order is only
// carried through for editors.
func Parse(data []byte) (runtime.ChatFlow, error) {
	var flow runtime.ChatFlow
	if err := goyaml.Unmarshal(data, &flow); err != nil {
		return runtime.ChatFlow{}, fmt.Errorf("error unmarshalling flow: %w", err)
	}
	return flow, nil
}
