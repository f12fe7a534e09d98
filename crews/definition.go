package crews

import (
	"fmt"
	"strings"
)

// Definition is a declarative crew specification, deserialized from YAML.
type Definition struct {
	// Key identifies the crew in classification and routing.
	Key         string `yaml:"key" json:"key"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	// Renderer selects the HTML renderer for this crew's output.
	Renderer string `yaml:"renderer" json:"renderer"`
	// Keywords feed the classifier's fallback matcher.
	Keywords []string `yaml:"keywords" json:"keywords"`

	Agents []AgentDef `yaml:"agents" json:"agents"`
	Tasks  []TaskDef  `yaml:"tasks" json:"tasks"`
}

// AgentDef describes one agent of a crew.
type AgentDef struct {
	Name        string   `yaml:"name" json:"name"`
	Role        string   `yaml:"role" json:"role"`
	Goal        string   `yaml:"goal" json:"goal"`
	Backstory   string   `yaml:"backstory,omitempty" json:"backstory,omitempty"`
	Model       string   `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature float32  `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	Tools       []string `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// TaskDef describes one task of a crew.
type TaskDef struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`
	Expected    string `yaml:"expected_output" json:"expected_output"`
	Agent       string `yaml:"agent" json:"agent"`
}

// Validate checks internal consistency of a definition.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Key) == "" {
		return fmt.Errorf("crew key is required")
	}
	if len(d.Agents) == 0 {
		return fmt.Errorf("crew %q: at least one agent is required", d.Key)
	}
	if len(d.Tasks) == 0 {
		return fmt.Errorf("crew %q: at least one task is required", d.Key)
	}

	agents := make(map[string]bool, len(d.Agents))
	for _, a := range d.Agents {
		if a.Name == "" {
			return fmt.Errorf("crew %q: agent without name", d.Key)
		}
		if agents[a.Name] {
			return fmt.Errorf("crew %q: duplicate agent %q", d.Key, a.Name)
		}
		agents[a.Name] = true
	}

	taskIDs := make(map[string]bool, len(d.Tasks))
	for i, t := range d.Tasks {
		if t.ID == "" {
			return fmt.Errorf("crew %q: task %d without id", d.Key, i)
		}
		if taskIDs[t.ID] {
			return fmt.Errorf("crew %q: duplicate task %q", d.Key, t.ID)
		}
		taskIDs[t.ID] = true
		if !agents[t.Agent] {
			return fmt.Errorf("crew %q: task %q references unknown agent %q", d.Key, t.ID, t.Agent)
		}
	}
	return nil
}

// agent returns the named agent definition.
func (d *Definition) agent(name string) *AgentDef {
	for i := range d.Agents {
		if d.Agents[i].Name == name {
			return &d.Agents[i]
		}
	}
	return nil
}
