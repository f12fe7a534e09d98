// Package crews implements the crew engine: declarative YAML crew
// definitions, a registry keyed by crew identifier, and sequential task
// execution where each task is one agent conversation that may call
// research tools.
//
// A crew definition names its agents (role, goal, backstory, model,
// tools) and an ordered task list. Task output feeds the next task's
// context; the final task must produce the JSON document its renderer
// expects.
package crews
