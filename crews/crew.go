package crews

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conciergehq/concierge/config"
	"github.com/conciergehq/concierge/llm"
	"github.com/conciergehq/concierge/tools"
	"github.com/conciergehq/concierge/types"
)

// Deps carries the shared runtime a crew executes against.
type Deps struct {
	Models       *llm.Registry
	Tools        *tools.Registry
	Executor     *tools.Executor
	Config       config.CrewsConfig
	DefaultModel string
	Logger       *zap.Logger
}

// Crew is a runnable crew: a definition bound to providers and tools.
type Crew struct {
	def  *Definition
	deps Deps
	log  *zap.Logger
}

// New binds a definition to its runtime dependencies.
func New(def *Definition, deps Deps) *Crew {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Config.MaxIterations <= 0 {
		deps.Config.MaxIterations = 8
	}
	if deps.Config.TaskTimeout <= 0 {
		deps.Config.TaskTimeout = 5 * time.Minute
	}
	return &Crew{
		def:  def,
		deps: deps,
		log:  logger.With(zap.String("component", "crew"), zap.String("crew", def.Key)),
	}
}

func (c *Crew) Key() string             { return c.def.Key }
func (c *Crew) Renderer() string        { return c.def.Renderer }
func (c *Crew) Definition() *Definition { return c.def }

// Kickoff runs the crew's tasks in order against the request. Each task
// sees the outputs of the tasks before it; the final task's output is
// parsed as the structured report document.
func (c *Crew) Kickoff(ctx context.Context, req *types.Request) (*types.CrewOutput, error) {
	out := &types.CrewOutput{
		CrewKey:   c.def.Key,
		RequestID: req.ID,
		Data:      map[string]any{},
		StartedAt: time.Now().UTC(),
	}

	var prior strings.Builder
	var final string

	for i, task := range c.def.Tasks {
		agent := c.def.agent(task.Agent)
		taskStart := time.Now()

		c.log.Info("task started",
			zap.String("request_id", req.ID),
			zap.String("task", task.ID),
			zap.String("agent", agent.Name),
		)

		result, err := c.runTask(ctx, req, agent, task, prior.String(), &out.Usage)
		duration := time.Since(taskStart)

		out.TaskOutputs = append(out.TaskOutputs, types.TaskOutput{
			TaskID:   task.ID,
			Agent:    agent.Name,
			Output:   result,
			Duration: duration.Milliseconds(),
		})

		if err != nil {
			c.log.Error("task failed",
				zap.String("request_id", req.ID),
				zap.String("task", task.ID),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			out.FinishedAt = time.Now().UTC()
			return out, types.NewError(types.ErrCrewFailed,
				fmt.Sprintf("crew %s: task %s: %v", c.def.Key, task.ID, err)).WithCause(err)
		}

		c.log.Info("task completed",
			zap.String("request_id", req.ID),
			zap.String("task", task.ID),
			zap.Duration("duration", duration),
		)

		fmt.Fprintf(&prior, "## Output of task %q\n%s\n\n", task.ID, result)
		if i == len(c.def.Tasks)-1 {
			final = result
		}
	}

	out.FinishedAt = time.Now().UTC()

	data, err := decodeDocument(final)
	if err != nil {
		return out, types.NewError(types.ErrOutputInvalid,
			fmt.Sprintf("crew %s: final task output is not a JSON document: %v", c.def.Key, err)).WithCause(err)
	}
	out.Data = data
	if title, ok := data["title"].(string); ok {
		out.Title = title
	}
	if out.Title == "" {
		out.Title = c.def.Name
	}
	if summary, ok := data["summary"].(string); ok {
		out.Summary = summary
	}
	return out, nil
}

// runTask drives one agent conversation to completion, executing tool
// calls until the model answers in text or the iteration budget runs out.
func (c *Crew) runTask(ctx context.Context, req *types.Request, agent *AgentDef, task TaskDef, priorContext string, usage *types.TokenUsage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.deps.Config.TaskTimeout)
	defer cancel()

	model := agent.Model
	if model == "" {
		model = c.deps.DefaultModel
	}
	provider, err := c.deps.Models.ForModel(model)
	if err != nil {
		return "", err
	}

	var schemas []llm.ToolSchema
	if len(agent.Tools) > 0 {
		schemas = c.deps.Tools.Schemas(agent.Tools...)
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: agentSystemPrompt(agent)},
		{Role: llm.RoleUser, Content: taskPrompt(task, req, priorContext)},
	}

	for iter := 0; iter < c.deps.Config.MaxIterations; iter++ {
		chatReq := &llm.ChatRequest{
			TraceID:     req.ID,
			Model:       model,
			Messages:    messages,
			Temperature: agent.Temperature,
			Tools:       schemas,
		}
		resp, err := provider.Completion(ctx, chatReq)
		if err != nil {
			return "", err
		}
		usage.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

		msg := resp.First()
		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		if c.deps.Config.Verbose {
			for _, tc := range msg.ToolCalls {
				c.log.Debug("tool requested",
					zap.String("task", task.ID),
					zap.String("tool", tc.Name),
				)
			}
		}

		messages = append(messages, msg)
		for _, res := range c.deps.Executor.Execute(ctx, msg.ToolCalls) {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    res.Output,
				ToolCallID: res.ToolCallID,
			})
		}
	}

	// Budget exhausted: force a text answer from what was gathered.
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: "Stop researching. Produce your final answer now from the information you already have.",
	})
	resp, err := provider.Completion(ctx, &llm.ChatRequest{
		TraceID:     req.ID,
		Model:       model,
		Messages:    messages,
		Temperature: agent.Temperature,
	})
	if err != nil {
		return "", err
	}
	usage.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp.First().Content, nil
}

func agentSystemPrompt(agent *AgentDef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\nYour goal: %s\n", agent.Role, agent.Goal)
	if agent.Backstory != "" {
		fmt.Fprintf(&b, "Background: %s\n", agent.Backstory)
	}
	if len(agent.Tools) > 0 {
		b.WriteString("Use your tools to gather real data; do not invent facts.\n")
	}
	return b.String()
}

func taskPrompt(task TaskDef, req *types.Request, priorContext string) string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(task.Description, "{{request}}", req.Text))
	if task.Expected != "" {
		fmt.Fprintf(&b, "\n\nExpected output: %s", task.Expected)
	}
	if priorContext != "" {
		fmt.Fprintf(&b, "\n\n# Context from earlier tasks\n\n%s", priorContext)
	}
	return b.String()
}

// decodeDocument extracts the JSON object from a model answer, tolerating
// markdown fences and prose around the object.
func decodeDocument(text string) (map[string]any, error) {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object found")
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &data); err != nil {
		return nil, err
	}
	return data, nil
}
