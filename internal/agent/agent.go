// Package agent runs tool-augmented model invocations for the pipeline
// stages. An agent drives one conversation: it sends the stage prompt,
// answers the model's tool calls with locally computed evidence, and stops
// when the model synthesizes or the step budget runs out.
package agent

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-cli/internal/config"
	"github.com/sells-group/opportunity-cli/internal/resilience"
	"github.com/sells-group/opportunity-cli/internal/tools"
	"github.com/sells-group/opportunity-cli/pkg/anthropic"
)

// minStepBudget keeps tiny inputs from getting a budget too small to
// tolerate a single retry turn.
const minStepBudget = 3

// Result carries everything one invocation produced. Transcript holds the
// full conversation including tool-result messages so the extraction
// cascade can recover partial data when synthesis fails or the budget runs
// out.
type Result struct {
	Transcript []anthropic.Message
	Usage      anthropic.TokenUsage
	Steps      int

	// Exhausted is set when the loop stopped on the step budget instead of
	// the model finishing its turn. Not an error: the cascade works from
	// whatever the transcript holds.
	Exhausted bool
}

// Agent binds a model, a stage budget, and the evidence toolkit.
type Agent struct {
	client  anthropic.Client
	toolkit *tools.Toolkit
	model   string
	cfg     config.StageConfig
	retry   resilience.Policy
}

// New builds an agent for one stage. API calls retry transient failures
// (rate limits, overloaded upstream); permanent errors fail the stage.
func New(client anthropic.Client, toolkit *tools.Toolkit, model string, cfg config.StageConfig) *Agent {
	retry := resilience.DefaultPolicy()
	retry.OnRetry = resilience.Logger("anthropic", "create_message")
	return &Agent{client: client, toolkit: toolkit, model: model, cfg: cfg, retry: retry}
}

// stepBudget returns the configured cap, or one sized from the mandatory
// call count with slack for retries.
func (a *Agent) stepBudget(mandatoryCalls int) int {
	if a.cfg.MaxSteps > 0 {
		return a.cfg.MaxSteps
	}
	budget := 3 * mandatoryCalls
	if budget < minStepBudget {
		budget = minStepBudget
	}
	return budget
}

// Run executes the tool loop for one stage invocation. system is the stage
// contract, prompt the user turn, toolNames the evidence tools offered, and
// mandatoryCalls the contract's required call count (sizes the step budget
// when the stage config leaves MaxSteps at zero).
//
// Tool calls are dispatched sequentially in the order the model issued
// them. A dispatch failure becomes an error tool_result rather than ending
// the loop, so the model can correct its input on the next turn.
func (a *Agent) Run(ctx context.Context, system, prompt string, toolNames []string, mandatoryCalls int) (*Result, error) {
	budget := a.stepBudget(mandatoryCalls)
	systemBlocks := anthropic.BuildCachedSystemBlocks(system)
	toolDefs := tools.Definitions(toolNames...)

	result := &Result{
		Transcript: []anthropic.Message{anthropic.UserText(prompt)},
	}

	for step := 0; step < budget; step++ {
		req := anthropic.MessageRequest{
			Model:     a.model,
			MaxTokens: a.cfg.MaxTokens,
			System:    systemBlocks,
			Messages:  result.Transcript,
			Tools:     toolDefs,
		}
		resp, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return a.client.CreateMessage(ctx, req)
		})
		if err != nil {
			return result, eris.Wrap(err, "agent: create message")
		}

		result.Steps++
		result.Usage.Add(resp.Usage)
		result.Transcript = append(result.Transcript, anthropic.AssistantBlocks(resp.Content))

		calls := resp.ToolCalls()
		if resp.StopReason != anthropic.StopReasonToolUse || len(calls) == 0 {
			return result, nil
		}

		results := make([]anthropic.ContentBlock, 0, len(calls))
		for _, call := range calls {
			content, dispatchErr := a.toolkit.Dispatch(call.ToolName, call.ToolInput)
			if dispatchErr != nil {
				zap.L().Warn("agent: tool dispatch failed",
					zap.String("tool", call.ToolName),
					zap.Error(dispatchErr),
				)
				results = append(results, anthropic.ToolResult(call.ToolUseID, dispatchErr.Error(), true))
				continue
			}
			results = append(results, anthropic.ToolResult(call.ToolUseID, content, false))
		}
		result.Transcript = append(result.Transcript, anthropic.ToolResults(results...))
	}

	zap.L().Warn("agent: step budget exhausted",
		zap.String("model", a.model),
		zap.Int("budget", budget),
	)
	result.Exhausted = true
	return result, nil
}
