package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opportunity-cli/pkg/anthropic"
)

type cascadePayload struct {
	Items []string `json:"items"`
}

func payloadDecoder(out *cascadePayload) DecodeFunc {
	return func(data []byte) error {
		var parsed cascadePayload
		if err := json.Unmarshal(data, &parsed); err != nil {
			return err
		}
		if parsed.Items == nil {
			return eris.New("no items field")
		}
		*out = parsed
		return nil
	}
}

func assistantText(text string) anthropic.Message {
	return anthropic.Message{Role: "assistant", Blocks: []anthropic.ContentBlock{
		{Type: anthropic.BlockText, Text: text},
	}}
}

func TestCascadeCleanSynthesis(t *testing.T) {
	transcript := []anthropic.Message{
		anthropic.UserText("go"),
		assistantText(`{"items": ["a", "b"]}`),
	}

	var out cascadePayload
	strategy, err := runCascade(transcript, payloadDecoder(&out), nil)
	require.NoError(t, err)
	assert.Equal(t, StrategySynthesis, strategy)
	assert.Equal(t, []string{"a", "b"}, out.Items)
}

func TestCascadeEmbeddedSynthesis(t *testing.T) {
	// The model emitted JSON and a tool call in the same turn; no clean
	// text-only assistant message exists.
	mixed := anthropic.Message{Role: "assistant", Blocks: []anthropic.ContentBlock{
		{Type: anthropic.BlockText, Text: `{"items": ["mixed"]}`},
		toolUseBlock("tu-1", "assess_pain_severity", `{"description": "x"}`),
	}}
	transcript := []anthropic.Message{
		anthropic.UserText("go"),
		mixed,
		anthropic.ToolResults(anthropic.ToolResult("tu-1", `{"score": 50}`, false)),
	}

	var out cascadePayload
	strategy, err := runCascade(transcript, payloadDecoder(&out), nil)
	require.NoError(t, err)
	assert.Equal(t, StrategySynthesis, strategy)
	assert.Equal(t, []string{"mixed"}, out.Items)
}

func TestCascadeToolResultsOnly(t *testing.T) {
	transcript := []anthropic.Message{
		anthropic.UserText("go"),
		anthropic.Message{Role: "assistant", Blocks: []anthropic.ContentBlock{
			toolUseBlock("tu-1", "assess_pain_severity", `{"description": "first"}`),
		}},
		anthropic.ToolResults(anthropic.ToolResult("tu-1", `{"score": 50}`, false)),
		anthropic.Message{Role: "assistant", Blocks: []anthropic.ContentBlock{
			toolUseBlock("tu-2", "assess_pain_severity", `{"description": "second"}`),
		}},
		anthropic.ToolResults(anthropic.ToolResult("tu-2", `{"score": 70}`, false)),
	}

	var out cascadePayload
	reconstruct := func(calls []ToolExchange) error {
		for _, call := range calls {
			out.Items = append(out.Items, call.Name)
		}
		return nil
	}

	strategy, err := runCascade(transcript, payloadDecoder(&out), reconstruct)
	require.NoError(t, err)
	assert.Equal(t, StrategyToolResults, strategy)
	assert.Len(t, out.Items, 2)
}

func TestCascadeNothingParseable(t *testing.T) {
	transcript := []anthropic.Message{
		anthropic.UserText("go"),
		assistantText("I could not complete the analysis."),
	}

	var out cascadePayload
	_, err := runCascade(transcript, payloadDecoder(&out), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCascadeExhausted)
}

func TestCascadeFencedJSON(t *testing.T) {
	transcript := []anthropic.Message{
		anthropic.UserText("go"),
		assistantText("Here is the result:\n```json\n{\"items\": [\"fenced\"]}\n```\nDone."),
	}

	var out cascadePayload
	strategy, err := runCascade(transcript, payloadDecoder(&out), nil)
	require.NoError(t, err)
	assert.Equal(t, StrategySynthesis, strategy)
	assert.Equal(t, []string{"fenced"}, out.Items)
}

func TestCascadeGreedyBraceExtraction(t *testing.T) {
	transcript := []anthropic.Message{
		anthropic.UserText("go"),
		assistantText(`Sure! The answer is {"items": ["greedy"]} as requested.`),
	}

	var out cascadePayload
	strategy, err := runCascade(transcript, payloadDecoder(&out), nil)
	require.NoError(t, err)
	assert.Equal(t, StrategySynthesis, strategy)
	assert.Equal(t, []string{"greedy"}, out.Items)
}

func TestCascadeSkipsErrorToolResults(t *testing.T) {
	transcript := []anthropic.Message{
		anthropic.UserText("go"),
		anthropic.Message{Role: "assistant", Blocks: []anthropic.ContentBlock{
			toolUseBlock("tu-1", "assess_pain_severity", `{}`),
			toolUseBlock("tu-2", "assess_pain_severity", `{"description": "ok"}`),
		}},
		anthropic.ToolResults(
			anthropic.ToolResult("tu-1", "tools: unknown tool", true),
			anthropic.ToolResult("tu-2", `{"score": 50}`, false),
		),
	}

	calls := toolExchanges(transcript)
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"description": "ok"}`, string(calls[0].Input))
}

func TestJSONCandidates(t *testing.T) {
	assert.Nil(t, jsonCandidates("   "))

	candidates := jsonCandidates(`prefix {"a": 1} suffix`)
	assert.Contains(t, candidates, `{"a": 1}`)
}
