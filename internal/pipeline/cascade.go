package pipeline

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/opportunity-cli/pkg/anthropic"
)

// Strategy records which extraction path produced a stage's output.
type Strategy string

const (
	// StrategySynthesis means the data came from an assistant message the
	// model wrote itself, clean or embedded alongside tool calls.
	StrategySynthesis Strategy = "agent_synthesis"
	// StrategyToolResults means the data was reconstructed from the tool
	// exchange after no synthesis parsed.
	StrategyToolResults Strategy = "tool_results"
)

// ErrCascadeExhausted signals that no strategy recovered usable data from
// the transcript.
var ErrCascadeExhausted = eris.New("pipeline: all extraction strategies failed")

// ToolExchange is one completed tool invocation from the transcript:
// arguments the model sent plus the result it got back.
type ToolExchange struct {
	Name   string
	Input  json.RawMessage
	Result string
}

// DecodeFunc parses candidate JSON into the stage's output. Returning an
// error falls through to the next candidate or strategy.
type DecodeFunc func(data []byte) error

// ReconstructFunc rebuilds approximate stage output from the tool exchange
// when no synthesis parsed. Nil disables the strategy at that call site.
type ReconstructFunc func(calls []ToolExchange) error

// runCascade recovers structured output from a stage transcript. Strategies
// in order: the latest assistant message without tool calls, then every
// assistant message newest-first, then tool-result reconstruction if the
// call site supplied one.
func runCascade(transcript []anthropic.Message, decode DecodeFunc, reconstruct ReconstructFunc) (Strategy, error) {
	// Clean synthesis: latest assistant turn that is pure text.
	for i := len(transcript) - 1; i >= 0; i-- {
		msg := transcript[i]
		if msg.Role != "assistant" || hasToolUse(msg) {
			continue
		}
		if tryDecode(messageText(msg), decode) {
			return StrategySynthesis, nil
		}
		break
	}

	// Embedded synthesis: any assistant turn, newest first, including ones
	// that also carry tool calls.
	for i := len(transcript) - 1; i >= 0; i-- {
		msg := transcript[i]
		if msg.Role != "assistant" {
			continue
		}
		if tryDecode(messageText(msg), decode) {
			return StrategySynthesis, nil
		}
	}

	if reconstruct != nil {
		if err := reconstruct(toolExchanges(transcript)); err == nil {
			return StrategyToolResults, nil
		}
	}

	return "", ErrCascadeExhausted
}

// tryDecode runs decode over each JSON candidate found in text.
func tryDecode(text string, decode DecodeFunc) bool {
	for _, candidate := range jsonCandidates(text) {
		if err := decode([]byte(candidate)); err == nil {
			return true
		}
	}
	return false
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// jsonCandidates extracts possible JSON payloads from model text: the raw
// text, any fenced code block, and the greedy first-brace-to-last-brace
// span.
func jsonCandidates(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	candidates := []string{text}

	for _, m := range fencedJSON.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first >= 0 && last > first {
		candidates = append(candidates, text[first:last+1])
	}

	return candidates
}

// toolExchanges pairs each tool_use block with its tool_result by ID,
// skipping exchanges whose result was an error.
func toolExchanges(transcript []anthropic.Message) []ToolExchange {
	results := make(map[string]anthropic.ContentBlock)
	for _, msg := range transcript {
		for _, b := range msg.Blocks {
			if b.Type == anthropic.BlockToolResult {
				results[b.ToolUseID] = b
			}
		}
	}

	var calls []ToolExchange
	for _, msg := range transcript {
		if msg.Role != "assistant" {
			continue
		}
		for _, b := range msg.Blocks {
			if b.Type != anthropic.BlockToolUse {
				continue
			}
			res, ok := results[b.ToolUseID]
			if !ok || res.IsError {
				continue
			}
			calls = append(calls, ToolExchange{Name: b.ToolName, Input: b.ToolInput, Result: res.Text})
		}
	}
	return calls
}

func hasToolUse(msg anthropic.Message) bool {
	for _, b := range msg.Blocks {
		if b.Type == anthropic.BlockToolUse {
			return true
		}
	}
	return false
}

func messageText(msg anthropic.Message) string {
	var out strings.Builder
	for _, b := range msg.Blocks {
		if b.Type == anthropic.BlockText {
			out.WriteString(b.Text)
		}
	}
	return out.String()
}
