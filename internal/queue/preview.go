package queue

import (
	"github.com/lucidicai/lucidic-go/pkg/luciditypes"
)

const previewTruncateLen = 200
const previewMaxMessages = 5

// payloadToMap flattens a typed payload into the wire shape POSTed to the
// events endpoint.
func payloadToMap(p luciditypes.Payload) map[string]any {
	switch v := p.(type) {
	case luciditypes.LLMGenerationPayload:
		m := map[string]any{
			"request": map[string]any{
				"provider": v.Request.Provider,
				"model":    v.Request.Model,
				"messages": v.Request.Messages,
				"params":   v.Request.Params,
			},
			"response": map[string]any{
				"output":     v.Response.Output,
				"messages":   v.Response.Messages,
				"tool_calls": v.Response.ToolCalls,
				"thinking":   v.Response.Thinking,
				"raw":        v.Response.Raw,
			},
			"usage": map[string]any{
				"input_tokens":  v.Usage.InputTokens,
				"output_tokens": v.Usage.OutputTokens,
				"cache": map[string]any{
					"read":  v.Usage.CacheReadTokens,
					"write": v.Usage.CacheWriteTokens,
				},
				"cost": v.Usage.Cost,
			},
			"status": v.Status,
			"error":  v.Error,
		}
		for k, val := range v.Misc {
			m[k] = val
		}
		return m

	case luciditypes.FunctionCallPayload:
		m := map[string]any{
			"function_name": v.FunctionName,
			"arguments":     v.Arguments,
			"return_value":  v.ReturnValue,
		}
		for k, val := range v.Misc {
			m[k] = val
		}
		return m

	case luciditypes.ErrorTracebackPayload:
		m := map[string]any{
			"error":     v.Error,
			"traceback": v.Traceback,
		}
		for k, val := range v.Misc {
			m[k] = val
		}
		return m

	case luciditypes.GenericPayload:
		m := map[string]any{
			"details": v.Details,
		}
		for k, val := range v.Misc {
			m[k] = val
		}
		return m

	default:
		return map[string]any{}
	}
}

// buildPreview constructs the size-bounded inline summary sent in place of
// an offloaded payload (spec.md §4.5.7). On any construction error it falls
// back to a placeholder — the preview is a display aid only, truth remains
// in the blob.
func buildPreview(kind luciditypes.Kind, full map[string]any) (preview map[string]any) {
	defer func() {
		if recover() != nil {
			preview = map[string]any{"details": "preview_unavailable"}
		}
	}()

	switch kind {
	case luciditypes.KindLLMGeneration:
		return previewLLMGeneration(full)
	case luciditypes.KindFunctionCall:
		return previewFunctionCall(full)
	case luciditypes.KindErrorTraceback:
		return map[string]any{"error": truncate(asString(full["error"]))}
	case luciditypes.KindGeneric:
		return map[string]any{"details": truncate(asString(full["details"]))}
	default:
		return map[string]any{"details": "preview_unavailable"}
	}
}

func previewLLMGeneration(full map[string]any) map[string]any {
	req, _ := full["request"].(map[string]any)
	resp, _ := full["response"].(map[string]any)
	usage, _ := full["usage"].(map[string]any)

	messages, _ := req["messages"].([]map[string]any)
	if len(messages) > previewMaxMessages {
		messages = messages[:previewMaxMessages]
	}
	truncatedMessages := make([]map[string]any, len(messages))
	for i, m := range messages {
		tm := make(map[string]any, len(m))
		for k, v := range m {
			if k == "content" {
				tm[k] = truncate(asString(v))
			} else {
				tm[k] = v
			}
		}
		truncatedMessages[i] = tm
	}

	usageSubset := map[string]any{}
	if usage != nil {
		usageSubset["input_tokens"] = usage["input_tokens"]
		usageSubset["output_tokens"] = usage["output_tokens"]
		usageSubset["cost"] = usage["cost"]
	}

	return map[string]any{
		"model":    truncate(asString(req["model"])),
		"provider": truncate(asString(req["provider"])),
		"messages": truncatedMessages,
		"usage":    usageSubset,
		"output":   truncate(asString(resp["output"])),
	}
}

func previewFunctionCall(full map[string]any) map[string]any {
	args, _ := full["arguments"].(map[string]any)
	truncatedArgs := any(nil)
	if args != nil {
		m := make(map[string]any, len(args))
		for k, v := range args {
			m[k] = truncate(asString(v))
		}
		truncatedArgs = m
	}

	return map[string]any{
		"function_name": truncate(asString(full["function_name"])),
		"arguments":     truncatedArgs,
	}
}

func truncate(s string) string {
	if len(s) <= previewTruncateLen {
		return s
	}
	return s[:previewTruncateLen]
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
