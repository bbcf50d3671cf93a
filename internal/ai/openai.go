package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// ToolName is the function the model is forced to invoke.
	ToolName = "propose_budget_actions"

	defaultRetryBackoff = 200 * time.Millisecond
)

// OpenAIClient вызывает OpenAI Responses API с принудительным tool call.
type OpenAIClient struct {
	apiKey       string
	baseURL      string
	model        string
	timeout      time.Duration
	retryBackoff time.Duration
	httpClient   *http.Client
}

// NewOpenAIClient создает клиент с заданными параметрами.
func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        model,
		timeout:      timeout,
		retryBackoff: defaultRetryBackoff,
		httpClient:   &http.Client{},
	}
}

type responsesRequest struct {
	Model      string            `json:"model"`
	Input      []responseMessage `json:"input"`
	Tools      []toolDefinition  `json:"tools"`
	ToolChoice toolChoice        `json:"tool_choice"`
}

type responseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type toolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type toolChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type toolCall struct {
	Name          string          `json:"name"`
	Arguments     json.RawMessage `json:"arguments"`
	ArgumentsJSON json.RawMessage `json:"arguments_json"`
	Function      *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type responseOutputItem struct {
	toolCall
	Content   []toolCall `json:"content"`
	ToolCalls []toolCall `json:"tool_calls"`
}

type responsesResponse struct {
	Output  []responseOutputItem `json:"output"`
	Choices []struct {
		Message struct {
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Message *string `json:"message,omitempty"`
}

type attemptResult struct {
	parsed    *responsesResponse
	retryable bool
	err       error
}

// CallTool отправляет запрос и возвращает аргументы tool call.
// Ретрай ровно один: после 5xx или транспортной ошибки, но не после таймаута.
func (c *OpenAIClient) CallTool(ctx context.Context, systemPrompt, userPrompt string) (json.RawMessage, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, newProposeError(StageMissingKey, "Missing OPENAI_API_KEY")
	}

	body := responsesRequest{
		Model: c.model,
		Input: []responseMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Tools: []toolDefinition{
			{
				Type:        "function",
				Name:        ToolName,
				Description: "Propose budget actions based on a user message.",
				Parameters:  json.RawMessage(proposeToolParametersJSON),
			},
		},
		ToolChoice: toolChoice{Type: "function", Name: ToolName},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, newProposeError(StageAPIError, err.Error())
	}

	first := c.attempt(ctx, payload)
	result := first
	if first.err != nil && first.retryable {
		select {
		case <-ctx.Done():
			return nil, newProposeError(StageTimeout, "OpenAI request timed out")
		case <-time.After(c.retryBackoff):
		}
		result = c.attempt(ctx, payload)
	}
	if result.err != nil {
		return nil, result.err
	}

	rawArgs := extractToolArgs(result.parsed, ToolName)
	if rawArgs == nil {
		return nil, newProposeError(StageToolMissing, "AI response missing tool call")
	}
	return rawArgs, nil
}

func (c *OpenAIClient) attempt(ctx context.Context, payload []byte) attemptResult {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/responses"
	request, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return attemptResult{err: newProposeError(StageAPIError, err.Error())}
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() != nil {
			return attemptResult{err: newProposeError(StageTimeout, "OpenAI request timed out")}
		}
		return attemptResult{retryable: true, err: newProposeError(StageAPIError, "OpenAI request failed")}
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return attemptResult{retryable: true, err: newProposeError(StageAPIError, "OpenAI request failed")}
	}

	var parsed responsesResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil && response.StatusCode >= 200 && response.StatusCode < 300 {
			return attemptResult{err: newProposeError(StageAPIError, "OpenAI response was not JSON")}
		}
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		message := apiErrorMessage(&parsed, response.StatusCode)
		return attemptResult{
			retryable: response.StatusCode >= 500 && response.StatusCode <= 599,
			err:       newProposeError(StageAPIError, message),
		}
	}

	return attemptResult{parsed: &parsed}
}

func apiErrorMessage(parsed *responsesResponse, status int) string {
	if parsed != nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	if parsed != nil && parsed.Message != nil && *parsed.Message != "" {
		return *parsed.Message
	}
	return fmt.Sprintf("OpenAI request failed (status %d)", status)
}

// extractToolArgs достает аргументы вызова инструмента из документированных
// форм ответа: прямой вызов в output, вложенные content-элементы и
// chat-стиль choices[0].message.tool_calls. Другие формы не поддерживаются.
func extractToolArgs(parsed *responsesResponse, toolName string) json.RawMessage {
	if parsed == nil {
		return nil
	}

	for _, item := range parsed.Output {
		if args := argsFromCall(item.toolCall, toolName); args != nil {
			return args
		}
		for _, part := range item.Content {
			if args := argsFromCall(part, toolName); args != nil {
				return args
			}
		}
		for _, call := range item.ToolCalls {
			if args := argsFromCall(call, toolName); args != nil {
				return args
			}
		}
	}

	if len(parsed.Choices) > 0 {
		for _, call := range parsed.Choices[0].Message.ToolCalls {
			if args := argsFromCall(call, toolName); args != nil {
				return args
			}
		}
	}

	return nil
}

func argsFromCall(call toolCall, toolName string) json.RawMessage {
	name := call.Name
	if name == "" && call.Function != nil {
		name = call.Function.Name
	}
	if name != toolName {
		return nil
	}

	if len(call.Arguments) > 0 {
		return call.Arguments
	}
	if len(call.ArgumentsJSON) > 0 {
		return call.ArgumentsJSON
	}
	if call.Function != nil && len(call.Function.Arguments) > 0 {
		return call.Function.Arguments
	}
	return nil
}

// parseToolArgs раскрывает аргументы: строка с JSON внутри либо объект.
func parseToolArgs(rawArgs json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(rawArgs)
	if len(trimmed) == 0 {
		return nil, errors.New("tool arguments were empty")
	}

	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, err
		}
		trimmed = bytes.TrimSpace([]byte(inner))
	}

	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("tool arguments were not a JSON object")
	}
	if !json.Valid(trimmed) {
		return nil, errors.New("tool arguments were not valid JSON")
	}
	return trimmed, nil
}
