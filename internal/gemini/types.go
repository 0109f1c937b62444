// Package gemini holds the canonical request/response shapes the core
// translates every dialect into and out of. The field names and JSON tags
// mirror the wire format the Code Assist `generateContent`/
// `streamGenerateContent` endpoints actually accept, the same shape the
// teacher's client package (internal/client/models.go) uses as its
// lingua franca before it was flattened into ad hoc gjson/sjson surgery.
package gemini

// Request is the canonical Gemini request body, wrapped by the CLI
// envelope (`project`/`request`/`model`) at the transport layer.
type Request struct {
	Model             string            `json:"model"`
	Project           string            `json:"project,omitempty"`
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	Tools             []ToolDeclaration `json:"tools,omitempty"`
	ToolConfig        *ToolConfig       `json:"toolConfig,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is one turn: a role and an ordered list of parts.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is the sum type spec.md §3 describes. Exactly one of the pointer
// fields (besides Text) should be set on any given instance.
type Part struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	ThoughtSignature string            `json:"thoughtSignature,omitempty"`
	InlineData       *InlineData       `json:"inlineData,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// InlineData carries a base64-encoded media blob.
type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// FunctionCall is model-emitted; Args is already a parsed object.
type FunctionCall struct {
	Name             string         `json:"name"`
	Args             map[string]any `json:"args,omitempty"`
	ThoughtSignature string         `json:"-"`
}

// FunctionResponse is the result the caller feeds back for a prior
// FunctionCall.
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// ToolDeclaration groups function declarations the model may call.
type ToolDeclaration struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// FunctionDeclaration is one callable function's signature.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolConfigMode mirrors the Gemini function-calling mode enum.
type ToolConfigMode string

const (
	ToolModeAuto ToolConfigMode = "AUTO"
	ToolModeAny  ToolConfigMode = "ANY"
	ToolModeNone ToolConfigMode = "NONE"
)

// ToolConfig restricts which functions the model may call.
type ToolConfig struct {
	FunctionCallingConfig *FunctionCallingConfig `json:"functionCallingConfig,omitempty"`
}

// FunctionCallingConfig is the body of ToolConfig.
type FunctionCallingConfig struct {
	Mode                 ToolConfigMode `json:"mode"`
	AllowedFunctionNames []string       `json:"allowedFunctionNames,omitempty"`
}

// GenerationConfig carries sampling and thinking parameters.
type GenerationConfig struct {
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"topP,omitempty"`
	TopK            *float64        `json:"topK,omitempty"`
	MaxOutputTokens *int64          `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// ThinkingConfig controls extended-reasoning behavior.
type ThinkingConfig struct {
	ThinkingBudget  *int64 `json:"thinkingBudget,omitempty"`
	IncludeThoughts bool   `json:"includeThoughts,omitempty"`
}

// ReasoningBudget maps a reasoning-effort level to a thinking budget, per
// spec.md §4.3.
func ReasoningBudget(effort string) int64 {
	switch effort {
	case "low":
		return 1024
	case "medium":
		return 8192
	case "high":
		return 24576
	default:
		return 8192
	}
}

// Candidate is one entry of a Gemini response's `candidates` array.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// UsageMetadata is the upstream's usage accounting block.
type UsageMetadata struct {
	PromptTokenCount     int64 `json:"promptTokenCount"`
	CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	ThoughtsTokenCount   int64 `json:"thoughtsTokenCount"`
	TotalTokenCount      int64 `json:"totalTokenCount"`
}

// StreamEnvelope is one SSE record's JSON payload from
// `streamGenerateContent?alt=sse`.
type StreamEnvelope struct {
	Response struct {
		Candidates    []Candidate    `json:"candidates"`
		UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
		ModelVersion  string         `json:"modelVersion,omitempty"`
		ResponseID    string         `json:"responseId,omitempty"`
	} `json:"response"`
}
