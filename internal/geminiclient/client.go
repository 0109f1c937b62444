// Package geminiclient implements the Gemini Streaming Client (spec.md
// §4.4): project discovery, an authenticated SSE call to
// streamGenerateContent, incremental parsing into the normalized
// internal/chunk stream, 401 recovery, and 429 surfacing with a reset hint.
// Grounded on the teacher's internal/client/gemini-cli_client.go
// (APIRequest/SendRawMessageStream) for the request/response shape and on
// internal/translator/gemini-cli/openai/chat-completions/cli_openai_response.go
// for the exact "response.candidates.0..." field paths, adapted from
// marshal-based decoding to gjson field extraction in the one place that
// matters for perf (the hot SSE loop) while everything else uses plain
// structs where gjson buys nothing.
package geminiclient

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/valerka1292/gemini-cli-proxy/internal/apierror"
	"github.com/valerka1292/gemini-cli-proxy/internal/auth"
	"github.com/valerka1292/gemini-cli-proxy/internal/chunk"
	"github.com/valerka1292/gemini-cli-proxy/internal/config"
	"github.com/valerka1292/gemini-cli-proxy/internal/signature"
)

const (
	codeAssistEndpoint = "https://cloudcode-pa.googleapis.com"
	apiVersion         = "v1internal"
	clientVersion      = "0.1.0"
)

// Client issues streamGenerateContent calls against Code Assist and
// normalizes the SSE response into a chunk.Stream.
type Client struct {
	auth   *auth.Client
	http   *resty.Client
	userID string // x-gemini-api-privileged-user-id, stable for this process
}

// New wraps authClient's HTTP transport with resty's bounded 429/5xx retry
// (SPEC_FULL.md §3: "3 attempts, 1 s base delay", matching spec.md §7's
// idempotence rule) instead of the teacher's unbounded ad hoc loop.
func New(authClient *auth.Client, cfg *config.Config) *Client {
	attempts := cfg.RequestRetry
	if attempts <= 0 {
		attempts = 3
	}
	r := resty.NewWithClient(authClient.HTTPClient())
	r.SetRetryCount(attempts - 1)
	r.SetRetryWaitTime(1 * time.Second)
	r.SetRetryMaxWaitTime(8 * time.Second)
	r.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
	})

	return &Client{auth: authClient, http: r, userID: uuid.New().String()}
}

var resetDurationPattern = regexp.MustCompile(`(?i)quota.*?reset.*?(\d+)\s*(seconds?|minutes?|hours?)`)

// Stream issues an authenticated streamGenerateContent call for modelName
// and normalizes the response into a chunk.Stream, per spec.md §4.4. body
// is the Gemini-shaped request (contents/generationConfig/tools, already
// produced by a dialect request mapper); projectID and chatID are folded
// into the outer Code Assist envelope.
func (c *Client) Stream(ctx context.Context, modelName, projectID, chatID string, body []byte) *chunk.Stream {
	chunks := make(chan *chunk.Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)
		if err := c.streamOnce(ctx, modelName, projectID, chatID, body, chunks); err != nil {
			errs <- err
		}
	}()

	return &chunk.Stream{Chunks: chunks, Err: errs}
}

func (c *Client) streamOnce(ctx context.Context, modelName, projectID, chatID string, body []byte, chunks chan<- *chunk.Chunk) error {
	envelope, err := c.buildEnvelope(modelName, projectID, chatID, body)
	if err != nil {
		return apierror.Wrap(apierror.InvalidRequest, "failed to build Code Assist envelope", err)
	}

	stream, apiErr := c.post(ctx, modelName, envelope)
	if apiErr != nil {
		if apiErr.StatusCode == http.StatusUnauthorized {
			c.auth.InvalidateToken()
			stream, apiErr = c.post(ctx, modelName, envelope)
		}
		if apiErr != nil {
			return apiErr
		}
	}
	defer func() { _ = stream.Close() }()

	return c.parseSSE(ctx, stream, chunks)
}

func (c *Client) buildEnvelope(modelName, projectID, chatID string, body []byte) ([]byte, error) {
	req := body
	var err error
	req, err = sjson.SetBytes(req, "session_id", chatID)
	if err != nil {
		return nil, err
	}

	env := []byte(`{}`)
	env, err = sjson.SetBytes(env, "project", projectID)
	if err != nil {
		return nil, err
	}
	env, err = sjson.SetBytes(env, "model", modelName)
	if err != nil {
		return nil, err
	}
	env, err = sjson.SetBytes(env, "user_prompt_id", "call_"+uuid.New().String())
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(env, "request", req)
}

func (c *Client) post(ctx context.Context, modelName string, envelope []byte) (io.ReadCloser, *apierror.Error) {
	token, err := c.auth.AccessToken(ctx)
	if err != nil {
		return nil, apierror.Wrap(apierror.UpstreamError, "failed to obtain access token", err).WithStatus(http.StatusUnauthorized)
	}

	url := fmt.Sprintf("%s/%s:streamGenerateContent?alt=sse", codeAssistEndpoint, apiVersion)
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("User-Agent", userAgent(modelName)).
		SetHeader("x-gemini-api-privileged-user-id", c.userID).
		SetDoNotParseResponse(true).
		SetBody(envelope).
		Post(url)
	if err != nil {
		return nil, apierror.Wrap(apierror.UpstreamError, "streamGenerateContent request failed", err)
	}

	raw := resp.RawResponse
	if raw.StatusCode == http.StatusOK || raw.StatusCode == http.StatusBadRequest {
		return raw.Body, nil
	}
	defer func() { _ = raw.Body.Close() }()

	bodyBytes, _ := io.ReadAll(raw.Body)
	return nil, classifyError(raw.StatusCode, raw.Header.Get("Retry-After"), modelName, bodyBytes)
}

func classifyError(statusCode int, retryAfterHeader, modelName string, body []byte) *apierror.Error {
	switch statusCode {
	case http.StatusTooManyRequests:
		resetSeconds := parseRetryAfter(retryAfterHeader, body)
		resetAt := time.Now().Add(time.Duration(resetSeconds) * time.Second)
		msg := fmt.Sprintf("RESOURCE_EXHAUSTED: Rate limited on %s. Quota will reset after %d second(s). Next available: %s",
			modelName, resetSeconds, resetAt.UTC().Format(time.RFC3339))
		return apierror.New(apierror.RateLimit, msg).WithStatus(statusCode).WithRetryAfter(int64(resetSeconds))
	case http.StatusBadRequest:
		return apierror.Wrap(apierror.InvalidRequest, parseAPIErrorMessage(body), fmt.Errorf("%s", string(body))).WithStatus(statusCode)
	default:
		return apierror.Wrap(apierror.UpstreamError, parseAPIErrorMessage(body), fmt.Errorf("%s", string(body))).WithStatus(statusCode)
	}
}

func parseAPIErrorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return msg.String()
	}
	if msg := gjson.GetBytes(body, "0.error.message"); msg.Exists() {
		return msg.String()
	}
	return string(body)
}

// parseRetryAfter implements spec.md §4.4's 429 recovery: prefer the
// Retry-After header, falling back to a regex scrape of the error body for
// "quota ... reset ... <n> <unit>".
func parseRetryAfter(header string, body []byte) int {
	if header != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
			return secs
		}
	}
	m := resetDurationPattern.FindStringSubmatch(string(body))
	if m == nil {
		return 60
	}
	n, _ := strconv.Atoi(m[1])
	switch {
	case strings.HasPrefix(m[2], "hour"):
		return n * 3600
	case strings.HasPrefix(m[2], "minute"):
		return n * 60
	default:
		return n
	}
}

func userAgent(modelName string) string {
	return fmt.Sprintf("GeminiCLI/%s/%s (%s; %s)", clientVersion, modelName, runtime.GOOS, runtime.GOARCH)
}

// ActivationURL reports the Cloud Console activation URL embedded in a 403
// response body, the supplemented CheckCloudAPIIsEnabled diagnostic
// (SPEC_FULL.md §4.2).
func ActivationURL(body []byte) string {
	return gjson.GetBytes(body, "0.error.details.0.metadata.activationUrl").String()
}

// Probe issues a minimal streamGenerateContent call to check whether the
// Cloud AI API is enabled for the configured project, adapted from the
// teacher's CheckCloudAPIIsEnabled.
func (c *Client) Probe(ctx context.Context, projectID string) (enabled bool, activationURL string, err error) {
	probeBody := []byte(`{"contents":[{"role":"user","parts":[{"text":"Be concise. What is the capital of France?"}]}],"generationConfig":{"thinkingConfig":{"include_thoughts":false,"thinkingBudget":0}}}`)
	envelope, err := c.buildEnvelope("gemini-2.5-flash", projectID, "probe", probeBody)
	if err != nil {
		return false, "", err
	}

	stream, apiErr := c.post(ctx, "gemini-2.5-flash", envelope)
	if apiErr != nil {
		if apiErr.StatusCode == http.StatusForbidden && apiErr.Err != nil {
			return false, ActivationURL([]byte(apiErr.Err.Error())), nil
		}
		return false, "", apiErr
	}
	defer func() { _ = stream.Close() }()

	_, err = io.Copy(io.Discard, stream)
	return err == nil, "", err
}

// parseSSE implements spec.md §4.4's incremental SSE parse: lines are
// scanned with bufio.Scanner (handles both CRLF and LF), consecutive
// "data:" lines are concatenated into one record, and each record is fed
// through emitCandidate.
func (c *Client) parseSSE(ctx context.Context, stream io.Reader, chunks chan<- *chunk.Chunk) error {
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	st := &emitState{}
	var record bytes.Buffer

	flush := func() error {
		if record.Len() == 0 {
			return nil
		}
		payload := record.Bytes()
		record.Reset()
		return st.emitRecord(ctx, payload, chunks)
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if bytes.HasPrefix(line, []byte("data:")) {
			record.Write(bytes.TrimSpace(line[len("data:"):]))
			continue
		}
		// Non-data lines (SSE comments, event:, retry:) are ignored per spec.md §4.4.
	}
	if err := flush(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return apierror.Wrap(apierror.UpstreamError, "SSE stream read failed", err)
	}

	if !st.finished {
		st.closeThinking(chunks)
		chunks <- st.terminalChunk()
	}
	return nil
}

// emitState tracks the ordering state spec.md §4.4's "Chunk emission"
// rules require across records: whether the assistant role has been
// emitted yet, whether a thinking block is presently open, whether any
// tool call has been emitted, and the latest usage observed.
type emitState struct {
	roleEmitted  bool
	thinkingOpen bool
	toolCalled   bool
	finished     bool
	usage        *chunk.Usage
	finishReason string
}

func (st *emitState) emitRecord(ctx context.Context, payload []byte, chunks chan<- *chunk.Chunk) error {
	root := gjson.ParseBytes(payload)
	candidate := root.Get("response.candidates.0")

	if usage := root.Get("response.usageMetadata"); usage.Exists() {
		st.usage = &chunk.Usage{
			PromptTokens:     usage.Get("promptTokenCount").Int() + usage.Get("thoughtsTokenCount").Int(),
			CompletionTokens: usage.Get("candidatesTokenCount").Int(),
		}
	}

	parts := candidate.Get("content.parts")
	if parts.IsArray() {
		for _, part := range parts.Array() {
			st.emitPart(part, chunks)
		}
	}

	if fr := candidate.Get("finishReason"); fr.Exists() && fr.String() != "" {
		st.closeThinking(chunks)
		st.finished = true
		st.finishReason = fr.String()
		chunks <- st.terminalChunk()
	}
	return nil
}

func (st *emitState) emitPart(part gjson.Result, chunks chan<- *chunk.Chunk) {
	thoughtSig := part.Get("thoughtSignature").String()

	if fc := part.Get("functionCall"); fc.Exists() {
		st.closeThinking(chunks)
		toolID := "call_" + uuid.New().String()
		args := fc.Get("args").Raw
		if args == "" {
			args = "{}"
		}
		if thoughtSig != "" {
			signature.Global().PutToolCall(toolID, thoughtSig)
		}
		st.toolCalled = true
		chunks <- &chunk.Chunk{
			Role: st.roleMarker(),
			ToolCall: &chunk.ToolCallDelta{
				Index:            0,
				ID:               toolID,
				Name:             fc.Get("name").String(),
				ArgumentsDelta:   args,
				ThoughtSignature: thoughtSig,
			},
		}
		return
	}

	text := part.Get("text")
	if !text.Exists() {
		return
	}

	if part.Get("thought").Bool() {
		opening := !st.thinkingOpen
		st.thinkingOpen = true
		if thoughtSig != "" {
			signature.Global().PutFamily(signature.FamilyGemini, thoughtSig)
		}
		chunks <- &chunk.Chunk{
			Role:             st.roleMarker(),
			Content:          text.String(),
			Thought:          true,
			ThoughtSignature: thoughtSig,
			ThinkingStart:    opening,
		}
		return
	}

	st.closeThinking(chunks)
	chunks <- &chunk.Chunk{
		Role:    st.roleMarker(),
		Content: text.String(),
	}
}

func (st *emitState) closeThinking(chunks chan<- *chunk.Chunk) {
	if !st.thinkingOpen {
		return
	}
	st.thinkingOpen = false
	chunks <- &chunk.Chunk{ThinkingEnd: true}
}

func (st *emitState) roleMarker() string {
	if st.roleEmitted {
		return ""
	}
	st.roleEmitted = true
	return "assistant"
}

// finishReasonFromUpstream maps a Gemini candidate.finishReason value onto
// the normalized taxonomy (spec invariant 5, §8 property 2:
// stop_reason ∈ {end_turn, max_tokens}). A tool call always wins over the
// upstream's own reason (Gemini reports "STOP" when pausing for a tool).
func (st *emitState) finishReasonFromUpstream() chunk.FinishReason {
	if st.toolCalled {
		return chunk.FinishToolCalls
	}
	switch st.finishReason {
	case "MAX_TOKENS":
		return chunk.FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return chunk.FinishContentFilter
	default:
		return chunk.FinishStop
	}
}

func (st *emitState) terminalChunk() *chunk.Chunk {
	return &chunk.Chunk{FinishReason: st.finishReasonFromUpstream(), Usage: st.usage}
}
