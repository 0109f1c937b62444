package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/valerka1292/gemini-cli-proxy/internal/apierror"
	"github.com/valerka1292/gemini-cli-proxy/internal/modelresolver"
	anth "github.com/valerka1292/gemini-cli-proxy/internal/translator/anthropic"
)

// anthropicHandler implements the /anthropic/v1/* endpoints (spec.md §6).
type anthropicHandler struct {
	deps *handlerDeps
}

// Messages handles POST /anthropic/v1/messages.
func (h *anthropicHandler) Messages(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		writeAnthropicError(c, apierror.New(apierror.InvalidRequest, fmt.Sprintf("invalid request: %v", err)))
		return
	}

	geminiReq, apiErr := anth.BuildGeminiRequest(raw)
	if apiErr != nil {
		writeAnthropicError(c, apiErr)
		return
	}
	c.Set("API_REQUEST", geminiReq)

	requestedModel := gjson.GetBytes(raw, "model").String()
	model := h.deps.fallback.ResolveThenFallback(requestedModel)
	messageID := "msg_" + uuid.New().String()

	if gjson.GetBytes(raw, "stream").Bool() {
		h.streamMessages(c, geminiReq, model, messageID)
	} else {
		h.nonStreamMessages(c, geminiReq, model, messageID)
	}
}

func (h *anthropicHandler) nonStreamMessages(c *gin.Context, geminiReq []byte, model, messageID string) {
	ctx := c.Request.Context()
	var body []byte

	_, _, runErr := h.deps.fallback.WrapNonStreaming(model, func(candidate string) (int, error) {
		s := h.deps.gemini.Stream(ctx, candidate, h.deps.auth.ProjectID(), messageID, geminiReq)
		result, apiErr := anth.Accumulate(s, messageID, candidate)
		if apiErr != nil {
			return apiErr.StatusCode, apiErr
		}
		body = result
		return http.StatusOK, nil
	})

	if body == nil {
		writeAnthropicError(c, asAPIError(runErr))
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (h *anthropicHandler) streamMessages(c *gin.Context, geminiReq []byte, model, messageID string) {
	flusher, ok := setSSEHeaders(c)
	if !ok {
		writeAnthropicError(c, apierror.New(apierror.UpstreamError, "streaming not supported").WithStatus(http.StatusInternalServerError))
		return
	}
	ctx := c.Request.Context()
	wroteAny := false

	_, _, runErr := h.deps.fallback.WrapStreaming(model, func(candidate string) (int, error) {
		s := h.deps.gemini.Stream(ctx, candidate, h.deps.auth.ProjectID(), messageID, geminiReq)
		emitter := anth.NewEmitter(messageID, candidate)

		for ch := range s.Chunks {
			if frame := emitter.Emit(ch); len(frame) > 0 {
				_, _ = c.Writer.Write(frame)
				flusher.Flush()
				wroteAny = true
			}
		}

		streamErr := <-s.Err
		if streamErr == nil {
			return http.StatusOK, nil
		}

		apiErr := asAPIError(streamErr)
		if !wroteAny {
			// Nothing has reached the client yet: let the fallback
			// controller retry against the next candidate model.
			return apiErr.StatusCode, apiErr
		}
		// Headers already flushed (spec.md §7 "StreamAborted"): surface
		// the failure inline and stop retrying; the HTTP status is
		// already committed.
		_, _ = c.Writer.Write([]byte(apierror.AnthropicSSEEvent(apiErr)))
		flusher.Flush()
		return http.StatusOK, nil
	})

	if !wroteAny && runErr != nil {
		status, payload := anthropicErrorBody(asAPIError(runErr))
		c.Status(status)
		_, _ = c.Writer.Write([]byte(payload))
		flusher.Flush()
	}
}

// Models handles GET /anthropic/v1/models.
func (h *anthropicHandler) Models(c *gin.Context) {
	ids := modelresolver.CanonicalModels()
	data := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		data = append(data, gin.H{
			"type":         "model",
			"id":           id,
			"display_name": id,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "has_more": false})
}
