// Package proxy forwards inference requests to the upstream API, rewriting
// chat and responses bodies to inject the operator's system prompt and user
// attribution before they leave the gateway.
package proxy

import (
	"encoding/json"
	"strings"

	"github.com/aussiebroadwan/llmgate/internal/gate/domain"
)

// campusAnonymous is the user attribution stamped on campus-mode requests,
// which have no resolved identity.
const campusAnonymous = "campus-anonymous"

// Transformer rewrites outbound request bodies for the two supported
// endpoint shapes.
type Transformer struct {
	// BasePrompt is the operator's system prompt injected into every
	// transformed request.
	BasePrompt string

	// CampusPrompt is appended to BasePrompt (blank-line separated) for
	// campus-mode traffic.
	CampusPrompt string
}

// prefix computes the injected prompt for a decision.
func (t *Transformer) prefix(decision domain.AuthDecision) string {
	if decision.CampusMode && t.CampusPrompt != "" {
		return t.BasePrompt + "\n\n" + t.CampusPrompt
	}
	return t.BasePrompt
}

// TransformChatCompletions rewrites a chat-completions body: the system
// prompt is prepended to an existing system message or inserted as a new
// first message, and user attribution is set when absent. A body that does
// not parse as JSON is returned unchanged; a shape surprise must never
// block inference.
func (t *Transformer) TransformChatCompletions(body []byte, decision domain.AuthDecision) []byte {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		return body
	}

	var messages []map[string]any
	if raw, ok := payload["messages"]; ok {
		if err := json.Unmarshal(raw, &messages); err != nil {
			return body
		}
	}

	prefix := t.prefix(decision)
	injected := false
	for _, msg := range messages {
		if role, _ := msg["role"].(string); role == "system" {
			// Only the plain-string content form is merged in place; an
			// empty string still gets the separator so the caller's value
			// survives verbatim. The array-of-parts form is left untouched
			// and the prefix goes in as its own leading system message.
			if content, ok := msg["content"].(string); ok {
				msg["content"] = prefix + "\n\n" + content
				injected = true
			}
			break
		}
	}
	if !injected {
		system := map[string]any{"role": "system", "content": prefix}
		messages = append([]map[string]any{system}, messages...)
	}

	encoded, err := json.Marshal(messages)
	if err != nil {
		return body
	}
	payload["messages"] = encoded

	t.attributeUser(payload, decision)

	out, err := json.Marshal(payload)
	if err != nil {
		return body
	}
	return out
}

// TransformResponses rewrites a responses-API body, prepending the prompt to
// the instructions field (or setting it outright) and attributing the user.
func (t *Transformer) TransformResponses(body []byte, decision domain.AuthDecision) []byte {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		return body
	}

	prefix := t.prefix(decision)
	instructions := prefix
	if raw, ok := payload["instructions"]; ok {
		var existing string
		if err := json.Unmarshal(raw, &existing); err != nil {
			return body
		}
		// Present means present, even when empty: the caller's value is
		// always appended after the separator.
		instructions = prefix + "\n\n" + existing
	}

	encoded, err := json.Marshal(instructions)
	if err != nil {
		return body
	}
	payload["instructions"] = encoded

	t.attributeUser(payload, decision)

	out, err := json.Marshal(payload)
	if err != nil {
		return body
	}
	return out
}

// attributeUser sets the body's user field when the caller didn't. Resolved
// identities win; campus traffic is tagged anonymously; passthrough bodies
// stay untouched.
func (t *Transformer) attributeUser(payload map[string]json.RawMessage, decision domain.AuthDecision) {
	if _, ok := payload["user"]; ok {
		return
	}

	var user string
	switch {
	case decision.Email != "":
		user = decision.Email
	case decision.CampusMode:
		user = campusAnonymous
	default:
		return
	}

	if encoded, err := json.Marshal(user); err == nil {
		payload["user"] = encoded
	}
}

// TransformFor picks the transformation for a method+path pair, returning
// nil when the request should pass through untouched.
func (t *Transformer) TransformFor(method, path string) func([]byte, domain.AuthDecision) []byte {
	if method != "POST" {
		return nil
	}
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		return t.TransformChatCompletions
	case path == "/v1/responses":
		return t.TransformResponses
	}
	return nil
}
