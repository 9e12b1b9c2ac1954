package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/roach88/spanos/internal/span"
)

// Environment keys for a provider exec invocation.
const (
	EnvProviderID      = "PROVIDER_ID"
	EnvProviderPayload = "PROVIDER_PAYLOAD"
)

// ProviderExec dispatches a chat payload to an externally configured model
// endpoint and records the normalized result as a provider_execution span.
//
// Only a small fixed set of provider shapes is supported, matched on the
// configured base endpoint. An unrecognized endpoint fails closed: the
// refusal is recorded as an error-status provider_execution span, never a
// silent no-op.
type ProviderExec struct {
	// Client makes the outbound call; nil means http.DefaultClient.
	Client *http.Client
}

func (p *ProviderExec) ID() string   { return span.ProviderExecKernelID }
func (p *ProviderExec) Name() string { return "provider_exec" }

func (p *ProviderExec) Run(ctx context.Context, kc *Context) error {
	providerID := kc.Env[EnvProviderID]
	if providerID == "" {
		return fmt.Errorf("%s not set in environment", EnvProviderID)
	}
	rawPayload := kc.Env[EnvProviderPayload]
	if rawPayload == "" {
		return fmt.Errorf("%s not set in environment", EnvProviderPayload)
	}
	// The payload is stored on the result span, so numbers must decode as
	// json.Number to survive the canonical marshal on append.
	dec := json.NewDecoder(strings.NewReader(rawPayload))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", EnvProviderPayload, err)
	}

	provider, ok, err := kc.Latest(ctx, providerID, span.EntityProvider)
	if err != nil {
		return fmt.Errorf("fetch provider %s: %w", providerID, err)
	}
	if !ok {
		return fmt.Errorf("provider %s not found", providerID)
	}

	start := kc.Clock.Now()
	output, callErr := p.dispatch(ctx, kc, provider, payload)
	durationMS := kc.Clock.Now().Sub(start).Milliseconds()

	result := span.Span{
		ID:         kc.NewID(),
		Seq:        0,
		EntityType: span.EntityProviderExecution,
		Who:        p.Name(),
		Did:        "called",
		This:       provider.ID,
		At:         kc.Now(),
		ParentID:   provider.ID,
		RelatedTo:  []string{provider.ID},
		Input:      payload,
		OwnerID:    provider.OwnerID,
		TenantID:   provider.TenantID,
		Visibility: provider.Visibility,
		DurationMS: durationMS,
	}
	if callErr != nil {
		result.Status = span.StatusError
		result.Error = map[string]any{"message": callErr.Error()}
	} else {
		result.Status = span.StatusComplete
		result.Output = output
	}
	if err := kc.Append(ctx, result); err != nil {
		return fmt.Errorf("record provider execution: %w", err)
	}
	return nil
}

// dispatch matches the provider's base endpoint against the supported
// shapes and performs the call. The response is normalized to the first
// message content plus the reported model, avoiding provider-specific
// structure in the ledger.
func (p *ProviderExec) dispatch(ctx context.Context, kc *Context, provider span.Span, payload map[string]any) (map[string]any, error) {
	baseURL, _ := provider.Metadata["base_url"].(string)
	model, _ := provider.Metadata["model"].(string)
	authEnv, _ := provider.Metadata["auth_env"].(string)

	switch {
	case strings.Contains(baseURL, "openai.com"):
		body := map[string]any{
			"model":    model,
			"messages": payload["messages"],
		}
		token := kc.Env[authEnv]
		resp, err := p.post(ctx, baseURL+"/chat/completions", body, token)
		if err != nil {
			return nil, err
		}
		return normalizeOpenAI(resp)
	case strings.Contains(baseURL, "localhost:11434"):
		body := map[string]any{
			"model":    model,
			"messages": payload["messages"],
			"stream":   false,
		}
		resp, err := p.post(ctx, baseURL+"/api/chat", body, "")
		if err != nil {
			return nil, err
		}
		return normalizeOllama(resp)
	default:
		return nil, fmt.Errorf("unsupported provider endpoint %q", baseURL)
	}
}

func (p *ProviderExec) post(ctx context.Context, url string, body map[string]any, bearer string) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return decoded, nil
}

func normalizeOpenAI(resp map[string]any) (map[string]any, error) {
	choices, _ := resp["choices"].([]any)
	if len(choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}
	first, _ := choices[0].(map[string]any)
	message, _ := first["message"].(map[string]any)
	content, _ := message["content"].(string)
	model, _ := resp["model"].(string)
	return map[string]any{
		"content": content,
		"model":   model,
	}, nil
}

func normalizeOllama(resp map[string]any) (map[string]any, error) {
	message, _ := resp["message"].(map[string]any)
	content, ok := message["content"].(string)
	if !ok {
		return nil, fmt.Errorf("response has no message content")
	}
	model, _ := resp["model"].(string)
	return map[string]any{
		"content": content,
		"model":   model,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
