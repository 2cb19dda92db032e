package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/aiorch/types"
)

// NamespaceAIResponses holds agent results.
const NamespaceAIResponses = "ai_responses"

// Canonicalize renders v as JSON with sorted object keys at every depth and numbers
// kept in their literal form, so logically equal values produce equal bytes.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}

// KeyFor derives the cache key of an agent request: "ai:{agent}:{model}:{sha256}".
func KeyFor(agentType string, model types.ModelPreference, input any) (string, error) {
	canon, err := Canonicalize(input)
	if err != nil {
		return "", err
	}
	if model == "" {
		model = types.ModelAuto
	}
	sum := sha256.Sum256(canon)
	return fmt.Sprintf("ai:%s:%s:%s", agentType, model, hex.EncodeToString(sum[:])), nil
}
