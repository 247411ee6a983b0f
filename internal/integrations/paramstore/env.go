package paramstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Env serves the parameters the service needs from process environment
// variables, for local runs without SSM.
type Env struct {
	lookup func(string) (string, bool)
}

func NewEnv() *Env {
	return &Env{lookup: os.LookupEnv}
}

// envVars maps parameter keys to the variables that back them.
var envVars = map[string]string{
	"open-ai-token":       "OPENAI_API_KEY",
	"config/assistant_id": "OPENAI_ASSISTANT_ID",
}

func (e *Env) GetParameter(_ context.Context, key string) (string, error) {
	key = strings.Trim(strings.TrimSpace(key), "/")
	name, ok := envVars[key]
	if !ok {
		return "", &NotFoundError{Name: key, Err: fmt.Errorf("no environment variable for %q", key)}
	}
	v, _ := e.lookup(name)
	v = strings.TrimSpace(v)
	if v == "" {
		return "", &NotFoundError{Name: name}
	}
	if key == "open-ai-token" {
		raw, err := json.Marshal(struct {
			Token string `json:"token"`
		}{Token: v})
		if err != nil {
			return "", fmt.Errorf("paramstore: encode token: %w", err)
		}
		return string(raw), nil
	}
	return v, nil
}
