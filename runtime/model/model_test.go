package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Agent    string `json:"agent_code"`
		Question string `json:"question"`
	}
	resp := Response{Text: `{"agent_code":"quiz-agent","question":""}`}
	require.NoError(t, DecodeJSON(resp, &out))
	require.Equal(t, "quiz-agent", out.Agent)
}

func TestDecodeJSONStripsFences(t *testing.T) {
	var out map[string]any
	resp := Response{Text: "```json\n{\"summary\":\"short\"}\n```"}
	require.NoError(t, DecodeJSON(resp, &out))
	require.Equal(t, "short", out["summary"])
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	var out map[string]any
	require.Error(t, DecodeJSON(Response{Text: "not json"}, &out))
}
