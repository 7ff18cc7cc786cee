package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "json code block",
			response: "Here you go:\n```json\n{\"a\": 1}\n```\nDone.",
			want:     `{"a": 1}`,
		},
		{
			name:     "untagged code block",
			response: "```\n[1, 2, 3]\n```",
			want:     `[1, 2, 3]`,
		},
		{
			name:     "raw object with prose",
			response: `The next action is {"type": "click", "target": "#go"} as requested.`,
			want:     `{"type": "click", "target": "#go"}`,
		},
		{
			name:     "nested brackets in strings",
			response: `{"msg": "use {braces} carefully", "n": {"x": [1]}}`,
			want:     `{"msg": "use {braces} carefully", "n": {"x": [1]}}`,
		},
		{
			name:     "array before object",
			response: `[{"type": "wait"}] trailing {"ignored": true}`,
			want:     `[{"type": "wait"}]`,
		},
		{
			name:     "python code block skipped",
			response: "```python\nprint('hi')\n```",
			wantErr:  true,
		},
		{
			name:     "no json at all",
			response: "I could not produce a plan.",
			wantErr:  true,
		},
		{
			name:     "unmatched bracket",
			response: `{"open": true`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSONAs(t *testing.T) {
	type descriptor struct {
		Type   string `json:"type"`
		Target string `json:"target"`
	}

	got, err := ExtractJSONAs[[]descriptor]("```json\n[{\"type\": \"click\", \"target\": \"#a\"}]\n```")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "click", got[0].Type)

	_, err = ExtractJSONAs[[]descriptor](`{"type": "click"}`)
	assert.Error(t, err, "object should not unmarshal into a slice")
}
