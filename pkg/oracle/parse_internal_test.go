package oracle

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
		ok       bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"prose around", `Sure! Here it is: {"a":{"b":2}} hope that helps`, `{"a":{"b":2}}`, true},
		{"array", `result: [{"a":1}]`, `[{"a":1}]`, true},
		{"no json", "nothing here", "", false},
		{"unclosed", `{"a":1`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSON(tt.response)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestObjectList(t *testing.T) {
	items, err := objectList(`{"beliefs":[{"statement":"a"},{"statement":"b"}, 3]}`, "beliefs")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = objectList(`[{"statement":"a"}]`, "beliefs")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = objectList(`{"statement":"single"}`, "beliefs")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "single", items[0]["statement"])

	items, err = objectList(`{"beliefs":[]}`, "beliefs")
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = objectList("no", "beliefs")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLooseFieldHelpers(t *testing.T) {
	obj := map[string]interface{}{
		"a": " ",
		"b": "value",
		"n": "0.25",
		"m": 3.0,
		"l": []interface{}{"x", 1, " y "},
		"c": "p, q,,r",
	}

	assert.Equal(t, "value", firstString(obj, "a", "b"))
	assert.Equal(t, "", firstString(obj, "missing"))

	f, ok := firstFloat(obj, "missing", "n")
	assert.True(t, ok)
	assert.Equal(t, 0.25, f)

	f, ok = firstFloat(obj, "m")
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	_, ok = firstFloat(obj, "b")
	assert.False(t, ok)

	assert.Equal(t, []string{"x", "y"}, stringList(obj["l"]))
	assert.Equal(t, []string{"p", "q", "r"}, stringList(obj["c"]))
	assert.Nil(t, stringList(nil))

	assert.Equal(t, 1.0, clamp(2, 0, 1))
	assert.Equal(t, 0.0, clamp(-2, 0, 1))
}
