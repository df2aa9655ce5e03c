package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorebook/lorebook/internal/types"
)

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name      string
		filter    types.Filter
		firstArg  int
		wantWhere string
		wantArgs  []any
	}{
		{
			name:      "empty filter",
			filter:    types.Filter{},
			firstArg:  1,
			wantWhere: "",
			wantArgs:  nil,
		},
		{
			name:      "notebook only",
			filter:    types.Filter{NotebookID: "nb1"},
			firstArg:  2,
			wantWhere: "WHERE notebook_id = $2",
			wantArgs:  []any{"nb1"},
		},
		{
			name:      "notebook and knowledge item",
			filter:    types.Filter{NotebookID: "nb1", KnowledgeID: "k1"},
			firstArg:  1,
			wantWhere: "WHERE notebook_id = $1 AND knowledge_id = $2",
			wantArgs:  []any{"nb1", "k1"},
		},
		{
			name:      "knowledge item only",
			filter:    types.Filter{KnowledgeID: "k1"},
			firstArg:  1,
			wantWhere: "WHERE knowledge_id = $1",
			wantArgs:  []any{"k1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildFilter(tt.filter, tt.firstArg)
			assert.Equal(t, tt.wantWhere, where)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "hello", sanitizeUTF8("hello"))
	assert.Equal(t, "héllo", sanitizeUTF8("héllo"))

	broken := "ok" + string([]byte{0xff}) + "ay"
	cleaned := sanitizeUTF8(broken)
	require.NotContains(t, cleaned, string(rune(0xfffd)))
	assert.Equal(t, "okay", cleaned)
}
