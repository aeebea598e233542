package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		namespace string
		short     string
		wantErr   bool
	}{
		{name: "simple", input: "acme/foo-bar", namespace: "acme", short: "foo-bar"},
		{name: "trims", input: "  org/tiny-model\n", namespace: "org", short: "tiny-model"},
		{name: "dots and underscores", input: "Qwen/Qwen2.5-0.5B_Instruct", namespace: "Qwen", short: "Qwen2.5-0.5B_Instruct"},
		{name: "no separator", input: "foo", wantErr: true},
		{name: "empty namespace", input: "/foo", wantErr: true},
		{name: "empty name", input: "acme/", wantErr: true},
		{name: "nested", input: "acme/foo/bar", wantErr: true},
		{name: "inner whitespace", input: "acme/foo bar", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrInvalidID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.namespace, id.Namespace())
			assert.Equal(t, tt.short, id.Name())
			assert.Equal(t, tt.namespace+"/"+tt.short, id.String())
		})
	}
}

func TestDestinationID(t *testing.T) {
	id := MustParse("acme/foo-bar")
	require.Equal(t, "me/foo-bar-Q8_0-GGUF", DestinationID("me", id, "Q8_0"))
	// Pure: repeated calls agree.
	require.Equal(t, DestinationID("me", id, "Q8_0"), DestinationID("me", id, "Q8_0"))

	require.Equal(t, "ns/tiny-model-Q4_K_M-GGUF", DestinationID("ns", MustParse("org/tiny-model"), "Q4_K_M"))
}

func TestArtifactFileName(t *testing.T) {
	require.Equal(t, "tiny-model-q8_0.gguf", ArtifactFileName(MustParse("org/tiny-model"), "Q8_0"))
}

func TestZeroID(t *testing.T) {
	var id ID
	require.True(t, id.IsZero())
	require.Equal(t, "", id.String())
	require.False(t, MustParse("a/b").IsZero())
}

func TestMustParsePanics(t *testing.T) {
	require.Panics(t, func() { MustParse("nope") })
}
