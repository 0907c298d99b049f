package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Manifest_FlatListForm(t *testing.T) {
	m := DeploymentManifest{
		{Name: "streamlit-app", ImageURI: "registry.example.com/streamlit-app:abc123"},
		{Name: "sidecar", ImageURI: "registry.example.com/streamlit-app:abc123"},
	}
	data, err := m.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"name":"streamlit-app","imageUri":"registry.example.com/streamlit-app:abc123"},
		{"name":"sidecar","imageUri":"registry.example.com/streamlit-app:abc123"}
	]`, string(data))

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"streamlit-app", "sidecar"}, parsed.Names())

	image, ok := parsed.Image("sidecar")
	assert.True(t, ok)
	assert.Equal(t, "registry.example.com/streamlit-app:abc123", image)
	_, ok = parsed.Image("other")
	assert.False(t, ok)
}

func Test_Parse_Invalid(t *testing.T) {
	scenarios := map[string]struct {
		data     string
		expected string
	}{
		"not json":         {data: `{`, expected: "invalid manifest"},
		"object form":      {data: `{"streamlit-app":"registry.example.com/streamlit-app:abc123"}`, expected: "invalid manifest"},
		"empty list":       {data: `[]`, expected: "no container images"},
		"empty name":       {data: `[{"name":"","imageUri":"registry.example.com/app:1"}]`, expected: "container name is empty"},
		"duplicate name":   {data: `[{"name":"app","imageUri":"registry.example.com/app:1"},{"name":"app","imageUri":"registry.example.com/app:2"}]`, expected: "duplicate container app"},
		"invalid imageUri": {data: `[{"name":"app","imageUri":"Registry Example/app:1"}]`, expected: "invalid image"},
	}
	for name, ts := range scenarios {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(ts.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), ts.expected)
			if name == "empty name" || name == "duplicate name" {
				assert.NotContains(t, err.Error(), "invalid image")
			}
		})
	}
}

func Test_Parse_UnknownContainerNamesAreAccepted(t *testing.T) {
	m, err := Parse([]byte(`[{"name":"not-in-any-service","imageUri":"registry.example.com/app:1"}]`))
	require.NoError(t, err)
	assert.Len(t, m, 1)
}
