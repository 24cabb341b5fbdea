package projects_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/marcelsud/webhook-relay/projects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProjects(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "projects.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_Load(t *testing.T) {
	t.Run("success - valid projects file", func(t *testing.T) {
		path := writeProjects(t, `
projects:
  - project_id: "billing"
    target_url: "https://billing.internal/hooks"
    max_attempts: 5
  - project_id: "inbox-only"
`)

		loader := projects.NewLoader()
		require.NoError(t, loader.Load(path))

		all := loader.List()
		require.Len(t, all, 2)
		assert.Equal(t, "billing", all[0].ProjectID)
		assert.Equal(t, "inbox-only", all[1].ProjectID)

		settings, ok := loader.Settings("billing")
		require.True(t, ok)
		assert.Equal(t, "https://billing.internal/hooks", settings.TargetURL)
		assert.Equal(t, 5, settings.MaxAttempts)

		settings, ok = loader.Settings("inbox-only")
		require.True(t, ok)
		assert.Empty(t, settings.TargetURL)

		_, ok = loader.Settings("unknown")
		assert.False(t, ok)
	})

	t.Run("error - file not found", func(t *testing.T) {
		err := projects.NewLoader().Load("nonexistent.yaml")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading projects file")
	})

	t.Run("optional file may be missing", func(t *testing.T) {
		loader := projects.NewLoader()
		require.NoError(t, loader.LoadOptional(filepath.Join(t.TempDir(), "missing.yaml")))
		require.NoError(t, loader.LoadOptional(""))
		assert.Empty(t, loader.List())
	})

	t.Run("error - invalid YAML", func(t *testing.T) {
		path := writeProjects(t, `invalid yaml content: [[[`)

		err := projects.NewLoader().Load(path)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing projects YAML")
	})

	t.Run("error - validation", func(t *testing.T) {
		cases := map[string]string{
			"missing id":   "projects:\n  - target_url: \"https://example.com\"\n",
			"bad url":      "projects:\n  - project_id: a\n    target_url: \"ftp://example.com\"\n",
			"negative":     "projects:\n  - project_id: a\n    max_attempts: -1\n",
			"duplicate id": "projects:\n  - project_id: a\n  - project_id: a\n",
			"relative url": "projects:\n  - project_id: a\n    target_url: \"/hooks\"\n",
		}
		for name, content := range cases {
			t.Run(name, func(t *testing.T) {
				err := projects.NewLoader().Load(writeProjects(t, content))
				require.Error(t, err)
				assert.Contains(t, err.Error(), "validating project")
			})
		}
	})
}

func TestLoader_Get(t *testing.T) {
	loader := projects.NewLoader()
	require.NoError(t, loader.Load(writeProjects(t, "projects:\n  - project_id: a\n")))

	project, err := loader.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", project.ProjectID)

	_, err = loader.Get("b")
	assert.Error(t, err)
}
