package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, storeType string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	backups := filepath.Join(dir, "backups")
	cfg := `
logging:
  level: WARN
  output: stderr

partition:
  id: userRoot
  suffix: dc=example,dc=com
  create_suffix: true
  store:
    type: ` + storeType + `
    dirtree:
      path: ` + filepath.Join(dir, "tree") + `
    singlefile:
      path: ` + filepath.Join(dir, "userRoot.ldif") + `

backup:
  type: file
  file:
    dir: ` + backups + `
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path, backups
}

const people = `version: 1

dn: uid=alice,ou=people,dc=example,dc=com
objectClass: inetOrgPerson
uid: alice
cn: Alice

dn: ou=people,dc=example,dc=com
objectClass: organizationalUnit
ou: people

`

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	out, err := run(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = run(t, "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "init", "--config", path, "--force")
	assert.NoError(t, err)
}

func TestImportCheckExport(t *testing.T) {
	for _, storeType := range []string{"dirtree", "singlefile"} {
		t.Run(storeType, func(t *testing.T) {
			cfg, _ := writeConfig(t, storeType)

			input := filepath.Join(t.TempDir(), "people.ldif")
			require.NoError(t, os.WriteFile(input, []byte(people), 0644))

			out, err := run(t, "import", "--config", cfg, input)
			require.NoError(t, err)
			assert.Contains(t, out, "imported 2 entries (0 skipped)")

			_, err = run(t, "import", "--config", cfg, input)
			assert.Error(t, err)

			out, err = run(t, "import", "--config", cfg, "--skip-existing", input)
			require.NoError(t, err)
			assert.Contains(t, out, "imported 0 entries (2 skipped)")

			out, err = run(t, "check", "--config", cfg)
			require.NoError(t, err)
			assert.Contains(t, out, "partition userRoot (dc=example,dc=com, "+storeType+" store): 3 entries")

			exported := filepath.Join(t.TempDir(), "out.ldif")
			out, err = run(t, "export", "--config", cfg, "--output", exported)
			require.NoError(t, err)
			assert.Contains(t, out, "exported 3 entries")

			data, err := os.ReadFile(exported)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(string(data), "version: 1\n"))
			assert.Contains(t, string(data), "dn: uid=alice,ou=people,dc=example,dc=com")
			assert.Contains(t, string(data), "entryUUID: ")

			out, err = run(t, "export", "--config", cfg, "--base", "ou=people,dc=example,dc=com")
			require.NoError(t, err)
			assert.Contains(t, out, "dn: ou=people,dc=example,dc=com")
			assert.NotContains(t, out, "dn: dc=example,dc=com\n")
		})
	}
}

func TestImportFromStdin(t *testing.T) {
	cfg, _ := writeConfig(t, "singlefile")

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs([]string{"import", "--config", cfg, "-"})
	cmd.SetIn(strings.NewReader(people))
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "imported 2 entries")
}

func TestExportRejectsBadBase(t *testing.T) {
	cfg, _ := writeConfig(t, "dirtree")

	_, err := run(t, "export", "--config", cfg, "--base", "ou=people,")
	assert.Error(t, err)
}

func TestBackup(t *testing.T) {
	cfg, backups := writeConfig(t, "dirtree")

	out, err := run(t, "backup", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "on file target (1 entries")

	files, err := os.ReadDir(backups)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasPrefix(files[0].Name(), "userRoot-"))
	assert.True(t, strings.HasSuffix(files[0].Name(), ".ldif"))
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dittodir dev (commit none)\n", out)
}
