package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandUser(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to get home dir: %v", err)
	}

	tests := []struct {
		name      string
		input     string
		want      string
		expectErr bool
	}{
		{name: "empty path", input: "", want: ""},
		{name: "relative path", input: "./templates", want: "./templates"},
		{name: "home only", input: "~", want: homeDir},
		{name: "home slash", input: "~/imagelance-templates/jane", want: filepath.Join(homeDir, "imagelance-templates", "jane")},
		{name: "home backslash", input: "~\\nested\\dir", want: filepath.Join(homeDir, "nested", "dir")},
		{name: "unsupported user", input: "~someone/else", expectErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExpandUser(tc.input)
			if tc.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestResolveAbsolute(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "testdata"), 0o755))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() {
		_ = os.Chdir(cwd)
	}()
	require.NoError(t, os.Chdir(tmpDir))

	resolved, err := ResolveAbsolute("./testdata")
	require.NoError(t, err)

	// macOS tmp dirs are symlinked, compare after resolving
	want, _ := filepath.EvalSymlinks(filepath.Join(tmpDir, "testdata"))
	got, _ := filepath.EvalSymlinks(resolved)
	assert.Equal(t, want, got)
}

func TestIsHidden(t *testing.T) {
	tests := map[string]bool{
		"index.html":          false,
		"300x250/index.html":  false,
		".git":                true,
		".git/config":         true,
		"300x250/.DS_Store":   true,
		"/assets/.cache/a.js": true,
		"./assets/logo.png":   false,
		"../sibling/file.txt": false,
	}
	for input, want := range tests {
		assert.Equal(t, want, IsHidden(input), input)
	}
}

func TestListDirs(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"brand-a", "brand-b", ".hidden"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, dir), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "file.txt"), []byte("x"), 0o644))

	dirs, err := ListDirs(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"brand-a", "brand-b"}, dirs)

	missing, err := ListDirs(filepath.Join(root, "missing"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
