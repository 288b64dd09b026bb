package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWithinDir(t *testing.T) {
	t.Parallel()

	root := filepath.Join("scripts", "ci")
	cases := []struct {
		name string
		path string
		want bool
	}{
		{name: "Same", path: root, want: true},
		{name: "Nested", path: filepath.Join(root, "build.sh"), want: true},
		{name: "Deep", path: filepath.Join(root, "lib", "common.sh"), want: true},
		{name: "Neighbor", path: filepath.Join("scripts", "cilium.sh"), want: false},
		{name: "Parent", path: "scripts", want: false},
		{name: "DotDotName", path: filepath.Join(root, "..hidden"), want: true},
		{name: "Unclean", path: filepath.Join(root, "lib", "..", "run.sh"), want: true},
		{name: "Escapes", path: filepath.Join(root, "..", "..", "etc"), want: false},
		{name: "AbsoluteVsRelative", path: string(filepath.Separator) + "tmp", want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := WithinDir(tc.path, root); got != tc.want {
				t.Fatalf("WithinDir(%q, %q) = %v, want %v", tc.path, root, got, tc.want)
			}
		})
	}
}

func TestWriteFileWithDirs(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "run.sh")
	if err := WriteFileWithDirs(path, []byte("echo hello\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != "echo hello\n" {
		t.Fatalf("expected %q, got %q", "echo hello\n", string(got))
	}
}
