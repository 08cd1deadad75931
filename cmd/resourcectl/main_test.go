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
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setupFilesystem(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORAGE_BACKEND", "fs")
	t.Setenv("FS_BASE_DIR", filepath.Join(dir, "store"))
	t.Setenv("FS_SIGNING_KEY", "cli-secret")
	t.Setenv("FS_URL_PREFIX", "https://files.example.com")
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestPutGetListRemove(t *testing.T) {
	dir := setupFilesystem(t)
	src := writeFile(t, dir, "menu.txt", "soup of the day")

	out, err := run(t, "put", "--owner", "42", "menu.txt", src)
	require.NoError(t, err)
	assert.Contains(t, out, "Stored resources/42/menu.txt")

	_, err = run(t, "put", "--owner", "42", "menu.txt", src)
	require.Error(t, err, "existing resources are never overwritten")

	out, err = run(t, "ls", "42")
	require.NoError(t, err)
	assert.Equal(t, "menu.txt\n", out)

	out, err = run(t, "ls", "-l", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "resources/42/menu.txt")
	assert.Contains(t, out, "15")

	out, err = run(t, "get", "resources/42/menu.txt")
	require.NoError(t, err)
	assert.Equal(t, "soup of the day", out)

	dst := filepath.Join(dir, "copy.txt")
	_, err = run(t, "get", "-o", dst, "resources/42/menu.txt")
	require.NoError(t, err)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "soup of the day", string(data))

	_, err = run(t, "rm", "resources/42/menu.txt", "resources/42/missing.txt")
	require.NoError(t, err)

	_, err = run(t, "get", "resources/42/menu.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPutBase64(t *testing.T) {
	dir := setupFilesystem(t)
	src := writeFile(t, dir, "pixel.txt", "data:text/plain;base64,aGVsbG8=")

	_, err := run(t, "put", "--base64", "pixel.txt", src)
	require.Error(t, err)

	_, err = run(t, "put", "--owner", "3", "--base64", "hello.txt", src)
	require.NoError(t, err)

	out, err := run(t, "get", "resources/3/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	bad := writeFile(t, dir, "bad.txt", "data:text/plain;base64,***")
	out, err = run(t, "put", "--owner", "3", "--base64", "bad.txt", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid base64")
	assert.NotContains(t, out, "Stored")

	_, err = run(t, "get", "resources/3/bad.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDirectoriesAndCopy(t *testing.T) {
	dir := setupFilesystem(t)
	src := writeFile(t, dir, "a.png", "png-bytes")

	_, err := run(t, "mkdir", "images/venue/")
	require.NoError(t, err)
	_, err = run(t, "put", "images/venue/a.png", src)
	require.NoError(t, err)

	out, err := run(t, "cp", "image", "venue/a.png", "venue/b.png")
	require.NoError(t, err)
	assert.Contains(t, out, "Copied images/venue/a.png to images/venue/b.png")

	_, err = run(t, "cp", "video", "venue/a.png", "venue/c.png")
	require.Error(t, err)

	out, err = run(t, "summary", "image", "venue")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, out)
	assert.True(t, strings.HasPrefix(lines[1], "a.png"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "b.png"), lines[2])

	_, err = run(t, "rmdir", "images/")
	require.NoError(t, err)

	out, err = run(t, "ls", "--prefix", "images/")
	require.NoError(t, err)
	assert.Equal(t, 1, len(strings.Split(strings.TrimSpace(out), "\n")), "header only")
}

func TestVerify(t *testing.T) {
	dir := setupFilesystem(t)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := run(t, "put", "--owner", "5", name, writeFile(t, dir, name, "content of "+name))
		require.NoError(t, err)
	}

	out, err := run(t, "verify", "resources/5/")
	require.NoError(t, err)
	assert.Contains(t, out, "Found: 3, verified: 3, failed: 0")

	out, err = run(t, "verify", "--dry-run", "resources/")
	require.NoError(t, err)
	assert.Contains(t, out, "Found: 3, verified: 3, failed: 0")
}

func TestLink(t *testing.T) {
	setupFilesystem(t)

	out, err := run(t, "link", "--ttl", "30m", "resources/1/report.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "https://files.example.com/download/resources/1/report.pdf?"), out)
	assert.Contains(t, out, "signature=")
}

func TestConfigErrors(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "fs")
	t.Setenv("FS_SIGNING_KEY", "")

	_, err := run(t, "ls", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FS_SIGNING_KEY")

	_, err = run(t, "ls", "not-a-number")
	require.Error(t, err)
}

func TestEnv(t *testing.T) {
	out, err := run(t, "env")
	require.NoError(t, err)
	assert.Contains(t, out, "STORAGE_BACKEND")
}
