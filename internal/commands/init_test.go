package commands_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/banksync/internal/accounts"
	"github.com/cleared-dev/banksync/internal/config"
	"github.com/cleared-dev/banksync/internal/model"
)

var binaryPath string

func TestMain(m *testing.M) {
	// Build the binary once for all tests.
	tmpDir, err := os.MkdirTemp("", "banksync-test-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)

	binaryPath = filepath.Join(tmpDir, "banksync")
	cmd := exec.Command("go", "build", "-o", binaryPath, "../../cmd/banksync")
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic("failed to build binary: " + err.Error())
	}

	os.Exit(m.Run())
}

func runBanksync(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

// initRepo creates a repository in a temp dir and returns its path.
func initRepo(t *testing.T, args ...string) string {
	t.Helper()
	requireGit(t)
	dir := t.TempDir()
	out, err := runBanksync(t, append([]string{"init", dir, "--name", "Test Biz"}, args...)...)
	require.NoError(t, err, out)
	return dir
}

func TestInit_CreatesStructure(t *testing.T) {
	dir := initRepo(t)

	expectedDirs := []string{
		"accounts",
		"ledger",
		"logs",
		"import",
		filepath.Join("import", "processed"),
	}
	for _, d := range expectedDirs {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err, "directory %s should exist", d)
		assert.True(t, info.IsDir(), "%s should be a directory", d)
	}
	for _, f := range []string{"statements.csv", "lines.csv", "counterparties.csv"} {
		_, err := os.Stat(filepath.Join(dir, "ledger", f))
		require.NoError(t, err, "ledger/%s should exist", f)
	}
}

func TestInit_Config(t *testing.T) {
	dir := initRepo(t)

	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	require.NoError(t, err)
	assert.Equal(t, "Test Biz", cfg.Business.Name)
	assert.Equal(t, model.GroupMonth, cfg.Grouping())
	assert.True(t, cfg.Git.AutoCommit)
}

func TestInit_Grouping(t *testing.T) {
	dir := initRepo(t, "--grouping", "day")

	reg, err := accounts.Load(dir)
	require.NoError(t, err)
	j, ok := reg.Journal("bank")
	require.True(t, ok)
	assert.Equal(t, model.GroupDay, j.Grouping)
	assert.Equal(t, "BNK1", j.Code)
}

func TestInit_BadGrouping(t *testing.T) {
	requireGit(t)
	out, err := runBanksync(t, "init", t.TempDir(), "--name", "Test Biz", "--grouping", "fortnight")
	require.Error(t, err)
	assert.Contains(t, out, "unknown grouping mode")
}

func TestInit_Accounts(t *testing.T) {
	dir := initRepo(t)

	reg, err := accounts.Load(dir)
	require.NoError(t, err)
	require.NoError(t, reg.Check())
	assert.Len(t, reg.Journals(), 1)
	require.Len(t, reg.Accounts(), 1)
	assert.Equal(t, []string{"bank"}, reg.Accounts()[0].JournalIDs)
}

func TestInit_GitRepo(t *testing.T) {
	dir := initRepo(t)

	_, err := os.Stat(filepath.Join(dir, ".git"))
	require.NoError(t, err, ".git should exist")

	log := exec.Command("git", "log", "--format=%s", "-1")
	log.Dir = dir
	out, err := log.Output()
	require.NoError(t, err)
	assert.Contains(t, string(out), "init: Initialize Test Biz")

	authorLog := exec.Command("git", "log", "--format=%an <%ae>", "-1")
	authorLog.Dir = dir
	out, err = authorLog.Output()
	require.NoError(t, err)
	assert.Contains(t, string(out), "banksync <banksync@localhost>")
}

func TestInit_RequiresName(t *testing.T) {
	dir := t.TempDir()
	_, err := runBanksync(t, "init", dir)
	require.Error(t, err, "init without --name should fail")
}

func TestCommands_NotARepo(t *testing.T) {
	dir := t.TempDir()
	for _, args := range [][]string{
		{"sync"},
		{"statements", "list"},
		{"validate", "BNK1 Statement 2025/01/00001"},
	} {
		_, err := runBanksync(t, append(args, "--repo", dir)...)
		assert.Error(t, err, "%v outside a repository should fail", args)
	}
}
