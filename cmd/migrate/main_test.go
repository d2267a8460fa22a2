package main

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appmigrations "github.com/wolfman30/atacado-crm/migrations"
)

type fakeMigrator struct {
	upErr   error
	steps   []int
	forced  int
	version uint
	calls   []string
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	return f.upErr
}

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return nil
}

func (f *fakeMigrator) Force(v int) error {
	f.forced = v
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, false, nil
}

func TestRunCommands(t *testing.T) {
	m := &fakeMigrator{upErr: migrate.ErrNoChange}
	require.NoError(t, run(m, nil))
	assert.Equal(t, []string{"up"}, m.calls)

	require.NoError(t, run(m, []string{"down", "2"}))
	assert.Equal(t, []int{-2}, m.steps)

	require.NoError(t, run(m, []string{"force", "3"}))
	assert.Equal(t, 3, m.forced)

	require.NoError(t, run(m, []string{"version"}))

	assert.Error(t, run(m, []string{"down", "zero"}))
	assert.Error(t, run(m, []string{"force"}))
	assert.Error(t, run(m, []string{"sideways"}))
	assert.Error(t, run(&fakeMigrator{upErr: errors.New("syntax error")}, nil))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(appmigrations.FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(appmigrations.FS, down)
		assert.NoError(t, err, "missing %s", down)
	}

	schema, err := fs.ReadFile(appmigrations.FS, "000001_init.up.sql")
	require.NoError(t, err)
	for _, table := range []string{"leads", "produtos", "conversas_ia"} {
		assert.Contains(t, string(schema), "CREATE TABLE IF NOT EXISTS "+table)
	}
}
