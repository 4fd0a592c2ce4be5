package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appmigrations "github.com/wolfman30/appointment-notify/migrations"
)

type recordingMigrator struct {
	upErr  error
	steps  []int
	forced []int
	ups    int
}

func (r *recordingMigrator) Up() error {
	r.ups++
	return r.upErr
}

func (r *recordingMigrator) Steps(n int) error {
	r.steps = append(r.steps, n)
	return nil
}

func (r *recordingMigrator) Force(version int) error {
	r.forced = append(r.forced, version)
	return nil
}

func TestRunCommands(t *testing.T) {
	m := &recordingMigrator{upErr: migrate.ErrNoChange}
	require.NoError(t, run(m, nil))
	require.NoError(t, run(m, []string{"up"}))
	assert.Equal(t, 2, m.ups)

	require.NoError(t, run(m, []string{"down"}))
	require.NoError(t, run(m, []string{"down", "3"}))
	assert.Equal(t, []int{-1, -3}, m.steps)

	require.NoError(t, run(m, []string{"force", "2"}))
	assert.Equal(t, []int{2}, m.forced)

	assert.Error(t, run(m, []string{"down", "zero"}))
	assert.Error(t, run(m, []string{"force"}))
	assert.Error(t, run(m, []string{"sideways"}))
}

func TestRunSurfacesUpFailure(t *testing.T) {
	boom := errors.New("dirty database")
	err := run(&recordingMigrator{upErr: boom}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := appmigrations.FS.ReadDir(".")
	require.NoError(t, err)
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, 5, ups)
	assert.Equal(t, ups, downs)
}
