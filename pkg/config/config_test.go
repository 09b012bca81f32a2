package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsDescribeFiveByTwoGrid(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, []string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY"}, cfg.Timetable.Days)
	assert.Equal(t, []string{"09:00-12:00", "14:00-17:00"}, cfg.Timetable.Windows)
	assert.Equal(t, 15*time.Minute, cfg.Timetable.AuditInterval)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestEnvironmentOverridesWindows(t *testing.T) {
	t.Setenv("TIMETABLE_WINDOWS", "08:00-10:00, 10:30-12:30 ,")
	t.Setenv("ENTRY_CACHE_TTL", "not-a-duration")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, []string{"08:00-10:00", "10:30-12:30"}, cfg.Timetable.Windows)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a ,, b"))
}

func TestValidateDefaultsPass(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.NoError(t, fromViper(v).Validate())
}

func TestValidateRejectsDevSecretInProduction(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)
	cfg.Env = EnvProduction
	cfg.Timetable.AuditWorkers = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET must be overridden in production")
	assert.Contains(t, err.Error(), "TIMETABLE_AUDIT_WORKERS")
}
