package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "scheduler",
		Password: "secret",
		Name:     "timetable",
		SSLMode:  "require",
	})

	assert.Equal(t, "host=db port=5433 user=scheduler password=secret dbname=timetable sslmode=require", dsn)
}

func TestDSNPrefersURL(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{URL: "postgres://u:p@db:5432/timetable?sslmode=disable", Host: "ignored"})
	assert.Equal(t, "postgres://u:p@db:5432/timetable?sslmode=disable", dsn)
}

type flakyPinger struct {
	failures int
	calls    int
}

func (p *flakyPinger) PingContext(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestPingGivesUpAfterRetries(t *testing.T) {
	db := &flakyPinger{failures: 10}
	err := ping(context.Background(), db, 0, zap.NewNop())
	assert.Error(t, err)
	assert.Equal(t, 1, db.calls)
}

func TestPingStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	db := &flakyPinger{failures: 1}

	err := ping(ctx, db, 3, zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)

	ups, downs := 0, 0
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, 2, ups)
	assert.Equal(t, ups, downs)
}
