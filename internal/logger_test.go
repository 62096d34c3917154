package internal_test

import (
	"pixgate/internal"
	"pixgate/internal/memdb"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerPersistsLines(t *testing.T) {
	db := memdb.New()
	logger := internal.NewLogger(time.UTC)
	logger.SetDatabase(db)

	logger.FeatureEvent("transfer", "tx-1", "created")
	logger.Warn("slow provider")
	logger.Close()

	lines, err := db.ReadLog(10)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "warning", lines[0].Feature)
	assert.Equal(t, "*", lines[0].Subject)
	assert.Equal(t, "?", lines[0].Importance)
	assert.Equal(t, "tx-1", lines[1].Subject)
	assert.Equal(t, "created", lines[1].Text)
}

func TestLoggerRawDataOnlyInDebugMode(t *testing.T) {
	db := memdb.New()
	logger := internal.NewLogger(time.UTC)
	logger.SetDatabase(db)

	logger.RawDataEvent("POST /pix", "{}")
	logger.SetDebugMode(true)
	logger.RawDataEvent("200 /pix", `{"status":"ok"}`)
	logger.Close()

	lines, err := db.ReadLog(10)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "raw", lines[0].Feature)
	assert.Equal(t, "-", lines[0].Importance)
	assert.Equal(t, `200 /pix: {"status":"ok"}`, lines[0].Text)
}

func TestLoggerDebugModeWhileWriting(t *testing.T) {
	logger := internal.NewLogger(time.UTC)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			logger.Warn("busy")
		}
	}()
	for i := 0; i < 10; i++ {
		logger.SetDebugMode(i%2 == 0)
	}
	<-done
	logger.Close()
}
