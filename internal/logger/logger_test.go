package logger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithSignatureTagsEntries(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := WithSignature(zap.New(core), "5VERv8NMvzbJ")

	log.Info("swap settled")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "5VERv8NMvzbJ", fields["tx_signature"])
	assert.Contains(t, fields, "tx_time")
}

func TestWithOperationAttachesCorrelationID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := WithOperation(zap.New(core), "monitor_pass")

	log.Info("pass completed")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "monitor_pass", fields["operation"])

	id, ok := fields["correlation_id"].(string)
	require.True(t, ok)
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "correlation id must be a valid uuid")
}

func TestWithOperationIDsAreUnique(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	WithOperation(zap.New(core), "op").Info("first")
	WithOperation(zap.New(core), "op").Info("second")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.NotEqual(t,
		entries[0].ContextMap()["correlation_id"],
		entries[1].ContextMap()["correlation_id"])
}
