package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferSpec_NormalizeDefaults(t *testing.T) {
	spec := TransferSpec{All: true}
	spec.Normalize()

	assert.Equal(t, DefaultOriginalIDKey, spec.OriginalIDKey)
	assert.Equal(t, DefaultTimestampKey, spec.TimestampKey)
	assert.Equal(t, DefaultBatchSize, spec.BatchSize)
}

func TestTransferSpec_NormalizeKeepsOverrides(t *testing.T) {
	spec := TransferSpec{All: true, OriginalIDKey: "srcId", TimestampKey: "ts", BatchSize: 50}
	spec.Normalize()

	assert.Equal(t, "srcId", spec.OriginalIDKey)
	assert.Equal(t, "ts", spec.TimestampKey)
	assert.Equal(t, 50, spec.BatchSize)
}

func TestTransferSpec_Validate(t *testing.T) {
	empty := TransferSpec{}
	empty.Normalize()
	assert.Error(t, empty.Validate())

	labelled := TransferSpec{NodeLabels: []string{"Person"}}
	labelled.Normalize()
	assert.NoError(t, labelled.Validate())

	clashing := TransferSpec{All: true, OriginalIDKey: "same", TimestampKey: "same"}
	clashing.Normalize()
	assert.Error(t, clashing.Validate())
}

func TestTransferRecord_TagValue(t *testing.T) {
	rec := TransferRecord{
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC),
	}
	require.Equal(t, "2024-05-01T12:00:00.123456789Z", rec.TagValue())
}
