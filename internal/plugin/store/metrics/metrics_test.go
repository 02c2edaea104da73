package metrics

import (
	"context"
	"testing"

	"github.com/memoryweaver/memory-weaver/internal/model"
	"github.com/memoryweaver/memory-weaver/internal/plugin/store/memory"
	"github.com/memoryweaver/memory-weaver/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestWrapRecordsLatency(t *testing.T) {
	telemetry.InitMetrics(nil)
	ctx := context.Background()
	s := Wrap(memory.New())

	before := testutil.CollectAndCount(telemetry.StoreLatency)
	_, err := s.AppendMemory(ctx, model.Memory{UserID: "u", Date: "2024-01-01", Description: "d"})
	require.NoError(t, err)
	got, err := s.ListMemories(ctx, "u", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.Greater(t, testutil.CollectAndCount(telemetry.StoreLatency), before)
}
