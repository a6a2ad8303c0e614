package keys

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironclaw/core/internal/kerr"
)

func TestHashChainLinksConsecutiveEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := NewAuditLogger(&buf, true)

	require.NoError(t, logger.Record("first", map[string]any{"n": 1}))
	require.NoError(t, logger.Record("second", map[string]any{"n": 2}))

	scanner := bufio.NewScanner(&buf)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.NotEmpty(t, first["hash"])
	assert.Nil(t, first["prev_hash"])
	assert.Equal(t, first["hash"], second["prev_hash"])
	assert.NotEmpty(t, second["hash"])
}

func TestTransferPolicyAllowsWithinLimit(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	policy := NewTransferPolicy(NewSpendTracker(), NewAuditLogger(&buf, true), "1000")

	require.NoError(t, policy.Authorize(ctx, "400", "payment", "hash1"))
	spend, err := policy.tracker.GetDailySpend(ctx)
	require.NoError(t, err)
	assert.Equal(t, "400", spend)
}

func TestTransferPolicyDeniesOverLimit(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	policy := NewTransferPolicy(NewSpendTracker(), NewAuditLogger(&buf, true), "1000")

	require.NoError(t, policy.Authorize(ctx, "900", "first", ""))
	err := policy.Authorize(ctx, "200", "second", "")
	require.Error(t, err)
	assert.True(t, kerr.Has(err, kerr.BudgetExhausted))

	spend, err := policy.tracker.GetDailySpend(ctx)
	require.NoError(t, err)
	assert.Equal(t, "900", spend, "denied transfer must not be recorded as spend")
}

func TestTransferPolicyAuditsBothOutcomes(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	policy := NewTransferPolicy(NewSpendTracker(), NewAuditLogger(&buf, true), "100")

	require.NoError(t, policy.Authorize(ctx, "50", "ok", ""))
	_ = policy.Authorize(ctx, "100", "too much", "")

	scanner := bufio.NewScanner(&buf)
	count := 0
	for scanner.Scan() {
		count++
	}
	assert.Equal(t, 2, count)
}
