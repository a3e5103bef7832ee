package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicyHasSaneDefaults(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 1*time.Second, p.Timeout)
	assert.Equal(t, 2, p.MaxRetries)
	assert.Equal(t, UPDATE, p.RecordExistsAction)
	assert.Equal(t, MASTER, p.Replica)
}

func TestDefaultBatchPolicyEmbedsDefaultPolicy(t *testing.T) {
	bp := DefaultBatchPolicy()
	assert.Equal(t, DefaultPolicy(), bp.Policy)
	assert.Equal(t, ConcurrencyUnbounded, bp.Concurrency)
	assert.False(t, bp.AllowPartialResults)
}

func TestDefaultScanQueryPolicyIncludesBinDataByDefault(t *testing.T) {
	sp := DefaultScanQueryPolicy()
	assert.True(t, sp.IncludeBinData)
	assert.EqualValues(t, 100, sp.ScanPercent)
	assert.True(t, sp.FailOnClusterChange)
}

func TestPolicyStringIncludesTimeoutAndRetries(t *testing.T) {
	p := DefaultPolicy()
	out := p.String()
	assert.Contains(t, out, "timeout=1s")
	assert.Contains(t, out, "max_retries=2")
}
