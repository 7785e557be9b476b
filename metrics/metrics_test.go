package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordErrorDetails(t *testing.T) {
	// Test with nil error
	RecordErrorDetails("test", nil)

	// Test with actual error
	RecordErrorDetails("test", errors.New("sample error"))
}

func TestRecordTestExecuted(t *testing.T) {
	before := testutil.ToFloat64(testsExecutedTotal.WithLabelValues("failed"))
	RecordTestExecuted(types.StateFailed)
	RecordTestExecuted(types.StateFailed)
	RecordTestExecuted(types.StatePassed)
	assert.Equal(t, before+2, testutil.ToFloat64(testsExecutedTotal.WithLabelValues("failed")))
}

func TestRecordRunLifecycle(t *testing.T) {
	RecordRunStarted("sol")
	assert.Equal(t, 0.0, testutil.ToFloat64(runProgress))
	RecordProgress(0.4)
	assert.Equal(t, 0.4, testutil.ToFloat64(runProgress))
	RecordRunFinished("sol", 2*time.Second)
	assert.Equal(t, 2.0, testutil.ToFloat64(runDuration.WithLabelValues("sol")))
}

func TestRecordEnrichment(t *testing.T) {
	found := testutil.ToFloat64(enrichResultsTotal.WithLabelValues("true"))
	missing := testutil.ToFloat64(enrichResultsTotal.WithLabelValues("false"))
	RecordEnrichment(time.Millisecond, 3, 5)
	assert.Equal(t, found+3, testutil.ToFloat64(enrichResultsTotal.WithLabelValues("true")))
	assert.Equal(t, missing+2, testutil.ToFloat64(enrichResultsTotal.WithLabelValues("false")))
}
