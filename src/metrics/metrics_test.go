package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPlatformError(t *testing.T) {
	before := testutil.ToFloat64(platformErrorsTotal.WithLabelValues("ban", "rate_limited"))
	RecordPlatformError("ban", errors.New("HTTP 429"))
	RecordPlatformError("ban", nil)
	after := testutil.ToFloat64(platformErrorsTotal.WithLabelValues("ban", "rate_limited"))
	if after-before != 1 {
		t.Fatalf("rate limited ban errors: got %v, want 1", after-before)
	}
}

func TestRecordVerification(t *testing.T) {
	before := testutil.ToFloat64(verificationsTotal.WithLabelValues("verified"))
	RecordVerification("verified")
	if got := testutil.ToFloat64(verificationsTotal.WithLabelValues("verified")) - before; got != 1 {
		t.Fatalf("verified count delta: got %v", got)
	}
}
