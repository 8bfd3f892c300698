package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	kverrors "github.com/kartikbazzad/ustorekv/internal/errors"
)

func TestObserveRecordsCounters(t *testing.T) {
	m := New()

	m.Observe("read", nil, 5*time.Millisecond)
	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("read", "ok")); got != 1 {
		t.Errorf("operations_total{read,ok} = %v, want 1", got)
	}

	m.Observe("write", kverrors.ErrConflict, time.Millisecond)
	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("write", "error")); got != 1 {
		t.Errorf("operations_total{write,error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("permanent")); got != 1 {
		t.Errorf("errors_total{permanent} = %v, want 1", got)
	}
}

func TestSetGauges(t *testing.T) {
	m := New()
	m.SetGauges(3, 4096, 7)

	if got := testutil.ToFloat64(m.CollectionsGauge); got != 3 {
		t.Errorf("CollectionsGauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.YoungestGenGauge); got != 7 {
		t.Errorf("YoungestGenGauge = %v, want 7", got)
	}
}
