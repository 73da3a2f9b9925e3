package workqueue

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liquidgecka/testlib"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counts(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	reg := prom.NewRegistry()
	m, err := NewMetrics("test", reg)
	T.ExpectSuccess(err)

	w := &WorkQueue{}
	w.Init(Settings{Metrics: m})
	T.ExpectSuccess(w.Start())

	ran := int32(0)
	count := func(r *Request, data interface{}) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}
	fail := func(r *Request, data interface{}) error {
		atomic.AddInt32(&ran, 1)
		return fmt.Errorf("induced failure")
	}
	w.Enqueue(NewRequest(count, nil))
	w.Enqueue(NewRequest(count, nil))
	w.Enqueue(NewRequest(fail, nil))
	T.TryUntil(
		func() bool { return atomic.LoadInt32(&ran) == 3 },
		time.Second*5,
		"Not all work requests were executed.")
	T.ExpectSuccess(w.Stop())

	T.Equal(testutil.ToFloat64(m.processedTotal), float64(2))
	T.Equal(testutil.ToFloat64(m.failedTotal), float64(1))
	T.Equal(testutil.ToFloat64(m.depth), float64(0))

	// Anything left pending at destroy counts as discarded.
	w.Enqueue(NewRequest(count, nil))
	T.ExpectSuccess(w.Destroy())
	T.Equal(testutil.ToFloat64(m.discardedTotal), float64(1))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	reg := prom.NewRegistry()
	first, err := NewMetrics("dup", reg)
	T.ExpectSuccess(err)
	second, err := NewMetrics("dup", reg)
	T.ExpectSuccess(err)
	T.Equal(second.processedTotal, first.processedTotal)
}
