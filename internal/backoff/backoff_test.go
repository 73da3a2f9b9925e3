package backoff

import (
	"testing"
	"time"

	"bou.ke/monkey"
	"github.com/liquidgecka/testlib"
)

func TestBackOff_NoFailures(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	b := BackOff{
		Period: time.Minute,
		X:      time.Second,
		Max:    time.Second * 30,
	}
	T.Equal(b.Wait(), time.Duration(0))
}

func TestBackOff_Grows(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	b := BackOff{
		Period: time.Minute,
		X:      time.Second,
		Max:    time.Second * 30,
	}
	b.Failure()
	T.Equal(b.Wait(), time.Second)
	b.Failure()
	b.Failure()
	T.Equal(b.Wait(), time.Second*3)
}

func TestBackOff_Ceiling(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	b := BackOff{
		Period: time.Minute,
		X:      time.Second,
		Max:    time.Second * 5,
	}
	for i := 0; i < 100; i++ {
		b.Failure()
	}
	T.Equal(b.Wait(), time.Second*5)
}

func TestBackOff_Reset(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	b := BackOff{
		Period: time.Minute,
		X:      time.Second,
		Max:    time.Second * 30,
	}
	b.Failure()
	b.Failure()
	b.Reset()
	T.Equal(b.Wait(), time.Duration(0))
}

func TestBackOff_WindowExpires(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	b := BackOff{
		Period: time.Minute,
		X:      time.Second,
		Max:    time.Second * 30,
	}

	// Record failures "in the past" by patching time.Now, then verify that
	// they fall outside the window once the clock is restored.
	past := time.Now().Add(-time.Minute * 5)
	patch := monkey.Patch(time.Now, func() time.Time { return past })
	b.Failure()
	b.Failure()
	patch.Unpatch()

	T.Equal(b.Wait(), time.Duration(0))
}
