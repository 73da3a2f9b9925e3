package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/liquidgecka/testlib"

	"github.com/liquidgecka/eventfs/internal/quota"
)

func TestSpool_CreateQueue(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s, cleanup := newTestSpool(T, nil)
	defer cleanup()

	T.ExpectSuccess(s.CreateQueue("events", 1000))
	info, err := os.Stat(filepath.Join(s.settings.BaseDirectory, "events"))
	T.ExpectSuccess(err)
	T.Equal(info.IsDir(), true)

	// The owner record is written alongside the entries.
	data, err := os.ReadFile(filepath.Join(
		s.settings.BaseDirectory, "events", ownerFile))
	T.ExpectSuccess(err)
	T.Equal(string(data), "1000\n")
	T.Equal(s.settings.Usage.NumDirs(1000), uint64(1))

	T.ExpectErrorMessage(
		s.CreateQueue("events", 1000),
		"The queue events already exists.")
}

func TestSpool_CreateQueue_InvalidNames(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s, cleanup := newTestSpool(T, nil)
	defer cleanup()

	for _, name := range []string{"", ".hidden", "a/b", `a\b`} {
		err := s.CreateQueue(name, 1000)
		T.Equal(err, ErrInvalidName(name))
	}
}

func TestSpool_AppendHeadPop(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s, cleanup := newTestSpool(T, nil)
	defer cleanup()

	T.ExpectSuccess(s.CreateQueue("events", 1000))
	first, err := s.Append("events", []byte("first payload"))
	T.ExpectSuccess(err)
	second, err := s.Append("events", []byte("second payload"))
	T.ExpectSuccess(err)
	T.NotEqual(first, second)

	length, err := s.Len("events")
	T.ExpectSuccess(err)
	T.Equal(length, 2)

	// Head does not consume.
	payload, name, err := s.Head("events")
	T.ExpectSuccess(err)
	T.Equal(payload, []byte("first payload"))
	T.Equal(name, first)
	length, err = s.Len("events")
	T.ExpectSuccess(err)
	T.Equal(length, 2)

	// Pop consumes in FIFO order.
	payload, err = s.Pop("events")
	T.ExpectSuccess(err)
	T.Equal(payload, []byte("first payload"))
	payload, err = s.Pop("events")
	T.ExpectSuccess(err)
	T.Equal(payload, []byte("second payload"))
	_, err = s.Pop("events")
	T.Equal(err, ErrQueueEmpty("events"))

	// The backing files are removed by the work queue shortly after.
	T.TryUntil(
		func() bool {
			_, err := os.Stat(filepath.Join(
				s.settings.BaseDirectory, "events", first))
			return os.IsNotExist(err)
		},
		time.Second*5,
		"The popped entry's backing file was never removed.")
	T.TryUntil(
		func() bool { return s.settings.Usage.NumFiles(1000) == 0 },
		time.Second*5,
		"The usage accounting was never released.")
}

func TestSpool_UnknownQueue(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s, cleanup := newTestSpool(T, nil)
	defer cleanup()

	_, err := s.Append("missing", []byte("x"))
	T.Equal(err, ErrQueueNotFound("missing"))
	_, _, err = s.Head("missing")
	T.Equal(err, ErrQueueNotFound("missing"))
	_, err = s.Pop("missing")
	T.Equal(err, ErrQueueNotFound("missing"))
	_, err = s.Len("missing")
	T.Equal(err, ErrQueueNotFound("missing"))
	T.Equal(s.RemoveQueue("missing"), ErrQueueNotFound("missing"))
}

func TestSpool_QuotaDirs(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s, cleanup := newTestSpool(T, func(settings *Settings) {
		settings.Quotas = quota.NewTable(quota.Limits{MaxDirs: 1})
	})
	defer cleanup()

	T.ExpectSuccess(s.CreateQueue("one", 1000))
	err := s.CreateQueue("two", 1000)
	T.Equal(err, ErrQuotaExceeded{Resource: "directories"})

	// A different owner has its own allowance.
	T.ExpectSuccess(s.CreateQueue("two", 1001))
}

func TestSpool_QuotaFiles(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s, cleanup := newTestSpool(T, func(settings *Settings) {
		settings.Quotas = quota.NewTable(quota.Limits{MaxFiles: 2})
	})
	defer cleanup()

	T.ExpectSuccess(s.CreateQueue("events", 1000))
	_, err := s.Append("events", []byte("one"))
	T.ExpectSuccess(err)
	_, err = s.Append("events", []byte("two"))
	T.ExpectSuccess(err)
	_, err = s.Append("events", []byte("three"))
	T.Equal(err, ErrQuotaExceeded{Resource: "files"})

	// Popping an entry frees the allowance once the file is gone.
	_, err = s.Pop("events")
	T.ExpectSuccess(err)
	T.TryUntil(
		func() bool {
			_, err := s.Append("events", []byte("three"))
			return err == nil
		},
		time.Second*5,
		"The file quota was never released.")
}

func TestSpool_QuotaFilesPerDir(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s, cleanup := newTestSpool(T, func(settings *Settings) {
		settings.Quotas = quota.NewTable(quota.Limits{MaxFilesPerDir: 1})
	})
	defer cleanup()

	T.ExpectSuccess(s.CreateQueue("a", 1000))
	T.ExpectSuccess(s.CreateQueue("b", 1000))
	_, err := s.Append("a", []byte("one"))
	T.ExpectSuccess(err)
	_, err = s.Append("a", []byte("two"))
	T.Equal(err, ErrQuotaExceeded{Resource: "files per directory"})

	// The per directory limit is per queue, not per owner.
	_, err = s.Append("b", []byte("one"))
	T.ExpectSuccess(err)
}

func TestSpool_QuotaBytes(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s, cleanup := newTestSpool(T, func(settings *Settings) {
		settings.Quotas = quota.NewTable(quota.Limits{MaxBytes: 100})
	})
	defer cleanup()

	T.ExpectSuccess(s.CreateQueue("events", 1000))
	_, err := s.Append("events", make([]byte, 200))
	T.Equal(err, ErrQuotaExceeded{Resource: "bytes"})
	_, err = s.Append("events", []byte("small"))
	T.ExpectSuccess(err)
}

func TestSpool_TTLSurvivesStopStart(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s, cleanup := newTestSpool(T, func(settings *Settings) {
		settings.DefaultTTL = time.Second / 10
		settings.ReapInterval = time.Hour
	})
	defer cleanup()

	T.ExpectSuccess(s.CreateQueue("events", 1000))
	name, err := s.Append("events", []byte("still mortal"))
	T.ExpectSuccess(err)

	// Stop cancels the expiry timers; a restart within the same process
	// must rearm them or entries appended before the cycle never expire.
	s.Stop()
	T.ExpectSuccess(s.Start())
	path := filepath.Join(s.settings.BaseDirectory, "events", name)
	T.TryUntil(
		func() bool {
			length, err := s.Len("events")
			return err == nil && length == 0
		},
		time.Second*5,
		"The entry never expired after a stop/start cycle.")
	T.TryUntil(
		func() bool {
			_, err := os.Stat(path)
			return os.IsNotExist(err)
		},
		time.Second*5,
		"The backing file was never removed after a stop/start cycle.")
}

func TestSpool_TTLExpiry(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s, cleanup := newTestSpool(T, func(settings *Settings) {
		settings.DefaultTTL = time.Second / 10
	})
	defer cleanup()

	T.ExpectSuccess(s.CreateQueue("events", 1000))
	name, err := s.Append("events", []byte("short lived"))
	T.ExpectSuccess(err)

	// The entry and its backing file disappear without any consumer.
	T.TryUntil(
		func() bool {
			length, err := s.Len("events")
			return err == nil && length == 0
		},
		time.Second*5,
		"The entry never expired.")
	T.TryUntil(
		func() bool {
			_, err := os.Stat(filepath.Join(
				s.settings.BaseDirectory, "events", name))
			return os.IsNotExist(err)
		},
		time.Second*5,
		"The expired entry's backing file was never removed.")
	T.TryUntil(
		func() bool { return s.settings.Usage.NumBytes(1000) == 0 },
		time.Second*5,
		"The usage accounting was never released.")
}

func TestSpool_RemoveQueue(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s, cleanup := newTestSpool(T, nil)
	defer cleanup()

	T.ExpectSuccess(s.CreateQueue("events", 1000))
	for i := 0; i < 5; i++ {
		_, err := s.Append("events", []byte(fmt.Sprintf("payload %d", i)))
		T.ExpectSuccess(err)
	}
	T.ExpectSuccess(s.RemoveQueue("events"))

	// The queue is gone from the API immediately.
	_, err := s.Len("events")
	T.Equal(err, ErrQueueNotFound("events"))

	// And from disk shortly after.
	T.TryUntil(
		func() bool {
			_, err := os.Stat(filepath.Join(
				s.settings.BaseDirectory, "events"))
			return os.IsNotExist(err)
		},
		time.Second*5,
		"The queue directory was never removed.")
	T.TryUntil(
		func() bool {
			return s.settings.Usage.NumDirs(1000) == 0 &&
				s.settings.Usage.NumFiles(1000) == 0 &&
				s.settings.Usage.NumBytes(1000) == 0
		},
		time.Second*5,
		"The usage accounting was never released.")
}

func TestSpool_CorruptEntry(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s, cleanup := newTestSpool(T, nil)
	defer cleanup()

	T.ExpectSuccess(s.CreateQueue("events", 1000))
	name, err := s.Append("events", []byte("pristine payload"))
	T.ExpectSuccess(err)

	// Flip the last payload byte on disk.
	path := filepath.Join(s.settings.BaseDirectory, "events", name)
	data, err := os.ReadFile(path)
	T.ExpectSuccess(err)
	data[len(data)-1] ^= 0xff
	T.ExpectSuccess(os.WriteFile(path, data, 0644))

	_, _, err = s.Head("events")
	T.Equal(err, ErrEntryCorrupt(name))
}

func TestSpool_Recover(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s, cleanup := newTestSpool(T, nil)
	T.ExpectSuccess(s.CreateQueue("events", 1000))
	_, err := s.Append("events", []byte("survives restarts"))
	T.ExpectSuccess(err)
	_, err = s.Append("events", []byte("so does this"))
	T.ExpectSuccess(err)
	base := s.settings.BaseDirectory
	cleanup()

	// A brand new spool over the same directory recovers the queue, its
	// entries and its accounting.
	recovered, cleanup2 := newTestSpool(T, func(settings *Settings) {
		settings.BaseDirectory = base
	})
	defer cleanup2()
	length, err := recovered.Len("events")
	T.ExpectSuccess(err)
	T.Equal(length, 2)
	T.Equal(recovered.settings.Usage.NumDirs(1000), uint64(1))
	T.Equal(recovered.settings.Usage.NumFiles(1000), uint64(2))

	payload, err := recovered.Pop("events")
	T.ExpectSuccess(err)
	T.Equal(payload, []byte("survives restarts"))

	// New appends continue the sequence rather than colliding with the
	// recovered entries.
	_, err = recovered.Append("events", []byte("newer"))
	T.ExpectSuccess(err)
	payload, err = recovered.Pop("events")
	T.ExpectSuccess(err)
	T.Equal(payload, []byte("so does this"))
	payload, err = recovered.Pop("events")
	T.ExpectSuccess(err)
	T.Equal(payload, []byte("newer"))
}

func TestSpool_Queues(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s, cleanup := newTestSpool(T, nil)
	defer cleanup()

	T.Equal(len(s.Queues()), 0)
	T.ExpectSuccess(s.CreateQueue("a", 1000))
	T.ExpectSuccess(s.CreateQueue("b", 1000))
	names := s.Queues()
	T.Equal(len(names), 2)
}
