package quota

import (
	"sync"
	"testing"

	"github.com/liquidgecka/testlib"
)

func TestTable_DefaultFallback(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	table := NewTable(Limits{
		MaxFiles:       100,
		MaxDirs:        10,
		MaxFilesPerDir: 50,
		MaxBytes:       1024,
	})

	// An owner with no override gets the defaults.
	l, ok := table.Lookup(1000)
	T.Equal(ok, false)
	T.Equal(l.MaxFiles, uint64(100))
	T.Equal(table.MaxFiles(1000), uint64(100))
	T.Equal(table.MaxDirs(1000), uint64(10))
	T.Equal(table.MaxFilesPerDir(1000), uint64(50))
	T.Equal(table.MaxBytes(1000), uint64(1024))
}

func TestTable_SetAndClear(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	table := NewTable(Limits{MaxFiles: 100})
	table.Set(1000, Limits{MaxFiles: 5, MaxBytes: 64})

	l, ok := table.Lookup(1000)
	T.Equal(ok, true)
	T.Equal(l.MaxFiles, uint64(5))
	T.Equal(l.MaxBytes, uint64(64))

	// Other owners are unaffected by the override.
	T.Equal(table.MaxFiles(1001), uint64(100))

	table.Clear(1000)
	_, ok = table.Lookup(1000)
	T.Equal(ok, false)
	T.Equal(table.MaxFiles(1000), uint64(100))
}

func TestUsage_Counts(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	u := NewUsage()
	T.Equal(u.NumFiles(1000), uint64(0))

	u.AddFiles(1000, 3)
	u.AddDirs(1000, 2)
	u.AddBytes(1000, 1024)
	T.Equal(u.NumFiles(1000), uint64(3))
	T.Equal(u.NumDirs(1000), uint64(2))
	T.Equal(u.NumBytes(1000), uint64(1024))

	u.AddFiles(1000, -1)
	u.AddBytes(1000, -24)
	T.Equal(u.NumFiles(1000), uint64(2))
	T.Equal(u.NumBytes(1000), uint64(1000))

	// Counters saturate at zero rather than wrapping.
	u.AddFiles(1000, -100)
	T.Equal(u.NumFiles(1000), uint64(0))
}

func TestUsage_Concurrent(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	u := NewUsage()
	wg := sync.WaitGroup{}
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				u.AddFiles(1000, 1)
			}
		}()
	}
	wg.Wait()
	T.Equal(u.NumFiles(1000), uint64(8000))
}
