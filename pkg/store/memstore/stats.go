package memstore

import (
	"sync/atomic"
	"time"

	"github.com/zhangyunhao116/skipmap"

	"keyscan/pkg/types"
)

type commandStat struct {
	calls atomic.Uint64
	usec  atomic.Uint64
}

// commandStats mirrors INFO commandstats: per command name, sorted by name.
// Reset swaps in a fresh table instead of zeroing counters in place, so a
// reader never sees calls from one window mixed with time from another.
type commandStats struct {
	table atomic.Pointer[skipmap.FuncMap[string, *commandStat]]
}

func newCommandStats() *commandStats {
	s := &commandStats{}
	s.reset()
	return s
}

func newStatTable() *skipmap.FuncMap[string, *commandStat] {
	return skipmap.NewFunc[string, *commandStat](func(a, b string) bool {
		return a < b
	})
}

func (s *commandStats) record(name types.OpClass, d time.Duration) {
	table := s.table.Load()
	st, ok := table.Load(string(name))
	if !ok {
		st, _ = table.LoadOrStore(string(name), &commandStat{})
	}
	st.calls.Add(1)
	st.usec.Add(uint64(d.Microseconds()))
}

func (s *commandStats) get(name types.OpClass) types.Counters {
	st, ok := s.table.Load().Load(string(name))
	if !ok {
		return types.Counters{}
	}
	return types.NewCounters(st.calls.Load(), time.Duration(st.usec.Load())*time.Microsecond)
}

func (s *commandStats) reset() {
	s.table.Store(newStatTable())
}
