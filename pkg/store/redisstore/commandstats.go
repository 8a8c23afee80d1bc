package redisstore

import (
	"bufio"
	"strconv"
	"strings"
	"time"

	"keyscan/pkg/types"
)

const cmdstatPrefix = "cmdstat_"

// ParseCommandStats reads the INFO commandstats section:
//
//	# Commandstats
//	cmdstat_scan:calls=3,usec=51,usec_per_call=17.00,rejected_calls=0,failed_calls=0
//
// Unknown fields are ignored; a line without calls is skipped.
func ParseCommandStats(info string) map[types.OpClass]types.Counters {
	out := make(map[types.OpClass]types.Counters)

	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, cmdstatPrefix) {
			continue
		}
		name, fields, ok := strings.Cut(strings.TrimPrefix(line, cmdstatPrefix), ":")
		if !ok {
			continue
		}

		var (
			calls    uint64
			usec     uint64
			hasCalls bool
		)
		for _, kv := range strings.Split(fields, ",") {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			switch k {
			case "calls":
				n, err := strconv.ParseUint(v, 10, 64)
				if err != nil {
					continue
				}
				calls, hasCalls = n, true
			case "usec":
				if n, err := strconv.ParseUint(v, 10, 64); err == nil {
					usec = n
				}
			}
		}
		if !hasCalls {
			continue
		}
		// подкоманды вида config|resetstat сводим к имени команды
		name, _, _ = strings.Cut(name, "|")
		prev := out[types.OpClass(name)]
		out[types.OpClass(name)] = types.NewCounters(prev.Calls+calls, prev.TotalTime+time.Duration(usec)*time.Microsecond)
	}
	return out
}
