package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

type flowStat struct {
	messages int64
	bytes    int64
}

var (
	errorsFeed     int64
	errorsEnrich   int64
	warnsFeed      int64
	warnsEnrich    int64
	feedReads      int64
	pairLookups    int64
	archiveWrites  int64
	publishedRuns  int64
	flows          sync.Map // map[string]*flowStat
)

func recordWarn(component string) {
	if strings.Contains(component, "feed") || strings.Contains(component, "source") {
		atomic.AddInt64(&warnsFeed, 1)
	} else if strings.Contains(component, "enrich") {
		atomic.AddInt64(&warnsEnrich, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "feed") || strings.Contains(component, "source") {
		atomic.AddInt64(&errorsFeed, 1)
	} else if strings.Contains(component, "enrich") {
		atomic.AddInt64(&errorsEnrich, 1)
	}
}

func IncrementFeedRead(size int) {
	atomic.AddInt64(&feedReads, 1)
	recordFlow("feed_rest", size)
}

func IncrementPairLookup(size int) {
	atomic.AddInt64(&pairLookups, 1)
	recordFlow("pair_lookup", size)
}

func IncrementArchiveWrite(size int64) {
	atomic.AddInt64(&archiveWrites, 1)
	recordFlow("archive_write", int(size))
}

func IncrementPublishedRun() {
	atomic.AddInt64(&publishedRuns, 1)
}

func RecordFlowMessage(name string, size int) {
	recordFlow(name, size)
}

func recordFlow(name string, size int) {
	v, _ := flows.LoadOrStore(name, &flowStat{})
	fs := v.(*flowStat)
	atomic.AddInt64(&fs.messages, 1)
	atomic.AddInt64(&fs.bytes, int64(size))
}

// StartReport emits a periodic summary of internal counters and host
// resources until the context is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				emitReport(log)
			}
		}
	}()
}

// ResourceSnapshot samples host cpu, memory and disk usage plus the
// goroutine count. Gauges the host cannot report are omitted.
func ResourceSnapshot() Fields {
	fields := Fields{
		"goroutines": runtime.NumGoroutine(),
	}
	if percs, err := cpu.Percent(0, false); err == nil && len(percs) > 0 {
		fields["cpu_percent"] = percs[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		fields["memory_percent"] = vm.UsedPercent
	}
	if du, err := disk.Usage("/"); err == nil {
		fields["disk_percent"] = du.UsedPercent
	}
	return fields
}

func emitReport(log *Log) {
	fields := Fields{
		"feed_reads":     atomic.LoadInt64(&feedReads),
		"pair_lookups":   atomic.LoadInt64(&pairLookups),
		"archive_writes": atomic.LoadInt64(&archiveWrites),
		"published_runs": atomic.LoadInt64(&publishedRuns),
		"feed_warns":     atomic.LoadInt64(&warnsFeed),
		"feed_errors":    atomic.LoadInt64(&errorsFeed),
		"enrich_warns":   atomic.LoadInt64(&warnsEnrich),
		"enrich_errors":  atomic.LoadInt64(&errorsEnrich),
	}
	for k, v := range ResourceSnapshot() {
		fields[k] = v
	}

	flows.Range(func(k, v interface{}) bool {
		fs := v.(*flowStat)
		fields["flow_"+k.(string)+"_messages"] = atomic.LoadInt64(&fs.messages)
		fields["flow_"+k.(string)+"_bytes"] = atomic.LoadInt64(&fs.bytes)
		return true
	})

	log.WithComponent("report").WithFields(fields).Info("periodic report")
}
