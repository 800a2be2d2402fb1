package pipeline

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/logger"
)

const mib = 1024 * 1024

// memoryStats returns total and available memory in bytes
type memoryStats func() (total uint64, available uint64, err error)

func virtualMemory() (uint64, uint64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// lowMemory reports whether each of workers would get less than minPerWorkerMB
// of the currently available memory. A failed probe is logged, not fatal.
func (d *Driver) lowMemory(workers, minPerWorkerMB int) bool {
	if minPerWorkerMB <= 0 || d.memory == nil {
		return false
	}

	total, available, err := d.memory()
	if err != nil {
		d.logger.Debugw("Memory probe failed", logger.FieldError, err)
		return false
	}

	perWorker := available / mib / uint64(workers)
	if perWorker >= uint64(minPerWorkerMB) {
		return false
	}

	d.logger.Warnw("Low memory for the configured workers, builds may be killed",
		"available_mb", available/mib,
		"total_mb", total/mib,
		"per_worker_mb", perWorker,
		"min_per_worker_mb", minPerWorkerMB,
		logger.FieldWorkers, workers,
	)
	return true
}
