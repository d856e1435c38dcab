package shm

import (
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// CanCreate reports whether a region of size bytes fits at path. Only
// regions under /dev/shm are checked; anything else is assumed to fit.
func CanCreate(size uint64, path string) bool {
	if runtime.GOOS != "linux" || !strings.HasPrefix(path, DevShm+"/") {
		return true
	}
	stat, err := disk.Usage(DevShm)
	if err != nil {
		return true
	}
	return stat.Free >= size
}
