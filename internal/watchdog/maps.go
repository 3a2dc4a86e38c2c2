package watchdog

import (
	"bufio"
	"path/filepath"
	"strconv"
	"strings"
)

// findModule returns the lowest start address mapped from a file named
// module. The maps file is sorted by address.
func findModule(sc *bufio.Scanner, module string) (uintptr, bool) {
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 {
			continue
		}
		path := strings.Join(fields[5:], " ")
		if !strings.EqualFold(filepath.Base(path), module) {
			continue
		}
		start, _, _ := strings.Cut(fields[0], "-")
		base, err := strconv.ParseUint(start, 16, 64)
		if err != nil {
			continue
		}
		return uintptr(base), true
	}
	return 0, false
}
