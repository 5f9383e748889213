//go:build linux

package cpus

import "golang.org/x/sys/unix"

func available() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 0
	}
	return set.Count()
}
