// Package cpus reports how many CPUs the process may run on.
package cpus

import "runtime"

// Detect returns the number of CPUs available to this process, honoring the
// scheduler affinity mask where the platform exposes one. It is never less
// than 1.
func Detect() int {
	if n := available(); n > 0 {
		return n
	}
	return max(runtime.NumCPU(), 1)
}
