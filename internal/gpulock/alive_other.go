//go:build !unix

package gpulock

import "os"

// processAlive can not probe without signals; a lease is then only cleared
// by its timeout or ForceUnlock.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
