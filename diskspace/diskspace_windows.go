//go:build windows

package diskspace

import "golang.org/x/sys/windows"

// freeBytes reports bytes available to the calling user on the volume
// containing path, via GetDiskFreeSpaceEx.
func freeBytes(path string) (int64, error) {
	var freeAvailable, totalBytes, totalFree uint64
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeAvailable, &totalBytes, &totalFree); err != nil {
		return 0, err
	}
	return int64(freeAvailable), nil
}
