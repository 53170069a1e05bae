//go:build !linux

package disc

func readCopyright(uintptr) (bool, error) {
	return false, ErrUnsupported
}
