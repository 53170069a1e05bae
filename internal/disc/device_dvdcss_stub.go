//go:build !dvdcss

package disc

func openDVDCSS(target string) (Device, error) {
	return nil, Wrap(ErrBackendUnavailable, "open "+target, "built without libdvdcss (rebuild with -tags dvdcss)", nil)
}
