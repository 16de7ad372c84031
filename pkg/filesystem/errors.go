package filesystem

import (
	"errors"
	"syscall"

	"github.com/JakWai01/http-mount/pkg/remote"
)

// errno maps a reader failure to the code returned to the failing call.
func errno(err error) syscall.Errno {
	var rerr *remote.Error
	if !errors.As(err, &rerr) {
		return syscall.EIO
	}

	switch rerr.Kind {
	case remote.KindAccess:
		return syscall.EACCES
	case remote.KindGeneric:
		if code := rerr.Errno(); code != 0 {
			return code
		}
		return syscall.EIO
	default:
		return syscall.EIO
	}
}
