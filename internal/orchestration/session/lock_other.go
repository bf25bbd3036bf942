//go:build !unix

package session

import "os"

const flockSupported = false

func lockFile(*os.File) error { return ErrLockUnsupported }

func unlockFile(*os.File) error { return nil }
