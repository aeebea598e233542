//go:build !unix

package skiplist

import "os"

// Advisory locking is unix-only. Elsewhere appends rely on O_APPEND alone.

func lockShared(*os.File) error { return nil }

func lockExclusive(*os.File) error { return nil }

func unlock(*os.File) error { return nil }
