// Package syscall implements the kernel's user-space boundary: the
// fixed syscall table and the translation-aware buffer/string transfer
// helpers every syscall handler copies its arguments and results
// through.
package syscall

import (
	"github.com/go-simkernel/simkernel/defs"
	"github.com/go-simkernel/simkernel/sched"
	"github.com/go-simkernel/simkernel/vm"
)

// ReadBufferFromUser copies len(dst) bytes out of as starting at uva,
// one byte at a time through the MMU. A fault on any byte
// aborts the whole transfer; faultIn already retries the TLB miss that
// caused it, so the only error this can return is fatal.
func ReadBufferFromUser(caller *sched.Thread, as *vm.AddressSpace, uva int, dst []byte) defs.Err_t {
	for i := range dst {
		b, err := as.ReadByte(caller, uva+i)
		if err != defs.OK {
			return err
		}
		dst[i] = b
	}
	return defs.OK
}

// WriteBufferToUser copies src into as starting at uva, one byte at a
// time through the MMU.
func WriteBufferToUser(caller *sched.Thread, as *vm.AddressSpace, uva int, src []byte) defs.Err_t {
	for i, b := range src {
		if err := as.WriteByte(caller, uva+i, b); err != defs.OK {
			return err
		}
	}
	return defs.OK
}

// ReadStringFromUser copies a NUL-terminated string out of as starting
// at uva, one byte at a time, stopping at the first NUL or at maxLen
// bytes (whichever comes first). maxLen exceeded without a NUL is
// reported as EINVAL rather than read indefinitely.
func ReadStringFromUser(caller *sched.Thread, as *vm.AddressSpace, uva int, maxLen int) (string, defs.Err_t) {
	buf := make([]byte, 0, maxLen)
	for i := 0; i < maxLen; i++ {
		b, err := as.ReadByte(caller, uva+i)
		if err != defs.OK {
			return "", err
		}
		if b == 0 {
			return string(buf), defs.OK
		}
		buf = append(buf, b)
	}
	return "", defs.EINVAL
}

// WriteStringToUser copies s into as starting at uva, followed by a
// terminating NUL, one byte at a time.
func WriteStringToUser(caller *sched.Thread, as *vm.AddressSpace, uva int, s string) defs.Err_t {
	for i := 0; i < len(s); i++ {
		if err := as.WriteByte(caller, uva+i, s[i]); err != defs.OK {
			return err
		}
	}
	return as.WriteByte(caller, uva+len(s), 0)
}
