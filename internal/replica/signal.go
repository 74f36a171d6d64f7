package replica

import "syscall"

const unixSIGKILL = syscall.SIGKILL

func signalOf(signo int) syscall.Signal {
	return syscall.Signal(signo)
}
