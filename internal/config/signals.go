package config

import "syscall"

// signalsByName accepts the common textual spellings a config author would
// write for stop_signal, independent of platform signal numbering quirks.
var signalsByName = map[string]int{
	"HUP":  int(syscall.SIGHUP),
	"INT":  int(syscall.SIGINT),
	"QUIT": int(syscall.SIGQUIT),
	"TERM": int(syscall.SIGTERM),
	"KILL": int(syscall.SIGKILL),
	"USR1": int(syscall.SIGUSR1),
	"USR2": int(syscall.SIGUSR2),
}
