package models

import "time"

// SSHTarget holds everything needed to open a session to one host.
type SSHTarget struct {
	Host           string
	Port           int
	Username       string
	Password       Secret
	Timeout        time.Duration
	KnownHostsFile string // empty accepts any host key
}
