// Package config holds the ports, addresses, timeouts and counts shared by
// the three roles.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Role represents which process is running.
type Role string

const (
	RoleOriginator Role = "originator"
	RoleRelay      Role = "relay"
	RoleResponder  Role = "responder"
)

// Config stores every tunable of the system. Default returns the values of
// the reference run; the CLIs only override them through optional flags.
type Config struct {
	Host string // address the roles use to reach each other

	ClientPort    int // relay, originator-facing
	ServerPort    int // relay, responder-facing
	ResponderPort int // responder's own socket

	ReplyTimeout  time.Duration // originator/responder wait for any reply; relay wait for the responder's reply
	QueueWait     time.Duration // relay wait for a queued packet after a pull
	PollInterval  time.Duration // relay receive slice between stop checks
	RelayLifetime time.Duration // relay CLI run time
	CyclePause    time.Duration // minimum spacing between responder cycles

	Requests     int    // originator requests per run
	InvalidIndex int    // zero-based request replaced by a malformed packet; -1 disables
	MaxCycles    int    // responder cycle budget
	QueueDepth   int    // relay queue capacity
	Mode         string // transfer mode written into requests
}

// Default returns the configuration of the reference run.
func Default() Config {
	return Config{
		Host:          "127.0.0.1",
		ClientPort:    50023,
		ServerPort:    50024,
		ResponderPort: 50069,
		ReplyTimeout:  5 * time.Second,
		QueueWait:     2 * time.Second,
		PollInterval:  250 * time.Millisecond,
		RelayLifetime: 15 * time.Second,
		CyclePause:    200 * time.Millisecond,
		Requests:      11,
		InvalidIndex:  9,
		MaxCycles:     11,
		QueueDepth:    1,
		Mode:          "netascii",
	}
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	for name, port := range map[string]int{
		"client-port":    c.ClientPort,
		"server-port":    c.ServerPort,
		"responder-port": c.ResponderPort,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("invalid %s %d: must be 0~65535", name, port)
		}
	}

	switch {
	case c.Host == "":
		return errors.New("host must not be empty")
	case c.ReplyTimeout <= 0:
		return errors.New("reply-timeout must be positive")
	case c.QueueWait <= 0:
		return errors.New("queue-wait must be positive")
	case c.PollInterval <= 0:
		return errors.New("poll-interval must be positive")
	case c.CyclePause < 0:
		return errors.New("cycle-pause must not be negative")
	case c.Requests < 0:
		return errors.New("requests must not be negative")
	case c.MaxCycles <= 0:
		return errors.New("max-cycles must be positive")
	case c.QueueDepth <= 0:
		return errors.New("queue-depth must be positive")
	}
	return nil
}

// RelayClientAddr is where the originator sends its requests.
func (c Config) RelayClientAddr() (*net.UDPAddr, error) {
	return resolve(c.Host, c.ClientPort)
}

// RelayServerAddr is where the responder sends its pulls.
func (c Config) RelayServerAddr() (*net.UDPAddr, error) {
	return resolve(c.Host, c.ServerPort)
}

func resolve(host string, port int) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s:%d: %w", host, port, err)
	}
	return addr, nil
}

// RegisterFlags binds the fields relevant to role onto fs, using the current
// values of c as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet, role Role) {
	fs.StringVar(&c.Host, "host", c.Host, "address of the relay as seen by the other roles")
	fs.DurationVar(&c.ReplyTimeout, "reply-timeout", c.ReplyTimeout, "how long to wait for a reply")

	switch role {
	case RoleOriginator:
		fs.IntVar(&c.ClientPort, "relay-port", c.ClientPort, "relay port facing the originator")
		fs.IntVar(&c.Requests, "requests", c.Requests, "number of requests to send")
		fs.IntVar(&c.InvalidIndex, "invalid-index", c.InvalidIndex, "zero-based request sent malformed (-1 = none)")
		fs.StringVar(&c.Mode, "mode", c.Mode, "transfer mode")

	case RoleRelay:
		fs.IntVar(&c.ClientPort, "client-port", c.ClientPort, "port facing the originator")
		fs.IntVar(&c.ServerPort, "server-port", c.ServerPort, "port facing the responder")
		fs.DurationVar(&c.QueueWait, "queue-wait", c.QueueWait, "how long a pull waits for a queued request")
		fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "receive slice between stop checks")
		fs.DurationVar(&c.RelayLifetime, "lifetime", c.RelayLifetime, "how long the relay runs")
		fs.IntVar(&c.QueueDepth, "queue-depth", c.QueueDepth, "maximum queued originator packets")

	case RoleResponder:
		fs.IntVar(&c.ServerPort, "relay-port", c.ServerPort, "relay port facing the responder")
		fs.IntVar(&c.ResponderPort, "port", c.ResponderPort, "local port to bind")
		fs.IntVar(&c.MaxCycles, "max-cycles", c.MaxCycles, "cycle budget")
		fs.DurationVar(&c.CyclePause, "cycle-pause", c.CyclePause, "minimum spacing between cycles")
	}
}
