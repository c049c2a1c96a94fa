package orchestrator

import (
	"net"
	"strconv"
	"time"
)

// Instance is one player process plus its dedicated control connection.
// Index 0 is the master; every other instance is a slave.
type Instance struct {
	Index int
	Host  string
	Port  int
	// Args is the per-instance argument template; FilenamePlaceholder is
	// replaced by the media file at launch.
	Args string
}

// NewInstances builds the instance set for the given argument templates.
// Ports are assigned from startPort upwards in template order.
func NewInstances(host string, startPort int, templates []string) []Instance {
	out := make([]Instance, 0, len(templates))
	for i, args := range templates {
		out = append(out, Instance{
			Index: i,
			Host:  host,
			Port:  startPort + i,
			Args:  args,
		})
	}
	return out
}

// IsMaster reports whether the instance's clock is authoritative.
func (i Instance) IsMaster() bool {
	return i.Index == 0
}

// Addr returns the RC listen address as host:port.
func (i Instance) Addr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

// Batch is an ordered set of command tokens delivered together from an
// external command source.
type Batch struct {
	ID         string
	Raw        string
	ReceivedAt time.Time
}

// ProcessState is the lifecycle state of a player process.
type ProcessState string

const (
	ProcessPending ProcessState = "pending"
	ProcessRunning ProcessState = "running"
	ProcessStopped ProcessState = "stopped"
	ProcessExited  ProcessState = "exited"
)

// ConnState is the state of an RC connection.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnFailed       ConnState = "failed"
)

// InstanceStatus is the runtime view of an instance exposed to operators.
type InstanceStatus struct {
	Index        int          `json:"index"`
	Addr         string       `json:"addr"`
	Master       bool         `json:"master"`
	Process      ProcessState `json:"process"`
	PID          int          `json:"pid,omitempty"`
	Conn         ConnState    `json:"conn"`
	LastError    string       `json:"last_error,omitempty"`
	LastSync     *int         `json:"last_sync,omitempty"`
	CommandsSent int64        `json:"commands_sent"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
