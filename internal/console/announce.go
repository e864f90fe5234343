package console

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"
)

// DNS-SD service types a scoreboard can browse for.
const (
	ServiceHost   = "_quizlink-host._tcp"
	ServicePlayer = "_quizlink-player._tcp"
	DefaultDomain = "local."
)

// MDNSServer is a live mDNS registration.
type MDNSServer interface {
	Shutdown()
}

// MDNSRegistrar creates mDNS registrations. Tests substitute a fake.
type MDNSRegistrar interface {
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

type zeroconfRegistrar struct{}

func (zeroconfRegistrar) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// Announcer publishes a console address over DNS-SD.
type Announcer struct {
	registrar MDNSRegistrar
}

// NewAnnouncer returns an Announcer backed by grandcat/zeroconf.
func NewAnnouncer() *Announcer {
	return &Announcer{registrar: zeroconfRegistrar{}}
}

// Announce registers instance under service for the port in addr. The
// returned func withdraws the registration.
func (a *Announcer) Announce(instance, service, addr string, txt ...string) (withdraw func(), err error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("console: announce %s: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("console: announce %s: invalid port %q", addr, portStr)
	}

	txt = append([]string{"api=/api/v1"}, txt...)
	server, err := a.registrar.Register(instance, service, DefaultDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("console: mDNS registration for %s: %w", service, err)
	}

	slog.Info("[console] announced", "instance", instance, "service", service, "port", port)
	return server.Shutdown, nil
}
