// Package discovery advertises the server on the local network over mDNS.
package discovery

import (
	"fmt"
	"log"

	"github.com/grandcat/zeroconf"
)

type Announcement struct {
	server  *zeroconf.Server
	service string
}

// Info is published in the TXT record of the announcement.
type Info struct {
	Version      string
	DocumentType string
	NodeID       string
}

func (i Info) txtRecords() []string {
	records := []string{"txtv=0"}
	if i.Version != "" {
		records = append(records, "version="+i.Version)
	}
	if i.DocumentType != "" {
		records = append(records, "doctype="+i.DocumentType)
	}
	if i.NodeID != "" {
		records = append(records, "node="+i.NodeID)
	}
	return records
}

func Announce(instance, service, domain string, port int, info Info) (*Announcement, error) {
	server, err := zeroconf.Register(instance, service, domain, port, info.txtRecords(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	log.Printf("[Discovery] mDNS service %s registered as %s on port %d", service, instance, port)
	return &Announcement{server: server, service: service}, nil
}

func (a *Announcement) Shutdown() {
	a.server.Shutdown()
	log.Printf("[Discovery] mDNS service %s withdrawn", a.service)
}
