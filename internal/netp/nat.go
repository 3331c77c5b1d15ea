package netp

import (
	"fmt"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"

	"github.com/huin/goupnp/dcps/internetgateway2"
)

// PortMapper requests an external mapping for this node's peering port.
// NAT-PMP and UPnP IGD each have an implementation below; this package
// does not fall back from one to the other (spec §4.8 peer
// reachability: a node behind NAT still needs an externally dialable
// endpoint for incoming realtime/bootstrap connections).
type PortMapper interface {
	Map(internalPort uint16, lease time.Duration) (externalPort uint16, err error)
	Unmap(externalPort uint16) error
}

type natPMPMapper struct {
	client *natpmp.Client
}

// NewNATPMPMapper returns a NAT-PMP mapper for the gateway at gatewayIP,
// which the caller supplies (typically the default gateway from the local
// routing table). No request is sent until Map is called.
func NewNATPMPMapper(gatewayIP [4]byte) PortMapper {
	return &natPMPMapper{client: natpmp.NewClient(gatewayIP)}
}

func (m *natPMPMapper) Map(internalPort uint16, lease time.Duration) (uint16, error) {
	resp, err := m.client.AddPortMapping("tcp", int(internalPort), int(internalPort), int(lease.Seconds()))
	if err != nil {
		return 0, err
	}
	return resp.MappedExternalPort, nil
}

func (m *natPMPMapper) Unmap(externalPort uint16) error {
	_, err := m.client.AddPortMapping("tcp", int(externalPort), 0, 0)
	return err
}

type upnpMapper struct {
	client *internetgateway2.WANIPConnection1
}

// NewUPnPMapper discovers a WANIPConnection1 service on the local
// network, used when NAT-PMP is unavailable (most consumer routers speak
// one or the other, rarely neither).
func NewUPnPMapper() (PortMapper, error) {
	clients, _, err := internetgateway2.NewWANIPConnection1Clients()
	if err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("netp: no UPnP WANIPConnection1 gateway found")
	}
	return &upnpMapper{client: clients[0]}, nil
}

func (m *upnpMapper) Map(internalPort uint16, lease time.Duration) (uint16, error) {
	err := m.client.AddPortMapping("", internalPort, "TCP", internalPort, "lattice-node", true, "", uint32(lease.Seconds()))
	if err != nil {
		return 0, err
	}
	return internalPort, nil
}

func (m *upnpMapper) Unmap(externalPort uint16) error {
	return m.client.DeletePortMapping("", externalPort, "TCP")
}
