package wifi

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"hetnet-offload/controller/pkg/config"
	"hetnet-offload/controller/pkg/constants"
	"hetnet-offload/controller/pkg/coordinator"
)

// Grant is one active admission: an address leased to a (client, flow) pair
// with a bandwidth reservation against the shared capacity.
type Grant struct {
	ID            string
	ClientID      string
	FlowID        string
	Gateway       string
	Address       string
	BandwidthMbps float64
	GrantedAt     time.Time
}

type grantKey struct {
	clientID string
	flowID   string
}

// gatewayState tracks one gateway's free addresses and allocated bandwidth.
// Addresses are leased in configured order and returned to the back of the
// free list, so allocation is deterministic.
type gatewayState struct {
	name          string
	free          []string
	allocatedMbps float64
}

// Manager owns the shared wireless load and address pool. Every mutation
// happens under one lock, so concurrent admission requests are processed
// one at a time: an address is never double-allocated and the aggregate
// load never exceeds 1.0.
type Manager struct {
	mu           sync.Mutex
	capacityMbps float64
	load         float64
	authorized   map[string]bool
	gateways     []*gatewayState
	grants       map[grantKey]*Grant
	maxClients   int
}

func NewManager(cfg *config.WiFiConfig) *Manager {
	m := &Manager{
		capacityMbps: cfg.CapacityMbps,
		grants:       make(map[grantKey]*Grant),
		maxClients:   cfg.MaxClients,
	}
	if len(cfg.AuthorizedClients) > 0 {
		m.authorized = make(map[string]bool, len(cfg.AuthorizedClients))
		for _, id := range cfg.AuthorizedClients {
			m.authorized[id] = true
		}
	}
	for _, gw := range cfg.Gateways {
		free := make([]string, len(gw.Addresses))
		copy(free, gw.Addresses)
		m.gateways = append(m.gateways, &gatewayState{name: gw.Name, free: free})
	}
	return m
}

// Admit applies the admission-control sequence: authorization, client
// limit, capacity, gateway and address allocation. A repeated request for
// an active (client, flow) grant returns that grant unchanged.
func (m *Manager) Admit(req coordinator.OffloadRequest) coordinator.OffloadResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := grantKey{clientID: req.ClientID, flowID: req.FlowID}

	if existing, ok := m.grants[key]; ok {
		klog.V(3).Infof("%s %s flow=%s addr=%s load=%.2f (idempotent)",
			constants.EventAccepted, req.ClientID, req.FlowID, existing.Address, m.load)
		recordAdmission(true, "")
		return m.grantResponse(existing)
	}

	if m.authorized != nil && !m.authorized[req.ClientID] {
		return m.reject(req, constants.RejectUnauthorized)
	}

	if len(m.grants) >= m.maxClients {
		return m.reject(req, constants.RejectClientLimit)
	}

	delta := req.BandwidthMbps / m.capacityMbps
	if m.load+delta > 1.0+1e-9 {
		return m.reject(req, constants.RejectCapacity)
	}

	gw := m.leastLoadedGateway()
	if gw == nil {
		return m.reject(req, constants.RejectPoolExhausted)
	}

	address := gw.free[0]
	gw.free = gw.free[1:]
	gw.allocatedMbps += req.BandwidthMbps
	m.load += delta

	grant := &Grant{
		ID:            uuid.NewString(),
		ClientID:      req.ClientID,
		FlowID:        req.FlowID,
		Gateway:       gw.name,
		Address:       address,
		BandwidthMbps: req.BandwidthMbps,
		GrantedAt:     time.Now(),
	}
	m.grants[key] = grant

	klog.Infof("%s %s flow=%s gw=%s addr=%s bw=%.1fMbps load=%.2f",
		constants.EventAccepted, req.ClientID, req.FlowID, gw.name, address, req.BandwidthMbps, m.load)
	recordAdmission(true, "")
	setLoadGauge(m.load, len(m.grants))

	return m.grantResponse(grant)
}

func (m *Manager) grantResponse(g *Grant) coordinator.OffloadResponse {
	return coordinator.OffloadResponse{
		Version:       coordinator.SchemaVersion,
		Accepted:      true,
		GrantID:       g.ID,
		Address:       g.Address,
		Gateway:       g.Gateway,
		BandwidthMbps: g.BandwidthMbps,
		Load:          m.load,
	}
}

func (m *Manager) reject(req coordinator.OffloadRequest, reason string) coordinator.OffloadResponse {
	klog.Warningf("%s %s flow=%s reason=%s load=%.2f",
		constants.EventRejected, req.ClientID, req.FlowID, reason, m.load)
	recordAdmission(false, reason)
	return coordinator.OffloadResponse{
		Version: coordinator.SchemaVersion,
		Load:    m.load,
		Reason:  reason,
	}
}

// leastLoadedGateway returns the gateway with the lowest allocated bandwidth
// that still has a free address, or nil when every pool is exhausted.
func (m *Manager) leastLoadedGateway() *gatewayState {
	var best *gatewayState
	for _, gw := range m.gateways {
		if len(gw.free) == 0 {
			continue
		}
		if best == nil || gw.allocatedMbps < best.allocatedMbps {
			best = gw
		}
	}
	return best
}

// Release frees a grant's address and subtracts its load contribution.
// It reports whether a grant existed.
func (m *Manager) Release(clientID, flowID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := grantKey{clientID: clientID, flowID: flowID}
	grant, ok := m.grants[key]
	if !ok {
		return false
	}
	delete(m.grants, key)

	for _, gw := range m.gateways {
		if gw.name == grant.Gateway {
			gw.free = append(gw.free, grant.Address)
			gw.allocatedMbps -= grant.BandwidthMbps
			break
		}
	}

	m.load -= grant.BandwidthMbps / m.capacityMbps
	if m.load < 0 {
		m.load = 0
	}

	klog.Infof("%s %s flow=%s addr=%s load=%.2f",
		constants.EventReleased, clientID, flowID, grant.Address, m.load)
	setLoadGauge(m.load, len(m.grants))
	return true
}

// Load returns the current aggregate load fraction.
func (m *Manager) Load() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load
}

// Status reports the load snapshot served on the query interface.
func (m *Manager) Status() coordinator.LoadStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return coordinator.LoadStatus{
		Load:       m.load,
		Clients:    len(m.grants),
		MaxClients: m.maxClients,
		Timestamp:  float64(time.Now().UnixNano()) / 1e9,
	}
}
