// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package netconfig

import (
	"crypto/rand"
	"errors"
	"net"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// scanCacheSize bounds the per-network scan cache. Old entries for BSSIDs
// not seen recently fall out first.
const scanCacheSize = 32

var (
	// ErrInvalidConfig is returned for a save of a nil or unusable record.
	ErrInvalidConfig = errors.New("invalid network configuration")
	// ErrNoSuchNetwork is returned for operations on an unknown id.
	ErrNoSuchNetwork = errors.New("no such network")
)

// Store is an in-memory network record store. The state machine worker is
// the main caller, but scan ingest and settings observers run elsewhere, so
// access is guarded.
type Store struct {
	mut            sync.RWMutex
	networks       map[int]*Network
	nextID         int
	lastSelectedID int
	lastSelectedAt time.Time

	// scanCaches maps network id to an LRU of scan records keyed by BSSID.
	// Kept outside the main lock: scan ingest is chatty and must not
	// contend with record updates.
	scanCaches *xsync.MapOf[int, *lru.Cache[string, ScanRecord]]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		networks: make(map[int]*Network),
		// The zero ID in a Network record means "new", so assignment
		// starts at 1.
		nextID:         1,
		lastSelectedID: InvalidNetworkID,
		scanCaches:     xsync.NewMapOf[int, *lru.Cache[string, ScanRecord]](),
	}
}

// Save adds a new record or updates an existing one (matched by ID when the
// ID is valid). It returns the assigned network id.
func (s *Store) Save(cfg *Network) (int, error) {
	if cfg == nil || cfg.SSID == "" {
		return InvalidNetworkID, ErrInvalidConfig
	}
	if cfg.KeyMgmt == KeyMgmtEAP && cfg.Enterprise == nil {
		return InvalidNetworkID, ErrInvalidConfig
	}

	s.mut.Lock()
	defer s.mut.Unlock()

	if cfg.ID != InvalidNetworkID && cfg.ID != 0 {
		existing, ok := s.networks[cfg.ID]
		if !ok {
			return InvalidNetworkID, ErrNoSuchNetwork
		}
		updated := cfg.unmaskedCopy()
		// Status-tracking fields are store-owned and survive a config save.
		updated.Status = existing.Status
		updated.HasEverConnected = existing.HasEverConnected
		updated.ValidatedInternetAccess = existing.ValidatedInternetAccess
		updated.NoInternetReports = existing.NoInternetReports
		updated.RecentFailureReason = existing.RecentFailureReason
		updated.HasRecentFailure = existing.HasRecentFailure
		updated.RandomizedMAC = existing.RandomizedMAC
		updated.LastConnectedAt = existing.LastConnectedAt
		s.networks[cfg.ID] = &updated
		return cfg.ID, nil
	}

	id := s.nextID
	s.nextID++
	stored := cfg.unmaskedCopy()
	stored.ID = id
	stored.Status = SelectionEnabled
	s.networks[id] = &stored
	return id, nil
}

// Remove deletes a record and its scan cache.
func (s *Store) Remove(id int) bool {
	s.mut.Lock()
	_, ok := s.networks[id]
	delete(s.networks, id)
	if s.lastSelectedID == id {
		s.lastSelectedID = InvalidNetworkID
	}
	s.mut.Unlock()
	s.scanCaches.Delete(id)
	return ok
}

// Network returns an external (masked) copy of the record.
func (s *Store) Network(id int) (Network, bool) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	n, ok := s.networks[id]
	if !ok {
		return Network{}, false
	}
	return n.masked(), true
}

// NetworkUnmasked returns a copy with key material intact, for handing to
// the native connect call.
func (s *Store) NetworkUnmasked(id int) (Network, bool) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	n, ok := s.networks[id]
	if !ok {
		return Network{}, false
	}
	return n.unmaskedCopy(), true
}

// Networks returns masked copies of all records.
func (s *Store) Networks() []Network {
	s.mut.RLock()
	defer s.mut.RUnlock()
	out := make([]Network, 0, len(s.networks))
	for _, n := range s.networks {
		out = append(out, n.masked())
	}
	return out
}

// ResolveBySSID returns the id of the record with the given SSID.
func (s *Store) ResolveBySSID(ssid string) (int, bool) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	for id, n := range s.networks {
		if n.SSID == ssid {
			return id, true
		}
	}
	return InvalidNetworkID, false
}

// EnableNetwork re-enables selection for the record.
func (s *Store) EnableNetwork(id int) bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	n, ok := s.networks[id]
	if !ok {
		return false
	}
	n.Status = SelectionEnabled
	return true
}

// SetSelectionStatus records a selection disable reason.
func (s *Store) SetSelectionStatus(id int, status SelectionStatus) bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	n, ok := s.networks[id]
	if !ok {
		return false
	}
	n.Status = status
	return true
}

// SetRecentFailure annotates the record with a recent failure reason. The
// annotation stays until explicitly cleared.
func (s *Store) SetRecentFailure(id, reason int) bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	n, ok := s.networks[id]
	if !ok {
		return false
	}
	n.HasRecentFailure = true
	n.RecentFailureReason = reason
	return true
}

// ClearRecentFailure removes the recent failure annotation.
func (s *Store) ClearRecentFailure(id int) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if n, ok := s.networks[id]; ok {
		n.HasRecentFailure = false
		n.RecentFailureReason = 0
	}
}

// RecordSuccessfulConnection stamps the record after a fully successful
// connect (association plus provisioning) and sets has-ever-connected.
func (s *Store) RecordSuccessfulConnection(id int) bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	n, ok := s.networks[id]
	if !ok {
		return false
	}
	n.HasEverConnected = true
	n.LastConnectedAt = time.Now()
	return true
}

// HasEverConnected reports whether the record ever completed a connect.
func (s *Store) HasEverConnected(id int) bool {
	s.mut.RLock()
	defer s.mut.RUnlock()
	n, ok := s.networks[id]
	return ok && n.HasEverConnected
}

// IncrementNoInternetReports bumps the validation failure counter and
// returns the new value.
func (s *Store) IncrementNoInternetReports(id int) int {
	s.mut.Lock()
	defer s.mut.Unlock()
	n, ok := s.networks[id]
	if !ok {
		return 0
	}
	n.NoInternetReports++
	return n.NoInternetReports
}

// SetValidatedInternetAccess records the validation verdict.
func (s *Store) SetValidatedInternetAccess(id int, ok bool) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if n, found := s.networks[id]; found {
		n.ValidatedInternetAccess = ok
	}
}

// SetLastSelectedNetwork records the user's explicit choice.
func (s *Store) SetLastSelectedNetwork(id int) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.lastSelectedID = id
	s.lastSelectedAt = time.Now()
}

// LastSelectedNetwork returns the last explicitly user-selected network id,
// or InvalidNetworkID.
func (s *Store) LastSelectedNetwork() int {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.lastSelectedID
}

// LastSelectedTimestamp returns when the last explicit selection happened.
func (s *Store) LastSelectedTimestamp() time.Time {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.lastSelectedAt
}

// GetOrCreateRandomizedMAC returns the record's randomized address,
// generating and persisting a fresh locally administered one on first use.
func (s *Store) GetOrCreateRandomizedMAC(id int) (net.HardwareAddr, error) {
	s.mut.Lock()
	defer s.mut.Unlock()
	n, ok := s.networks[id]
	if !ok {
		return nil, ErrNoSuchNetwork
	}
	if len(n.RandomizedMAC) == 6 {
		return append(net.HardwareAddr(nil), n.RandomizedMAC...), nil
	}
	mac := make(net.HardwareAddr, 6)
	if _, err := rand.Read(mac); err != nil {
		return nil, err
	}
	mac[0] = (mac[0] | 0x02) &^ 0x01 // locally administered, unicast
	n.RandomizedMAC = mac
	return append(net.HardwareAddr(nil), mac...), nil
}

// SetRandomizedMAC persists the address chosen for the record.
func (s *Store) SetRandomizedMAC(id int, mac net.HardwareAddr) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if n, ok := s.networks[id]; ok {
		n.RandomizedMAC = append(net.HardwareAddr(nil), mac...)
	}
}

// RemoveEphemeralNetworks purges ephemeral and Passpoint-provisioned
// records, returning the removed ids.
func (s *Store) RemoveEphemeralNetworks() []int {
	s.mut.Lock()
	var removed []int
	for id, n := range s.networks {
		if n.Ephemeral || n.IsPasspoint() {
			removed = append(removed, id)
			delete(s.networks, id)
			if s.lastSelectedID == id {
				s.lastSelectedID = InvalidNetworkID
			}
		}
	}
	s.mut.Unlock()
	for _, id := range removed {
		s.scanCaches.Delete(id)
	}
	return removed
}

// RecordScan caches a scan result for the network.
func (s *Store) RecordScan(id int, rec ScanRecord) {
	cache, _ := s.scanCaches.LoadOrCompute(id, func() *lru.Cache[string, ScanRecord] {
		c, _ := lru.New[string, ScanRecord](scanCacheSize)
		return c
	})
	cache.Add(rec.BSSID, rec)
}

// ScanRecordFor returns the cached scan result for the network and BSSID.
func (s *Store) ScanRecordFor(id int, bssid string) (ScanRecord, bool) {
	cache, ok := s.scanCaches.Load(id)
	if !ok {
		return ScanRecord{}, false
	}
	return cache.Get(bssid)
}
