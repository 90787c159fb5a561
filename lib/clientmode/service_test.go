// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package clientmode

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stationd/stationd/lib/native"
	"github.com/stationd/stationd/lib/netconfig"
	"github.com/stationd/stationd/lib/recovery"
)

const testIface = "wlan0"

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustParseMAC(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	mac, err := net.ParseMAC(s)
	if err != nil {
		t.Fatal(err)
	}
	return mac
}

// --- fakes ---

type fakeNative struct {
	mut sync.Mutex

	setupIfaces []string
	torndown    []string
	connects    []netconfig.Network
	connectErr  error
	disconnects int
	setMACs     []net.HardwareAddr
	mac         net.HardwareAddr
	signal      native.SignalPollResult
	signalPolls int
	stats       native.LinkLayerStats
	features    native.FeatureSet
	breach      func(rssi int8)
	rssiArmed   bool
}

func (f *fakeNative) SetupClientIface(iface string) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.setupIfaces = append(f.setupIfaces, iface)
	return nil
}

func (f *fakeNative) TeardownIface(iface string) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.torndown = append(f.torndown, iface)
	return nil
}

func (f *fakeNative) Connect(_ string, cfg netconfig.Network) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connects = append(f.connects, cfg)
	return nil
}

func (f *fakeNative) Disconnect(string) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeNative) Reassociate(string) error { return nil }

func (f *fakeNative) GetMACAddress(string) (net.HardwareAddr, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	return append(net.HardwareAddr(nil), f.mac...), nil
}

func (f *fakeNative) SetMACAddress(_ string, mac net.HardwareAddr) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.setMACs = append(f.setMACs, append(net.HardwareAddr(nil), mac...))
	f.mac = append(net.HardwareAddr(nil), mac...)
	return nil
}

func (f *fakeNative) SignalPoll(string) (native.SignalPollResult, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.signalPolls++
	return f.signal, nil
}

func (f *fakeNative) LinkLayerStats(string) (native.LinkLayerStats, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	return f.stats, nil
}

func (f *fakeNative) StartRSSIMonitoring(_ string, _, _ int8, breach func(rssi int8)) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.breach = breach
	f.rssiArmed = true
	return nil
}

func (f *fakeNative) StopRSSIMonitoring(string) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.rssiArmed = false
	return nil
}

func (f *fakeNative) SupportedFeatures(string) (native.FeatureSet, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	return f.features, nil
}

func (f *fakeNative) connectCount() int {
	f.mut.Lock()
	defer f.mut.Unlock()
	return len(f.connects)
}

func (f *fakeNative) disconnectCount() int {
	f.mut.Lock()
	defer f.mut.Unlock()
	return f.disconnects
}

func (f *fakeNative) signalPollCount() int {
	f.mut.Lock()
	defer f.mut.Unlock()
	return f.signalPolls
}

func (f *fakeNative) fireBreach(rssi int8) {
	f.mut.Lock()
	breach := f.breach
	f.mut.Unlock()
	if breach != nil {
		breach(rssi)
	}
}

type fakeIPClient struct {
	mut       sync.Mutex
	starts    int
	stops     int
	shutdowns int
}

func (f *fakeIPClient) StartProvisioning(string) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.starts++
	return nil
}

func (f *fakeIPClient) Stop(string) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.stops++
}

func (f *fakeIPClient) Shutdown(context.Context) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.shutdowns++
	return nil
}

type outcomeRecord struct {
	networkID int
	outcome   Outcome
}

type fakeScheduler struct {
	mut         sync.Mutex
	userChoices []int
	primed      []int
	outcomes    []outcomeRecord
	wifiStates  []bool
}

func (f *fakeScheduler) SetUserConnectChoice(networkID int) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.userChoices = append(f.userChoices, networkID)
}

func (f *fakeScheduler) PrimeForcedConnection(networkID int) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.primed = append(f.primed, networkID)
}

func (f *fakeScheduler) ReportConnectionAttemptOutcome(networkID int, outcome Outcome) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.outcomes = append(f.outcomes, outcomeRecord{networkID, outcome})
}

func (f *fakeScheduler) SetWifiEnabled(enabled bool) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.wifiStates = append(f.wifiStates, enabled)
}

func (f *fakeScheduler) lastOutcome() (outcomeRecord, bool) {
	f.mut.Lock()
	defer f.mut.Unlock()
	if len(f.outcomes) == 0 {
		return outcomeRecord{}, false
	}
	return f.outcomes[len(f.outcomes)-1], true
}

type fakeDemand struct {
	mut      sync.Mutex
	demand   bool
	outcomes []outcomeRecord
}

func (f *fakeDemand) HasConnectivityDemand() bool {
	f.mut.Lock()
	defer f.mut.Unlock()
	return f.demand
}

func (f *fakeDemand) ReportConnectionOutcome(networkID int, outcome Outcome) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.outcomes = append(f.outcomes, outcomeRecord{networkID, outcome})
}

func (f *fakeDemand) outcomeCount() int {
	f.mut.Lock()
	defer f.mut.Unlock()
	return len(f.outcomes)
}

type fakeNotifier struct {
	mut           sync.Mutex
	wrongPassword []string
	wifiStates    []bool
}

func (f *fakeNotifier) NotifyWrongPassword(ssid string) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.wrongPassword = append(f.wrongPassword, ssid)
}

func (f *fakeNotifier) NotifyWifiStateChanged(enabled bool) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.wifiStates = append(f.wifiStates, enabled)
}

func (f *fakeNotifier) wrongPasswordCount() int {
	f.mut.Lock()
	defer f.mut.Unlock()
	return len(f.wrongPassword)
}

type fakeTelemetry struct {
	mut         sync.Mutex
	disconnects []int
	macChanges  []int
	wifiStates  []bool
}

func (f *fakeTelemetry) NoteDisconnect(networkID, _ int) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.disconnects = append(f.disconnects, networkID)
}

func (f *fakeTelemetry) NoteMACChange(networkID int) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.macChanges = append(f.macChanges, networkID)
}

func (f *fakeTelemetry) SetWifiEnabled(enabled bool) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.wifiStates = append(f.wifiStates, enabled)
}

type fakeRegistrar struct {
	mut         sync.Mutex
	registered  []ConnectionInfo
	unregisters int
}

func (f *fakeRegistrar) Register(info ConnectionInfo) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.registered = append(f.registered, info)
	return nil
}

func (f *fakeRegistrar) Unregister() {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.unregisters++
}

type fakeCarrierKeys struct {
	mut    sync.Mutex
	resets []int
}

func (f *fakeCarrierKeys) ResetCarrierKeys(networkID int) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.resets = append(f.resets, networkID)
}

func (f *fakeCarrierKeys) resetCount() int {
	f.mut.Lock()
	defer f.mut.Unlock()
	return len(f.resets)
}

type fakePasspoint struct {
	mut         sync.Mutex
	providers   []PasspointProvider
	provisioned []ProvisionRequest
}

func (f *fakePasspoint) AddProvider(p PasspointProvider) bool {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.providers = append(f.providers, p)
	return true
}

func (f *fakePasspoint) RemoveProvider(fqdn string) bool {
	f.mut.Lock()
	defer f.mut.Unlock()
	for i, p := range f.providers {
		if p.FQDN == fqdn {
			f.providers = append(f.providers[:i], f.providers[i+1:]...)
			return true
		}
	}
	return false
}

func (f *fakePasspoint) Providers() []PasspointProvider {
	f.mut.Lock()
	defer f.mut.Unlock()
	return append([]PasspointProvider(nil), f.providers...)
}

func (f *fakePasspoint) StartProvisioning(req ProvisionRequest) bool {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.provisioned = append(f.provisioned, req)
	return true
}

type fakeRecovery struct {
	mut     sync.Mutex
	reasons []recovery.Reason
}

func (f *fakeRecovery) NoteNativeFailure(reason recovery.Reason) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.reasons = append(f.reasons, reason)
}

// --- fixture ---

type fixture struct {
	svc      *Service
	store    *netconfig.Store
	nat      *fakeNative
	ip       *fakeIPClient
	sched    *fakeScheduler
	demand   *fakeDemand
	notifier *fakeNotifier
	telem    *fakeTelemetry
	reg      *fakeRegistrar
	keys     *fakeCarrierKeys
	pass     *fakePasspoint
	rec      *fakeRecovery
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		store:    netconfig.NewStore(),
		nat:      &fakeNative{mac: mustParseMAC(t, "aa:bb:cc:dd:ee:0f")},
		ip:       &fakeIPClient{},
		sched:    &fakeScheduler{},
		demand:   &fakeDemand{demand: true},
		notifier: &fakeNotifier{},
		telem:    &fakeTelemetry{},
		reg:      &fakeRegistrar{},
		keys:     &fakeCarrierKeys{},
		pass:     &fakePasspoint{},
		rec:      &fakeRecovery{},
	}
	cfg := Config{
		Store:       f.store,
		Native:      f.nat,
		IPClient:    f.ip,
		Scheduler:   f.sched,
		Telemetry:   f.telem,
		Registrar:   f.reg,
		Passpoint:   f.pass,
		Notifier:    f.notifier,
		CarrierKeys: f.keys,
		Recovery:    f.rec,
		// Long enough that no tick or timeout fires on its own; tests
		// post the timer messages directly.
		ConnectTimeout: time.Hour,
		PollInterval:   time.Hour,
		Log:            slog.New(slog.DiscardHandler),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	f.svc = New(cfg)
	f.svc.RegisterDemandFactory("test", f.demand)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = f.svc.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return f
}

// state runs a Dump as a FIFO barrier and returns the active state name.
func (f *fixture) state(t *testing.T) string {
	t.Helper()
	dump, err := f.svc.Dump(testCtx(t))
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	return dump.State
}

func (f *fixture) addNetwork(t *testing.T, n *netconfig.Network) int {
	t.Helper()
	id, err := f.svc.AddOrUpdateNetwork(testCtx(t), n)
	if err != nil {
		t.Fatalf("add network: %v", err)
	}
	return id
}

func (f *fixture) enterConnectMode(t *testing.T) {
	t.Helper()
	ok, err := f.svc.SetOperationalMode(testCtx(t), ModeConnect, testIface)
	if err != nil || !ok {
		t.Fatalf("enter connect mode: ok=%v err=%v", ok, err)
	}
}

func (f *fixture) connect(t *testing.T, networkID int) {
	t.Helper()
	ok, err := f.svc.Connect(testCtx(t), networkID, false)
	if err != nil || !ok {
		t.Fatalf("connect: ok=%v err=%v", ok, err)
	}
	if st := f.state(t); st != "Connecting" {
		t.Fatalf("state after connect: %q", st)
	}
}

func (f *fixture) establish(t *testing.T, networkID int, bssid string) {
	t.Helper()
	f.svc.PostNativeEvent(native.ConnectionEstablished{NetworkID: networkID, BSSID: bssid})
	if st := f.state(t); st != "ObtainingIp" {
		t.Fatalf("state after association: %q", st)
	}
}

func (f *fixture) provision(t *testing.T, ip string) {
	t.Helper()
	f.svc.NotifyProvisioningSuccess(LinkProperties{IPAddress: ip})
	if st := f.state(t); st != "Connected" {
		t.Fatalf("state after provisioning: %q", st)
	}
}

// fullyConnect walks a saved network through the whole happy path.
func (f *fixture) fullyConnect(t *testing.T, networkID int, bssid string) {
	t.Helper()
	f.connect(t, networkID)
	f.establish(t, networkID, bssid)
	f.provision(t, "192.168.1.17/24")
}

// --- tests ---

func TestModeTransitions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if st := f.state(t); st != "Default" {
		t.Fatalf("initial state: %q", st)
	}

	f.enterConnectMode(t)
	if st := f.state(t); st != "Disconnected" {
		t.Fatalf("state after enabling: %q", st)
	}

	ok, err := f.svc.SetOperationalMode(testCtx(t), ModeDisabled, "")
	if err != nil || !ok {
		t.Fatalf("disable: ok=%v err=%v", ok, err)
	}
	if st := f.state(t); st != "Default" {
		t.Fatalf("state after disabling: %q", st)
	}

	f.ip.mut.Lock()
	shutdowns := f.ip.shutdowns
	f.ip.mut.Unlock()
	if shutdowns != 1 {
		t.Errorf("IP client shutdowns = %d, want 1", shutdowns)
	}
	f.nat.mut.Lock()
	torndown := len(f.nat.torndown)
	f.nat.mut.Unlock()
	if torndown != 1 {
		t.Errorf("interface teardowns = %d, want 1", torndown)
	}

	f.notifier.mut.Lock()
	wifiStates := append([]bool(nil), f.notifier.wifiStates...)
	f.notifier.mut.Unlock()
	if len(wifiStates) != 2 || !wifiStates[0] || wifiStates[1] {
		t.Errorf("wifi state notifications = %v, want [true false]", wifiStates)
	}
}

func TestConnectHappyPath(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "HomeNet", KeyMgmt: netconfig.KeyMgmtPSK, PresharedKey: "hunspell"})

	// A stale failure annotation must not survive the new association.
	f.store.SetRecentFailure(id, 17)
	f.store.RecordScan(id, netconfig.ScanRecord{SSID: "HomeNet", BSSID: "12:34:56:78:9a:bc", FrequencyMHz: 5180, RSSI: -61})

	f.fullyConnect(t, id, "12:34:56:78:9a:bc")

	info := f.svc.ConnectionInfo()
	if info.NetworkID != id {
		t.Errorf("info network id = %d, want %d", info.NetworkID, id)
	}
	if info.SSID != "HomeNet" || info.BSSID != "12:34:56:78:9a:bc" {
		t.Errorf("info ssid/bssid = %q/%q", info.SSID, info.BSSID)
	}
	if info.FrequencyMHz != 5180 {
		t.Errorf("info frequency = %d, want 5180 from the scan cache", info.FrequencyMHz)
	}
	if info.IPAddress != "192.168.1.17/24" {
		t.Errorf("info ip = %q", info.IPAddress)
	}

	if !f.store.HasEverConnected(id) {
		t.Error("has-ever-connected not set after full success")
	}
	if n, _ := f.store.Network(id); n.HasRecentFailure {
		t.Error("recent failure annotation survived a successful association")
	}

	if rec, ok := f.sched.lastOutcome(); !ok || rec.outcome != OutcomeSuccess || rec.networkID != id {
		t.Errorf("scheduler outcome = %+v, want success for %d", rec, id)
	}
	if f.demand.outcomeCount() != 1 {
		t.Errorf("demand factory outcomes = %d, want 1", f.demand.outcomeCount())
	}

	f.reg.mut.Lock()
	registered := len(f.reg.registered)
	f.reg.mut.Unlock()
	if registered != 1 {
		t.Errorf("registrations = %d, want 1", registered)
	}
	f.nat.mut.Lock()
	armed := f.nat.rssiArmed
	f.nat.mut.Unlock()
	if !armed {
		t.Error("RSSI monitoring not armed on entering Connected")
	}
}

func TestConnectWithoutDemandSkipsNative(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "quiet"})

	f.demand.mut.Lock()
	f.demand.demand = false
	f.demand.mut.Unlock()

	ok, err := f.svc.Connect(testCtx(t), id, false)
	if err != nil || !ok {
		t.Fatalf("connect: ok=%v err=%v", ok, err)
	}
	if st := f.state(t); st != "Disconnected" {
		t.Errorf("state = %q, want Disconnected", st)
	}
	if f.nat.connectCount() != 0 {
		t.Errorf("native connects = %d, want 0", f.nat.connectCount())
	}
}

func TestConnectUnknownNetwork(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)

	ok, err := f.svc.Connect(testCtx(t), 42, false)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("connect to unknown network reported success")
	}
}

func TestConnectOutsideConnectMode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "early"})

	ok, err := f.svc.Connect(testCtx(t), id, false)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("connect in disabled mode reported success")
	}
	if f.nat.connectCount() != 0 {
		t.Errorf("native connects = %d, want 0", f.nat.connectCount())
	}
}

func TestPrivilegedConnectRecordsUserChoice(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "chosen"})

	ok, err := f.svc.Connect(testCtx(t), id, true)
	if err != nil || !ok {
		t.Fatalf("connect: ok=%v err=%v", ok, err)
	}
	f.state(t)

	f.sched.mut.Lock()
	choices := append([]int(nil), f.sched.userChoices...)
	primed := append([]int(nil), f.sched.primed...)
	f.sched.mut.Unlock()
	if len(choices) != 1 || choices[0] != id {
		t.Errorf("user choices = %v, want [%d]", choices, id)
	}
	if len(primed) != 1 || primed[0] != id {
		t.Errorf("primed = %v, want [%d]", primed, id)
	}
	if got := f.store.LastSelectedNetwork(); got != id {
		t.Errorf("last selected = %d, want %d", got, id)
	}
}

func TestAssociationRejectionDisablesNetwork(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "fussy"})
	f.connect(t, id)

	f.svc.PostNativeEvent(native.AssociationRejected{StatusCode: 17, BSSID: "12:34:56:78:9a:bc"})
	if st := f.state(t); st != "Disconnected" {
		t.Errorf("state = %q, want Disconnected", st)
	}

	n, ok := f.store.Network(id)
	if !ok {
		t.Fatal("network gone")
	}
	if n.Status != netconfig.DisabledAssociationRejection {
		t.Errorf("status = %v, want association-rejection disable", n.Status)
	}
	if !n.HasRecentFailure || n.RecentFailureReason != 17 {
		t.Errorf("recent failure = %v/%d, want true/17", n.HasRecentFailure, n.RecentFailureReason)
	}
	if rec, _ := f.sched.lastOutcome(); rec.outcome != OutcomeAssociationRejection {
		t.Errorf("outcome = %v, want association rejection", rec.outcome)
	}
}

func TestWrongPasswordFirstTimeNotifies(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "typo", KeyMgmt: netconfig.KeyMgmtPSK, PresharedKey: "wrong"})
	f.connect(t, id)

	f.svc.PostNativeEvent(native.AuthenticationFailed{Reason: native.AuthFailureWrongPassword})
	f.state(t)

	n, _ := f.store.Network(id)
	if n.Status != netconfig.DisabledByWrongPassword {
		t.Errorf("status = %v, want wrong-password disable", n.Status)
	}
	if f.notifier.wrongPasswordCount() != 1 {
		t.Errorf("wrong password notifications = %d, want 1", f.notifier.wrongPasswordCount())
	}
	if rec, _ := f.sched.lastOutcome(); rec.outcome != OutcomeAuthenticationFailure {
		t.Errorf("outcome = %v, want authentication failure", rec.outcome)
	}
}

func TestWrongPasswordAfterSuccessfulConnectIsAuthFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "rotated", KeyMgmt: netconfig.KeyMgmtPSK, PresharedKey: "old"})
	f.store.RecordSuccessfulConnection(id)
	f.connect(t, id)

	f.svc.PostNativeEvent(native.AuthenticationFailed{Reason: native.AuthFailureWrongPassword})
	f.state(t)

	// Credentials that worked before point at a changed network, not a
	// user typo.
	n, _ := f.store.Network(id)
	if n.Status != netconfig.DisabledAuthenticationFailure {
		t.Errorf("status = %v, want authentication-failure disable", n.Status)
	}
	if f.notifier.wrongPasswordCount() != 0 {
		t.Errorf("wrong password notifications = %d, want 0", f.notifier.wrongPasswordCount())
	}
}

func TestExpiredCertResetsCarrierKeysForSIMMethods(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		method     netconfig.EAPMethod
		vendorCode int
		wantReset  bool
	}{
		{"sim expired cert", netconfig.EAPSIM, native.VendorErrCertExpired, true},
		{"aka expired cert", netconfig.EAPAKA, native.VendorErrCertExpired, true},
		{"aka prime expired cert", netconfig.EAPAKAPrime, native.VendorErrCertExpired, true},
		{"tls expired cert", netconfig.EAPTLS, native.VendorErrCertExpired, false},
		{"sim other vendor code", netconfig.EAPSIM, 7, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.enterConnectMode(t)
			id := f.addNetwork(t, &netconfig.Network{
				SSID:       "carrier",
				KeyMgmt:    netconfig.KeyMgmtEAP,
				Enterprise: &netconfig.EnterpriseConfig{Method: tc.method, Identity: "user"},
			})
			f.connect(t, id)

			f.svc.PostNativeEvent(native.AuthenticationFailed{
				Reason:          native.AuthFailureEAP,
				VendorErrorCode: tc.vendorCode,
			})
			f.state(t)

			want := 0
			if tc.wantReset {
				want = 1
			}
			if got := f.keys.resetCount(); got != want {
				t.Errorf("carrier key resets = %d, want %d", got, want)
			}
		})
	}
}

func TestConnectTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "slow"})
	f.connect(t, id)

	f.svc.post(connectTimeoutMsg{})
	if st := f.state(t); st != "Disconnecting" {
		t.Errorf("state = %q, want Disconnecting", st)
	}
	if f.nat.disconnectCount() != 1 {
		t.Errorf("native disconnects = %d, want 1", f.nat.disconnectCount())
	}
	if rec, _ := f.sched.lastOutcome(); rec.outcome != OutcomeTimeout {
		t.Errorf("outcome = %v, want timeout", rec.outcome)
	}

	// The timeout is attempt-scoped; a second one must not re-fire.
	f.svc.post(connectTimeoutMsg{})
	f.state(t)
	if f.nat.disconnectCount() != 1 {
		t.Errorf("native disconnects after stale timeout = %d, want 1", f.nat.disconnectCount())
	}
}

func TestProvisioningFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "nodhcp"})
	f.connect(t, id)
	f.establish(t, id, "12:34:56:78:9a:bc")

	f.svc.NotifyProvisioningFailure()
	if st := f.state(t); st != "Disconnecting" {
		t.Errorf("state = %q, want Disconnecting", st)
	}
	if f.nat.disconnectCount() != 1 {
		t.Errorf("native disconnects = %d, want 1", f.nat.disconnectCount())
	}
	if rec, _ := f.sched.lastOutcome(); rec.outcome != OutcomeDHCPFailure {
		t.Errorf("outcome = %v, want dhcp failure", rec.outcome)
	}
	if f.store.HasEverConnected(id) {
		t.Error("has-ever-connected set despite provisioning failure")
	}
}

func TestDisconnectFromConnected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "drops"})
	ephemeralID := f.addNetwork(t, &netconfig.Network{SSID: "openwifi", Ephemeral: true})
	f.fullyConnect(t, id, "12:34:56:78:9a:bc")

	f.svc.PostNativeEvent(native.Disconnected{BSSID: "12:34:56:78:9a:bc", ReasonCode: 3})
	if st := f.state(t); st != "Disconnected" {
		t.Errorf("state = %q, want Disconnected", st)
	}

	info := f.svc.ConnectionInfo()
	if info.NetworkID != netconfig.InvalidNetworkID {
		t.Errorf("info network id = %d after disconnect", info.NetworkID)
	}
	if info.MACAddress != native.SentinelMAC {
		t.Errorf("info mac = %q, want sentinel", info.MACAddress)
	}

	f.telem.mut.Lock()
	disconnects := len(f.telem.disconnects)
	f.telem.mut.Unlock()
	if disconnects != 1 {
		t.Errorf("telemetry disconnects = %d, want 1", disconnects)
	}
	f.ip.mut.Lock()
	stops := f.ip.stops
	f.ip.mut.Unlock()
	if stops != 1 {
		t.Errorf("IP client stops = %d, want 1", stops)
	}
	f.reg.mut.Lock()
	unregisters := f.reg.unregisters
	f.reg.mut.Unlock()
	if unregisters != 1 {
		t.Errorf("unregisters = %d, want 1", unregisters)
	}

	// A genuine disconnect purges ephemeral records; the saved one stays.
	if _, ok := f.store.Network(ephemeralID); ok {
		t.Error("ephemeral network survived a genuine disconnect")
	}
	if _, ok := f.store.Network(id); !ok {
		t.Error("saved network purged")
	}
}

func TestLocallyGeneratedDisconnectKeepsEphemerals(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "mine"})
	ephemeralID := f.addNetwork(t, &netconfig.Network{SSID: "openwifi", Ephemeral: true})
	f.fullyConnect(t, id, "12:34:56:78:9a:bc")

	f.svc.Disconnect()
	if st := f.state(t); st != "Disconnecting" {
		t.Fatalf("state = %q, want Disconnecting", st)
	}
	f.svc.PostNativeEvent(native.Disconnected{BSSID: "12:34:56:78:9a:bc", LocallyGenerated: true})
	if st := f.state(t); st != "Disconnected" {
		t.Fatalf("state = %q, want Disconnected", st)
	}

	if _, ok := f.store.Network(ephemeralID); !ok {
		t.Error("ephemeral network purged on a locally generated disconnect")
	}
}

func TestRoamingCycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "mesh"})
	f.store.RecordScan(id, netconfig.ScanRecord{SSID: "mesh", BSSID: "12:34:56:78:9a:bc", FrequencyMHz: 2437, RSSI: -58})
	f.store.RecordScan(id, netconfig.ScanRecord{SSID: "mesh", BSSID: "12:34:56:78:9a:bd", FrequencyMHz: 5240, RSSI: -52})
	f.fullyConnect(t, id, "12:34:56:78:9a:bc")

	f.svc.PostNativeEvent(native.AssociatedBSSID{BSSID: "12:34:56:78:9a:bd"})
	if st := f.state(t); st != "Roaming" {
		t.Fatalf("state = %q, want Roaming", st)
	}
	info := f.svc.ConnectionInfo()
	if info.BSSID != "12:34:56:78:9a:bd" || info.FrequencyMHz != 5240 {
		t.Errorf("info after roam = %q/%d", info.BSSID, info.FrequencyMHz)
	}

	f.svc.PostNativeEvent(native.SupplicantStateChanged{
		NetworkID: id, SSID: "mesh", BSSID: "12:34:56:78:9a:bd", State: native.StateCompleted,
	})
	if st := f.state(t); st != "Connected" {
		t.Fatalf("state = %q, want Connected after roam completes", st)
	}

	// Same BSSID again is not a roam.
	f.svc.PostNativeEvent(native.AssociatedBSSID{BSSID: "12:34:56:78:9a:bd"})
	if st := f.state(t); st != "Connected" {
		t.Errorf("state = %q after no-op roam event", st)
	}
}

func TestRemoveCurrentNetworkDisconnects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "gone"})
	f.fullyConnect(t, id, "12:34:56:78:9a:bc")

	ok, err := f.svc.RemoveNetwork(testCtx(t), id)
	if err != nil || !ok {
		t.Fatalf("remove: ok=%v err=%v", ok, err)
	}
	if st := f.state(t); st != "Disconnecting" {
		t.Errorf("state = %q, want Disconnecting", st)
	}
	if f.nat.disconnectCount() != 1 {
		t.Errorf("native disconnects = %d, want 1", f.nat.disconnectCount())
	}
	if _, found := f.store.Network(id); found {
		t.Error("network still present after removal")
	}
}

func TestReconnectRetriesLastNetwork(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "flaky"})
	f.fullyConnect(t, id, "12:34:56:78:9a:bc")

	f.svc.PostNativeEvent(native.Disconnected{ReasonCode: 1})
	if st := f.state(t); st != "Disconnected" {
		t.Fatalf("state = %q, want Disconnected", st)
	}

	f.svc.Reconnect()
	if st := f.state(t); st != "Connecting" {
		t.Errorf("state = %q, want Connecting after reconnect", st)
	}
	if f.nat.connectCount() != 2 {
		t.Errorf("native connects = %d, want 2", f.nat.connectCount())
	}
}

func TestValidationResults(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "captive"})
	f.fullyConnect(t, id, "12:34:56:78:9a:bc")

	// A verdict for some other network id is ignored.
	f.svc.ReportValidationResult(id+1, false)
	f.state(t)
	if n, _ := f.store.Network(id); n.Status != netconfig.SelectionEnabled {
		t.Fatalf("status changed by mismatched verdict: %v", n.Status)
	}

	f.svc.ReportValidationResult(id, false)
	f.state(t)
	if n, _ := f.store.Network(id); n.Status != netconfig.DisabledNoInternetTemporary {
		t.Errorf("status = %v, want temporary no-internet disable", n.Status)
	}

	f.svc.ReportValidationResult(id, true)
	f.state(t)
	n, _ := f.store.Network(id)
	if n.Status != netconfig.SelectionEnabled {
		t.Errorf("status = %v, want re-enabled after passing validation", n.Status)
	}
	if !n.ValidatedInternetAccess {
		t.Error("validated-internet-access not recorded")
	}
}

func TestValidationExemptsUserSelectedNetwork(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "home"})

	ok, err := f.svc.Connect(testCtx(t), id, true)
	if err != nil || !ok {
		t.Fatalf("connect: ok=%v err=%v", ok, err)
	}
	f.establish(t, id, "12:34:56:78:9a:bc")
	f.provision(t, "10.0.0.2/24")

	f.svc.ReportValidationResult(id, false)
	f.state(t)
	if n, _ := f.store.Network(id); n.Status != netconfig.SelectionEnabled {
		t.Errorf("user-selected network disabled by failed validation: %v", n.Status)
	}
}

func TestPasspointGate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// Disabled mode: rejected locally, never forwarded.
	ok, err := f.svc.AddPasspointProvider(testCtx(t), PasspointProvider{FQDN: "example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("passpoint add allowed in disabled mode")
	}

	f.enterConnectMode(t)
	ok, err = f.svc.AddPasspointProvider(testCtx(t), PasspointProvider{FQDN: "example.com", FriendlyName: "Example"})
	if err != nil || !ok {
		t.Fatalf("passpoint add: ok=%v err=%v", ok, err)
	}
	providers, err := f.svc.PasspointProviders(testCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(providers) != 1 || providers[0].FQDN != "example.com" {
		t.Errorf("providers = %+v", providers)
	}

	ok, err = f.svc.StartPasspointProvisioning(testCtx(t), ProvisionRequest{FQDN: "example.com"})
	if err != nil || !ok {
		t.Fatalf("provisioning: ok=%v err=%v", ok, err)
	}
	ok, err = f.svc.RemovePasspointProvider(testCtx(t), "example.com")
	if err != nil || !ok {
		t.Fatalf("remove provider: ok=%v err=%v", ok, err)
	}
}

func TestSupportedFeaturesMasking(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(cfg *Config) { cfg.RTTDisabled = true })
	f.nat.mut.Lock()
	f.nat.features = native.FeatureInfra | native.FeatureD2DRTT | native.FeatureD2APRTT | native.FeaturePNO
	f.nat.mut.Unlock()

	fs, err := f.svc.SupportedFeatures(testCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if fs&(native.FeatureD2DRTT|native.FeatureD2APRTT) != 0 {
		t.Errorf("RTT bits not masked: %b", fs)
	}
	if fs&native.FeatureInfra == 0 || fs&native.FeaturePNO == 0 {
		t.Errorf("unrelated bits lost: %b", fs)
	}
}

func TestLinkPollingUpdatesInfo(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "polled"})
	f.fullyConnect(t, id, "12:34:56:78:9a:bc")

	f.nat.mut.Lock()
	f.nat.signal = native.SignalPollResult{RSSI: -55, LinkSpeedMbps: 866, FrequencyMHz: 5180}
	f.nat.stats = native.LinkLayerStats{TxGood: 1200, TxBad: 3, RxSuccess: 4800}
	f.nat.mut.Unlock()

	f.svc.SetLinkPolling(true)
	f.state(t)
	f.state(t) // second barrier: the tick posted by the enable has run

	info := f.svc.ConnectionInfo()
	if info.RSSI != -55 || info.LinkSpeedMbps != 866 {
		t.Errorf("info rssi/speed = %d/%d, want -55/866", info.RSSI, info.LinkSpeedMbps)
	}
	if info.TxGood != 1200 || info.RxSuccess != 4800 {
		t.Errorf("info counters = %d/%d", info.TxGood, info.RxSuccess)
	}
}

func TestRedundantPollingEnablePostsOneTick(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "polled"})
	f.fullyConnect(t, id, "12:34:56:78:9a:bc")

	// A repeated enable must not queue a second initial tick.
	f.svc.SetLinkPolling(true)
	f.svc.SetLinkPolling(true)
	f.state(t)
	f.state(t)

	if got := f.nat.signalPollCount(); got != 1 {
		t.Errorf("signal polls after redundant enable = %d, want 1", got)
	}
}

func TestPollingKeepsSingleCadenceAfterToggleChurn(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(cfg *Config) { cfg.PollInterval = 20 * time.Millisecond })
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "churned"})
	f.fullyConnect(t, id, "12:34:56:78:9a:bc")

	// Rapid off/on cycles can queue extra ticks; the cadence afterwards
	// must still be a single chain at the configured interval.
	f.svc.SetLinkPolling(true)
	f.svc.SetLinkPolling(false)
	f.svc.SetLinkPolling(true)
	f.svc.SetLinkPolling(false)
	f.svc.SetLinkPolling(true)
	f.state(t)

	base := f.nat.signalPollCount()
	time.Sleep(400 * time.Millisecond)
	f.state(t)
	got := f.nat.signalPollCount() - base

	// A single 20ms chain fits about 20 polls into the window, plus the
	// queued initial ticks; duplicated chains roughly triple that.
	if got > 30 {
		t.Errorf("polls in window = %d, want a single cadence (at most 30)", got)
	}
	if got < 3 {
		t.Errorf("polls in window = %d, polling appears stalled", got)
	}
}

func TestUnknownOperationalModeIsRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ok, err := f.svc.SetOperationalMode(testCtx(t), OpMode(42), testIface)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("unknown mode reported success")
	}
	if st := f.state(t); st != "Default" {
		t.Errorf("state = %q, want Default", st)
	}
}

func TestRSSIBreachUpdatesInfoWithoutTransition(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "fading"})
	f.fullyConnect(t, id, "12:34:56:78:9a:bc")

	f.nat.fireBreach(-82)
	if st := f.state(t); st != "Connected" {
		t.Errorf("state = %q after breach, want Connected", st)
	}
	if info := f.svc.ConnectionInfo(); info.RSSI != -82 {
		t.Errorf("info rssi = %d, want -82", info.RSSI)
	}
}

func TestMACRandomizationOnConnect(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "private"})

	f.svc.SetMACRandomization(true)
	if !f.svc.MACRandomizationEnabled() {
		t.Fatal("toggle not applied")
	}
	f.connect(t, id)

	f.nat.mut.Lock()
	setMACs := len(f.nat.setMACs)
	var programmed net.HardwareAddr
	if setMACs > 0 {
		programmed = f.nat.setMACs[0]
	}
	f.nat.mut.Unlock()
	if setMACs != 1 {
		t.Fatalf("programmed addresses = %d, want 1", setMACs)
	}
	if programmed[0]&0x02 == 0 || programmed[0]&0x01 != 0 {
		t.Errorf("address %s is not locally administered unicast", programmed)
	}
	if got := f.svc.ConnectionInfo().MACAddress; got != programmed.String() {
		t.Errorf("info mac = %q, want %q", got, programmed)
	}

	f.telem.mut.Lock()
	changes := len(f.telem.macChanges)
	f.telem.mut.Unlock()
	if changes != 1 {
		t.Errorf("telemetry mac changes = %d, want 1", changes)
	}
}

func TestMACRandomizationDisabledLeavesAddress(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "plain"})
	f.connect(t, id)

	f.nat.mut.Lock()
	setMACs := len(f.nat.setMACs)
	f.nat.mut.Unlock()
	if setMACs != 0 {
		t.Errorf("programmed addresses = %d, want 0 with the toggle off", setMACs)
	}
}

func TestDumpCarriesProcessedMessages(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "traced"})
	f.connect(t, id)

	dump, err := f.svc.Dump(testCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if dump.Mode != ModeConnect || dump.Iface != testIface {
		t.Errorf("dump mode/iface = %v/%q", dump.Mode, dump.Iface)
	}
	if len(dump.Records) == 0 {
		t.Fatal("dump carries no processed messages")
	}
	var sawConnect bool
	for _, rec := range dump.Records {
		if rec.What == "CONNECT_NETWORK("+strconv.Itoa(id)+")" {
			sawConnect = true
		}
	}
	if !sawConnect {
		t.Errorf("connect command missing from the ring: %+v", dump.Records)
	}
}

func TestDisableNetworkWhileConnectedDisconnects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "blocked"})
	f.fullyConnect(t, id, "12:34:56:78:9a:bc")

	ok, err := f.svc.DisableNetwork(testCtx(t), id)
	if err != nil || !ok {
		t.Fatalf("disable: ok=%v err=%v", ok, err)
	}
	if st := f.state(t); st != "Disconnecting" {
		t.Errorf("state = %q, want Disconnecting", st)
	}
	if n, _ := f.store.Network(id); n.Status != netconfig.DisabledByUser {
		t.Errorf("status = %v, want disabled by user", n.Status)
	}
}

func TestInterfaceDisabledTriggersRecovery(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "dying"})
	f.fullyConnect(t, id, "12:34:56:78:9a:bc")

	f.svc.PostNativeEvent(native.SupplicantStateChanged{State: native.StateInterfaceDisabled})
	if st := f.state(t); st != "Disconnected" {
		t.Errorf("state = %q, want Disconnected", st)
	}

	f.rec.mut.Lock()
	reasons := append([]recovery.Reason(nil), f.rec.reasons...)
	f.rec.mut.Unlock()
	if len(reasons) != 1 || reasons[0] != recovery.ReasonIfaceDown {
		t.Errorf("recovery reasons = %v, want one interface-down", reasons)
	}
}

func TestAutoJoinAssociationIsTracked(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enterConnectMode(t)
	id := f.addNetwork(t, &netconfig.Network{SSID: "autojoin"})

	// Association without a preceding connect command, as the supplicant's
	// own selection produces.
	f.establish(t, id, "12:34:56:78:9a:bc")
	f.provision(t, "10.1.2.3/24")

	if rec, ok := f.sched.lastOutcome(); !ok || rec.outcome != OutcomeSuccess || rec.networkID != id {
		t.Errorf("outcome = %+v, want tracked success for %d", rec, id)
	}
}
