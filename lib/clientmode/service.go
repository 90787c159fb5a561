// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package clientmode implements the connection-lifecycle state machine for
// a wireless client interface: disabled through connecting, IP
// provisioning, steady-state connected operation, and back to
// disconnected.
//
// A single worker goroutine processes one message to completion before the
// next, strictly FIFO. External callers go through the exported command
// methods (synchronous request/reply) or the posted-event entry points;
// collaborator callbacks never invoke worker-owned logic directly.
package clientmode

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/stationd/stationd/internal/slogutil"
	"github.com/stationd/stationd/lib/linkmonitor"
	"github.com/stationd/stationd/lib/macrand"
	"github.com/stationd/stationd/lib/native"
	"github.com/stationd/stationd/lib/netconfig"
	"github.com/stationd/stationd/lib/recovery"
	"github.com/stationd/stationd/lib/validation"
)

var (
	_ suture.Service = (*Service)(nil)
	_ ConfigStore    = (*netconfig.Store)(nil)
)

// ErrInvalidConfig is returned for a nil or unusable network config.
var ErrInvalidConfig = netconfig.ErrInvalidConfig

const (
	// defaultConnectTimeout bounds one attempt from native connect to a
	// terminal outcome.
	defaultConnectTimeout = 30 * time.Second
	// ipShutdownTimeout bounds the one scoped synchronous wait in the
	// machine, the IP client shutdown on mode disable.
	ipShutdownTimeout = 5 * time.Second
	// msgQueueLen bounds the worker queue.
	msgQueueLen = 256
)

// Config wires the machine's collaborators. Store, Native, IPClient and
// Scheduler are required; the rest default to no-ops when nil.
type Config struct {
	Store     ConfigStore
	Native    native.Interface
	IPClient  IPClient
	Scheduler Scheduler

	Diagnostics Diagnostics
	Telemetry   Telemetry
	Registrar   Registrar
	Passpoint   Passpoint
	Notifier    Notifier
	CarrierKeys CarrierKeys
	Recovery    RecoveryTrigger
	ScoreCard   ScoreCard

	// Counters is the poll-time fallback for drivers without link-layer
	// stats support. Defaults to the OS-level counter source.
	Counters native.CounterSource

	ConnectTimeout time.Duration
	PollInterval   time.Duration
	RTTDisabled    bool
	Verbose        bool
	Log            *slog.Logger
}

// Service is the client mode state machine. Create with New, run under a
// supervisor via Serve.
type Service struct {
	cfg  Config
	log  *slog.Logger
	msgs chan message

	mac     *macrand.Controller
	monitor *linkmonitor.Monitor
	bridge  *validation.Bridge
	tracker *attemptTracker
	info    *connInfo
	ring    *logRing

	// Worker-owned state below; touched only from Serve.
	state           stateID
	mode            OpMode
	iface           string
	everStarted     bool
	targetNetworkID int
	targetSSID      string
	lastNetworkID   int
	pollingWanted   bool
	pollTimer       *timer

	connectTimeout time.Duration
	pollInterval   time.Duration
}

// New returns a stopped service; run it via Serve.
func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = nopDiagnostics{}
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = nopTelemetry{}
	}
	if cfg.Registrar == nil {
		cfg.Registrar = nopRegistrar{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.CarrierKeys == nil {
		cfg.CarrierKeys = nopCarrierKeys{}
	}
	if cfg.Recovery == nil {
		cfg.Recovery = nopRecovery{}
	}
	if cfg.Counters == nil {
		cfg.Counters = native.SystemCounterSource{}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = linkmonitor.DefaultPollInterval
	}

	log := cfg.Log.With("component", "clientmode")
	ringCap := ringCapacityDefault
	if cfg.Verbose {
		ringCap = ringCapacityVerbose
	}

	s := &Service{
		cfg:             cfg,
		log:             log,
		msgs:            make(chan message, msgQueueLen),
		info:            newConnInfo(),
		ring:            newLogRing(ringCap),
		state:           stateDefault,
		mode:            ModeDisabled,
		targetNetworkID: netconfig.InvalidNetworkID,
		lastNetworkID:   netconfig.InvalidNetworkID,
		connectTimeout:  cfg.ConnectTimeout,
		pollInterval:    cfg.PollInterval,
	}
	s.tracker = newAttemptTracker(cfg.Scheduler, cfg.Diagnostics, log)
	s.mac = macrand.NewController(cfg.Store, cfg.Native, cfg.Telemetry, cfg.Log)
	s.monitor = linkmonitor.New(cfg.Native, cfg.Counters, cfg.ScoreCard, cfg.Log)
	s.bridge = validation.NewBridge(cfg.Store, cfg.Log)
	return s
}

func (*Service) String() string { return "clientmode.Service" }

// Serve runs the worker loop until ctx is canceled.
func (s *Service) Serve(ctx context.Context) error {
	s.everStarted = true
	s.log.Info("Client mode state machine started")
	for {
		select {
		case <-ctx.Done():
			s.cancelTimers()
			s.log.Info("Client mode state machine stopped")
			return ctx.Err()
		case m := <-s.msgs:
			s.process(m)
		}
	}
}

func (s *Service) cancelTimers() {
	if s.pollTimer != nil {
		s.pollTimer.cancel()
		s.pollTimer = nil
	}
	s.tracker.finalize(OutcomeNetworkDisconnection)
}

// post enqueues a message for the worker.
func (s *Service) post(m message) {
	s.msgs <- m
}

// request sends a message built around a fresh reply slot and waits for the
// worker's answer. The worker never blocks replying (slot capacity 1); a
// caller that gives up just abandons its slot.
func request[T any](ctx context.Context, s *Service, build func(chan T) message) (T, error) {
	var zero T
	reply := make(chan T, 1)
	select {
	case s.msgs <- build(reply):
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// --- exported command surface ---

// SetOperationalMode switches the interface session between disabled and
// connect mode.
func (s *Service) SetOperationalMode(ctx context.Context, mode OpMode, iface string) (bool, error) {
	return request(ctx, s, func(reply chan bool) message {
		return setModeReq{mode: mode, iface: iface, reply: reply}
	})
}

// AddOrUpdateNetwork saves a network record, returning the assigned id.
func (s *Service) AddOrUpdateNetwork(ctx context.Context, cfg *netconfig.Network) (int, error) {
	res, err := request(ctx, s, func(reply chan addNetworkResult) message {
		return addNetworkReq{cfg: cfg, reply: reply}
	})
	if err != nil {
		return netconfig.InvalidNetworkID, err
	}
	return res.networkID, res.err
}

// RemoveNetwork deletes a saved network.
func (s *Service) RemoveNetwork(ctx context.Context, networkID int) (bool, error) {
	return request(ctx, s, func(reply chan bool) message {
		return removeNetworkReq{networkID: networkID, reply: reply}
	})
}

// ForgetNetwork removes a saved network at the user's request.
func (s *Service) ForgetNetwork(ctx context.Context, networkID int) (bool, error) {
	return request(ctx, s, func(reply chan bool) message {
		return forgetNetworkReq{networkID: networkID, reply: reply}
	})
}

// EnableNetwork re-enables selection for a network. With disableOthers set
// it is a connect trigger: subject to the demand check, it issues a native
// connect to the network.
func (s *Service) EnableNetwork(ctx context.Context, networkID int, disableOthers, privileged bool) (bool, error) {
	return request(ctx, s, func(reply chan bool) message {
		return enableNetworkReq{networkID: networkID, disableOthers: disableOthers, privileged: privileged, reply: reply}
	})
}

// DisableNetwork disables selection for a network.
func (s *Service) DisableNetwork(ctx context.Context, networkID int) (bool, error) {
	return request(ctx, s, func(reply chan bool) message {
		return disableNetworkReq{networkID: networkID, reply: reply}
	})
}

// Connect enables the network and triggers a connection to it.
func (s *Service) Connect(ctx context.Context, networkID int, privileged bool) (bool, error) {
	return request(ctx, s, func(reply chan bool) message {
		return connectReq{networkID: networkID, privileged: privileged, reply: reply}
	})
}

// Disconnect drops the current connection.
func (s *Service) Disconnect() {
	s.post(disconnectCmd{})
}

// Reconnect retries the last connected network if disconnected.
func (s *Service) Reconnect() {
	s.post(reconnectCmd{})
}

// SetLinkPolling turns the periodic link poll on or off. Polling only runs
// while Connected; the preference survives a roam cycle but is cleared when
// the link is lost or the mode is disabled.
func (s *Service) SetLinkPolling(enabled bool) {
	s.post(setPollingCmd{enabled: enabled})
}

// SetVerboseLogging resizes the diagnostic ring for the verbosity level.
func (s *Service) SetVerboseLogging(verbose bool) {
	s.post(setVerboseCmd{verbose: verbose})
}

// SetMACRandomization applies the persisted toggle; effective immediately,
// no restart.
func (s *Service) SetMACRandomization(enabled bool) {
	s.mac.SetEnabled(enabled)
}

// MACRandomizationEnabled reports the current toggle state.
func (s *Service) MACRandomizationEnabled() bool {
	return s.mac.Enabled()
}

// ClearAuthFailure clears the recent-failure annotation for the network.
func (s *Service) ClearAuthFailure(networkID int) {
	s.post(clearAuthFailureCmd{networkID: networkID})
}

// AddPasspointProvider forwards a provider config to the Passpoint
// manager, subject to the local gate.
func (s *Service) AddPasspointProvider(ctx context.Context, p PasspointProvider) (bool, error) {
	return request(ctx, s, func(reply chan bool) message {
		return passpointAddReq{provider: p, reply: reply}
	})
}

// RemovePasspointProvider forwards a provider removal.
func (s *Service) RemovePasspointProvider(ctx context.Context, fqdn string) (bool, error) {
	return request(ctx, s, func(reply chan bool) message {
		return passpointRemoveReq{fqdn: fqdn, reply: reply}
	})
}

// PasspointProviders lists provider configs.
func (s *Service) PasspointProviders(ctx context.Context) ([]PasspointProvider, error) {
	return request(ctx, s, func(reply chan []PasspointProvider) message {
		return passpointListReq{reply: reply}
	})
}

// StartPasspointProvisioning forwards a provisioning request. Requests
// before the machine has ever started, or outside connect mode, are
// rejected locally.
func (s *Service) StartPasspointProvisioning(ctx context.Context, req ProvisionRequest) (bool, error) {
	return request(ctx, s, func(reply chan bool) message {
		return passpointProvisionReq{req: req, reply: reply}
	})
}

// Dump captures a diagnostic snapshot.
func (s *Service) Dump(ctx context.Context) (StateDump, error) {
	return request(ctx, s, func(reply chan StateDump) message {
		return dumpReq{reply: reply}
	})
}

// SupportedFeatures returns the driver capability bitmask intersected with
// platform flags.
func (s *Service) SupportedFeatures(ctx context.Context) (native.FeatureSet, error) {
	return request(ctx, s, func(reply chan native.FeatureSet) message {
		return featuresReq{reply: reply}
	})
}

// ConnectionInfo returns an immutable snapshot of the current link.
func (s *Service) ConnectionInfo() ConnectionInfo {
	return s.info.Snapshot()
}

// RegisterDemandFactory adds a connectivity demand factory under a unique
// name. Safe from any goroutine.
func (s *Service) RegisterDemandFactory(name string, f DemandFactory) {
	s.tracker.factories.Store(name, f)
}

// UnregisterDemandFactory removes a previously registered factory.
func (s *Service) UnregisterDemandFactory(name string) {
	s.tracker.factories.Delete(name)
}

// PostNativeEvent enqueues a normalized driver/supplicant event. This is
// the event adapter's sink.
func (s *Service) PostNativeEvent(ev native.Event) {
	s.post(nativeEventMsg{ev: ev})
}

// NotifyProvisioningSuccess is the IP client's success callback.
func (s *Service) NotifyProvisioningSuccess(props LinkProperties) {
	s.post(ipSuccessMsg{props: props})
}

// NotifyProvisioningFailure is the IP client's failure callback.
func (s *Service) NotifyProvisioningFailure() {
	s.post(ipFailureMsg{})
}

// NotifyDHCPResults is the IP client's lease-refresh callback.
func (s *Service) NotifyDHCPResults(props LinkProperties) {
	s.post(dhcpResultsMsg{props: props})
}

// ReportValidationResult feeds a platform connectivity-validation verdict
// keyed to a network id.
func (s *Service) ReportValidationResult(networkID int, valid bool) {
	s.post(validationMsg{networkID: networkID, valid: valid})
}

// --- worker ---

func (s *Service) process(m message) {
	if tm, ok := m.(timerMsg); ok {
		if tm.tm.voided() {
			return
		}
		m = tm.inner
	}
	s.ring.append(LogRecord{When: time.Now(), What: m.String(), State: s.state.String()})

	switch m := m.(type) {
	case setModeReq:
		s.handleSetMode(m)
	case addNetworkReq:
		id, err := s.cfg.Store.Save(m.cfg)
		m.reply <- addNetworkResult{networkID: id, err: err}
	case removeNetworkReq:
		m.reply <- s.handleRemoveNetwork(m.networkID)
	case forgetNetworkReq:
		ok := s.handleRemoveNetwork(m.networkID)
		if ok {
			s.log.Info("Network forgotten", slogutil.Network(m.networkID))
		}
		m.reply <- ok
	case enableNetworkReq:
		if !m.disableOthers {
			m.reply <- s.cfg.Store.EnableNetwork(m.networkID)
			return
		}
		m.reply <- s.connectToNetwork(m.networkID, m.privileged)
	case disableNetworkReq:
		m.reply <- s.handleDisableNetwork(m.networkID)
	case connectReq:
		m.reply <- s.connectToNetwork(m.networkID, m.privileged)
	case disconnectCmd:
		s.handleDisconnectCmd()
	case reconnectCmd:
		if s.state == stateDisconnected && s.lastNetworkID != netconfig.InvalidNetworkID {
			s.connectToNetwork(s.lastNetworkID, false)
		}
	case passpointAddReq:
		if d := s.checkCommand(cmdPasspoint); !d.allowed || s.cfg.Passpoint == nil {
			m.reply <- false
			return
		}
		m.reply <- s.cfg.Passpoint.AddProvider(m.provider)
	case passpointRemoveReq:
		if d := s.checkCommand(cmdPasspoint); !d.allowed || s.cfg.Passpoint == nil {
			m.reply <- false
			return
		}
		m.reply <- s.cfg.Passpoint.RemoveProvider(m.fqdn)
	case passpointListReq:
		if d := s.checkCommand(cmdPasspoint); !d.allowed || s.cfg.Passpoint == nil {
			m.reply <- nil
			return
		}
		m.reply <- s.cfg.Passpoint.Providers()
	case passpointProvisionReq:
		if d := s.checkCommand(cmdPasspoint); !d.allowed || s.cfg.Passpoint == nil {
			s.log.Debug("Rejecting provisioning request", "reason", d.reason)
			m.reply <- false
			return
		}
		m.reply <- s.cfg.Passpoint.StartProvisioning(m.req)
	case dumpReq:
		m.reply <- StateDump{
			State:   s.state.String(),
			Mode:    s.mode,
			Iface:   s.iface,
			Info:    s.info.Snapshot(),
			Records: s.ring.records(),
		}
	case featuresReq:
		fs, err := s.cfg.Native.SupportedFeatures(s.iface)
		if err != nil {
			s.log.Warn("Failed to query features", slogutil.Error(err))
			m.reply <- 0
			return
		}
		m.reply <- maskFeatures(fs, s.cfg.RTTDisabled)
	case setPollingCmd:
		s.handleSetPolling(m.enabled)
	case setVerboseCmd:
		if m.verbose {
			s.ring.resize(ringCapacityVerbose)
		} else {
			s.ring.resize(ringCapacityDefault)
		}
	case clearAuthFailureCmd:
		s.cfg.Store.ClearRecentFailure(m.networkID)
	case nativeEventMsg:
		s.handleNativeEvent(m.ev)
	case ipSuccessMsg:
		s.handleIPSuccess(m.props)
	case ipFailureMsg:
		s.handleIPFailure()
	case dhcpResultsMsg:
		if isConnectedLineage(s.state) {
			s.mergeLinkProperties(m.props)
		}
	case rssiBreachMsg:
		if isConnectedLineage(s.state) {
			// Sign extension from the driver's byte value; no transition
			// and no reselection.
			s.info.update(func(i *ConnectionInfo) { i.RSSI = int(m.rssi) })
		}
	case validationMsg:
		if isConnectedLineage(s.state) && m.networkID == s.info.Snapshot().NetworkID {
			s.bridge.HandleResult(m.networkID, m.valid)
		}
	case connectTimeoutMsg:
		s.handleConnectTimeout()
	case pollTickMsg:
		s.handlePollTick()
	default:
		s.log.Warn("Unhandled message", "message", m.String())
	}
}

// --- mode control ---

func (s *Service) handleSetMode(req setModeReq) {
	prev := s.mode
	switch req.mode {
	case ModeConnect:
		if prev == ModeConnect {
			req.reply <- true
			return
		}
		if err := s.cfg.Native.SetupClientIface(req.iface); err != nil {
			s.log.Error("Failed to set up client interface", slogutil.Iface(req.iface), slogutil.Error(err))
			s.cfg.Recovery.NoteNativeFailure(recovery.ReasonNativeFailure)
			req.reply <- false
			return
		}
		s.iface = req.iface
		s.mode = ModeConnect
		s.info.reset()
		s.cfg.Scheduler.SetWifiEnabled(true)
		s.cfg.Telemetry.SetWifiEnabled(true)
		s.transitionTo(stateDisconnected)
		s.cfg.Notifier.NotifyWifiStateChanged(true)
		s.log.Info("Entered connect mode", slogutil.Iface(req.iface))
		req.reply <- true

	case ModeDisabled:
		if prev == ModeDisabled {
			req.reply <- true
			return
		}
		// The one scoped synchronous wait: no late provisioning event may
		// land after disable.
		ctx, cancel := context.WithTimeout(context.Background(), ipShutdownTimeout)
		if err := s.cfg.IPClient.Shutdown(ctx); err != nil {
			s.log.Warn("IP client shutdown did not acknowledge", slogutil.Error(err))
		}
		cancel()

		s.tracker.finalize(OutcomeNetworkDisconnection)
		wasConnected := isConnectedLineage(s.state)
		if wasConnected {
			s.cfg.Registrar.Unregister()
		}
		s.info.reset()
		// Both wifi-state trackers update before the machine settles into
		// Default.
		s.cfg.Scheduler.SetWifiEnabled(false)
		s.cfg.Telemetry.SetWifiEnabled(false)
		s.transitionTo(stateDefault)
		s.mode = ModeDisabled
		if err := s.cfg.Native.TeardownIface(s.iface); err != nil {
			s.log.Warn("Failed to tear down interface", slogutil.Iface(s.iface), slogutil.Error(err))
		}
		if prev == ModeConnect {
			s.cfg.Notifier.NotifyWifiStateChanged(false)
		}
		s.log.Info("Entered disabled mode")
		s.iface = ""
		s.targetNetworkID = netconfig.InvalidNetworkID
		s.pollingWanted = false
		req.reply <- true

	default:
		s.log.Warn("Rejecting unknown operational mode", "mode", int(req.mode))
		req.reply <- false
	}
}

// --- connect trigger ---

// connectToNetwork implements the connect trigger contract: enable the
// record, set scheduler context, and issue the native connect only when at
// least one demand factory asserts connectivity demand.
func (s *Service) connectToNetwork(networkID int, privileged bool) bool {
	if d := s.checkCommand(cmdConnectionControl); !d.allowed {
		s.log.Debug("Connect rejected", "reason", d.reason)
		return false
	}
	cfg, ok := s.cfg.Store.NetworkUnmasked(networkID)
	if !ok {
		return false
	}
	if !s.cfg.Store.EnableNetwork(networkID) {
		return false
	}

	if privileged {
		s.cfg.Scheduler.SetUserConnectChoice(networkID)
		s.cfg.Store.SetLastSelectedNetwork(networkID)
	}
	s.cfg.Scheduler.PrimeForcedConnection(networkID)

	if !s.tracker.anyDemand() {
		// Negative internal outcome; the reply is still success and the
		// native layer is never touched.
		metricConnectsSkipped.Inc()
		s.log.Info("No connectivity demand, skipping connect", slogutil.Network(networkID))
		return true
	}

	if err := s.mac.OnAttemptStart(s.iface, networkID); err != nil {
		s.log.Warn("MAC randomization failed, connecting with current address",
			slogutil.Network(networkID), slogutil.Error(err))
	}

	if err := s.cfg.Native.Connect(s.iface, cfg); err != nil {
		s.log.Error("Native connect failed", slogutil.Network(networkID), slogutil.Error(err))
		s.cfg.Recovery.NoteNativeFailure(recovery.ReasonNativeFailure)
		return false
	}
	if mac, err := s.cfg.Native.GetMACAddress(s.iface); err == nil {
		s.info.update(func(i *ConnectionInfo) { i.MACAddress = mac.String() })
	}

	s.targetNetworkID = networkID
	s.targetSSID = cfg.SSID
	s.lastNetworkID = networkID
	s.tracker.start(networkID, cfg.SSID, s.delayed(s.connectTimeout, connectTimeoutMsg{}))
	s.transitionTo(stateConnecting)
	return true
}

// --- network lifecycle helpers ---

func (s *Service) handleRemoveNetwork(networkID int) bool {
	current := s.info.Snapshot().NetworkID
	ok := s.cfg.Store.Remove(networkID)
	if !ok {
		return false
	}
	if networkID == current || networkID == s.targetNetworkID {
		// Removing the network we are on or connecting to drops the link.
		if err := s.cfg.Native.Disconnect(s.iface); err != nil {
			s.log.Warn("Native disconnect failed", slogutil.Error(err))
		}
		s.tracker.finalize(OutcomeNetworkDisconnection)
		s.teardownLink()
		if isStaEnabled(s.state) && s.state != stateDisconnected {
			s.transitionTo(stateDisconnecting)
		}
	}
	return true
}

func (s *Service) handleDisableNetwork(networkID int) bool {
	ok := s.cfg.Store.SetSelectionStatus(networkID, netconfig.DisabledByUser)
	if !ok {
		return false
	}
	if networkID == s.info.Snapshot().NetworkID && isConnectedLineage(s.state) {
		s.handleDisconnectCmd()
	}
	return true
}

func (s *Service) handleDisconnectCmd() {
	if d := s.checkCommand(cmdConnectionControl); !d.allowed {
		return
	}
	s.tracker.finalize(OutcomeNetworkDisconnection)
	if err := s.cfg.Native.Disconnect(s.iface); err != nil {
		s.log.Warn("Native disconnect failed", slogutil.Error(err))
	}
	s.teardownLink()
	if isStaEnabled(s.state) && s.state != stateDisconnected {
		s.transitionTo(stateDisconnecting)
	}
}

// teardownLink releases the IP client and the platform registration when
// the machine is leaving the connected lineage. Idempotent via the lineage
// check, so every leave path may call it.
func (s *Service) teardownLink() {
	if !isConnectedLineage(s.state) {
		return
	}
	s.cfg.Registrar.Unregister()
	s.cfg.IPClient.Stop(s.iface)
}

// --- native events ---

func (s *Service) handleNativeEvent(ev native.Event) {
	if s.mode != ModeConnect {
		return
	}
	switch ev := ev.(type) {
	case native.ConnectionEstablished:
		s.handleConnectionEstablished(ev)
	case native.Disconnected:
		genuine := !ev.LocallyGenerated && s.state != stateDisconnecting
		s.handleNetworkDisconnect(ev.ReasonCode, genuine)
	case native.SupplicantStateChanged:
		s.handleSupplicantStateChange(ev)
	case native.AssociationRejected:
		s.handleAssociationRejected(ev)
	case native.AuthenticationFailed:
		s.handleAuthenticationFailed(ev)
	case native.AssociatedBSSID:
		s.handleAssociatedBSSID(ev)
	}
}

func (s *Service) handleConnectionEstablished(ev native.ConnectionEstablished) {
	id := s.targetNetworkID
	if id == netconfig.InvalidNetworkID {
		id = ev.NetworkID
	}

	// A fresh association clears the recent-failure annotation for the
	// same network.
	s.cfg.Store.ClearRecentFailure(id)

	ssid := s.targetSSID
	freq := 0
	rssi := invalidRSSI
	if rec, ok := s.cfg.Store.ScanRecordFor(id, ev.BSSID); ok {
		ssid = rec.SSID
		freq = rec.FrequencyMHz
		rssi = rec.RSSI
	} else if cfg, ok := s.cfg.Store.Network(id); ok {
		ssid = cfg.SSID
	}

	s.info.update(func(i *ConnectionInfo) {
		i.NetworkID = id
		i.SSID = ssid
		i.BSSID = ev.BSSID
		i.FrequencyMHz = freq
		i.RSSI = rssi
	})

	if !s.tracker.live {
		// Externally triggered association (auto-join); track it anyway.
		s.targetNetworkID = id
		s.targetSSID = ssid
		s.lastNetworkID = id
		s.tracker.start(id, ssid, s.delayed(s.connectTimeout, connectTimeoutMsg{}))
	}

	if err := s.cfg.IPClient.StartProvisioning(s.iface); err != nil {
		s.log.Error("Failed to start IP provisioning", slogutil.Error(err))
		s.post(ipFailureMsg{})
	}
	s.transitionTo(stateObtainingIP)
}

func (s *Service) handleSupplicantStateChange(ev native.SupplicantStateChanged) {
	switch ev.State {
	case native.StateCompleted:
		// A completed handshake on a different BSSID while Connected is a
		// roam the driver finished without an associated-bssid event.
		if cur := s.info.Snapshot(); s.state == stateConnected &&
			ev.BSSID != "" && ev.BSSID != cur.BSSID {
			s.handleAssociatedBSSID(native.AssociatedBSSID{BSSID: ev.BSSID})
		}
		s.info.update(func(i *ConnectionInfo) {
			i.SupplicantState = ev.State
			if ev.BSSID != "" {
				i.BSSID = ev.BSSID
			}
			if ev.SSID != "" {
				i.SSID = ev.SSID
			}
		})
		if s.state == stateRoaming {
			s.transitionTo(stateConnected)
		}
	case native.StateDisconnected, native.StateInterfaceDisabled:
		s.info.update(func(i *ConnectionInfo) { i.SupplicantState = ev.State })
		if ev.State == native.StateInterfaceDisabled {
			s.cfg.Recovery.NoteNativeFailure(recovery.ReasonIfaceDown)
		}
		genuine := s.state != stateDisconnecting
		s.handleNetworkDisconnect(0, genuine)
	default:
		s.info.update(func(i *ConnectionInfo) { i.SupplicantState = ev.State })
	}
}

// handleNetworkDisconnect is the shared path for losing the association.
// Idempotent: a second notification finds the machine already Disconnected.
func (s *Service) handleNetworkDisconnect(reasonCode int, genuine bool) {
	if s.state == stateDefault || s.state == stateDisconnected {
		s.info.clearConnection()
		return
	}

	id := s.info.Snapshot().NetworkID
	if id == netconfig.InvalidNetworkID {
		id = s.targetNetworkID
	}

	s.tracker.finalize(OutcomeNetworkDisconnection)

	if isConnectedLineage(s.state) {
		metricDisconnects.Inc()
		s.cfg.Telemetry.NoteDisconnect(id, reasonCode)
	}
	s.teardownLink()

	s.info.clearConnection()

	if genuine {
		if removed := s.cfg.Store.RemoveEphemeralNetworks(); len(removed) > 0 {
			s.log.Debug("Purged ephemeral networks", "count", len(removed))
		}
	}

	s.targetNetworkID = netconfig.InvalidNetworkID
	s.targetSSID = ""
	// Polling never auto-resumes across a lost link.
	s.pollingWanted = false
	s.transitionTo(stateDisconnected)
}

func (s *Service) handleAssociationRejected(ev native.AssociationRejected) {
	id := s.targetNetworkID
	if id != netconfig.InvalidNetworkID {
		// The annotation stays until an explicit clear or a new
		// association to the same network.
		s.cfg.Store.SetRecentFailure(id, ev.StatusCode)
		s.cfg.Store.SetSelectionStatus(id, netconfig.DisabledAssociationRejection)
	}
	s.tracker.finalize(OutcomeAssociationRejection)
	if s.state == stateConnecting || s.state == stateObtainingIP {
		s.transitionTo(stateDisconnected)
	}
	s.targetNetworkID = netconfig.InvalidNetworkID
	s.targetSSID = ""
}

func (s *Service) handleAuthenticationFailed(ev native.AuthenticationFailed) {
	id := s.targetNetworkID

	switch ev.Reason {
	case native.AuthFailureWrongPassword:
		if id != netconfig.InvalidNetworkID && s.cfg.Store.HasEverConnected(id) {
			// Previously working credentials; most likely the network
			// changed, not the user's password entry.
			s.cfg.Store.SetSelectionStatus(id, netconfig.DisabledAuthenticationFailure)
		} else {
			if id != netconfig.InvalidNetworkID {
				s.cfg.Store.SetSelectionStatus(id, netconfig.DisabledByWrongPassword)
			}
			s.cfg.Notifier.NotifyWrongPassword(s.targetSSID)
		}
	case native.AuthFailureEAP:
		if ev.VendorErrorCode == native.VendorErrCertExpired && id != netconfig.InvalidNetworkID {
			if cfg, ok := s.cfg.Store.Network(id); ok &&
				cfg.Enterprise != nil && cfg.Enterprise.Method.UsesCarrierSIM() {
				s.cfg.CarrierKeys.ResetCarrierKeys(id)
			}
		}
		if id != netconfig.InvalidNetworkID {
			s.cfg.Store.SetSelectionStatus(id, netconfig.DisabledAuthenticationFailure)
		}
	default:
		if id != netconfig.InvalidNetworkID {
			s.cfg.Store.SetSelectionStatus(id, netconfig.DisabledAuthenticationFailure)
		}
	}

	s.tracker.finalize(OutcomeAuthenticationFailure)
	if s.state == stateConnecting || s.state == stateObtainingIP {
		s.transitionTo(stateDisconnected)
	}
	s.targetNetworkID = netconfig.InvalidNetworkID
	s.targetSSID = ""
}

func (s *Service) handleAssociatedBSSID(ev native.AssociatedBSSID) {
	if !isConnectedLineage(s.state) {
		return
	}
	cur := s.info.Snapshot()
	if ev.BSSID == cur.BSSID {
		return
	}
	freq := cur.FrequencyMHz
	if rec, ok := s.cfg.Store.ScanRecordFor(cur.NetworkID, ev.BSSID); ok {
		freq = rec.FrequencyMHz
	}
	s.info.update(func(i *ConnectionInfo) {
		i.BSSID = ev.BSSID
		i.FrequencyMHz = freq
	})
	if s.state == stateConnected {
		s.transitionTo(stateRoaming)
	}
}

// --- IP provisioning outcomes ---

func (s *Service) handleIPSuccess(props LinkProperties) {
	if s.state != stateObtainingIP && s.state != stateRoaming {
		s.log.Debug("Ignoring provisioning success outside ObtainingIp")
		return
	}
	id := s.info.Snapshot().NetworkID
	s.mergeLinkProperties(props)
	s.cfg.Store.RecordSuccessfulConnection(id)
	if err := s.cfg.Registrar.Register(s.info.Snapshot()); err != nil {
		s.log.Warn("Network registration failed", slogutil.Error(err))
	}
	s.tracker.finalize(OutcomeSuccess)
	s.transitionTo(stateConnected)
}

func (s *Service) handleIPFailure() {
	if !isConnectedLineage(s.state) {
		return
	}
	// Has-ever-connected is never set on this path.
	if err := s.cfg.Native.Disconnect(s.iface); err != nil {
		s.log.Warn("Native disconnect failed", slogutil.Error(err))
	}
	s.tracker.finalize(OutcomeDHCPFailure)
	s.teardownLink()
	s.transitionTo(stateDisconnecting)
}

func (s *Service) mergeLinkProperties(props LinkProperties) {
	s.info.update(func(i *ConnectionInfo) {
		if props.IPAddress != "" {
			i.IPAddress = props.IPAddress
		}
	})
}

// --- timers ---

func (s *Service) handleConnectTimeout() {
	if !s.tracker.finalize(OutcomeTimeout) {
		return
	}
	s.log.Warn("Connection attempt timed out", slogutil.Network(s.targetNetworkID))
	if s.state == stateConnecting || s.state == stateObtainingIP {
		if err := s.cfg.Native.Disconnect(s.iface); err != nil {
			s.log.Warn("Native disconnect failed", slogutil.Error(err))
		}
		s.teardownLink()
		s.transitionTo(stateDisconnecting)
	}
	s.targetNetworkID = netconfig.InvalidNetworkID
	s.targetSSID = ""
}

func (s *Service) handleSetPolling(enabled bool) {
	if enabled == s.pollingWanted {
		return
	}
	s.pollingWanted = enabled
	if !enabled {
		if s.pollTimer != nil {
			s.pollTimer.cancel()
			s.pollTimer = nil
		}
		return
	}
	if s.state == stateConnected && s.pollTimer == nil {
		s.post(pollTickMsg{})
	}
}

func (s *Service) handlePollTick() {
	// An extra tick can be queued while a reschedule is already pending,
	// as after a rapid disable/enable. Cancelling here keeps one chain.
	if s.pollTimer != nil {
		s.pollTimer.cancel()
		s.pollTimer = nil
	}
	if s.state != stateConnected || !s.pollingWanted {
		return
	}
	id := s.info.Snapshot().NetworkID
	snap, _, err := s.monitor.Poll(s.iface, id)
	if err != nil {
		s.log.Warn("Link poll failed", slogutil.Error(err))
	} else {
		s.info.update(func(i *ConnectionInfo) {
			i.RSSI = snap.RSSI
			i.LinkSpeedMbps = snap.LinkSpeedMbps
			if snap.FrequencyMHz > 0 {
				i.FrequencyMHz = snap.FrequencyMHz
			}
			i.TxGood = snap.Counters.TxGood
			i.TxBad = snap.Counters.TxBad
			i.RxSuccess = snap.Counters.RxSuccess
		})
	}
	s.pollTimer = s.delayed(s.pollInterval, pollTickMsg{})
}

// --- state entry/exit behavior ---

func (s *Service) enterConnected() {
	// Threshold monitoring re-arms on every entry into Connected. The
	// breach callback runs on a driver goroutine and only enqueues.
	s.monitor.ArmRSSIMonitoring(s.iface, func(rssi int8) {
		s.post(rssiBreachMsg{rssi: rssi})
	})
	// A roam cycle keeps the polling preference; resume it.
	if s.pollingWanted && s.pollTimer == nil {
		s.post(pollTickMsg{})
	}
}

func (s *Service) exitConnected() {
	s.monitor.DisarmRSSIMonitoring(s.iface)
	if s.pollTimer != nil {
		s.pollTimer.cancel()
		s.pollTimer = nil
	}
}
