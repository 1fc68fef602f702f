// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge maintains the LSL bridge: a hidden scripted
// attachment the viewer wears as an out-of-band control channel.
// The manager owns the bridge's whole lifecycle, from cloning a
// library prim through script upload to the chat handshake, and
// keeps exactly one valid, attached, versioned bridge per avatar.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/firestorm-community/lslbridge/avatar"
	"github.com/firestorm-community/lslbridge/chat"
	"github.com/firestorm-community/lslbridge/inventory"
	"github.com/firestorm-community/lslbridge/lib/clock"
	"github.com/firestorm-community/lslbridge/lib/ref"
	"github.com/firestorm-community/lslbridge/lib/settings"
	"github.com/firestorm-community/lslbridge/lib/statefile"
	"github.com/firestorm-community/lslbridge/transport"
)

// State is the bridge lifecycle position. Every transition goes
// through the transition guard; a failure on any path resets to
// StateAbsent so a fresh creation can always start.
type State int

const (
	StateAbsent State = iota
	StateCreating
	StateAwaitingAttach
	StateAwaitingScript
	StateAwaitingUpload
	StateConfirming
	StateReady
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateCreating:
		return "creating"
	case StateAwaitingAttach:
		return "awaiting-attach"
	case StateAwaitingScript:
		return "awaiting-script"
	case StateAwaitingUpload:
		return "awaiting-upload"
	case StateConfirming:
		return "confirming"
	case StateReady:
		return "ready"
	case StateDetached:
		return "detached"
	}
	return "unknown"
}

// transitions lists the legal forward moves. Any state may reset to
// StateAbsent; that edge is implicit.
var transitions = map[State][]State{
	StateAbsent:         {StateCreating, StateAwaitingAttach, StateConfirming},
	StateCreating:       {StateAwaitingAttach},
	StateAwaitingAttach: {StateAwaitingScript, StateConfirming},
	StateAwaitingScript: {StateAwaitingUpload},
	StateAwaitingUpload: {StateConfirming},
	StateConfirming:     {StateReady, StateAwaitingScript, StateCreating, StateDetached, StateConfirming},
	StateReady:          {StateDetached, StateConfirming, StateCreating},
	StateDetached:       {StateCreating, StateAwaitingAttach, StateConfirming},
}

// preCreationSettleDelay separates the detach of an old bridge from
// the creation of its replacement, giving the detach time to land.
const preCreationSettleDelay = 2 * time.Second

// postUploadFinishDelay separates a successful script upload from the
// restart detach, giving the simulator time to compile the script
// into the prim.
const postUploadFinishDelay = 1 * time.Second

// postCreationReattachDelay is how long a freshly built bridge stays
// detached before it is worn again. The reattach restarts the script,
// which then announces its URL.
const postCreationReattachDelay = 5 * time.Second

// scratchScriptName is the patched script file written under the
// state directory before upload.
const scratchScriptName = "bridge-script.lsl"

// TaskItem is one entry of a worn object's own inventory, as reported
// by a content audit.
type TaskItem struct {
	Script  bool
	Creator ref.AgentID
}

// TaskInventoryQuerier fetches a rezzed object's inventory contents
// asynchronously. The session wires the live grid query; tests
// substitute canned contents.
type TaskInventoryQuerier interface {
	QueryTaskInventory(object ref.ObjectID, done func(contents []TaskItem, err error))
}

// DetachSanctioner lets the manager mark its own deliberate detaches
// so lock enforcement does not fight them.
type DetachSanctioner interface {
	ExpectDetach(object ref.ObjectID)
}

// Manager is the bridge lifecycle manager. Populate the collaborator
// fields, then call Init once inventory is usable. Safe for
// concurrent use; all mutation is serialized behind one mutex.
type Manager struct {
	Settings   *settings.Store
	Inventory  inventory.Inventory
	Avatar     *avatar.Avatar
	Client     *transport.Client
	Uploader   *transport.ScriptUploader
	Reporter   chat.Reporter
	Clock      clock.Clock
	Tasks      TaskInventoryQuerier
	Sanctioner DetachSanctioner
	ShaperHook PrimConfigurer
	Logger     *slog.Logger

	// StateDir holds the persisted bridge identity and the script
	// scratch file.
	StateDir string

	// ScriptResource optionally overrides the built-in script source.
	ScriptResource string

	// LocalAgent is the logged-in agent, used to validate script
	// authorship during content audits.
	LocalAgent ref.AgentID

	mu                 sync.Mutex
	ctx                context.Context
	state              State
	category           ref.CategoryID
	container          ref.CategoryID
	bridgeItem         ref.ItemID
	bridgeObject       ref.ObjectID
	scriptItem         ref.ItemID
	currentURL         string
	persisted          statefile.State
	firstHandshakeDone bool

	// fullCreation distinguishes a fresh build (configure the prim,
	// create a script) from a re-attach of an existing bridge (audit
	// its contents instead).
	fullCreation bool

	// finishing marks the deliberate detach at the end of a fresh
	// build; the matching detach event schedules the reattach instead
	// of parking the manager in StateDetached.
	finishing bool
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func (m *Manager) report(message string) {
	if m.Reporter != nil {
		m.Reporter.Report(message)
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// URL returns the request URL from the last confirmed handshake.
func (m *Manager) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentURL
}

// transition moves to a new state, rejecting illegal edges. Callers
// hold m.mu.
func (m *Manager) transition(to State) bool {
	if to == StateAbsent {
		m.logger().Debug("bridge state reset", "from", m.state)
		m.state = StateAbsent
		return true
	}
	for _, allowed := range transitions[m.state] {
		if allowed == to {
			m.logger().Debug("bridge state change", "from", m.state, "to", to)
			m.state = to
			return true
		}
	}
	m.logger().Error("illegal bridge state transition", "from", m.state, "to", to)
	return false
}

// creationInFlight reports whether a creation sequence is active.
// StateConfirming does not count: the build is complete and only the
// handshake is outstanding, so a new creation may preempt it.
// Callers hold m.mu.
func (m *Manager) creationInFlight() bool {
	switch m.state {
	case StateCreating, StateAwaitingAttach, StateAwaitingScript, StateAwaitingUpload:
		return true
	}
	return false
}

// Init is the cold-start entry point, called once inventory is
// usable. It loads the persisted identity, resolves the bridge and
// library folders, wires setting observers, and starts creation or
// adoption of an existing bridge.
func (m *Manager) Init(ctx context.Context) error {
	if !m.Settings.Bool(settings.KeyUseLSLBridge) {
		m.logger().Info("bridge disabled by setting")
		return nil
	}

	persisted, err := statefile.Load(m.StateDir)
	if err != nil {
		return fmt.Errorf("bridge: loading state: %w", err)
	}

	m.mu.Lock()
	m.ctx = ctx
	m.persisted = persisted
	m.mu.Unlock()
	if !persisted.IsZero() {
		m.logger().Info("loaded bridge identity",
			"token", persisted.TokenFingerprint(), "item", persisted.BridgeItem)
	}

	if err := m.resolveCategories(); err != nil {
		m.report("Bridge not available on this grid.")
		return err
	}
	m.watchSettings()
	m.StartCreation()
	return nil
}

// resolveCategories finds or creates the viewer and bridge folders
// and locates the library container holding the template prim.
func (m *Manager) resolveCategories() error {
	root := m.Inventory.RootCategory()
	viewer, ok := m.Inventory.FindCategory(root, viewerFolderName)
	viewerID := viewer.ID
	if !ok {
		var err error
		viewerID, err = m.Inventory.CreateCategory(root, viewerFolderName)
		if err != nil {
			return fmt.Errorf("bridge: creating viewer folder: %w", err)
		}
	}
	folder, ok := m.Inventory.FindCategory(viewerID, folderName)
	folderID := folder.ID
	if !ok {
		var err error
		folderID, err = m.Inventory.CreateCategory(viewerID, folderName)
		if err != nil {
			return fmt.Errorf("bridge: creating bridge folder: %w", err)
		}
	}

	if m.Settings.Bool(settings.KeyNoInventoryLibrary) {
		return fmt.Errorf("bridge: inventory library disabled by setting")
	}
	library, ok := m.Inventory.LibraryCategory()
	if !ok {
		return fmt.Errorf("bridge: grid has no inventory library")
	}
	objects, ok := m.Inventory.FindCategory(library, libraryObjectsFolder)
	if !ok {
		return fmt.Errorf("bridge: library has no %s folder", libraryObjectsFolder)
	}
	container, ok := m.Inventory.FindCategory(objects.ID, libraryContainerFolder)
	if !ok {
		return fmt.Errorf("bridge: library has no %s folder", libraryContainerFolder)
	}

	m.mu.Lock()
	m.category = folderID
	m.container = container.ID
	m.mu.Unlock()
	return nil
}

// watchSettings pushes setting changes to the script while the bridge
// is ready.
func (m *Manager) watchSettings() {
	m.Settings.OnChange(settings.KeyUseMoveLock, func(string) {
		locked := m.Settings.Bool(settings.KeyUseMoveLock)
		m.sendAsync(movelockCommand(locked))
		if locked {
			m.report("Movement locked.")
		} else {
			m.report("Movement unlocked.")
		}
	})
	m.Settings.OnChange(settings.KeyFlightAssist, func(string) {
		m.sendAsync(flightAssistCommand(m.Settings.Float(settings.KeyFlightAssist)))
	})
	m.Settings.OnChange(settings.KeyUseAO, func(string) {
		m.sendAsync(clientAOCommand(m.Settings.Bool(settings.KeyUseAO)))
	})
}

// StartCreation looks for a usable existing bridge before building a
// new one: a worn match is audited, an unworn match is re-attached,
// and only a missing bridge triggers full creation. A second call
// while a sequence is active is reported and rejected, never queued.
func (m *Manager) StartCreation() {
	if !m.Settings.Bool(settings.KeyUseLSLBridge) {
		m.logger().Warn("bridge creation requested while disabled, aborting")
		m.report("Bridge can't be created while disabled in preferences.")
		return
	}

	m.mu.Lock()
	if m.creationInFlight() {
		m.mu.Unlock()
		m.rejectConcurrentCreation()
		return
	}
	category := m.category
	m.mu.Unlock()

	existing, found := findItemByName(m.Inventory, category, currentName(), inventory.AssetObject)
	if !found {
		m.createNewBridge()
		return
	}

	if attachment, worn := m.Avatar.AttachmentForItem(existing.ID); worn {
		m.mu.Lock()
		m.bridgeItem = existing.ID
		m.bridgeObject = attachment.Object
		m.transition(StateConfirming)
		m.mu.Unlock()
		m.auditWornBridge(attachment.Object)
		return
	}

	m.mu.Lock()
	m.bridgeItem = existing.ID
	m.fullCreation = false
	if !m.transition(StateAwaitingAttach) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	if _, err := m.Avatar.RequestAttach(existing.ID, ref.BridgePoint, true); err != nil {
		m.logger().Error("bridge reattach failed", "error", err)
		m.abortCreation("Bridge creation failed. Could not attach.")
	}
}

// Recreate tears down any existing bridge and starts over. The
// rebuild is scheduled after a settling delay so the detach lands
// first. While a creation is in flight the call is rejected.
func (m *Manager) Recreate() {
	if !m.Settings.Bool(settings.KeyUseLSLBridge) {
		m.logger().Warn("bridge recreate requested while disabled, aborting")
		m.report("Bridge can't be created while disabled in preferences.")
		return
	}

	m.mu.Lock()
	if m.creationInFlight() {
		m.mu.Unlock()
		m.rejectConcurrentCreation()
		return
	}
	object := m.bridgeObject
	m.bridgeItem = ref.ItemID{}
	m.bridgeObject = ref.ObjectID{}
	m.scriptItem = ref.ItemID{}
	m.currentURL = ""
	m.firstHandshakeDone = false
	m.fullCreation = true
	m.finishing = false
	m.transition(StateCreating)
	m.mu.Unlock()

	if !object.IsZero() {
		m.sanctionDetach(object)
		if err := m.Avatar.DetachIntoInventory(object); err != nil {
			m.logger().Warn("detaching old bridge failed", "error", err)
		}
	}
	m.purgeLeftovers()

	m.Clock.AfterFunc(preCreationSettleDelay, m.createFromTemplate)
}

func (m *Manager) rejectConcurrentCreation() {
	m.logger().Warn("bridge creation already in flight")
	m.report("Bridge creation in process, can't start another. Please wait.")
}

// purgeLeftovers removes unworn leftover bridge items from the bridge
// folder before a fresh creation.
func (m *Manager) purgeLeftovers() {
	m.mu.Lock()
	category := m.category
	m.mu.Unlock()
	for _, item := range m.Inventory.ItemsIn(category) {
		if !strings.HasPrefix(item.Name, namePrefix) || m.Avatar.IsWorn(item.ID) {
			continue
		}
		if err := m.Inventory.Purge(item.ID); err != nil {
			m.logger().Warn("purging leftover bridge item failed", "item", item.ID, "error", err)
		}
	}
}

// createNewBridge begins full creation from the library template.
func (m *Manager) createNewBridge() {
	m.mu.Lock()
	m.fullCreation = true
	if !m.transition(StateCreating) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.createFromTemplate()
}

func (m *Manager) createFromTemplate() {
	m.mu.Lock()
	container := m.container
	category := m.category
	m.mu.Unlock()

	template, found := findItemByName(m.Inventory, container, libraryTemplateName, inventory.AssetObject)
	if !found {
		m.abortCreation("Unable to create bridge. The library object is missing.")
		return
	}
	m.Inventory.CopyItem(template.ID, category, currentName(), m.onBridgeCopied)
}

func (m *Manager) onBridgeCopied(item ref.ItemID, err error) {
	if err != nil {
		m.logger().Error("bridge template copy failed", "error", err)
		m.abortCreation("Unable to create bridge. Copying the library object failed.")
		return
	}

	m.mu.Lock()
	m.bridgeItem = item
	m.fullCreation = true
	if !m.transition(StateAwaitingAttach) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if _, err := m.Avatar.RequestAttach(item, ref.BridgePoint, true); err != nil {
		m.logger().Error("bridge attach failed", "error", err)
		m.abortCreation("Bridge creation failed. Could not attach.")
	}
}

// ProcessAttach is invoked for every attachment event system-wide.
// The manager filters for its own point and name, adopts or rejects
// the object, and advances the creation sequence.
func (m *Manager) ProcessAttach(object ref.ObjectID, point ref.AttachPoint) {
	attachment, worn := m.Avatar.Attachment(object)
	if !worn {
		return
	}
	item, ok := m.Inventory.Item(attachment.Item)
	if !ok || !strings.HasPrefix(item.Name, namePrefix) {
		return
	}

	m.mu.Lock()
	category := m.category
	cached := m.bridgeItem
	awaiting := m.state == StateAwaitingAttach
	creating := awaiting && m.fullCreation
	m.mu.Unlock()

	// A bridge-named object on the wrong point, with a stale name, or
	// outside the bridge folder is never tolerated.
	if point != ref.BridgePoint || item.Name != currentName() || item.Parent != category {
		m.logger().Warn("foreign bridge object detected", "item", item.ID, "name", item.Name, "point", point)
		m.forceDetach(object)
		if awaiting {
			m.abortCreation("Bridge creation failed. An unexpected bridge object appeared.")
		}
		return
	}

	if !cached.IsZero() && item.ID != cached {
		m.logger().Warn("duplicate bridge object detected", "item", item.ID, "expected", cached)
		m.forceDetach(object)
		if awaiting {
			m.abortCreation("Bridge creation failed. A duplicate bridge appeared.")
		}
		return
	}

	m.mu.Lock()
	if m.state == StateReady && object == m.bridgeObject {
		// Duplicate attach event for the confirmed bridge.
		m.mu.Unlock()
		return
	}
	m.bridgeItem = item.ID
	m.bridgeObject = object
	if creating && m.state == StateAwaitingAttach {
		if !m.transition(StateAwaitingScript) {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		m.configurePrim(object)
		m.createScript()
		return
	}
	m.transition(StateConfirming)
	m.mu.Unlock()

	// A re-attach outside creation gets its contents audited before
	// the bridge is trusted.
	m.auditWornBridge(object)
}

// auditWornBridge asynchronously fetches the worn object's own
// inventory and hands it to InventoryChanged.
func (m *Manager) auditWornBridge(object ref.ObjectID) {
	if m.Tasks == nil {
		m.logger().Debug("no task inventory querier, accepting bridge unaudited")
		return
	}
	m.Tasks.QueryTaskInventory(object, func(contents []TaskItem, err error) {
		if err != nil {
			m.logger().Error("bridge content audit failed", "error", err)
			m.abortCreation("Bridge verification failed.")
			return
		}
		m.InventoryChanged(contents)
	})
}

// InventoryChanged receives a worn bridge's audited contents. A valid
// bridge holds exactly one script authored by the local agent;
// anything else re-enters script creation over the worn prim.
func (m *Manager) InventoryChanged(contents []TaskItem) {
	valid := len(contents) == 1 && contents[0].Script && contents[0].Creator == m.LocalAgent
	if valid {
		m.logger().Debug("bridge contents verified")
		return
	}

	m.logger().Warn("bridge contents invalid, recreating script",
		"entries", len(contents))
	m.mu.Lock()
	object := m.bridgeObject
	if !m.transition(StateAwaitingScript) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.configurePrim(object)
	m.createScript()
}

// PrimParams is the deterministic shape pushed onto the bridge prim:
// a minimal invisible box, temporary on rez.
type PrimParams struct {
	Size      [3]float64
	Hollow    float64
	Invisible bool
	TempOnRez bool
}

// PrimConfigurer pushes prim parameters to the simulator. Optional;
// without one the parameters are only logged.
type PrimConfigurer interface {
	ConfigurePrim(object ref.ObjectID, params PrimParams) error
}

// configurePrim pushes the bridge's fixed geometry. Idempotent: the
// parameters are constants, so repeated pushes converge.
func (m *Manager) configurePrim(object ref.ObjectID) {
	params := PrimParams{
		Size:      [3]float64{0.01, 0.01, 0.01},
		Hollow:    0.95,
		Invisible: true,
		TempOnRez: true,
	}
	if m.ShaperHook != nil {
		if err := m.ShaperHook.ConfigurePrim(object, params); err != nil {
			m.logger().Warn("prim configuration push failed", "error", err)
			return
		}
	}
	m.logger().Debug("bridge prim configured", "object", object)
}

// createScript asynchronously creates the control script item.
func (m *Manager) createScript() {
	m.mu.Lock()
	category := m.category
	m.mu.Unlock()
	m.Inventory.CreateItem(category, currentName(), inventory.AssetScript, m.onScriptCreated)
}

func (m *Manager) onScriptCreated(item ref.ItemID, err error) {
	if err != nil {
		m.logger().Error("script creation failed", "error", err)
		m.rollback("Bridge creation failed. Could not create the control script.")
		return
	}

	m.mu.Lock()
	m.scriptItem = item
	if !m.transition(StateAwaitingUpload) {
		m.mu.Unlock()
		return
	}
	object := m.bridgeObject
	bridgeItem := m.bridgeItem
	ctx := m.ctx
	m.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if !m.Avatar.IsWorn(bridgeItem) {
		m.rollback("Bridge creation failed. The bridge vanished before upload.")
		return
	}
	if err := m.uploadScript(ctx, object, item); err != nil {
		m.logger().Error("script upload failed", "error", err)
		m.rollback("Bridge creation failed. Script upload failed.")
		return
	}

	m.mu.Lock()
	m.transition(StateConfirming)
	m.mu.Unlock()
	m.Clock.AfterFunc(postUploadFinishDelay, m.finishCreation)
}

// finishCreation completes a fresh build: old versions are purged,
// stray bridges detached, and the new bridge itself is detached so
// that its next attach restarts the script, which announces the URL.
// Skipped when the handshake already arrived.
func (m *Manager) finishCreation() {
	m.mu.Lock()
	if m.state != StateConfirming {
		m.mu.Unlock()
		return
	}
	m.finishing = true
	m.fullCreation = false
	object := m.bridgeObject
	m.mu.Unlock()

	m.CleanUpOldVersions()
	m.detachOtherBridges()
	if !object.IsZero() {
		m.logger().Info("detaching new bridge to restart its script")
		m.forceDetach(object)
	}
}

// reattachAfterFinish wears the freshly built bridge again after the
// restart detach has settled.
func (m *Manager) reattachAfterFinish(item ref.ItemID) {
	if _, err := m.Avatar.RequestAttach(item, ref.BridgePoint, true); err != nil {
		m.logger().Error("bridge reattach after creation failed", "error", err)
		m.abortCreation("Bridge creation failed. Could not re-attach.")
	}
}

// uploadScript patches a fresh auth token into the script source,
// persists the new identity, writes the scratch copy, and pushes the
// body through the upload capability.
func (m *Manager) uploadScript(ctx context.Context, object ref.ObjectID, script ref.ItemID) error {
	source, err := loadScriptSource(m.ScriptResource)
	if err != nil {
		return err
	}
	token := uuid.NewString()
	patched, err := patchToken(source, token)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.persisted = statefile.State{
		AuthToken:  token,
		BridgeItem: m.bridgeItem,
		ScriptItem: script,
		CreatedAt:  m.Clock.Now(),
	}
	persisted := m.persisted
	m.mu.Unlock()

	scratch := filepath.Join(m.StateDir, scratchScriptName)
	if err := os.WriteFile(scratch, []byte(patched), 0o600); err != nil {
		return fmt.Errorf("bridge: writing scratch script: %w", err)
	}
	if err := statefile.Save(m.StateDir, persisted); err != nil {
		return err
	}

	m.logger().Info("uploading bridge script",
		"token", persisted.TokenFingerprint(), "digest", scriptDigest(patched))
	if _, err := m.Uploader.Upload(ctx, object, script, patched); err != nil {
		return err
	}
	return nil
}

// HandleChat routes one inbound chat line into the protocol handler.
// Non-handshake tags from anything but the recorded bridge object are
// silently ignored: the channel is authenticated by object identity.
func (m *Manager) HandleChat(ctx context.Context, message string, from ref.ObjectID) error {
	parsed, err := Parse(message)
	if err != nil {
		m.logger().Debug("malformed bridge message", "error", err)
		return err
	}

	switch msg := parsed.(type) {
	case URLMessage:
		m.handleURL(ctx, msg, from)
	case ClientAOMessage:
		if m.fromBridge(from) {
			m.Settings.SetBool(settings.KeyUseAO, msg.Enabled)
		}
	case MovelockMessage:
		if m.fromBridge(from) {
			m.Settings.SetBool(settings.KeyUseMoveLock, msg.Locked)
		}
	case ScriptInfoMessage:
		if m.fromBridge(from) {
			m.reportScriptInfo(msg)
		}
	case ErrorMessage:
		if m.fromBridge(from) {
			m.reportScriptError(msg.Kind)
		}
	case Unrecognized:
	}
	return nil
}

func (m *Manager) fromBridge(from ref.ObjectID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.bridgeObject.IsZero() && from == m.bridgeObject
}

// handleURL runs the confirmation handshake. A token mismatch is the
// self-healing path for impersonation or a stale bridge from another
// machine: detach and recreate, never trust.
func (m *Manager) handleURL(ctx context.Context, msg URLMessage, from ref.ObjectID) {
	if !m.Settings.Bool(settings.KeyUseLSLBridge) {
		// A worn bridge keeps announcing even when the setting is
		// off. Swallow the handshake without replying.
		m.logger().Debug("handshake ignored, bridge disabled")
		return
	}

	m.mu.Lock()
	stored := m.persisted.AuthToken
	m.mu.Unlock()

	if stored == "" || msg.Auth != stored {
		m.logger().Warn("bridge auth mismatch, recreating",
			"announced", statefile.State{AuthToken: msg.Auth}.TokenFingerprint(),
			"stored", statefile.State{AuthToken: stored}.TokenFingerprint())
		m.report("Bridge failed authentication and is being replaced.")
		m.detachWornBridges()
		m.Recreate()
		return
	}
	if msg.Version != currentVersion() {
		m.logger().Warn("bridge version mismatch, recreating",
			"announced", msg.Version, "expected", currentVersion())
		m.detachWornBridges()
		m.Recreate()
		return
	}

	m.mu.Lock()
	m.currentURL = msg.URL
	m.bridgeObject = from
	first := !m.firstHandshakeDone
	m.firstHandshakeDone = true
	if m.state != StateReady {
		if m.state != StateConfirming {
			m.transition(StateConfirming)
		}
		m.transition(StateReady)
	}
	m.mu.Unlock()

	m.logger().Info("bridge handshake confirmed", "first", first)
	if err := m.Send(ctx, "URL Confirmed"); err != nil {
		m.logger().Warn("handshake confirmation send failed", "error", err)
	}
	if first {
		m.pushSettingsSync(ctx)
	} else {
		m.reassertMovelock(ctx)
	}
}

// pushSettingsSync sends the one-time settings snapshot after the
// first confirmed handshake.
func (m *Manager) pushSettingsSync(ctx context.Context) {
	m.sendQuiet(ctx, flightAssistCommand(m.Settings.Float(settings.KeyFlightAssist)))
	m.sendQuiet(ctx, clientAOCommand(m.Settings.Bool(settings.KeyUseAO)))
	if m.Settings.Bool(settings.KeyUseMoveLock) {
		m.sendQuiet(ctx, movelockCommand(true))
		m.report("Movement locked.")
	}
	m.sendQuiet(ctx, integrationCommand(
		m.Settings.Bool(settings.KeyIntegrationOC),
		m.Settings.Bool(settings.KeyIntegrationLM)))
}

// reassertMovelock applies the region-change movelock policy on a
// repeat handshake: relock when configured to, otherwise release and
// tell the user.
func (m *Manager) reassertMovelock(ctx context.Context) {
	if !m.Settings.Bool(settings.KeyUseMoveLock) {
		return
	}
	if m.Settings.Bool(settings.KeyRelockAfterRegionChange) {
		m.sendQuiet(ctx, movelockCommand(true))
		return
	}
	m.Settings.SetBool(settings.KeyUseMoveLock, false)
	m.report("Movement lock released after region change.")
}

func (m *Manager) reportScriptInfo(msg ScriptInfoMessage) {
	m.report(fmt.Sprintf("Script info for %q: %s running of %s total, %s memory, %s ms, %s",
		msg.ObjectName, msg.Fields[0], msg.Fields[1], msg.Fields[2], msg.Fields[3], msg.Fields[4]))
}

func (m *Manager) reportScriptError(kind ErrorKind) {
	switch kind {
	case ErrorInjection:
		m.report("Bridge detected a chat injection attempt and ignored it.")
	case ErrorScriptInfoNotFound:
		m.report("Script info: object not found.")
	case ErrorWrongVM:
		m.report("Bridge script is running on the wrong VM; recreate the bridge.")
	}
}

// Send posts one command string to the bridge's request URL.
// Delivery is at most once: failures are returned, never retried.
func (m *Manager) Send(ctx context.Context, message string) error {
	m.mu.Lock()
	url := m.currentURL
	m.mu.Unlock()
	if url == "" {
		return fmt.Errorf("bridge: no confirmed bridge URL")
	}
	if _, err := m.Client.Post(ctx, url, message); err != nil {
		return fmt.Errorf("bridge: sending %q: %w", message, err)
	}
	return nil
}

// sendQuiet sends and logs failure instead of returning it, for
// fire-and-forget pushes.
func (m *Manager) sendQuiet(ctx context.Context, message string) {
	if err := m.Send(ctx, message); err != nil {
		m.logger().Warn("bridge send failed", "error", err)
	}
}

// sendAsync is sendQuiet from callbacks that have no caller context.
func (m *Manager) sendAsync(message string) {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	m.sendQuiet(ctx, message)
}

// ProcessDetach is invoked for every detach event system-wide. A
// detach of the bridge mid-creation is creation failure; after
// creation it parks the manager in StateDetached.
func (m *Manager) ProcessDetach(object ref.ObjectID, point ref.AttachPoint) {
	m.mu.Lock()
	if object.IsZero() || object != m.bridgeObject {
		m.mu.Unlock()
		return
	}
	if m.finishing {
		m.finishing = false
		m.bridgeObject = ref.ObjectID{}
		item := m.bridgeItem
		m.mu.Unlock()
		m.logger().Info("bridge detached for script restart", "point", point)
		m.Clock.AfterFunc(postCreationReattachDelay, func() { m.reattachAfterFinish(item) })
		return
	}
	creating := m.creationInFlight()
	m.bridgeObject = ref.ObjectID{}
	m.currentURL = ""
	m.firstHandshakeDone = false
	if creating {
		m.transition(StateAbsent)
	} else {
		m.transition(StateDetached)
	}
	m.mu.Unlock()

	if creating {
		m.logger().Warn("bridge detached mid-creation")
		m.report("Bridge creation failed. The bridge was detached.")
		return
	}
	m.logger().Info("bridge detached", "point", point)
}

// CleanUpOldVersions purges every inventory item carrying a
// historical bridge version name, leaving only the current one. Run
// once after a successful creation.
func (m *Manager) CleanUpOldVersions() {
	old := make(map[string]bool)
	for _, name := range historicalNames() {
		old[name] = true
	}

	m.mu.Lock()
	category := m.category
	m.mu.Unlock()
	purged := 0
	stale := m.Inventory.CollectDescendents(category, true, func(item inventory.Item) bool {
		return old[item.Name]
	})
	for _, item := range stale {
		if err := m.Inventory.Purge(item.ID); err != nil {
			m.logger().Warn("purging old bridge version failed", "item", item.ID, "error", err)
			continue
		}
		purged++
	}
	if purged > 0 {
		m.logger().Info("purged old bridge versions", "count", purged)
	}
}

// detachOtherBridges removes every worn bridge-named object other
// than the current one.
func (m *Manager) detachOtherBridges() {
	m.mu.Lock()
	current := m.bridgeItem
	m.mu.Unlock()
	for _, attachment := range m.Avatar.Attachments() {
		if attachment.Item == current {
			continue
		}
		item, ok := m.Inventory.Item(attachment.Item)
		if !ok || !strings.HasPrefix(item.Name, namePrefix) {
			continue
		}
		m.logger().Warn("detaching stray bridge", "item", item.ID, "name", item.Name)
		m.forceDetach(attachment.Object)
	}
}

// detachWornBridges detaches every worn object carrying the current
// bridge name, used when an untrusted bridge must go.
func (m *Manager) detachWornBridges() {
	for _, attachment := range m.Avatar.Attachments() {
		item, ok := m.Inventory.Item(attachment.Item)
		if !ok || item.Name != currentName() {
			continue
		}
		m.forceDetach(attachment.Object)
	}
	m.mu.Lock()
	m.bridgeObject = ref.ObjectID{}
	m.currentURL = ""
	m.mu.Unlock()
}

func (m *Manager) forceDetach(object ref.ObjectID) {
	m.sanctionDetach(object)
	if err := m.Avatar.DetachIntoInventory(object); err != nil {
		m.logger().Warn("forced detach failed", "object", object, "error", err)
	}
}

func (m *Manager) sanctionDetach(object ref.ObjectID) {
	if m.Sanctioner != nil {
		m.Sanctioner.ExpectDetach(object)
	}
}

// abortCreation resets to StateAbsent with a user notice but leaves
// inventory alone. rollback additionally destroys what creation
// built.
func (m *Manager) abortCreation(notice string) {
	m.mu.Lock()
	m.transition(StateAbsent)
	m.mu.Unlock()
	m.report(notice)
}

// rollback tears the half-built bridge down completely: detach, purge
// the object and script items, and clear the persisted identity. A
// failed creation never leaves partial state behind.
func (m *Manager) rollback(notice string) {
	m.mu.Lock()
	object := m.bridgeObject
	bridgeItem := m.bridgeItem
	scriptItem := m.scriptItem
	m.bridgeObject = ref.ObjectID{}
	m.bridgeItem = ref.ItemID{}
	m.scriptItem = ref.ItemID{}
	m.currentURL = ""
	m.firstHandshakeDone = false
	m.fullCreation = false
	m.finishing = false
	m.persisted = statefile.State{}
	m.transition(StateAbsent)
	m.mu.Unlock()

	if !object.IsZero() {
		m.forceDetach(object)
	}
	if !bridgeItem.IsZero() {
		if err := m.Inventory.Purge(bridgeItem); err != nil {
			m.logger().Warn("rollback purge failed", "item", bridgeItem, "error", err)
		}
	}
	if !scriptItem.IsZero() {
		if err := m.Inventory.Purge(scriptItem); err != nil {
			m.logger().Warn("rollback purge failed", "item", scriptItem, "error", err)
		}
	}
	if err := statefile.Clear(m.StateDir); err != nil {
		m.logger().Warn("clearing bridge state failed", "error", err)
	}
	m.report(notice)
}

// Outbound command strings, mirrored by the script's parser.

func movelockCommand(locked bool) string {
	return fmt.Sprintf("<bridgeMovelock state=%d>", boolBit(locked))
}

func flightAssistCommand(value float64) string {
	return fmt.Sprintf("<bridgeFlightAssist value=%g>", value)
}

func clientAOCommand(enabled bool) string {
	if enabled {
		return "<clientAO state=on>"
	}
	return "<clientAO state=off>"
}

func integrationCommand(oc, lm bool) string {
	return fmt.Sprintf("<bridgeIntegration oc=%d lm=%d>", boolBit(oc), boolBit(lm))
}

func boolBit(v bool) int {
	if v {
		return 1
	}
	return 0
}

// findItemByName scans one folder for an exact name match of the
// given asset type. The filter matters: the bridge object and its
// script share a name.
func findItemByName(inv inventory.Inventory, category ref.CategoryID, name string, typ inventory.AssetType) (inventory.Item, bool) {
	matches := inv.CollectDescendents(category, false, func(item inventory.Item) bool {
		return item.Name == name && item.Type == typ
	})
	if len(matches) == 0 {
		return inventory.Item{}, false
	}
	return matches[0], true
}
