package relay

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// =======================
// CONFIG
// =======================

type Config struct {
	ViewerIdleTimeout time.Duration // default 30m
	AgentIdleTimeout  time.Duration // default 10m
	ReapInterval      time.Duration // default 5m

	// Events is optional; nil disables the lifecycle log.
	Events EventRecorder
}

func (c *Config) withDefaults() {
	if c.ViewerIdleTimeout <= 0 {
		c.ViewerIdleTimeout = 30 * time.Minute
	}
	if c.AgentIdleTimeout <= 0 {
		c.AgentIdleTimeout = 10 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 5 * time.Minute
	}
}

// =======================
// RELAY
// =======================

// Relay owns all monitoring pub/sub state: both session pools, the
// subscription index, the snapshot cache and the IP index. One mutex
// guards everything; broadcast work touches all of it and a single
// coarse lock keeps the ordering trivial. Nothing under the lock
// blocks: socket writes go through per-session queues.
type Relay struct {
	mu      sync.RWMutex
	viewers map[string]*ViewerSession
	agents  map[string]*AgentSession
	subs    *subscriptionIndex
	cache   *snapshotCache
	hostIPs map[string]string // bare IP → composite host key

	cfg      Config
	events   EventRecorder
	stop     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) *Relay {
	cfg.withDefaults()
	return &Relay{
		viewers: make(map[string]*ViewerSession),
		agents:  make(map[string]*AgentSession),
		subs:    newSubscriptionIndex(),
		cache:   newSnapshotCache(),
		hostIPs: make(map[string]string),
		cfg:     cfg,
		events:  cfg.Events,
		stop:    make(chan struct{}),
	}
}

// Start launches the idle reaper. Call once after New.
func (r *Relay) Start() {
	go r.reapLoop()
}

// Close stops the reaper and tears down every live session.
func (r *Relay) Close() {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mu.Lock()
	viewers := make([]string, 0, len(r.viewers))
	for id := range r.viewers {
		viewers = append(viewers, id)
	}
	agents := make([]string, 0, len(r.agents))
	for id := range r.agents {
		agents = append(agents, id)
	}
	r.mu.Unlock()

	for _, id := range viewers {
		r.RemoveViewer(id)
	}
	for _, id := range agents {
		r.RemoveAgent(id)
	}
}

// =======================
// SESSION LIFECYCLE
// =======================

// CreateViewer registers a browser connection and acknowledges it with
// session_created. The caller owns the read loop; the relay owns writes.
func (r *Relay) CreateViewer(conn Conn, clientAddress string) *ViewerSession {
	v := newViewerSession(conn, clientAddress)
	go v.writePump()

	r.mu.Lock()
	r.viewers[v.ID] = v
	r.pushViewer(v, newSessionCreated(v.ID, "frontend"))
	r.mu.Unlock()

	log.Println("🔌 viewer connected:", v.ID, clientAddress)
	return v
}

// CreateAgent registers a monitoring client connection. Its host key is
// unknown until the first snapshot arrives.
func (r *Relay) CreateAgent(conn Conn, clientAddress string) *AgentSession {
	a := newAgentSession(conn, clientAddress)
	go a.writePump()

	r.mu.Lock()
	r.agents[a.ID] = a
	if a.enqueue(newSessionCreated(a.ID, "monitoring")) {
		a.Stats.MessagesSent++
	}
	r.mu.Unlock()

	log.Println("🔌 agent connected:", a.ID, clientAddress)
	r.record("agent_connected", a.ID, "", clientAddress)
	return a
}

// Touch marks a session alive and counts the inbound message. Unknown
// ids are ignored.
func (r *Relay) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.viewers[sessionID]; ok {
		v.LastActivity = time.Now()
		v.Stats.MessagesReceived++
		return
	}
	if a, ok := r.agents[sessionID]; ok {
		a.LastActivity = time.Now()
		a.Stats.MessagesReceived++
	}
}

// RemoveViewer tears down a viewer session and clears every
// subscription it owned. Idempotent.
func (r *Relay) RemoveViewer(sessionID string) {
	r.mu.Lock()
	v, ok := r.viewers[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	for key := range v.Subscribed {
		r.subs.Remove(sessionID, key)
	}
	delete(r.viewers, sessionID)
	r.mu.Unlock()

	v.shutdown()
	log.Println("👋 viewer disconnected:", sessionID)
}

// RemoveAgent tears down an agent session. When the session had bound a
// host key, its cached snapshot and IP mapping are evicted and every
// subscriber is told the host's monitoring went away. Idempotent.
func (r *Relay) RemoveAgent(sessionID string) {
	r.mu.Lock()
	a, ok := r.agents[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.agents, sessionID)

	hostKey := a.HostKey
	if hostKey != "" {
		r.cache.Evict(hostKey)
		for ip, key := range r.hostIPs {
			if key == hostKey {
				delete(r.hostIPs, ip)
			}
		}
		status := newStatus(hostKey, false, "monitoring client disconnected")
		for _, v := range r.subscribersLocked(hostKey) {
			r.pushViewer(v, status)
		}
	}
	r.mu.Unlock()

	a.shutdown()
	log.Println("👋 agent disconnected:", sessionID, "host:", hostKey)
	r.record("agent_disconnected", sessionID, hostKey, a.ClientAddress)
}

// =======================
// MESSAGE DISPATCH
// =======================

// HandleViewerMessage processes one raw frame from a viewer socket.
// Every failure is answered on that socket only; the session survives
// anything but a dead connection.
func (r *Relay) HandleViewerMessage(sessionID string, raw []byte) {
	r.Touch(sessionID)

	msg, err := Decode(raw)
	if err != nil {
		r.sendError(sessionID, "invalid message format")
		return
	}

	switch msg.Kind {

	case KindSubscribe:
		if msg.ServerID == "" {
			r.sendError(sessionID, "serverId is required")
			return
		}
		r.Subscribe(sessionID, msg.ServerID)

	case KindUnsubscribe:
		if msg.ServerID == "" {
			r.sendError(sessionID, "serverId is required")
			return
		}
		r.Unsubscribe(sessionID, msg.ServerID)

	case KindRequestStats:
		if msg.HostID == "" {
			r.sendError(sessionID, "hostId is required")
			return
		}
		r.sendCachedStats(sessionID, msg.HostID, msg.TerminalID)

	case KindUpdateData:
		r.updateMonitoringData(sessionID, msg)

	case KindSystemStats:
		// frontends may proxy agent snapshots; same path, no binding
		if msg.Snapshot == nil {
			log.Println("⚠️ snapshot without payload from", sessionID)
			return
		}
		r.ingestSnapshot(sessionID, nil, msg.Snapshot)

	case KindPing:
		r.send(sessionID, newPong())

	default:
		r.sendError(sessionID, "unknown message type: "+msg.Type)
	}
}

// HandleAgentMessage processes one raw frame from an agent socket.
func (r *Relay) HandleAgentMessage(sessionID string, raw []byte) {
	r.Touch(sessionID)

	msg, err := Decode(raw)
	if err != nil {
		r.sendError(sessionID, "invalid message format")
		return
	}

	switch msg.Kind {

	case KindSystemStats:
		if msg.Snapshot == nil {
			log.Println("⚠️ snapshot without payload from", sessionID)
			return
		}
		r.mu.RLock()
		a := r.agents[sessionID]
		r.mu.RUnlock()
		if a == nil {
			return
		}
		r.ingestSnapshot(sessionID, a, msg.Snapshot)

	case KindPing:
		r.send(sessionID, newPong())

	default:
		r.sendError(sessionID, "unknown message type: "+msg.Type)
	}
}

// =======================
// SUBSCRIPTIONS
// =======================

// Subscribe adds the viewer's interest in a host key or bare IP,
// acknowledges it, and replays the cached snapshot when one exists so
// the viewer gets data without waiting for the next agent push.
func (r *Relay) Subscribe(viewerID, key string) {
	if key == "" {
		log.Println("⚠️ subscribe with empty key from", viewerID)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.viewers[viewerID]
	if !ok {
		log.Println("⚠️ subscribe from unknown session:", viewerID)
		return
	}

	v.Subscribed[key] = struct{}{}
	r.subs.Add(viewerID, key)

	r.pushViewer(v, ackMsg{
		Type: "subscribe_ack",
		Data: ackData{ServerID: key, Timestamp: time.Now().UnixMilli()},
	})

	if entry, ok := r.lookupLocked(key); ok {
		r.pushViewer(v, newStatus(entry.HostID, true, "monitoring active"))
		r.pushViewer(v, newStats(entry.HostID, entry.Payload, true))
	}
}

// Unsubscribe removes the interest both directions. An unsubscribe for
// a key the viewer never watched still gets an ack; the index is left
// untouched either way.
func (r *Relay) Unsubscribe(viewerID, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.viewers[viewerID]
	if !ok {
		return
	}

	delete(v.Subscribed, key)
	r.subs.Remove(viewerID, key)

	r.pushViewer(v, ackMsg{
		Type: "unsubscribe_ack",
		Data: ackData{ServerID: key, Timestamp: time.Now().UnixMilli()},
	})
}

// =======================
// SNAPSHOT INGEST / FAN-OUT
// =======================

// ingestSnapshot is the broadcast path for every snapshot, whether an
// agent produced it or a frontend proxied it. For agents the first
// resolved key binds the session permanently; later snapshots keep
// landing under the bound key no matter what identity they claim.
func (r *Relay) ingestSnapshot(sessionID string, a *AgentSession, payload map[string]any) {
	key := hostKeyFromSnapshot(payload)

	var bound string
	r.mu.Lock()
	if a != nil {
		// the session may have been reaped since the frame was read
		if r.agents[sessionID] != a {
			r.mu.Unlock()
			return
		}
		if a.HostKey == "" {
			if key == "" {
				r.mu.Unlock()
				log.Println("⚠️ snapshot without host identity from", sessionID)
				return
			}
			a.HostKey = key
			bound = key
		}
		key = a.HostKey
	} else if key == "" {
		r.mu.Unlock()
		log.Println("⚠️ snapshot without host identity from", sessionID)
		return
	}

	r.cache.Put(key, payload, sessionID)
	if _, ip, ok := splitHostKey(key); ok {
		r.hostIPs[ip] = key
	}

	status := newStatus(key, true, "monitoring active")
	stats := newStats(key, payload, false)
	for _, v := range r.subscribersLocked(key) {
		r.pushViewer(v, status)
		r.pushViewer(v, stats)
	}
	r.mu.Unlock()

	if bound != "" {
		addr := ""
		if a != nil {
			addr = a.ClientAddress
		}
		log.Println("📡 host bound:", bound, "session:", sessionID)
		r.record("host_bound", sessionID, bound, addr)
	}
}

// subscribersLocked resolves the viewers watching a host key, merging
// composite-key and bare-IP subscribers so nobody receives duplicates.
// Caller holds r.mu.
func (r *Relay) subscribersLocked(key string) []*ViewerSession {
	ids := r.subs.Subscribers(key)
	if _, ip, ok := splitHostKey(key); ok {
		for id := range r.subs.Subscribers(ip) {
			ids[id] = struct{}{}
		}
	}

	out := make([]*ViewerSession, 0, len(ids))
	for id := range ids {
		if v, ok := r.viewers[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// lookupLocked is the two-step cache lookup: literal key first, then
// through the IP index. Caller holds r.mu.
func (r *Relay) lookupLocked(key string) (*CacheEntry, bool) {
	if e, ok := r.cache.Get(key); ok {
		return e, true
	}
	if mapped, ok := r.hostIPs[key]; ok {
		return r.cache.Get(mapped)
	}
	return nil, false
}

// sendCachedStats answers request_system_stats from the cache, echoing
// the terminal id so the frontend can route the reply to its pane.
func (r *Relay) sendCachedStats(viewerID, hostID, terminalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.viewers[viewerID]
	if !ok {
		return
	}

	entry, ok := r.lookupLocked(hostID)
	if !ok {
		r.pushViewer(v, newStatus(hostID, false, "no monitoring data for host"))
		return
	}

	r.pushViewer(v, newStatus(entry.HostID, true, "monitoring active"))
	stats := newStats(entry.HostID, entry.Payload, true)
	if terminalID != "" {
		stats.Data["terminalId"] = terminalID
	}
	r.pushViewer(v, stats)
}

// updateMonitoringData lets a frontend push a snapshot for a host it
// manages, stored and fanned out exactly like agent data.
func (r *Relay) updateMonitoringData(viewerID string, msg *Message) {
	if msg.HostID == "" || len(msg.MonitoringData) == 0 {
		r.sendError(viewerID, "hostId and monitoringData are required")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.MonitoringData, &payload); err != nil {
		r.sendError(viewerID, "invalid monitoringData")
		return
	}
	// the explicit hostId wins over whatever the payload claims
	payload["hostId"] = msg.HostID

	r.ingestSnapshot(viewerID, nil, payload)

	r.mu.Lock()
	if v, ok := r.viewers[viewerID]; ok {
		r.pushViewer(v, ackMsg{
			Type: "monitoring_data_updated",
			Data: ackData{HostID: msg.HostID, Timestamp: time.Now().UnixMilli()},
		})
	}
	r.mu.Unlock()
}

// =======================
// SEND HELPERS
// =======================

// pushViewer enqueues one frame and counts it. Caller holds r.mu.
func (r *Relay) pushViewer(v *ViewerSession, msg any) {
	if v.enqueue(msg) {
		v.Stats.MessagesSent++
	}
}

// send delivers a frame to either session pool by id.
func (r *Relay) send(sessionID string, msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.viewers[sessionID]; ok {
		r.pushViewer(v, msg)
		return
	}
	if a, ok := r.agents[sessionID]; ok {
		if a.enqueue(msg) {
			a.Stats.MessagesSent++
		}
	}
}

func (r *Relay) sendError(sessionID, text string) {
	r.send(sessionID, newError(sessionID, text))
}

func (r *Relay) record(kind, sessionID, hostKey, addr string) {
	if r.events == nil {
		return
	}
	r.events.Record(kind, sessionID, hostKey, addr)
}

// =======================
// DIAGNOSTICS
// =======================

type SessionInfo struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"` // "frontend" | "monitoring"
	ClientAddress string    `json:"clientAddress"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastActivity  time.Time `json:"lastActivity"`
	HostKey       string    `json:"hostKey,omitempty"`
	Subscriptions []string  `json:"subscriptions,omitempty"`
	Stats         Stats     `json:"stats"`
}

// GetAllSessions snapshots every live session for diagnostics.
func (r *Relay) GetAllSessions() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SessionInfo, 0, len(r.viewers)+len(r.agents))
	for _, v := range r.viewers {
		subs := make([]string, 0, len(v.Subscribed))
		for k := range v.Subscribed {
			subs = append(subs, k)
		}
		out = append(out, SessionInfo{
			ID:            v.ID,
			Type:          "frontend",
			ClientAddress: v.ClientAddress,
			ConnectedAt:   v.ConnectedAt,
			LastActivity:  v.LastActivity,
			Subscriptions: subs,
			Stats:         v.Stats,
		})
	}
	for _, a := range r.agents {
		out = append(out, SessionInfo{
			ID:            a.ID,
			Type:          "monitoring",
			ClientAddress: a.ClientAddress,
			ConnectedAt:   a.ConnectedAt,
			LastActivity:  a.LastActivity,
			HostKey:       a.HostKey,
			Stats:         a.Stats,
		})
	}
	return out
}

// GetSessionByHostname finds the agent session bound to a host key,
// resolving bare IPs through the IP index like every other lookup.
func (r *Relay) GetSessionByHostname(key string) (SessionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if mapped, ok := r.hostIPs[key]; ok {
		key = mapped
	}
	for _, a := range r.agents {
		if a.HostKey == key {
			return SessionInfo{
				ID:            a.ID,
				Type:          "monitoring",
				ClientAddress: a.ClientAddress,
				ConnectedAt:   a.ConnectedAt,
				LastActivity:  a.LastActivity,
				HostKey:       a.HostKey,
				Stats:         a.Stats,
			}, true
		}
	}
	return SessionInfo{}, false
}
