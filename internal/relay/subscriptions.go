package relay

// =======================
// SUBSCRIPTION INDEX
// =======================

// subscriptionIndex maps a host key (or bare IP) to the viewer sessions
// watching it. Empty sets are pruned immediately so the index never holds
// keys nobody watches. Not self-locking: guarded by the relay mutex.
type subscriptionIndex struct {
	byKey map[string]map[string]struct{} // key → viewer ids
}

func newSubscriptionIndex() *subscriptionIndex {
	return &subscriptionIndex{byKey: make(map[string]map[string]struct{})}
}

// Add registers interest. Idempotent.
func (x *subscriptionIndex) Add(viewerID, key string) {
	set, ok := x.byKey[key]
	if !ok {
		set = make(map[string]struct{})
		x.byKey[key] = set
	}
	set[viewerID] = struct{}{}
}

// Remove drops one viewer from one key, deleting the key when its set
// empties. Removing an absent pair is a no-op.
func (x *subscriptionIndex) Remove(viewerID, key string) {
	set, ok := x.byKey[key]
	if !ok {
		return
	}
	delete(set, viewerID)
	if len(set) == 0 {
		delete(x.byKey, key)
	}
}

// Subscribers returns the viewer ids watching key. Never nil.
func (x *subscriptionIndex) Subscribers(key string) map[string]struct{} {
	set, ok := x.byKey[key]
	if !ok {
		return map[string]struct{}{}
	}
	out := make(map[string]struct{}, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	return out
}

func (x *subscriptionIndex) Len() int {
	return len(x.byKey)
}
