package storage

// getState tracks what a point lookup has resolved to so far.
type getState int

const (
	// getStateNotFound means no visible record was seen yet.
	getStateNotFound getState = iota

	// getStateFound means a value record was found.
	getStateFound

	// getStateDeleted means a deletion record shadows the key.
	getStateDeleted
)

// GetContext accumulates the result of a point lookup as records are fed into
// it, newest first.
//
// minSequenceAndType is the footer floor active for the current map element:
// records whose footer is below it belong to a later element's window and are
// ignored. Single threaded per query; the map-aware get saves and restores the
// floor around each recursion.
type GetContext struct {
	ucmp    Comparator
	userKey []byte

	state getState
	value []byte

	minSequenceAndType uint64

	// keyMayExist is set when a no-IO lookup could not rule the key out.
	keyMayExist bool
}

// NewGetContext creates a get context for a lookup of userKey.
func NewGetContext(ucmp Comparator, userKey []byte) *GetContext {
	return &GetContext{
		ucmp:    ucmp,
		userKey: userKey,
	}
}

// saveValue offers one record to the lookup. Returns whether the scan should
// keep feeding records.
func (g *GetContext) saveValue(key InternalKey, value []byte) bool {
	if g.ucmp.Compare(key.UserKey(), g.userKey) != 0 {
		return false
	}
	if key.Footer() < g.minSequenceAndType {
		// below the window of the map element being resolved
		return false
	}
	switch key.Kind() {
	case KeyKindSet:
		g.state = getStateFound
		g.value = append([]byte(nil), value...)
	case KeyKindDelete:
		g.state = getStateDeleted
	}
	return false
}

// isFinished returns whether the lookup is resolved and recursion can stop.
func (g *GetContext) isFinished() bool {
	return g.state != getStateNotFound
}

// markKeyMayExist flags that a block-cache-only lookup couldn't rule the key out.
func (g *GetContext) markKeyMayExist() {
	g.keyMayExist = true
}

// KeyMayExist reports whether a no-IO lookup gave up without ruling the key out.
func (g *GetContext) KeyMayExist() bool {
	return g.keyMayExist
}

// Found reports whether a live value was found.
func (g *GetContext) Found() bool {
	return g.state == getStateFound
}

// Deleted reports whether the newest visible record is a deletion.
func (g *GetContext) Deleted() bool {
	return g.state == getStateDeleted
}

// Value returns the found value. Only meaningful when Found() is true.
func (g *GetContext) Value() []byte {
	return g.value
}
