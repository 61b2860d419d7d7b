package storage

// Iterator walks the entries of a single source in internal key order.
type Iterator interface {
	// Checks if the current position of the iterator is valid.
	Valid() bool

	// Move to the first entry of the source.
	// Call Valid() to ensure that the iterator is valid after the seek.
	SeekToFirst()

	// Move to the last entry of the source.
	// Call Valid() to ensure that the iterator is valid after the seek.
	SeekToLast()

	// Seek the iterator to the first element whose key is >= target
	// Call Valid() to ensure that the iterator is valid after the seek.
	Seek(target []byte)

	// Seek the iterator to the last element whose key is <= target
	// Call Valid() to ensure that the iterator is valid after the seek.
	SeekForPrev(target []byte)

	// Moves to the next entry in the source.
	// REQUIRES: Current position of iterator is valid. Panic otherwise.
	Next()

	// Moves to the previous entry in the source.
	// REQUIRES: Current position of iterator is valid. Panic otherwise.
	Prev()

	// Get the key of the current iterator position.
	// REQUIRES: Current position of iterator is valid. Panics otherwise.
	Key() []byte

	// Get the value of the current iterator position.
	// REQUIRES: Current position of iterator is valid. Panics otherwise.
	Value() []byte

	// Status returns the first error hit by the iterator, if any.
	Status() error

	// Close releases every resource held by the iterator.
	// The iterator is unusable afterwards.
	Close() error
}

// cleanupIterator wraps an iterator and runs the registered cleanup functions
// when it is closed. Used to tie cache handle lifetimes to iterators.
type cleanupIterator struct {
	Iterator

	cleanups []func()
}

func (ci *cleanupIterator) Close() error {
	err := ci.Iterator.Close()
	for _, f := range ci.cleanups {
		f()
	}
	ci.cleanups = nil
	return err
}

// newCleanupIterator attaches cleanup functions to iter. They run exactly once,
// after the wrapped iterator is closed.
func newCleanupIterator(iter Iterator, cleanups ...func()) Iterator {
	return &cleanupIterator{Iterator: iter, cleanups: cleanups}
}

// errorIterator is an always-invalid iterator carrying an error.
type errorIterator struct {
	err error
}

func (ei *errorIterator) Valid() bool            { return false }
func (ei *errorIterator) SeekToFirst()           {}
func (ei *errorIterator) SeekToLast()            {}
func (ei *errorIterator) Seek(target []byte)     {}
func (ei *errorIterator) SeekForPrev(tgt []byte) {}
func (ei *errorIterator) Next()                  { panic("invalid iterator") }
func (ei *errorIterator) Prev()                  { panic("invalid iterator") }
func (ei *errorIterator) Key() []byte            { panic("invalid iterator") }
func (ei *errorIterator) Value() []byte          { panic("invalid iterator") }
func (ei *errorIterator) Status() error          { return ei.err }
func (ei *errorIterator) Close() error           { return nil }

// newErrorIterator returns an iterator that is never valid and reports err.
func newErrorIterator(err error) Iterator {
	return &errorIterator{err: err}
}
