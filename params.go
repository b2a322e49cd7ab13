package vortex

// params.go implements Params and SharedParams, per spec.md §4.7,
// with exact lookup-order and interning semantics grounded on
// original_source/src/sst/core/params.cc (local map first, then
// attached shared sets in attachment order, first hit wins; a
// process-wide interning table under a mutex; a SHARED_SET_NAME
// sentinel key and a per-instance verify_enabled flag, both
// supplemented from params.cc per SPEC_FULL.md).

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

// sharedSetNameKey is the sentinel key params.cc reserves
// (SET_NAME_KEYWORD) for a Params map to self-identify the shared set
// it represents.
const sharedSetNameKey = "SHARED_SET_NAME"

// keyInterner is the process-wide string -> id table. Guarded by a
// plain sync.Mutex (not a recursive one): no method below calls
// another locking method while holding the lock, so re-entrancy never
// arises, sidestepping Go's lack of a stdlib recursive mutex without
// changing the observable interning contract.
type keyInterner struct {
	mu      sync.Mutex
	byName  map[string]uint32
	byID    []string
}

var interner = &keyInterner{byName: make(map[string]uint32)}

func (ki *keyInterner) intern(key string) uint32 {
	ki.mu.Lock()
	defer ki.mu.Unlock()
	if id, present := ki.byName[key]; present {
		return id
	}
	id := uint32(len(ki.byID))
	ki.byName[key] = id
	ki.byID = append(ki.byID, key)
	return id
}

func (ki *keyInterner) name(id uint32) string {
	ki.mu.Lock()
	defer ki.mu.Unlock()
	return ki.byID[id]
}

// Params is a semantic string->string map with a local override layer
// and an ordered list of shared-set fallback layers, per spec.md §3/
// §4.7.
type Params struct {
	local       map[uint32]string
	sharedSets  []*Params // fallback layers, consulted in attachment order
	verify      bool
	allowedKeys map[string]bool // nil means "no verification restriction"
}

// NewParams is a constructor for a fresh, empty Params.
func NewParams() *Params {
	return &Params{local: make(map[uint32]string)}
}

// SetVerify enables or disables key-verification diagnostics on this
// instance (params.cc's verify_enabled is per-instance, not global —
// see SPEC_FULL.md's supplemented-features list).
func (p *Params) SetVerify(enabled bool) {
	p.verify = enabled
}

// SetAllowedKeys installs the set of keys Get will warn about missing
// from, when verification is enabled. A nil or empty set disables the
// check without disabling verify itself.
func (p *Params) SetAllowedKeys(keys []string) {
	if len(keys) == 0 {
		p.allowedKeys = nil
		return
	}
	p.allowedKeys = make(map[string]bool, len(keys))
	for _, k := range keys {
		p.allowedKeys[k] = true
	}
}

// Insert sets key to value in the local layer. If overwrite is false
// and the key is already present locally, the existing value is kept
// (params.cc's insert(key, value, overwrite) semantics).
func (p *Params) Insert(key, value string, overwrite bool) {
	id := interner.intern(key)
	if !overwrite {
		if _, present := p.local[id]; present {
			return
		}
	}
	p.local[id] = value
}

// AttachSharedSet appends a shared Params layer as a fallback,
// consulted after the local layer and after any previously attached
// shared sets. sharedSets is a slice, not a map, so attachment order
// is kept for lookup. Params has no serialization of its own; the
// attached layers are not written into a checkpoint.
func (p *Params) AttachSharedSet(set *Params) {
	p.sharedSets = append(p.sharedSets, set)
}

// SharedSetName returns the value of the SHARED_SET_NAME sentinel key
// on this Params instance, if it was inserted as one (params.cc
// supplement, see SPEC_FULL.md).
func (p *Params) SharedSetName() (string, bool) {
	return p.getLocal(sharedSetNameKey)
}

// MarkAsSharedSet stamps this Params with a SHARED_SET_NAME so callers
// that later attach it can discover its identity via SharedSetName.
func (p *Params) MarkAsSharedSet(name string) {
	p.Insert(sharedSetNameKey, name, true)
}

func (p *Params) getLocal(key string) (string, bool) {
	interner.mu.Lock()
	id, present := interner.byName[key]
	interner.mu.Unlock()
	if !present {
		return "", false
	}
	v, present := p.local[id]
	return v, present
}

// Get looks up key: local first, then attached shared sets in
// attachment order, first hit wins. If verification is enabled and
// the key is not in the allowed-key set, a warning is emitted to
// stderr via warnUndocumentedKey — this is always a diagnostic, never
// a failure (spec.md §4.7/§7).
func (p *Params) Get(key string) (string, bool) {
	if p.verify && p.allowedKeys != nil && !p.allowedKeys[key] {
		warnUndocumentedKey(key)
	}
	if v, present := p.getLocal(key); present {
		return v, true
	}
	for _, set := range p.sharedSets {
		if v, present := set.getLocal(key); present {
			return v, true
		}
	}
	return "", false
}

// GetTyped looks up key and converts it to T, returning def if the key
// is absent or fails to parse. Neither case emits a warning.
func GetTyped[T int | int64 | float64 | bool | string](p *Params, key string, def T) T {
	raw, present := p.Get(key)
	if !present {
		return def
	}
	var zero T
	switch any(zero).(type) {
	case int:
		iv, err := strconv.Atoi(raw)
		if err != nil {
			return def
		}
		return any(iv).(T)
	case int64:
		iv, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return def
		}
		return any(iv).(T)
	case float64:
		fv, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return def
		}
		return any(fv).(T)
	case bool:
		bv, err := strconv.ParseBool(raw)
		if err != nil {
			return def
		}
		return any(bv).(T)
	case string:
		return any(raw).(T)
	}
	return def
}

// GetScoped returns a new Params exposing only keys that start with
// "prefix.", with that prefix stripped, per spec.md §4.7. The scoped
// view is a snapshot (a copy), not a live view, matching the source's
// treatment of Params as a value type copied on most operations.
func (p *Params) GetScoped(prefix string) *Params {
	scoped := NewParams()
	dotted := prefix
	if !strings.HasSuffix(dotted, ".") {
		dotted += "."
	}
	for id, v := range p.local {
		name := interner.name(id)
		if strings.HasPrefix(name, dotted) {
			scoped.Insert(strings.TrimPrefix(name, dotted), v, true)
		}
	}
	for _, set := range p.sharedSets {
		scopedSet := set.GetScoped(prefix)
		if len(scopedSet.local) > 0 {
			scoped.AttachSharedSet(scopedSet)
		}
	}
	return scoped
}

// Keys returns every key visible through this Params (local first,
// then each shared set), deduplicated, using slices.Contains as the
// teacher does throughout mrnes.go for small membership checks.
func (p *Params) Keys() []string {
	var out []string
	for id := range p.local {
		out = append(out, interner.name(id))
	}
	for _, set := range p.sharedSets {
		for _, k := range set.Keys() {
			if !slices.Contains(out, k) {
				out = append(out, k)
			}
		}
	}
	return out
}

// DumpAll writes every visible key/value pair to w, local params
// first then each shared set, mirroring params.cc's
// print_all_params (supplemented per SPEC_FULL.md).
func (p *Params) DumpAll(w io.Writer, prefix string) {
	if len(p.local) > 0 {
		fmt.Fprintf(w, "%sLocal params:\n", prefix)
		for id, v := range p.local {
			fmt.Fprintf(w, "%s  key=%s, value=%s\n", prefix, interner.name(id), v)
		}
	}
	if len(p.sharedSets) > 0 {
		fmt.Fprintf(w, "%sShared params:\n", prefix)
		for _, set := range p.sharedSets {
			set.DumpAll(w, prefix+"  ")
		}
	}
}

// warnUndocumentedKey is the diagnostic hook for verification-mode
// misses. Kept as a package-level var so tests can capture it.
var warnUndocumentedKey = func(key string) {
	fmt.Printf("warning: undocumented parameter key %q\n", key)
}
