package provider

import "sync"

// placeholderKey is sent to endpoints that ignore authentication, such as
// a local llama.cpp server.
const placeholderKey = "no_key_required"

// KeyRing hands out API keys round-robin so that multi-key platforms
// spread requests evenly across quota pools.
type KeyRing struct {
	mu    sync.Mutex
	keys  []string
	index int
}

func NewKeyRing(keys []string) *KeyRing {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	return &KeyRing{keys: out}
}

// Next returns the next key in rotation. An empty ring yields the
// placeholder key, and a single-key ring never takes the rotation path.
func (r *KeyRing) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch len(r.keys) {
	case 0:
		return placeholderKey
	case 1:
		return r.keys[0]
	}
	key := r.keys[r.index]
	r.index = (r.index + 1) % len(r.keys)
	return key
}

func (r *KeyRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}
