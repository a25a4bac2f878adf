// Package secret tracks sensitive strings (passwords, tokens) registered by
// other components and redacts them from any value about to be logged.
package secret

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Placeholder replaces a redacted secret occurrence in a logged value.
const Placeholder = "<redacted>"

// Registry is a process-wide, append-only set of sensitive string literals.
// It is safe for concurrent use: Add only ever grows the set, so readers
// never need to coordinate with writers beyond a read lock.
type Registry struct {
	mu      sync.RWMutex
	secrets map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{secrets: make(map[string]struct{})}
}

// Add registers secret so that future calls to Redact elide it. Empty
// strings are ignored since they would match (and redact) everything.
func (r *Registry) Add(s string) {
	if s == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets[s] = struct{}{}
}

// snapshot returns the currently registered secrets without holding the lock
// for the (potentially slow) redaction walk that follows.
func (r *Registry) snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.secrets))
	for s := range r.secrets {
		out = append(out, s)
	}
	return out
}

// Redact recursively walks value, returning the same shape with every
// occurrence of a registered secret replaced by Placeholder. Maps, slices,
// and scalars (string, the integer/float kinds, bool, nil) are handled.
// Any other concrete type is rejected rather than risk passing a secret
// through unexamined.
func (r *Registry) Redact(value any) (any, error) {
	secrets := r.snapshot()
	if len(secrets) == 0 {
		return value, nil
	}
	return redact(value, secrets)
}

func redact(value any, secrets []string) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return redactString(v, secrets), nil
	case bool:
		return v, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return redactNumber(v, secrets), nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, vv := range v {
			redactedKey := redactString(k, secrets)
			redactedVal, err := redact(vv, secrets)
			if err != nil {
				return nil, err
			}
			out[redactedKey] = redactedVal
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, vv := range v {
			redactedVal, err := redact(vv, secrets)
			if err != nil {
				return nil, err
			}
			out[i] = redactedVal
		}
		return out, nil
	default:
		return nil, errors.Errorf("secret: cannot redact value of type %T: not a scalar or container", value)
	}
}

func redactString(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret != "" && strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, Placeholder)
		}
	}
	return s
}

// redactNumber stringifies a number, checks whether any secret appears as a
// substring of its decimal representation, and returns the elided string if
// so. Integers that happen to equal a numeric secret (e.g. a PIN embedded in
// a URL) are the case this guards against; spec.md 4.1 calls this out
// explicitly.
func redactNumber(v any, secrets []string) any {
	s := fmt.Sprintf("%v", v)
	redacted := redactString(s, secrets)
	if redacted == s {
		return v
	}
	return redacted
}
