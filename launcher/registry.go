package launcher

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// TriggerOwner is the set of plugins registered under one token. Almost
// always a single plugin; when two plugins claim the same literal token
// the owner keeps both in registration order and resolution always picks
// the first. Owners are replaced wholesale, never mutated in place.
type TriggerOwner struct {
	plugins []Plugin
}

// First returns the plugin resolution picks for this token.
func (o TriggerOwner) First() Plugin {
	if len(o.plugins) == 0 {
		return nil
	}
	return o.plugins[0]
}

// Ambiguous reports whether more than one plugin claims the token.
func (o TriggerOwner) Ambiguous() bool { return len(o.plugins) > 1 }

// Plugins returns the owners in registration order.
func (o TriggerOwner) Plugins() []Plugin {
	return append([]Plugin(nil), o.plugins...)
}

// Registry maps trigger tokens to plugins. Resolution is pure with
// respect to the registry state and the input text.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]Plugin
	triggers map[string]TriggerOwner
	log      *logrus.Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins:  make(map[string]Plugin),
		triggers: make(map[string]TriggerOwner),
		log:      logrus.WithField("component", "registry"),
	}
}

// Register adds a plugin and all of its trigger tokens. A duplicate
// plugin name fails with DuplicateLauncherError; a duplicate token is
// allowed and appended after the existing owners.
func (r *Registry) Register(p Plugin) error {
	name := p.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[name]; exists {
		return &DuplicateLauncherError{Name: name}
	}
	r.plugins[name] = p

	for _, token := range p.Triggers() {
		r.addToken(token, p)
	}
	return nil
}

// Alias registers an extra token for an already-registered plugin, e.g.
// from the user's config file.
func (r *Registry) Alias(token, pluginName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plugins[pluginName]
	if !ok {
		return &ErrUnknownPlugin{Name: pluginName}
	}
	r.addToken(token, p)
	return nil
}

// addToken appends p to the token's owner list. Caller holds the lock.
func (r *Registry) addToken(token string, p Plugin) {
	owner := r.triggers[token]
	for _, existing := range owner.plugins {
		if existing.Name() == p.Name() {
			return
		}
	}
	next := TriggerOwner{plugins: append(append([]Plugin(nil), owner.plugins...), p)}
	r.triggers[token] = next
	if next.Ambiguous() {
		r.log.WithFields(logrus.Fields{
			"token":  token,
			"plugin": p.Name(),
			"winner": next.First().Name(),
		}).Debug("token is ambiguous, first registration wins")
	}
}

// Unregister removes the named plugin and strips it from every token it
// appears under, collapsing two-element owners back to single ones.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[name]; !exists {
		return
	}
	delete(r.plugins, name)

	for token, owner := range r.triggers {
		kept := make([]Plugin, 0, len(owner.plugins))
		for _, p := range owner.plugins {
			if p.Name() != name {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(r.triggers, token)
		} else if len(kept) != len(owner.plugins) {
			r.triggers[token] = TriggerOwner{plugins: kept}
		}
	}
}

// Plugin returns a registered plugin by name.
func (r *Registry) Plugin(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Tokens returns every registered trigger token.
func (r *Registry) Tokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.triggers))
	for token := range r.triggers {
		out = append(out, token)
	}
	return out
}

// Owner returns the owner entry for a token.
func (r *Registry) Owner(token string) (TriggerOwner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.triggers[token]
	return owner, ok
}

// Resolve maps raw input text to (token, plugin, remaining query).
//
// A ">" prefix selects explicit command mode: the longest registered
// token that the rest of the input equals, or starts with followed by a
// space, wins. The boundary requirement keeps a short token like "wall"
// from spuriously matching input meant for "wallpaper", and
// ">wallpaperxyz" from matching "wallpaper" at all.
//
// Without the prefix, "token:rest" and "token rest" forms are tried, in
// that order. When nothing matches, the input is returned unchanged and
// the caller falls through to application search.
func (r *Registry) Resolve(input string) (string, Plugin, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if after, ok := strings.CutPrefix(input, ">"); ok {
		text := strings.TrimSpace(after)
		var best string
		for token := range r.triggers {
			if len(token) <= len(best) {
				continue
			}
			if text == token || strings.HasPrefix(text, token+" ") {
				best = token
			}
		}
		if best != "" {
			return best, r.triggers[best].First(), strings.TrimSpace(text[len(best):])
		}
		return "", nil, input
	}

	if idx := strings.Index(input, ":"); idx > 0 {
		token := input[:idx]
		if owner, ok := r.triggers[token]; ok {
			return token, owner.First(), strings.TrimSpace(input[idx+1:])
		}
	}

	if idx := strings.Index(input, " "); idx > 0 {
		token := input[:idx]
		if owner, ok := r.triggers[token]; ok {
			return token, owner.First(), strings.TrimSpace(input[idx+1:])
		}
	}

	return "", nil, input
}
