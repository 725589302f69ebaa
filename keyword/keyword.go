// Package keyword implements the keyword command processor (spec.md
// §4.8): normalized text commands arriving on the Kk token are looked up
// in a process-wide, concurrent-safe registry and dispatched to a handler.
package keyword

import (
	"strings"
	"sync"
)

// Handler is a registered keyword command. Handle receives the raw
// (trimmed) keyword string as typed by the client, plus a session/conn/
// pacer triplet typed as interface{} here to keep this package free of an
// import-cycle back to the root dialtone package, which is the one that
// actually constructs and passes them.
type Handler interface {
	Keyword() string
	Description() string
	Handle(keyword string, session, conn, pacer interface{}) error
}

// HandlerFunc adapts three plain values plus a function into a Handler.
type HandlerFunc struct {
	Word string
	Desc string
	Fn   func(keyword string, session, conn, pacer interface{}) error
}

func (h HandlerFunc) Keyword() string     { return h.Word }
func (h HandlerFunc) Description() string { return h.Desc }
func (h HandlerFunc) Handle(keyword string, session, conn, pacer interface{}) error {
	return h.Fn(keyword, session, conn, pacer)
}

// Registry is the process-wide keyword table (spec.md §5: "process-wide,
// read-mostly"). Registration happens at startup; lookups are concurrent-
// safe via a read-write mutex, since many connections' workers look up
// concurrently while registration itself is rare.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler under its own normalized (lowercased) keyword,
// replacing and logging over any prior registration under the same
// keyword (spec.md §3: "Duplicate registration replaces the prior handler
// and logs a warning" — the logging itself is the caller's responsibility,
// since this package takes no logger dependency; Register returns the
// replaced handler, if any, so the caller can log it).
func (r *Registry) Register(h Handler) (replaced Handler) {
	key := normalize(h.Keyword())
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced = r.handlers[key]
	r.handlers[key] = h
	return replaced
}

// Lookup implements spec.md §3's policy: exact match first; if the
// (normalized) keyword contains a space, fall back to the prefix before
// the first space.
func (r *Registry) Lookup(keyword string) (Handler, bool) {
	key := normalize(keyword)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.handlers[key]; ok {
		return h, true
	}
	if i := strings.IndexByte(key, ' '); i >= 0 {
		if h, ok := r.handlers[key[:i]]; ok {
			return h, true
		}
	}
	return nil, false
}

func normalize(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

// Processor runs spec.md §4.8's algorithm against an assembled command
// string: trim, look up, invoke, recovering any handler panic so it can
// never corrupt connection state.
type Processor struct {
	Registry *Registry

	// OnMiss, if set, is called (keyword) when no handler matches — the
	// caller's hook for logging; a nil OnMiss silently discards.
	OnMiss func(keyword string)

	// OnError, if set, is called (keyword, err) when a handler returns or
	// panics with an error — the caller's hook for logging.
	OnError func(keyword string, err error)
}

// Process implements spec.md §4.8. An empty (post-trim) command is
// ignored outright, matching step 1.
func (p *Processor) Process(raw string, session, conn, pacer interface{}) {
	cmd := strings.TrimSpace(raw)
	if cmd == "" {
		return
	}

	h, ok := p.Registry.Lookup(cmd)
	if !ok {
		if p.OnMiss != nil {
			p.OnMiss(cmd)
		}
		return
	}

	if err := p.invoke(h, cmd, session, conn, pacer); err != nil && p.OnError != nil {
		p.OnError(cmd, err)
	}
}

func (p *Processor) invoke(h Handler, cmd string, session, conn, pacer interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Keyword: cmd, Recovered: r}
		}
	}()
	return h.Handle(cmd, session, conn, pacer)
}

// PanicError wraps a recovered handler panic.
type PanicError struct {
	Keyword   string
	Recovered interface{}
}

func (e *PanicError) Error() string {
	return "keyword: handler for " + e.Keyword + " panicked"
}

// ExtractParameter returns the first angle-bracket-delimited parameter in
// s, e.g. "goto <room>" -> "room". ok is false if no bracketed parameter
// is present. No bare-space parameter fallback is supported (spec.md §4.8
// — bracketed only).
func ExtractParameter(s string) (param string, ok bool) {
	start := strings.IndexByte(s, '<')
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(s[start+1:], '>')
	if end < 0 {
		return "", false
	}
	return s[start+1 : start+1+end], true
}

// ExtractAllParameters returns every angle-bracket-delimited parameter in
// s, in order.
func ExtractAllParameters(s string) []string {
	var out []string
	for {
		p, ok := ExtractParameter(s)
		if !ok {
			break
		}
		out = append(out, p)
		idx := strings.Index(s, "<"+p+">")
		s = s[idx+len(p)+2:]
	}
	return out
}
