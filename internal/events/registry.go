package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNoBody means the content lacks msgtype or body.
var ErrNoBody = errors.New("events: no body or msgtype in message content")

// Registry maps msgtype strings to content constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]func() Content
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]func() Content)}
}

// Register adds or replaces the constructor for msgtype.
func (r *Registry) Register(msgtype string, ctor func() Content) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[msgtype] = ctor
}

// Known reports whether msgtype has a constructor.
func (r *Registry) Known(msgtype string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ctors[msgtype]
	return ok
}

// Parse decodes message content. Unregistered msgtypes produce
// *UnknownContent rather than an error.
func (r *Registry) Parse(raw []byte) (Content, error) {
	var head struct {
		MsgType *string `json:"msgtype"`
		Body    *string `json:"body"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("events: content: %w", err)
	}
	if head.MsgType == nil || head.Body == nil {
		return nil, ErrNoBody
	}
	r.mu.RLock()
	ctor, ok := r.ctors[*head.MsgType]
	r.mu.RUnlock()
	if !ok {
		return &UnknownContent{
			Type: *head.MsgType,
			Text: *head.Body,
			Raw:  append(json.RawMessage(nil), raw...),
		}, nil
	}
	c := ctor()
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("events: %s content: %w", *head.MsgType, err)
	}
	return c, nil
}

var defaultRegistry = func() *Registry {
	r := NewRegistry()
	text := func() Content { return &TextContent{} }
	file := func() Content { return &FileContent{} }
	for _, t := range []string{"m.text", "m.emote", "m.notice", "m.key.verification.request"} {
		r.Register(t, text)
	}
	for _, t := range []string{"m.image", "m.file", "m.video", "m.audio"} {
		r.Register(t, file)
	}
	r.Register("m.location", func() Content { return &LocationContent{} })
	return r
}()

// DefaultRegistry holds the standard message types.
func DefaultRegistry() *Registry { return defaultRegistry }

// ParseContent parses with the default registry.
func ParseContent(raw []byte) (Content, error) { return defaultRegistry.Parse(raw) }
