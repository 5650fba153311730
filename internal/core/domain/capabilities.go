package domain

import "maps"

// Capabilities gates which inference kinds a frontend or backend accepts.
// Chat is governed by AllowCompletions.
type Capabilities struct {
	AllowEmbeddings  bool `json:"allow_embeddings" yaml:"allow_embeddings"`
	AllowCompletions bool `json:"allow_completions" yaml:"allow_completions"`
}

func AllCapabilities() Capabilities {
	return Capabilities{AllowEmbeddings: true, AllowCompletions: true}
}

func (c Capabilities) Allows(kind RequestKind) bool {
	switch kind {
	case KindEmbeddings:
		return c.AllowEmbeddings
	case KindCompletions, KindChat:
		return c.AllowCompletions
	default:
		return true
	}
}

// PinnedProperties are merged into outgoing request bodies and always win
// over client supplied values for the same key.
type PinnedProperties struct {
	Embeddings  map[string]any `json:"embeddings,omitempty" yaml:"embeddings,omitempty"`
	Completions map[string]any `json:"completions,omitempty" yaml:"completions,omitempty"`
}

// For returns the map that applies to kind, nil for management kinds.
func (p PinnedProperties) For(kind RequestKind) map[string]any {
	switch kind {
	case KindEmbeddings:
		return p.Embeddings
	case KindCompletions, KindChat:
		return p.Completions
	default:
		return nil
	}
}

func (p PinnedProperties) Clone() PinnedProperties {
	return PinnedProperties{
		Embeddings:  maps.Clone(p.Embeddings),
		Completions: maps.Clone(p.Completions),
	}
}
