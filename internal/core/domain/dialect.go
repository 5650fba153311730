package domain

import (
	"fmt"
	"strings"
)

// Dialect is the vendor wire shape a client speaks or a backend serves.
type Dialect string

const (
	DialectOllama Dialect = "ollama"
	DialectOpenAI Dialect = "openai"
)

func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ollama":
		return DialectOllama, nil
	case "openai", "openai-compatible":
		return DialectOpenAI, nil
	default:
		return "", fmt.Errorf("unknown dialect %q, expected ollama or openai", s)
	}
}

func (d Dialect) String() string {
	return string(d)
}

func (d Dialect) Valid() bool {
	return d == DialectOllama || d == DialectOpenAI
}

// RequestKind classifies an incoming request for capability checks,
// pinning and codec selection.
type RequestKind string

const (
	KindCompletions RequestKind = "completions"
	KindChat        RequestKind = "chat"
	KindEmbeddings  RequestKind = "embeddings"
	KindModels      RequestKind = "models"
	KindShow        RequestKind = "show"
	KindPull        RequestKind = "pull"
	KindPS          RequestKind = "ps"
	KindDelete      RequestKind = "delete"
)

// IsInference reports whether the kind is governed by capability flags
// and pinned properties.
func (k RequestKind) IsInference() bool {
	switch k {
	case KindCompletions, KindChat, KindEmbeddings:
		return true
	default:
		return false
	}
}

// IsManagement reports whether the kind is a model-management passthrough.
func (k RequestKind) IsManagement() bool {
	return !k.IsInference()
}

func (k RequestKind) String() string {
	return string(k)
}
