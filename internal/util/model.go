package util

import (
	"strings"

	"github.com/thushan/flowgate/internal/core/constants"
)

// NormaliseModelName gives ollama model references a tag so "llama3" and
// "llama3:latest" compare equal. Registry prefixes are kept as is.
func NormaliseModelName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	slash := strings.LastIndex(name, "/")
	if !strings.Contains(name[slash+1:], ":") {
		return name + ":" + constants.DefaultModelTag
	}
	return name
}
