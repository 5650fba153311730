package version

import (
	"fmt"
	"log"
	"strings"

	"github.com/thushan/flowgate/theme"
)

var (
	Name        = "flowgate"
	Authors     = "Thushan Fernando"
	Description = "Routing gateway for Ollama and OpenAI backends"
	Version     = "v0.0.1"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/thushan/flowgate"
	GithubHomeUri   = "https://github.com/thushan/flowgate"
	GithubLatestUri = "https://github.com/thushan/flowgate/releases/latest"
)

// UserAgent identifies flowgate to upstream backends.
func UserAgent() string {
	return Name + "/" + Version
}

func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)

	var b strings.Builder

	b.WriteString(theme.ColourSplash(`
┌──────────────────────────────────────────────┐
│   ┏━╸╻  ┏━┓╻ ╻┏━╸┏━┓╺┳╸┏━╸                    │
│   ┣╸ ┃  ┃ ┃┃╻┃┃╺┓┣━┫ ┃ ┣╸    ollama ⇄ openai  │
│   ╹  ┗━╸┗━┛┗┻┛┗━┛╹ ╹ ╹ ┗━╸                    │` + "\n"))
	b.WriteString(theme.ColourSplash("│   "))
	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString("  ")
	b.WriteString(theme.ColourVersion(latestUri))
	b.WriteString(strings.Repeat(" ", max(1, 15-len(Version))))
	b.WriteString(theme.ColourSplash("│\n"))
	b.WriteString(theme.ColourSplash("└──────────────────────────────────────────────┘"))

	if extendedInfo {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}
