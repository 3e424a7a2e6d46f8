package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024

// BaseSystemPrompt instructs the model to plan first and to change files
// only through the tools.
const BaseSystemPrompt = `You are extremely smart coding assistant with extensive knowledge in many programming languages, frameworks, design patterns and best practices.

1. Always reply in two phases:
  • Phase 1 – Plan: start with the heading ## Plan and lay out a concise (≤ 5 bullets, ≤ 50 words total) action plan for solving the user's request.
  • Phase 2 – Execution: carry out the plan.
2. When a file must be created or modified, call either editFile or writeFile tool instead of sending text.
  • The tool call's path must be correct and relative as the user expects.
  • Include only the minimal diff necessary; do not echo unchanged lines for editFile tool
3. Whitespace discipline is absolute:
  • Preserve every space, tab, newline, and blank line exactly as shown in the user's code or your output.
  • Never collapse multiple spaces, never auto-format, never add trailing spaces.
  • Enclose all code blocks in triple backticks with the correct language tag.
4. When no tool call is required, answer normally in Phase 2.
5. If any instruction here conflicts with a future user message, ask for clarification—do not guess.
6. To get contents of a file given the file name, use readFile tool

You have following tools at your disposal:
1. "editFile" - Applies a single edit to a file.
2. "writeFile" - Replaces or creates a file with given content.
3. "readFile" - Reads the full file and returns its content.
`

// BuildSystemPrompt assembles the base prompt, the environment block and any
// project instructions found under the working directory.
func BuildSystemPrompt(env Environment, model string) string {
	var sb strings.Builder
	sb.WriteString(BaseSystemPrompt)
	sb.WriteString("\n")
	sb.WriteString(BuildEnvironmentContext(env, model))
	if docs := DiscoverProjectDocs(env.WorkingDir); docs != "" {
		sb.WriteString("\n\n# Project Instructions\n\n")
		sb.WriteString(docs)
	}
	return sb.String()
}

// BuildEnvironmentContext describes the machine and repository in an
// <environment> block.
func BuildEnvironmentContext(env Environment, model string) string {
	branch, inRepo := git(env.WorkingDir, "rev-parse", "--abbrev-ref", "HEAD")

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", env.WorkingDir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", inRepo)
	if branch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", branch)
	}
	fmt.Fprintf(&sb, "Platform: %s\n", env.Platform)
	fmt.Fprintf(&sb, "OS version: %s\n", env.OSVersion)
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format(time.DateOnly))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

const projectDocName = "AGENTS.md"

const docsTruncated = "[Project instructions truncated at 32KB]"

// DiscoverProjectDocs concatenates every AGENTS.md between the repository
// root and workingDir, outermost first. Outside a repository only
// workingDir is searched.
func DiscoverProjectDocs(workingDir string) string {
	root, ok := git(workingDir, "rev-parse", "--show-toplevel")
	if !ok {
		root = workingDir
	}

	var docs []string
	budget := maxProjectDocBytes
	for _, dir := range collectPathHierarchy(root, workingDir) {
		content, err := os.ReadFile(filepath.Join(dir, projectDocName))
		if err != nil {
			continue
		}
		if budget <= 0 {
			docs = append(docs, docsTruncated)
			break
		}
		text := string(content)
		if len(text) > budget {
			text = text[:budget] + "\n" + docsTruncated
		}
		budget -= len(content)
		docs = append(docs, fmt.Sprintf("# %s (from %s)\n\n%s", projectDocName, dir, text))
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// collectPathHierarchy lists root and each directory below it on the way to
// target. A target outside root yields only root.
func collectPathHierarchy(root, target string) []string {
	root, target = filepath.Clean(root), filepath.Clean(target)
	dirs := []string{root}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return dirs
	}
	cur := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		dirs = append(dirs, cur)
	}
	return dirs
}

// git runs a git query in dir and returns its trimmed output. ok is false
// when git fails, which includes dir not being in a repository.
func git(dir string, args ...string) (out string, ok bool) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	b, err := cmd.Output()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(b)), true
}
