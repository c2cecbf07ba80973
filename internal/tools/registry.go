package tools

import (
	"github.com/tunacode-sh/tunacode/internal/engine"
	"github.com/tunacode-sh/tunacode/internal/indexer"
	"github.com/tunacode-sh/tunacode/internal/tools/editing"
	"github.com/tunacode-sh/tunacode/internal/tools/execution"
	"github.com/tunacode-sh/tunacode/internal/tools/filesystem"
	"github.com/tunacode-sh/tunacode/internal/tools/reasoning"
	"github.com/tunacode-sh/tunacode/internal/tools/search"
)

// NewToolRegistry creates a new engine.ToolRegistry based on the provided ToolSet.
// Each tool is built by its package constructor under internal/tools as an engine.Tool.
func NewToolRegistry(repoRoot string, retrieval indexer.Retrieval, set engine.ToolSet) (engine.ToolRegistry, error) {
	reg := make(engine.ToolRegistry)

	if set.Filesystem {
		reg["read_file"] = filesystem.NewReadFileTool(repoRoot)
		reg["list_files"] = filesystem.NewListFilesTool(repoRoot)
		reg["delete_file"] = filesystem.NewDeleteFileTool(repoRoot)
	}

	if set.Search {
		reg["grep"] = search.NewGrepTool(repoRoot)
		if retrieval != nil && set.Semantic {
			reg["codebase_search"] = search.NewCodebaseSearchTool(retrieval)
			reg["read_span"] = search.NewReadSpanTool(retrieval)
		}
	}

	if set.Execution {
		reg["run_tests"] = execution.NewRunTestsTool(repoRoot)
		reg["run_build"] = execution.NewRunBuildTool(repoRoot)
		reg["run_cmd"] = execution.NewRunCmdTool(repoRoot)
	}

	if set.Editing {
		reg["search_replace"] = editing.NewSearchReplaceTool(repoRoot)
		reg["write"] = editing.NewWriteTool(repoRoot)
	}

	if set.Meta {
		reg["think"] = reasoning.NewThinkTool()
		reg["respond"] = reasoning.NewRespondTool()
	}

	return reg, nil
}
