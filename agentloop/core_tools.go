package agentloop

import (
	"context"

	"github.com/frixaco/llm/patch"
)

// Names of the built-in file tools as advertised to the model.
const (
	ToolReadFile  = "readFile"
	ToolWriteFile = "writeFile"
	ToolEditFile  = "editFile"
)

// Payloads returned by the write-capable tools.
const (
	WriteFileSuccess = "Successfully replaced file with updated content"
	EditFileSuccess  = "Successfully applied the edit"
)

type readFileArgs struct {
	Path string `json:"path"`
}

type writeFileArgs struct {
	Path       string `json:"path"`
	NewContent string `json:"newContent"`
}

// CoreTools returns the readFile, writeFile and editFile tools backed by
// engine.
func CoreTools(engine *patch.Engine) []Tool {
	return []Tool{
		readFileTool(engine),
		writeFileTool(engine),
		editFileTool(engine),
	}
}

// NewCoreRegistry builds a registry holding only the core tools.
func NewCoreRegistry(engine *patch.Engine) (*ToolRegistry, error) {
	return NewToolRegistry(CoreTools(engine)...)
}

func readFileTool(engine *patch.Engine) Tool {
	return NewTypedTool(ToolDefinition{
		Name:        ToolReadFile,
		Description: "Return full text of a file",
		Parameters: []Parameter{
			{Name: "path", Type: ParamString, Description: "Path of the file relative to current directory"},
		},
	}, func(_ context.Context, args readFileArgs) (string, error) {
		return engine.Read(args.Path)
	})
}

func writeFileTool(engine *patch.Engine) Tool {
	return NewTypedTool(ToolDefinition{
		Name:        ToolWriteFile,
		Description: "Create or replace file content",
		Parameters: []Parameter{
			{Name: "path", Type: ParamString, Description: "Path of the file relative to current directory"},
			{Name: "newContent", Type: ParamString, Description: "Full updated content of the file"},
		},
	}, func(_ context.Context, args writeFileArgs) (string, error) {
		if err := engine.Write(args.Path, args.NewContent); err != nil {
			return "", err
		}
		return WriteFileSuccess, nil
	})
}

func editFileTool(engine *patch.Engine) Tool {
	return NewTypedTool(ToolDefinition{
		Name:        ToolEditFile,
		Description: "Apply edits to a file",
		Parameters: []Parameter{
			{
				Name: "path",
				Type: ParamString,
				Description: "File path **relative to the current working directory** (e.g. './src/index.ts'). " +
					"Assumes the directory already exists.",
			},
			{
				Name: "searchContent",
				Type: ParamString,
				Description: "The **shortest snippet that is guaranteed to be unique** inside the file. " +
					"If a line appears more than once, include a few context lines before/after so the full string occurs only once. Otherwise tool will fail.",
			},
			{
				Name:        "replaceContent",
				Type:        ParamString,
				Description: "Text that will **replace the first (and only) occurrence** of `searchContent`.",
			},
		},
	}, func(_ context.Context, req patch.Request) (string, error) {
		outcome := engine.Apply(req)
		if err := outcome.Err(); err != nil {
			return "", err
		}
		return EditFileSuccess, nil
	})
}
