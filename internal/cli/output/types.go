package output

// JSON envelopes shared by commands that support --output json. Kept
// here so the wire shape lives next to the renderer instead of being
// scattered across commands.

// FunctionInfo describes one built-in formula function.
type FunctionInfo struct {
	Name string `json:"name"`
	Doc  string `json:"doc,omitempty"`
}

// ScriptFuncInfo describes one function exported by a script module.
type ScriptFuncInfo struct {
	Name      string   `json:"name"`
	Args      []string `json:"args,omitempty"`
	Docstring string   `json:"docstring,omitempty"`
}

// ModuleInfo describes one loaded script module.
type ModuleInfo struct {
	Namespace string           `json:"namespace"`
	Path      string           `json:"path,omitempty"`
	Functions []ScriptFuncInfo `json:"functions"`
}

// FunctionsOutput is the envelope for the functions command.
type FunctionsOutput struct {
	Builtins []FunctionInfo `json:"builtins"`
	Modules  []ModuleInfo   `json:"modules,omitempty"`
}

// EvalOutput is the envelope for one-shot formula evaluation.
type EvalOutput struct {
	Formula string `json:"formula"`
	Kind    string `json:"kind"`
	Result  any    `json:"result"`
}

// SeedTableInfo summarizes one table created by the seed command.
type SeedTableInfo struct {
	Name    string `json:"name"`
	Columns int    `json:"columns"`
	Rows    int    `json:"rows"`
}

// SeedSummary totals one seed run. Recalculated counts computed cells
// filled in by propagation on top of the literal writes.
type SeedSummary struct {
	Tables       int `json:"tables"`
	Columns      int `json:"columns"`
	Rows         int `json:"rows"`
	Cells        int `json:"cells"`
	Recalculated int `json:"recalculated"`
}

// SeedOutput is the envelope for the seed command.
type SeedOutput struct {
	Workspace string          `json:"workspace"`
	Tables    []SeedTableInfo `json:"tables"`
	Summary   SeedSummary     `json:"summary"`
}

// MigrateOutput is the envelope for migrate status.
type MigrateOutput struct {
	Path    string `json:"path"`
	Version int64  `json:"version"`
}
