package types

// Alias maps a logical model name to a runnable llama-server configuration.
// Alias records are read from one YAML file per alias in the aliases
// directory and are immutable once loaded; the supervisor never writes them.
type Alias struct {
	// Logical model name clients send in the "model" field. May contain a
	// qualifier after a colon to select among files of one family.
	// example: llama3:instruct
	Alias string `yaml:"alias" json:"alias" example:"llama3:instruct"`
	// Source repository the model file came from.
	// example: meta-llama/Meta-Llama-3-8B-Instruct-GGUF
	Repo string `yaml:"repo" json:"repo" example:"meta-llama/Meta-Llama-3-8B-Instruct-GGUF"`
	// Model file name within the repo directory.
	// example: Meta-Llama-3-8B-Instruct.Q8_0.gguf
	Filename string `yaml:"filename" json:"filename" example:"Meta-Llama-3-8B-Instruct.Q8_0.gguf"`
	// Content snapshot/revision the file belongs to. Optional.
	// example: main
	Snapshot string `yaml:"snapshot,omitempty" json:"snapshot,omitempty" example:"main"`
	// Chat template identifier passed through to the engine. Optional.
	// example: llama3
	ChatTemplate string `yaml:"chat_template,omitempty" json:"chat_template,omitempty" example:"llama3"`
	// Launch flags appended to the llama-server command line, one flag
	// (with its value) per element, e.g. "--ctx-size 2048".
	ContextParams []string `yaml:"context_params,omitempty" json:"context_params,omitempty"`
	// Request defaults merged into OpenAI payloads when the caller did not
	// set the key. Caller-supplied values always win.
	RequestParams map[string]any `yaml:"request_params,omitempty" json:"request_params,omitempty"`
}
