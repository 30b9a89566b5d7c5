package types

// APIError is the OpenAI-style error object carried in every error response.
type APIError struct {
	// Human-readable description of the failure.
	// example: model "ghost" not found
	Message string `json:"message" example:"model \"ghost\" not found"`
	// Stable error category.
	// example: model_not_found
	Type string `json:"type" example:"model_not_found"`
	// Short machine-readable code, empty when not applicable.
	// example: 404
	Code string `json:"code,omitempty" example:"404"`
}

// ErrorResponse is the OpenAI-compatible error envelope.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// OpenAIModel is one entry of GET /v1/models.
type OpenAIModel struct {
	// Alias name usable in the "model" field.
	// example: llama3:instruct
	ID string `json:"id" example:"llama3:instruct"`
	// Always "model".
	Object string `json:"object" example:"model"`
	// Unix timestamp the alias file was last updated.
	// example: 1700000000
	Created int64 `json:"created" example:"1700000000"`
	// example: llamad
	OwnedBy string `json:"owned_by" example:"llamad"`
}

// OpenAIModelList is the response of GET /v1/models.
type OpenAIModelList struct {
	Object string        `json:"object" example:"list"`
	Data   []OpenAIModel `json:"data"`
}
