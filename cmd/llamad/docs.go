package main

// General API documentation for swaggo. Regenerate the docs package with
// `swag init -g cmd/llamad/docs.go -o docs`.
//
// @title           llamad API
// @version         1.0
// @description     OpenAI-compatible gateway over supervised llama-server processes.
//
// @contact.name   llamad maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
