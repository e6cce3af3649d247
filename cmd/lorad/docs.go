package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           lorad API
// @version         1.0
// @description     HTTP API for LoRA weight fetching and workflow-based image generation.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
