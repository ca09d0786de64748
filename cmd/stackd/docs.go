package main

// General API documentation for swaggo. Run `make swagger-gen` to regenerate.
//
// @title           stackd API
// @version         1.0
// @description     Management API for the local model-serving stack supervisor.
//
// @contact.name   stackd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
