package server

//go:generate swag init -g internal/server/server.go -o docs/swagger

// @title DorkRecon API
// @version 0.1
// @description Interactive documentation for the DorkRecon scan API surface.
// @contact.name DorkRecon Maintainers
// @contact.url https://github.com/raysh454/dorkrecon
// @BasePath /
