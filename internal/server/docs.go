// Package server provides the HTTP API for the syncflow engine.
//
// This file contains general API documentation annotations for Swag/OpenAPI generation.
// Individual endpoint annotations live in the handler files.
package server

// @title syncflow API
// @version 1.0
// @description REST API for the syncflow merge engine: trigger and cancel runs,
// @description browse run history and merged entities, manage review overrides,
// @description and follow run progress via WebSocket and Server-Sent Events.
//
// @contact.name syncflow Project
// @contact.url https://github.com/agentstation/syncflow
//
// @license.name MIT
// @license.url https://github.com/agentstation/syncflow/blob/master/LICENSE
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication (optional, configurable)
