package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves the OpenAPI description of the article API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>osmbc-articles - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "osmbc-articles", "version": "v0.1.0" },
  "paths": {
    "/api/articles": {
      "post": {
        "summary": "Create an article",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"fields":{"type":"object","additionalProperties":{"type":"string"}}}}}}},
        "responses": { "201": { "description": "article created" }, "400": { "description": "invalid fields" } }
      }
    },
    "/api/articles/{id}": {
      "get": {
        "summary": "Get an article",
        "parameters": [ { "name": "derived", "in": "query", "schema": {"type":"string","enum":["1"]}, "description": "include authors, last change times and origin" } ],
        "responses": { "200": { "description": "article" }, "404": { "description": "not found" } }
      },
      "patch": {
        "summary": "Propose an update",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"version":{"type":"integer"},"old":{"type":"object","additionalProperties":{"type":"string"}},"fields":{"type":"object","additionalProperties":{"type":"string"}},"addComment":{"type":"string"}}}}}},
        "responses": { "200": { "description": "committed article" }, "400": { "description": "validation failed" }, "409": { "description": "stale proposal" }, "502": { "description": "collaborator failed" } }
      }
    },
    "/api/articles/{id}/comments": {
      "post": { "summary": "Add a comment", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"text":{"type":"string"}}}}}}, "responses": { "201": { "description": "comment added" } } }
    },
    "/api/articles/{id}/comments/{index}": {
      "put": { "summary": "Edit own comment", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"text":{"type":"string"}}}}}}, "responses": { "200": { "description": "comment edited" }, "403": { "description": "not the author" } } }
    },
    "/api/articles/{id}/comments/read": {
      "post": { "summary": "Mark comments read up to index", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"index":{"type":"integer"}}}}}}, "responses": { "200": { "description": "read position stored" } } }
    },
    "/api/articles/{id}/lock": {
      "post": { "summary": "Take the edit lock", "responses": { "200": { "description": "article" } } },
      "delete": { "summary": "Release the edit lock", "responses": { "200": { "description": "article" } } }
    },
    "/api/articles/{id}/links": {
      "get": { "summary": "Outbound links", "responses": { "200": { "description": "links" } } }
    },
    "/api/articles/{id}/backlinks": {
      "get": { "summary": "Other articles sharing a link", "responses": { "200": { "description": "backlinks per link" } } }
    },
    "/api/articles/{id}/votes/{tag}": {
      "post": { "summary": "Vote", "responses": { "200": { "description": "article" } } },
      "delete": { "summary": "Withdraw vote", "responses": { "200": { "description": "article" } } }
    },
    "/api/articles/{id}/tags/{tag}": {
      "post": { "summary": "Add tag", "responses": { "200": { "description": "article" } } },
      "delete": { "summary": "Remove tag", "responses": { "200": { "description": "article" } } }
    },
    "/api/articles/{id}/copy": {
      "post": { "summary": "Copy into another blog", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"blog":{"type":"string"},"languages":{"type":"array","items":{"type":"string"}}}}}}}, "responses": { "201": { "description": "copy created" }, "400": { "description": "already copied" } } }
    },
    "/api/changes": {
      "get": {
        "summary": "Change history",
        "parameters": [
          { "name": "oid", "in": "query", "schema": {"type":"integer"} },
          { "name": "user", "in": "query", "schema": {"type":"string"} },
          { "name": "property", "in": "query", "schema": {"type":"string"} },
          { "name": "blog", "in": "query", "schema": {"type":"string"} },
          { "name": "date", "in": "query", "schema": {"type":"string"}, "description": "YYYY, YYYY-MM or YYYY-MM-DD" },
          { "name": "asc", "in": "query", "schema": {"type":"boolean"} },
          { "name": "limit", "in": "query", "schema": {"type":"integer"} }
        ],
        "responses": { "200": { "description": "change records" } }
      }
    },
    "/api/blogs/orphans": {
      "get": { "summary": "Blog names without a blog record", "responses": { "200": { "description": "names" } } }
    },
    "/api/me": {
      "get": { "summary": "Get user info", "responses": { "200": { "description": "user" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
