package api

// route describes one endpoint for the OpenAPI document.
type route struct {
	method      string
	path        string
	operationID string
	summary     string
	body        bool
	query       string
	public      bool
	responses   map[string]string
}

var routes = []route{
	{method: "get", path: "/healthz", operationID: "healthz", summary: "Supervisor and worker health", public: true,
		responses: map[string]string{"200": "Health report"}},
	{method: "post", path: "/scan", operationID: "scan", summary: "Ask the worker for a scan",
		responses: map[string]string{"200": "Scan payload and items", "503": "Worker unavailable", "504": "Scan timed out"}},
	{method: "get", path: "/folders", operationID: "listFolders", summary: "Refresh the folder list from the worker",
		responses: map[string]string{"200": "Monitored folders", "503": "Worker unavailable", "504": "List timed out"}},
	{method: "get", path: "/folders/cached", operationID: "cachedFolders", summary: "Cached folder list",
		responses: map[string]string{"200": "Monitored folders"}},
	{method: "post", path: "/folders", operationID: "addFolder", summary: "Add a monitored folder", body: true,
		responses: map[string]string{"201": "Folder added", "400": "Invalid path", "409": "Worker rejected the change", "503": "Worker unavailable"}},
	{method: "delete", path: "/folders", operationID: "removeFolder", summary: "Remove a monitored folder", query: "path",
		responses: map[string]string{"200": "Folder removed", "400": "Invalid path", "409": "Worker rejected the change", "503": "Worker unavailable"}},
	{method: "post", path: "/reveal", operationID: "reveal", summary: "Open a folder in the file manager", body: true,
		responses: map[string]string{"200": "Opened", "400": "Invalid path"}},
	{method: "post", path: "/worker/restart", operationID: "restartWorker", summary: "Restart the worker process",
		responses: map[string]string{"202": "Restarted", "503": "Worker could not be started"}},
	{method: "get", path: "/events", operationID: "events", summary: "Server-sent event stream",
		responses: map[string]string{"200": "text/event-stream"}},
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the foldermon API.
func buildOpenAPIDoc() map[string]any {
	paths := map[string]any{}

	for _, rt := range routes {
		responses := map[string]any{}
		for code, desc := range rt.responses {
			responses[code] = map[string]any{"description": desc}
		}

		operation := map[string]any{
			"operationId": rt.operationID,
			"summary":     rt.summary,
			"responses":   responses,
		}
		if !rt.public {
			operation["security"] = []any{map[string]any{"BearerAuth": []string{}}}
			responses["401"] = map[string]any{"description": "Missing or invalid API key"}
		}
		if rt.body {
			operation["requestBody"] = map[string]any{
				"required": true,
				"content": map[string]any{
					"application/json": map[string]any{
						"schema": map[string]any{
							"type":     "object",
							"required": []string{"path"},
							"properties": map[string]any{
								"path": map[string]any{"type": "string"},
							},
						},
					},
				},
			}
		}
		if rt.query != "" {
			operation["parameters"] = []any{map[string]any{
				"name":     rt.query,
				"in":       "query",
				"required": true,
				"schema":   map[string]any{"type": "string"},
			}}
		}

		item, ok := paths[rt.path].(map[string]any)
		if !ok {
			item = map[string]any{}
			paths[rt.path] = item
		}
		item[rt.method] = operation
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "foldermon",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}
