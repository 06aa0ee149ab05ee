package protocol

import "encoding/json"

// ServerName is reported by initialize.
const ServerName = "grantmesh"

// InitializeParams is sent by a client when it opens a session.
type InitializeParams struct {
	ClientName string `json:"client_name,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
}

// InitializeResult describes the server.
type InitializeResult struct {
	ServerName      string   `json:"server_name"`
	ProtocolVersion string   `json:"protocol_version"`
	Capabilities    []string `json:"capabilities"`
}

// ToolDescriptor is one entry of tools/list.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ListToolsResult is the tools/list result.
type ListToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// CallToolParams are the tools/call params. AgentID identifies the caller so
// its registry activity can be refreshed.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
}

// ResourceDescriptor is one entry of resources/list. Templated views carry
// placeholders such as grants://{id}.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mime_type"`
	Template    bool   `json:"template,omitempty"`
}

// ListResourcesResult is the resources/list result.
type ListResourcesResult struct {
	Resources []ResourceDescriptor `json:"resources"`
}

// ReadResourceParams are the resources/read params.
type ReadResourceParams struct {
	URI     string `json:"uri"`
	AgentID string `json:"agent_id,omitempty"`
}

// ReadResourceResult wraps the JSON body of a view.
type ReadResourceResult struct {
	URI      string          `json:"uri"`
	MimeType string          `json:"mime_type"`
	Contents json.RawMessage `json:"contents"`
}
