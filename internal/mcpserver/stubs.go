package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/forge-mcp/forge/internal/constants"
)

// stubToolSets names each optional role's plug-compatible tool set.
// §6 mandates only the coder set; these keep the wire shape other
// roles would need without committing to their own orchestration
// semantics yet.
var stubToolSets = map[constants.Role][]stubTool{
	constants.RoleResearcher: {
		{"researcher_web_search", "Search the web for a query and summarize results"},
		{"researcher_fetch_url", "Fetch and summarize a single URL"},
		{"researcher_compare_sources", "Compare claims across multiple fetched sources"},
		{"researcher_summarize_thread", "Summarize a saved research thread"},
		{"researcher_save_finding", "Persist a research finding for later recall"},
	},
	constants.RoleSecretary: {
		{"secretary_schedule_task", "Record a task with a due date"},
		{"secretary_list_tasks", "List recorded tasks, optionally filtered by status"},
		{"secretary_draft_message", "Draft a message from a template and variables"},
		{"secretary_summarize_inbox", "Summarize a provided set of messages"},
		{"secretary_set_reminder", "Record a reminder to surface at a later time"},
	},
	constants.RoleResources: {
		{"resources_list", "List available resource handles by type"},
		{"resources_read", "Read the content of a resource handle"},
		{"resources_search", "Search resource handles by metadata"},
		{"resources_register", "Register a new resource handle"},
		{"resources_tag", "Attach tags to a resource handle"},
	},
	constants.RolePrompts: {
		{"prompts_list", "List available named prompt templates"},
		{"prompts_get", "Render a named prompt template with variables"},
		{"prompts_save", "Save a new named prompt template"},
		{"prompts_delete", "Delete a named prompt template"},
		{"prompts_search", "Search prompt templates by name or tag"},
	},
}

type stubTool struct {
	name        string
	description string
}

// stubInput is the empty input schema shared by every stub tool — none
// of these roles has settled semantics yet, so there is nothing to
// validate beyond accepting the call.
type stubInput struct{}

// registerStubTools registers role's plug-compatible tool names so a
// client enumerating tools sees the full five-role surface described in
// §6, while every handler simply reports that the role is not yet wired
// to an Orchestrator. This keeps the wire contract stable for future
// work without fabricating orchestration logic that only the coder role
// actually specifies.
func (s *Server) registerStubTools(role constants.Role) {
	for _, t := range stubToolSets[role] {
		name, desc := t.name, t.description
		s.mcpServer.AddTool(
			newTool(name, desc, stubInput{}),
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return toolError("%s is not implemented in this role build", name)
			},
		)
	}
}
