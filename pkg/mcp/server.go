package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/traceview/pkg/client"
	"github.com/rmax-ai/traceview/pkg/graph"
)

// Server adapts traceview-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"traceview",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		"traceview://graph",
		"System View Graph",
		mcp.WithResourceDescription("Visible nodes and links of the traced program, with grouped entities collapsed"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadGraph)

	s.mcpServer.AddResource(mcp.NewResource(
		"traceview://stats",
		"Aggregation Statistics",
		mcp.WithResourceDescription("Entity, group and message counters of the current session"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadStats)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"find_node",
		mcp.WithDescription("Resolve an entity or group id (e.g. 'e42', 'ag1') to the node that displays it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Data id of an activity, passive entity or group")),
	), s.handleFindNode)

	s.mcpServer.AddTool(mcp.NewTool(
		"top_links",
		mcp.WithDescription("List the heaviest message links between visible nodes."),
		mcp.WithNumber("n", mcp.Description("Number of links to return (default 10)")),
	), s.handleTopLinks)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"traceview-aware",
		mcp.WithPromptDescription("Explains traceview concepts (activities, passive entities, groups, links)"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadGraph(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	snap, err := s.apiClient.GetGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch graph: %w", err)
	}
	return jsonResource(request.Params.URI, snap)
}

func (s *Server) handleReadStats(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := s.apiClient.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stats: %w", err)
	}
	return jsonResource(request.Params.URI, stats)
}

func jsonResource(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleFindNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "id", "")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}

	node, err := s.apiClient.FindNode(ctx, id)
	if errors.Is(err, client.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no node shows %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Node: %s (%s)\n", node.DataID, node.Kind)
	fmt.Fprintf(&b, "Label: %s\n", node.Label)
	if node.TypeLabel != "" {
		fmt.Fprintf(&b, "Type: %s\n", node.TypeLabel)
	}
	fmt.Fprintf(&b, "Size: %d\n", node.Size)
	if node.Group {
		b.WriteString("Grouped: yes\n")
	}
	fmt.Fprintf(&b, "Code pane query: %s", node.Query)
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleTopLinks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := mcp.ParseInt(request, "n", 10)
	if n <= 0 {
		return mcp.NewToolResultError("n must be positive"), nil
	}

	links, err := s.apiClient.GetLinks(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	top := TopMessageLinks(links, n)
	if len(top) == 0 {
		return mcp.NewToolResultText("No message links."), nil
	}

	var b strings.Builder
	for i, l := range top {
		fmt.Fprintf(&b, "%d. %s -> %s: %d\n", i+1, l.Source, l.Target, l.MessageCount)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

// TopMessageLinks returns the n heaviest message links. Creation links are
// skipped; ties keep their original order.
func TopMessageLinks(links []graph.LinkView, n int) []graph.LinkView {
	msgs := make([]graph.LinkView, 0, len(links))
	for _, l := range links {
		if !l.Creation {
			msgs = append(msgs, l)
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].MessageCount > msgs[j].MessageCount
	})
	if len(msgs) > n {
		msgs = msgs[:n]
	}
	return msgs
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "traceview-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are looking at a live system view of a concurrent program, built by traceview.

Concepts:
- Activity: a unit of execution (actor, thread, task). Ids look like 'e12'.
- Passive entity: an object acted upon (promise, lock). Labelled by its source location.
- Group: when more than 4 activities share a name, or more than 3 passive entities share a
  source location, they are drawn as one node ('ag<n>' / 'pg<n>') whose size is the member count.
- Message link: weighted by the number of messages between two visible nodes.
- Creation link: connects a creator activity to what it created.

Use 'find_node' to locate where an entity is drawn, and 'top_links' to find the busiest
communication paths.
`

	return mcp.NewGetPromptResult(
		"traceview-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
