// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes contact queries for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/vcq/internal/contactservice"
	"github.com/starford/vcq/internal/query"
)

const formatResourceURI = "vcq://output-formats"

// Server wraps the MCP server with vcq tools.
type Server struct {
	mcp *server.MCPServer
	svc *contactservice.Service
}

// New creates a new MCP server with all vcq tools registered.
func New(svc *contactservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"vcq",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("query_contacts",
		mcp.WithDescription("Search contacts from the configured vCard directories. "+
			"Returns deduplicated, sorted records with mail, name, description and the rendered line. "+
			"See the vcq://output-formats resource for matching rules."),
		mcp.WithString("pattern", mcp.Description("Case-insensitive substring (or regex) matched against 'mail<TAB>name<TAB>description'; empty matches all")),
		mcp.WithBoolean("regex", mcp.Description("Interpret pattern as a regular expression")),
		mcp.WithBoolean("all_addresses", mcp.Description("Return every address of a contact instead of only the first")),
		mcp.WithString("sort", mcp.Description("Primary sort key"), mcp.Enum("mail", "name")),
		mcp.WithString("mode", mcp.Description("Line format"), mcp.Enum(query.ModeNames()...)),
		mcp.WithBoolean("starting_first", mcp.Description("Put records starting with the pattern first")),
	), s.queryContacts)

	s.mcp.AddTool(mcp.NewTool("list_directories",
		mcp.WithDescription("List the configured vCard directories with file and record counts."),
	), s.listDirectories)

	s.mcp.AddTool(mcp.NewTool("refresh_directories",
		mcp.WithDescription("Rescan the configured vCard directories and update their caches."),
		mcp.WithString("dir", mcp.Description("Optional directory to rescan (empty for all)")),
	), s.refreshDirectories)

	s.mcp.AddResource(
		mcp.NewResource(formatResourceURI, "Output Formats",
			mcp.WithResourceDescription("How query_contacts matches, orders and renders records."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type queryArgs struct {
	Pattern       string `json:"pattern"`
	Regex         bool   `json:"regex"`
	AllAddresses  bool   `json:"all_addresses"`
	Sort          string `json:"sort"`
	Mode          string `json:"mode"`
	StartingFirst bool   `json:"starting_first"`
}

type contactResult struct {
	Mail        string `json:"mail"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Line        string `json:"line"`
}

func (s *Server) queryContacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[queryArgs](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pattern, err := query.Compile(args.Pattern, args.Regex)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sortBy, err := query.ParseSortKey(args.Sort)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode, err := query.ParseMode(args.Mode)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	recs := s.svc.Query(ctx, query.Options{
		Pattern:       pattern,
		AllAddresses:  args.AllAddresses,
		SortBy:        sortBy,
		StartingFirst: args.StartingFirst,
	})
	out := make([]contactResult, len(recs))
	for i, r := range recs {
		out[i] = contactResult{Mail: r.Mail, Name: r.Name, Description: r.Description, Line: mode.Format(r)}
	}
	return mcp.NewToolResultJSON(map[string]any{
		"contacts": out,
		"total":    len(out),
	})
}

func (s *Server) listDirectories(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(map[string]any{
		"directories": s.svc.Directories(),
	})
}

func (s *Server) refreshDirectories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[struct {
		Dir string `json:"dir"`
	}](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var infos []contactservice.DirectoryInfo
	if args.Dir != "" {
		info, err := s.svc.Refresh(ctx, args.Dir, true)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("refresh %s: %v", args.Dir, err)), nil
		}
		infos = append(infos, info)
	} else {
		infos = s.svc.RefreshAll(ctx, true)
	}
	return mcp.NewToolResultJSON(map[string]any{
		"directories": infos,
	})
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatResourceURI,
			MIMEType: "text/markdown",
			Text:     OutputFormatContract,
		},
	}, nil
}
