package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/thicket"
	"github.com/aretw0/thicket/internal/logging"
	"github.com/aretw0/thicket/internal/presentation/graph"
	"github.com/aretw0/thicket/internal/validator"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/focus"
	thicketgraph "github.com/aretw0/thicket/pkg/graph"
	"github.com/aretw0/thicket/pkg/ports"
	"github.com/go-chi/cors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// TreesURI is the resource listing every known tree.
const TreesURI = "thicket://trees"

// TreeSummary describes one root tree.
type TreeSummary struct {
	ID       string          `json:"id" jsonschema_description:"Tree identifier"`
	Name     string          `json:"name,omitempty" jsonschema_description:"Display name"`
	Type     domain.TreeType `json:"type,omitempty" jsonschema_description:"Tree type"`
	Loaded   bool            `json:"loaded" jsonschema_description:"Whether the tree is held in memory"`
	Subtrees int             `json:"subtrees" jsonschema_description:"Number of direct subtrees"`
	Nodes    int             `json:"nodes" jsonschema_description:"Number of direct nodes"`
}

// TreeList is the result of list_trees.
type TreeList struct {
	Trees []TreeSummary `json:"trees"`
}

// NodeDescription is the result of describe_node.
type NodeDescription struct {
	ID          string        `json:"id"`
	Kind        domain.Kind   `json:"kind"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Tree        string        `json:"tree"`
	Root        string        `json:"root"`
	Complete    bool          `json:"complete"`
	Exits       []domain.Port `json:"exits"`
}

// FocusResult is the result of focus.
type FocusResult struct {
	Path []string `json:"path" jsonschema_description:"Tree ids from the root down to the focused tree"`
}

// SubmitResult is the result of submit_patches.
type SubmitResult struct {
	Results []ports.Result `json:"results"`
}

type treeArgs struct {
	TreeID string `json:"tree_id"`
}

type nodeArgs struct {
	NodeID string `json:"node_id"`
}

type validateArgs struct {
	TreeID string `json:"tree_id"`
	Strict bool   `json:"strict"`
}

type focusArgs struct {
	TreeID string  `json:"tree_id"`
	Zoom   float64 `json:"zoom"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type submitArgs struct {
	TreeID   string         `json:"tree_id"`
	Patches  []domain.Patch `json:"patches"`
	Inverses []domain.Patch `json:"inverses"`
}

// Server exposes a graph to MCP clients.
type Server struct {
	graph     *thicketgraph.Graph
	trees     ports.TreeSource
	authority ports.Authority
	navigator *focus.Navigator
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithTrees lists and loads stored trees that are not yet in memory.
func WithTrees(src ports.TreeSource) Option {
	return func(s *Server) {
		s.trees = src
	}
}

// WithAuthority enables the submit_patches tool.
func WithAuthority(auth ports.Authority) Option {
	return func(s *Server) {
		s.authority = auth
	}
}

// WithNavigator sets the navigator answering the focus tool.
func WithNavigator(n *focus.Navigator) Option {
	return func(s *Server) {
		s.navigator = n
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates an MCP server over g.
func NewServer(g *thicketgraph.Graph, opts ...Option) *Server {
	s := &Server{
		graph:  g,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.navigator == nil {
		s.navigator = focus.NewNavigator(focus.WithLogger(s.logger))
		g.OnInvalidate(s.navigator.Invalidate)
	}
	s.mcpServer = server.NewMCPServer("thicket-mcp", strings.TrimSpace(thicket.Version),
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, for in-process clients.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio serves on Stdin and Stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves on the given port using SSE until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))
	allow := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
	})

	mux := http.NewServeMux()
	mux.Handle("/sse", allow(sseServer.SSEHandler()))
	mux.Handle("/message", allow(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_trees",
		mcp.WithDescription("List the root trees, in memory and in the store."),
		mcp.WithOutputSchema[TreeList](),
	), mcp.NewStructuredToolHandler(s.handleListTrees))

	s.mcpServer.AddTool(mcp.NewTool("inspect_tree",
		mcp.WithDescription("Return the snapshot of one tree: its ordered children and node records."),
		mcp.WithString("tree_id", mcp.Required(), mcp.Description("Tree identifier")),
	), mcp.NewTypedToolHandler(s.handleInspectTree))

	s.mcpServer.AddTool(mcp.NewTool("describe_node",
		mcp.WithDescription("Describe one node: kind, title, owner and exits."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node identifier")),
		mcp.WithOutputSchema[NodeDescription](),
	), mcp.NewStructuredToolHandler(s.handleDescribeNode))

	s.mcpServer.AddTool(mcp.NewTool("validate_tree",
		mcp.WithDescription("Check a root tree for dangling edges, broken references and unfinished nodes."),
		mcp.WithString("tree_id", mcp.Required(), mcp.Description("Root tree identifier")),
		mcp.WithBoolean("strict", mcp.Description("Report warnings as failures")),
	), mcp.NewTypedToolHandler(s.handleValidateTree))

	s.mcpServer.AddTool(mcp.NewTool("render_tree",
		mcp.WithDescription("Render a root tree as a Mermaid flowchart."),
		mcp.WithString("tree_id", mcp.Required(), mcp.Description("Root tree identifier")),
	), mcp.NewTypedToolHandler(s.handleRenderTree))

	s.mcpServer.AddTool(mcp.NewTool("focus",
		mcp.WithDescription("Work out which nested tree a canvas viewport is focused on."),
		mcp.WithString("tree_id", mcp.Required(), mcp.Description("Root tree shown on the canvas")),
		mcp.WithNumber("zoom", mcp.Required(), mcp.Description("Canvas zoom")),
		mcp.WithNumber("x", mcp.Description("Horizontal pan")),
		mcp.WithNumber("y", mcp.Description("Vertical pan")),
		mcp.WithNumber("width", mcp.Required(), mcp.Description("Viewport width")),
		mcp.WithNumber("height", mcp.Required(), mcp.Description("Viewport height")),
		mcp.WithOutputSchema[FocusResult](),
	), mcp.NewStructuredToolHandler(s.handleFocus))

	if s.authority != nil {
		s.mcpServer.AddTool(mcp.NewTool("submit_patches",
			mcp.WithDescription("Submit patches with their index-aligned inverses to the authority."),
			mcp.WithString("tree_id", mcp.Required(), mcp.Description("Root tree identifier")),
			mcp.WithArray("patches", mcp.Required(), mcp.Description("Forward patches"), mcp.Items(map[string]any{"type": "object"})),
			mcp.WithArray("inverses", mcp.Required(), mcp.Description("Inverse patches"), mcp.Items(map[string]any{"type": "object"})),
			mcp.WithOutputSchema[SubmitResult](),
		), mcp.NewStructuredToolHandler(s.handleSubmit))
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(TreesURI, "Known trees",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := s.listTrees(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list trees: %w", err)
		}
		jsonBytes, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      TreesURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func (s *Server) handleListTrees(ctx context.Context, _ mcp.CallToolRequest, _ struct{}) (TreeList, error) {
	return s.listTrees(ctx)
}

func (s *Server) listTrees(ctx context.Context) (TreeList, error) {
	var list TreeList
	seen := make(map[string]bool)
	for _, t := range s.graph.Roots() {
		seen[t.ID()] = true
		list.Trees = append(list.Trees, TreeSummary{
			ID:       t.ID(),
			Name:     t.Name,
			Type:     t.Type,
			Loaded:   true,
			Subtrees: len(t.Subtrees()),
			Nodes:    len(t.DirectNodes()),
		})
	}
	if s.trees == nil {
		return list, nil
	}
	ids, err := s.trees.List(ctx)
	if err != nil {
		return TreeList{}, err
	}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		list.Trees = append(list.Trees, TreeSummary{ID: id})
	}
	return list, nil
}

func (s *Server) handleInspectTree(ctx context.Context, _ mcp.CallToolRequest, args treeArgs) (*mcp.CallToolResult, error) {
	snap, err := s.graph.Snapshot(args.TreeID)
	if err != nil && s.trees != nil {
		snap, err = s.trees.Load(ctx, args.TreeID)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
	}
	jsonBytes, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleDescribeNode(_ context.Context, _ mcp.CallToolRequest, args nodeArgs) (NodeDescription, error) {
	n, ok := s.graph.Node(args.NodeID)
	if !ok {
		return NodeDescription{}, domain.NotFound(args.NodeID)
	}
	owner, _ := s.graph.Owner(args.NodeID)
	root, _ := s.graph.RootOf(args.NodeID)
	return NodeDescription{
		ID:          n.ID(),
		Kind:        n.Kind(),
		Title:       n.Title(),
		Description: n.Description(),
		Tree:        owner,
		Root:        root,
		Complete:    n.IsDataComplete(),
		Exits:       n.Exits(),
	}, nil
}

// resolveRoot makes sure rootID is in memory, loading it from the store if needed.
func (s *Server) resolveRoot(ctx context.Context, rootID string) error {
	if _, ok := s.graph.Tree(rootID); ok {
		return nil
	}
	if s.trees == nil {
		return fmt.Errorf("tree %s: %w", rootID, domain.ErrTreeNotFound)
	}
	if err := s.graph.Load(ctx, s.trees, rootID); err != nil {
		return err
	}
	s.logger.Debug("Tree loaded for MCP", "tree_id", rootID)
	return nil
}

func (s *Server) handleValidateTree(ctx context.Context, _ mcp.CallToolRequest, args validateArgs) (*mcp.CallToolResult, error) {
	if err := s.resolveRoot(ctx, args.TreeID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("validate failed: %v", err)), nil
	}
	report, err := validator.ValidateGraph(s.graph, args.TreeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("validate failed: %v", err)), nil
	}
	jsonBytes, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	if err := report.Err(args.Strict); err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(jsonBytes))},
			IsError: true,
		}, nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleRenderTree(ctx context.Context, _ mcp.CallToolRequest, args treeArgs) (*mcp.CallToolResult, error) {
	if err := s.resolveRoot(ctx, args.TreeID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("render failed: %v", err)), nil
	}
	var overlay *graph.GraphOverlay
	if report, err := validator.ValidateGraph(s.graph, args.TreeID); err == nil && !report.OK() {
		overlay = &graph.GraphOverlay{}
		for _, is := range report.Errors() {
			overlay.Invalid = append(overlay.Invalid, is.NodeID)
		}
	}
	chart, err := graph.GenerateMermaid(s.graph, args.TreeID, overlay)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("render failed: %v", err)), nil
	}
	return mcp.NewToolResultText(chart), nil
}

func (s *Server) handleFocus(ctx context.Context, _ mcp.CallToolRequest, args focusArgs) (FocusResult, error) {
	if err := s.resolveRoot(ctx, args.TreeID); err != nil {
		return FocusResult{}, err
	}
	root, ok := s.graph.Tree(args.TreeID)
	if !ok {
		return FocusResult{}, fmt.Errorf("tree %s: %w", args.TreeID, domain.ErrTreeNotFound)
	}
	path := s.navigator.Hierarchy(root, focus.Viewport{
		Zoom:   args.Zoom,
		X:      args.X,
		Y:      args.Y,
		Width:  args.Width,
		Height: args.Height,
	})
	return FocusResult{Path: path}, nil
}

func (s *Server) handleSubmit(ctx context.Context, _ mcp.CallToolRequest, args submitArgs) (SubmitResult, error) {
	if len(args.Patches) == 0 {
		return SubmitResult{}, errors.New("no patches submitted")
	}
	if len(args.Patches) != len(args.Inverses) {
		return SubmitResult{}, fmt.Errorf("got %d patches and %d inverses", len(args.Patches), len(args.Inverses))
	}
	results, err := s.authority.Submit(ctx, args.TreeID, args.Patches, args.Inverses, false)
	if err != nil {
		s.logger.Warn("MCP submission failed", "tree_id", args.TreeID, "error", err)
		return SubmitResult{}, err
	}
	return SubmitResult{Results: results}, nil
}
