// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Folio tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/folio/internal/articleservice"
	"github.com/starford/folio/internal/assets"
	"github.com/starford/folio/internal/categoryservice"
	"github.com/starford/folio/internal/content"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/workflow"
)

const formatURI = "folio://article-format"

// Server wraps the MCP server with Folio tools.
type Server struct {
	mcp      *server.MCPServer
	articles *articleservice.Service
	cats     *categoryservice.Service
	assets   *assets.Store
	// client overrides the guarded downloader used by upload_asset.
	client *http.Client
}

// New creates a new MCP server with all Folio tools registered.
func New(articles *articleservice.Service, cats *categoryservice.Service, store *assets.Store) *Server {
	s := &Server{articles: articles, cats: cats, assets: store}

	s.mcp = server.NewMCPServer(
		"Folio",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_articles",
		mcp.WithDescription("Full-text search through article titles, bodies, tags and summaries."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (default 20)")),
	), s.searchArticles)

	s.mcp.AddTool(mcp.NewTool("read_article",
		mcp.WithDescription("Read an article as JSON: metadata, review status, and content blocks."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the article (e.g. guides/channels.html)")),
	), s.readArticle)

	s.mcp.AddTool(mcp.NewTool("create_article",
		mcp.WithDescription("Create a new draft article from a JSON array of content blocks. "+
			"Blocks MUST follow the Folio article format. Read the contract first via "+
			"the get_article_contract tool or the "+formatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new article")),
		mcp.WithString("blocks", mcp.Required(), mcp.Description("JSON array of blocks")),
		mcp.WithString("title", mcp.Description("Title; defaults to the first heading")),
		mcp.WithString("category", mcp.Description("Category id from list_categories")),
	), s.createArticle)

	s.mcp.AddTool(mcp.NewTool("update_blocks",
		mcp.WithDescription("Replace the content blocks of an existing article."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Article path")),
		mcp.WithString("blocks", mcp.Required(), mcp.Description("JSON array of blocks")),
		mcp.WithString("checksum", mcp.Description("Checksum from read_article; rejects the write if the article changed since")),
	), s.updateBlocks)

	s.mcp.AddTool(mcp.NewTool("review_article",
		mcp.WithDescription("Apply a review action (submit, start_review, approve, publish, reject, unpublish)."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Article path")),
		mcp.WithString("action", mcp.Required(), mcp.Description("Review action")),
	), s.reviewArticle)

	s.mcp.AddTool(mcp.NewTool("list_articles",
		mcp.WithDescription("List articles, optionally filtered by status, category, or tag."),
		mcp.WithString("status", mcp.Description("Review status filter")),
		mcp.WithString("category", mcp.Description("Category id filter")),
		mcp.WithString("tag", mcp.Description("Tag filter")),
	), s.listArticles)

	s.mcp.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List every category in tree order with its id and ancestor path."),
	), s.listCategories)

	s.mcp.AddTool(mcp.NewTool("get_article_contract",
		mcp.WithDescription("Returns the canonical Folio article format contract. "+
			"Call this before creating or updating articles to ensure correct structure."),
	), s.getArticleContract)

	s.mcp.AddTool(mcp.NewTool("upload_asset",
		mcp.WithDescription("Store an image or video from an http(s) URL or a base64 data URI. "+
			"Returns the stored URL and a block that embeds it."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:<mime>;base64,<data>")),
		mcp.WithString("filename", mcp.Description("Original filename; derived from the URL when empty")),
	), s.uploadAsset)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Article Format Contract",
			mcp.WithResourceDescription("Canonical block format that all articles must follow."),
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func parseBlocks(raw string) ([]content.Block, error) {
	var blocks []content.Block
	if err := json.Unmarshal([]byte(raw), &blocks); err != nil {
		return nil, fmt.Errorf("blocks must be a JSON array of blocks: %w", err)
	}
	return blocks, nil
}

func (s *Server) searchArticles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.articles.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) readArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.articles.Get(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) createArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("blocks")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	blocks, err := parseBlocks(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	d, err := s.articles.Create(ctx, articleservice.CreateInput{
		Path:     path,
		Title:    req.GetString("title", ""),
		Category: req.GetString("category", ""),
		Blocks:   blocks,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", d.Path)), nil
}

func (s *Server) updateBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("blocks")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	blocks, err := parseBlocks(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.articles.ReplaceBlocks(ctx, path, blocks, req.GetString("checksum", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s (checksum %s)", d.Path, d.Checksum)), nil
}

func (s *Server) reviewArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.articles.Transition(ctx, path, workflow.Action(action), "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s", d.Path, d.Status)), nil
}

func (s *Server) listArticles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, _, err := s.articles.List(ctx, index.ListFilter{
		Limit:    500,
		Status:   req.GetString("status", ""),
		Category: req.GetString("category", ""),
		Tag:      req.GetString("tag", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(items)
}

func (s *Server) listCategories(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.cats.Flatten(ctx))
}

func (s *Server) getArticleContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ArticleFormatContract), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     ArticleFormatContract,
		},
	}, nil
}
