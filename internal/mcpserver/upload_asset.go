package mcpserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/folio/internal/assets"
)

const maxRedirects = 5

var errBlockedAddr = errors.New("address not allowed")

func (s *Server) uploadAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var (
		data []byte
		ext  string
	)
	if strings.HasPrefix(src, "data:") {
		data, ext, err = decodeDataURI(src)
	} else {
		data, ext, err = s.fetch(ctx, src)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name := req.GetString("filename", "")
	if name == "" {
		name = filenameFromURL(src, ext)
	}
	a, err := s.assets.Save(name, data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(a)
}

// decodeDataURI returns the payload of a base64 data URI and the extension
// for its media type.
func decodeDataURI(uri string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errors.New("data URI: missing comma")
	}
	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", errors.New("data URI: only base64 payloads are accepted")
	}
	ext, err := extFor(mediaType)
	if err != nil {
		return nil, "", err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, "", fmt.Errorf("data URI: %w", err)
		}
	}
	return data, ext, nil
}

func extFor(contentType string) (string, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("media type %q: %w", contentType, err)
	}
	ext := assets.ExtForMIME(mt)
	if ext == "" {
		return "", fmt.Errorf("media type %s is not an accepted asset type", mt)
	}
	return ext, nil
}

// fetch downloads an http(s) URL. Every connection, including those made
// for redirects, is checked after DNS resolution so a hostname cannot point
// the server at itself or its network.
func (s *Server) fetch(ctx context.Context, src string) ([]byte, string, error) {
	u, err := url.Parse(src)
	if err != nil {
		return nil, "", fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("url: scheme %q is not http or https", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("url: %w", err)
	}
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, assets.MaxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	if len(data) > assets.MaxSize {
		return nil, "", fmt.Errorf("download: larger than %d bytes", assets.MaxSize)
	}
	ext, _ := extFor(resp.Header.Get("Content-Type"))
	return data, ext, nil
}

func (s *Server) httpClient() *http.Client {
	if s.client != nil {
		return s.client
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: guardDial}
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// guardDial runs after name resolution, on the address actually dialled.
func guardDial(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if blockedAddr(addr) {
		return fmt.Errorf("%s: %w", addr, errBlockedAddr)
	}
	return nil
}

// blockedAddr covers loopback, private ranges, link-local (which includes
// the 169.254.169.254 metadata service) and the unspecified address.
func blockedAddr(a netip.Addr) bool {
	a = a.Unmap()
	return a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalUnicast() ||
		a.IsLinkLocalMulticast() || a.IsUnspecified() || a.IsMulticast()
}

// filenameFromURL uses the last path segment when it has an extension and
// a random name with ext otherwise.
func filenameFromURL(src, ext string) string {
	if ext == "" {
		ext = ".bin"
	}
	if !strings.HasPrefix(src, "data:") {
		if u, err := url.Parse(src); err == nil {
			if base := path.Base(u.Path); path.Ext(base) != "" {
				return base
			}
		}
	}
	return uuid.NewString() + ext
}
