// Package mimepart models a message's MIME structure as an explicit tree and
// locates decoded body parts within it.
package mimepart

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	gomessage "github.com/emersion/go-message"
	htmlcharset "golang.org/x/net/html/charset"
)

const (
	ContentTypePlain = "TEXT/PLAIN"
	ContentTypeHTML  = "TEXT/HTML"
)

func init() {
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

// Node is one entry of a MIME structure tree. Multipart nodes carry ordered
// children; every other node is a leaf whose content can be fetched by path.
type Node struct {
	Type     string
	Subtype  string
	Encoding string
	Charset  string
	Children []*Node
}

// IsMultipart reports whether the node is a container of other parts.
func (n *Node) IsMultipart() bool {
	if n == nil {
		return false
	}
	return strings.EqualFold(n.Type, "MULTIPART") || len(n.Children) > 0
}

// ContentType returns the upper-cased TYPE/SUBTYPE of the node. A node without
// a subtype is treated as TEXT/PLAIN.
func (n *Node) ContentType() string {
	if n == nil || strings.TrimSpace(n.Subtype) == "" {
		return ContentTypePlain
	}
	typ := strings.TrimSpace(n.Type)
	if typ == "" {
		typ = "TEXT"
	}
	return strings.ToUpper(typ + "/" + strings.TrimSpace(n.Subtype))
}

// PartFetcher returns the raw, still transfer-encoded bytes of the part at path.
type PartFetcher func(ctx context.Context, path string) ([]byte, error)

// Find walks the tree depth-first and returns the decoded content of the first
// leaf matching contentType that is not empty. It returns nil when no part
// matches.
func Find(ctx context.Context, root *Node, contentType string, fetch PartFetcher) ([]byte, error) {
	if root == nil || fetch == nil {
		return nil, nil
	}
	target := strings.ToUpper(strings.TrimSpace(contentType))
	if target == "" {
		return nil, nil
	}
	return find(ctx, root, target, "", fetch)
}

func find(ctx context.Context, node *Node, target, path string, fetch PartFetcher) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if node.IsMultipart() {
		for i, child := range node.Children {
			if child == nil {
				continue
			}
			data, err := find(ctx, child, target, childPath(path, i), fetch)
			if err != nil {
				return nil, err
			}
			if len(data) > 0 {
				return data, nil
			}
		}
		return nil, nil
	}
	if node.ContentType() != target {
		return nil, nil
	}
	if path == "" {
		path = "1"
	}
	raw, err := fetch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch part %s: %w", path, err)
	}
	decoded, err := Decode(raw, node.Encoding, node.Charset)
	if err != nil {
		return nil, fmt.Errorf("decode part %s: %w", path, err)
	}
	return decoded, nil
}

func childPath(parent string, index int) string {
	n := strconv.Itoa(index + 1)
	if parent == "" {
		return n
	}
	return parent + "." + n
}

// Decode reverses the part's content transfer encoding and converts the
// declared charset to UTF-8. Unknown encodings and charsets pass through.
func Decode(raw []byte, encoding, charset string) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var header gomessage.Header
	if enc := strings.ToLower(strings.TrimSpace(encoding)); enc != "" {
		header.Set("Content-Transfer-Encoding", enc)
	}
	params := map[string]string{}
	if cs := strings.TrimSpace(charset); cs != "" {
		params["charset"] = strings.ToLower(cs)
	}
	header.SetContentType("text/plain", params)

	entity, err := gomessage.New(header, bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) && !gomessage.IsUnknownEncoding(err) {
		return nil, err
	}
	if entity == nil {
		return raw, nil
	}
	return io.ReadAll(entity.Body)
}
