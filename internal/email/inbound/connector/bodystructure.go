package connector

import (
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/mimepart"
)

func nodeFromBodyStructure(bs imap.BodyStructure) *mimepart.Node {
	switch s := bs.(type) {
	case *imap.BodyStructureMultiPart:
		node := &mimepart.Node{Type: "MULTIPART", Subtype: strings.ToUpper(s.Subtype)}
		for _, child := range s.Children {
			n := nodeFromBodyStructure(child)
			if n == nil {
				// Keep the slot so later siblings keep the server's part numbers.
				n = &mimepart.Node{Type: "APPLICATION", Subtype: "OCTET-STREAM"}
			}
			node.Children = append(node.Children, n)
		}
		return node
	case *imap.BodyStructureSinglePart:
		return &mimepart.Node{
			Type:     strings.ToUpper(s.Type),
			Subtype:  strings.ToUpper(s.Subtype),
			Encoding: strings.ToUpper(s.Encoding),
			Charset:  param(s.Params, "charset"),
		}
	default:
		return nil
	}
}

func param(params map[string]string, name string) string {
	for k, v := range params {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
