package soap

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/beevik/etree"
)

// RequestInfo summarizes one SOAP request envelope.
type RequestInfo struct {
	Version   SOAPVersion
	Action    string
	Operation string
}

// Inspect parses a SOAP request body and extracts the version, the
// SOAPAction, and the operation name (the first child element of Body).
func Inspect(body []byte, header http.Header) (*RequestInfo, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("invalid XML: %w", err)
	}

	root := doc.Root()
	if root == nil {
		return nil, errors.New("empty document")
	}
	if root.Tag != "Envelope" {
		return nil, fmt.Errorf("root element must be Envelope, got %s", root.Tag)
	}

	version := detectVersion(root)
	operation, err := extractOperation(doc)
	if err != nil {
		return nil, err
	}

	return &RequestInfo{
		Version:   version,
		Action:    extractAction(header, version),
		Operation: operation,
	}, nil
}

// detectVersion reads the envelope namespace; anything that is not
// SOAP 1.2 is treated as 1.1.
func detectVersion(root *etree.Element) SOAPVersion {
	for _, attr := range root.Attr {
		if strings.HasPrefix(attr.Key, "xmlns") && attr.Value == SOAP12Namespace {
			return SOAP12
		}
	}
	if root.NamespaceURI() == SOAP12Namespace {
		return SOAP12
	}
	return SOAP11
}

// extractAction pulls the SOAPAction: SOAP 1.2 carries it as an action
// parameter of Content-Type, SOAP 1.1 as its own header.
func extractAction(header http.Header, version SOAPVersion) string {
	if version == SOAP12 {
		contentType := header.Get("Content-Type")
		for _, part := range strings.Split(contentType, ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(part, "action=") {
				return strings.Trim(strings.TrimPrefix(part, "action="), `"`)
			}
		}
	}
	return strings.Trim(header.Get("SOAPAction"), `"`)
}

// extractOperation returns the local name of the first element inside
// Body. The etree path matches the local tag, so namespace prefixes on
// Body do not matter.
func extractOperation(doc *etree.Document) (string, error) {
	body := doc.FindElement("//Body")
	if body == nil {
		return "", errors.New("SOAP Body not found")
	}
	children := body.ChildElements()
	if len(children) == 0 {
		return "", errors.New("no operation element found in Body")
	}
	op := children[0].Tag
	if idx := strings.LastIndex(op, ":"); idx >= 0 {
		op = op[idx+1:]
	}
	return op, nil
}
