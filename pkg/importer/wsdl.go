package importer

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/beevik/etree"

	"github.com/stubd/stubd/pkg/endpoint"
	"github.com/stubd/stubd/pkg/soap"
)

// FromWSDL converts a WSDL 1.1 service description into soap endpoint
// definitions, one per operation. Each endpoint answers POST on the
// path taken from the port's soap:address, falling back to
// /soap/{service}, and carries a skeleton envelope response built from
// the operation's output message and the XSD types in the document.
func FromWSDL(data []byte) ([]*endpoint.Endpoint, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &Error{Format: FormatWSDL, Message: "failed to parse XML", Cause: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &Error{Format: FormatWSDL, Message: "empty document"}
	}
	if root.Tag == "description" {
		return nil, &Error{Format: FormatWSDL, Message: "WSDL 2.0 is not supported, use a WSDL 1.1 document"}
	}
	if root.Tag != "definitions" {
		return nil, &Error{Format: FormatWSDL, Message: fmt.Sprintf("expected root element <definitions>, got <%s>", root.Tag)}
	}

	endpoints := parseDefinitions(root).endpoints()
	if len(endpoints) == 0 {
		return nil, &Error{Format: FormatWSDL, Message: "no services found in document"}
	}
	for _, ep := range endpoints {
		ep.Normalize()
		if err := ep.Validate(); err != nil {
			return nil, &Error{
				Format:  FormatWSDL,
				Message: fmt.Sprintf("operation %s produced an invalid endpoint", ep.Name),
				Cause:   err,
			}
		}
	}
	return endpoints, nil
}

// wsdlDefinitions holds the parts of a parsed WSDL 1.1 document needed
// to resolve service ports to operations and sample response shapes.
type wsdlDefinitions struct {
	Services  []wsdlService
	PortTypes []wsdlPortType
	Bindings  []wsdlBinding
	Messages  []wsdlMessage
	Types     []xsdElement
}

type wsdlService struct {
	Name  string
	Ports []wsdlPort
}

type wsdlPort struct {
	Binding  string // QName reference to a binding
	Location string // soap:address location
}

type wsdlPortType struct {
	Name       string
	Operations []wsdlOperation
}

type wsdlOperation struct {
	Name   string
	Output string // output message name
}

type wsdlBinding struct {
	Name string
	Type string // QName reference to a portType
}

type wsdlMessage struct {
	Name    string
	Element string // first part's element reference
}

// xsdElement is a top-level element or named complex type from the
// types section.
type xsdElement struct {
	Name   string
	Fields []xsdField
}

type xsdField struct {
	Name string
	Type string
}

func parseDefinitions(root *etree.Element) *wsdlDefinitions {
	def := &wsdlDefinitions{}

	for _, msgEl := range childElements(root, "message") {
		msg := wsdlMessage{Name: msgEl.SelectAttrValue("name", "")}
		for _, partEl := range childElements(msgEl, "part") {
			if ref := stripPrefix(partEl.SelectAttrValue("element", "")); ref != "" {
				msg.Element = ref
				break
			}
		}
		def.Messages = append(def.Messages, msg)
	}

	for _, ptEl := range childElements(root, "portType") {
		pt := wsdlPortType{Name: ptEl.SelectAttrValue("name", "")}
		for _, opEl := range childElements(ptEl, "operation") {
			op := wsdlOperation{Name: opEl.SelectAttrValue("name", "")}
			if out := firstChild(opEl, "output"); out != nil {
				op.Output = stripPrefix(out.SelectAttrValue("message", ""))
			}
			pt.Operations = append(pt.Operations, op)
		}
		def.PortTypes = append(def.PortTypes, pt)
	}

	for _, bindEl := range childElements(root, "binding") {
		def.Bindings = append(def.Bindings, wsdlBinding{
			Name: bindEl.SelectAttrValue("name", ""),
			Type: stripPrefix(bindEl.SelectAttrValue("type", "")),
		})
	}

	for _, svcEl := range childElements(root, "service") {
		svc := wsdlService{Name: svcEl.SelectAttrValue("name", "")}
		for _, portEl := range childElements(svcEl, "port") {
			p := wsdlPort{Binding: stripPrefix(portEl.SelectAttrValue("binding", ""))}
			if addr := soapChild(portEl, "address"); addr != nil {
				p.Location = addr.SelectAttrValue("location", "")
			}
			svc.Ports = append(svc.Ports, p)
		}
		def.Services = append(def.Services, svc)
	}

	for _, typesEl := range childElements(root, "types") {
		for _, schemaEl := range childElements(typesEl, "schema") {
			def.Types = append(def.Types, parseSchema(schemaEl)...)
		}
	}

	return def
}

// parseSchema collects top-level elements (with inline complex types)
// and named complex types from an XSD schema.
func parseSchema(schema *etree.Element) []xsdElement {
	var elements []xsdElement
	for _, el := range childElements(schema, "element") {
		name := el.SelectAttrValue("name", "")
		if name == "" {
			continue
		}
		entry := xsdElement{Name: name}
		if ct := firstChild(el, "complexType"); ct != nil {
			entry.Fields = complexTypeFields(ct)
		}
		elements = append(elements, entry)
	}
	for _, ct := range childElements(schema, "complexType") {
		name := ct.SelectAttrValue("name", "")
		if name == "" {
			continue
		}
		elements = append(elements, xsdElement{Name: name, Fields: complexTypeFields(ct)})
	}
	return elements
}

func complexTypeFields(ct *etree.Element) []xsdField {
	seq := firstChild(ct, "sequence")
	if seq == nil {
		seq = firstChild(ct, "all")
	}
	if seq == nil {
		return nil
	}
	var fields []xsdField
	for _, el := range childElements(seq, "element") {
		fields = append(fields, xsdField{
			Name: el.SelectAttrValue("name", ""),
			Type: stripPrefix(el.SelectAttrValue("type", "")),
		})
	}
	return fields
}

// endpoints walks service, port, binding, portType and emits one
// endpoint per operation. Multiple bindings for the same service (SOAP
// 1.1 plus 1.2 is common) collapse onto one endpoint per path and
// operation name.
func (def *wsdlDefinitions) endpoints() []*endpoint.Endpoint {
	bindingType := make(map[string]string, len(def.Bindings))
	for _, b := range def.Bindings {
		bindingType[b.Name] = b.Type
	}
	portTypes := make(map[string]*wsdlPortType, len(def.PortTypes))
	for i := range def.PortTypes {
		portTypes[def.PortTypes[i].Name] = &def.PortTypes[i]
	}
	outputElement := make(map[string]string, len(def.Messages))
	for _, m := range def.Messages {
		if m.Element != "" {
			outputElement[m.Name] = m.Element
		}
	}
	types := make(map[string]*xsdElement, len(def.Types))
	for i := range def.Types {
		types[def.Types[i].Name] = &def.Types[i]
	}

	var endpoints []*endpoint.Endpoint
	seen := make(map[string]bool)
	for _, svc := range def.Services {
		for _, port := range svc.Ports {
			pt := portTypes[bindingType[port.Binding]]
			if pt == nil {
				continue
			}
			path := servicePath(port.Location, svc.Name)
			for _, op := range pt.Operations {
				if op.Name == "" || seen[path+"\n"+op.Name] {
					continue
				}
				seen[path+"\n"+op.Name] = true
				payload := responsePayload(op, outputElement, types)
				endpoints = append(endpoints, &endpoint.Endpoint{
					Name:         op.Name,
					Protocol:     endpoint.ProtocolSOAP,
					PathTemplate: path,
					Methods:      []string{http.MethodPost},
					Strategy:     endpoint.StrategyStatic,
					Static: &endpoint.StaticResponse{
						StatusCode: http.StatusOK,
						Body:       string(soap.BuildEnvelope(payload, soap.SOAP11)),
					},
				})
			}
		}
	}
	return endpoints
}

// servicePath takes the path of the port's address URL, falling back
// to a path derived from the service name.
func servicePath(location, serviceName string) string {
	if location != "" {
		if u, err := url.Parse(location); err == nil && u.Path != "" {
			return u.Path
		}
	}
	return "/soap/" + strings.ToLower(serviceName)
}

// responsePayload builds sample response XML for an operation: the
// output message's element rendered from its XSD definition, or a
// minimal {operation}Response wrapper when the document does not
// describe one.
func responsePayload(op wsdlOperation, outputElement map[string]string, types map[string]*xsdElement) string {
	name := outputElement[op.Output]
	if name == "" {
		return "<" + op.Name + "Response><result>ok</result></" + op.Name + "Response>"
	}
	el := types[name]
	if el == nil || len(el.Fields) == 0 {
		return "<" + name + "><result>ok</result></" + name + ">"
	}
	return sampleXML(name, el.Fields, types, 0)
}

// sampleXML renders fields with sample values, descending into named
// complex types. The depth cap stops cyclic type references.
func sampleXML(wrapper string, fields []xsdField, types map[string]*xsdElement, depth int) string {
	var b strings.Builder
	b.WriteString("<" + wrapper + ">")
	for _, f := range fields {
		if ct := types[f.Type]; ct != nil && len(ct.Fields) > 0 && depth < 4 {
			b.WriteString(sampleXML(f.Name, ct.Fields, types, depth+1))
			continue
		}
		b.WriteString("<" + f.Name + ">" + sampleValue(f.Type) + "</" + f.Name + ">")
	}
	b.WriteString("</" + wrapper + ">")
	return b.String()
}

// sampleValue maps an XSD simple type to a placeholder literal. Type
// references arrive with their namespace prefix already stripped.
func sampleValue(xsdType string) string {
	switch xsdType {
	case "string":
		return "sample"
	case "int", "integer", "long", "short":
		return "0"
	case "float", "double", "decimal":
		return "0.0"
	case "boolean":
		return "true"
	case "date":
		return "2026-01-01"
	case "dateTime":
		return "2026-01-01T00:00:00Z"
	default:
		return "sample"
	}
}

// childElements returns direct children matching the local name,
// ignoring any namespace prefix.
func childElements(parent *etree.Element, localName string) []*etree.Element {
	var out []*etree.Element
	for _, child := range parent.ChildElements() {
		if child.Tag == localName {
			out = append(out, child)
		}
	}
	return out
}

func firstChild(parent *etree.Element, localName string) *etree.Element {
	for _, child := range parent.ChildElements() {
		if child.Tag == localName {
			return child
		}
	}
	return nil
}

// soapChild returns the first direct child with the local name in a
// SOAP binding namespace. etree exposes the prefix in Space.
func soapChild(parent *etree.Element, localName string) *etree.Element {
	for _, child := range parent.ChildElements() {
		if child.Tag == localName && soapPrefixes[child.Space] {
			return child
		}
	}
	return nil
}

var soapPrefixes = map[string]bool{
	"soap":   true,
	"soap12": true,
	"wsoap":  true,
}

// stripPrefix removes a namespace prefix from a QName, so "tns:User"
// becomes "User".
func stripPrefix(qname string) string {
	if idx := strings.IndexByte(qname, ':'); idx >= 0 {
		return qname[idx+1:]
	}
	return qname
}
