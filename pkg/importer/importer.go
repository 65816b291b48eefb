// Package importer converts API description documents into endpoint
// definitions. Every produced endpoint is normalized and validated
// before it is returned, so imports feed the registry through the same
// gate as endpoints created by hand.
package importer

// Import source formats.
const (
	FormatOpenAPI = "openapi"
	FormatWSDL    = "wsdl"
)

// Error describes a failed import. Format names the source document
// kind, Message the failing step, and Cause the underlying parser or
// validation error when there is one.
type Error struct {
	Format  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Format + " import: " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}
