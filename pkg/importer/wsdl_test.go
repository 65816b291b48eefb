package importer

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stubd/stubd/pkg/endpoint"
	"github.com/stubd/stubd/pkg/soap"
)

const userServiceWSDL = `<?xml version="1.0" encoding="UTF-8"?>
<wsdl:definitions name="UserService"
    targetNamespace="http://example.com/users"
    xmlns:wsdl="http://schemas.xmlsoap.org/wsdl/"
    xmlns:soap="http://schemas.xmlsoap.org/wsdl/soap/"
    xmlns:tns="http://example.com/users"
    xmlns:xsd="http://www.w3.org/2001/XMLSchema">
  <wsdl:types>
    <xsd:schema targetNamespace="http://example.com/users">
      <xsd:element name="GetUserResponse">
        <xsd:complexType>
          <xsd:sequence>
            <xsd:element name="user" type="tns:User"/>
          </xsd:sequence>
        </xsd:complexType>
      </xsd:element>
      <xsd:complexType name="User">
        <xsd:sequence>
          <xsd:element name="id" type="xsd:string"/>
          <xsd:element name="name" type="xsd:string"/>
          <xsd:element name="age" type="xsd:int"/>
          <xsd:element name="active" type="xsd:boolean"/>
        </xsd:sequence>
      </xsd:complexType>
    </xsd:schema>
  </wsdl:types>
  <wsdl:message name="GetUserIn"/>
  <wsdl:message name="GetUserOut">
    <wsdl:part name="parameters" element="tns:GetUserResponse"/>
  </wsdl:message>
  <wsdl:message name="CreateUserIn"/>
  <wsdl:message name="CreateUserOut"/>
  <wsdl:message name="ListUsersIn"/>
  <wsdl:message name="ListUsersOut"/>
  <wsdl:message name="DeleteUserIn"/>
  <wsdl:message name="DeleteUserOut"/>
  <wsdl:portType name="UserPortType">
    <wsdl:operation name="GetUser">
      <wsdl:input message="tns:GetUserIn"/>
      <wsdl:output message="tns:GetUserOut"/>
    </wsdl:operation>
    <wsdl:operation name="CreateUser">
      <wsdl:input message="tns:CreateUserIn"/>
      <wsdl:output message="tns:CreateUserOut"/>
    </wsdl:operation>
    <wsdl:operation name="ListUsers">
      <wsdl:input message="tns:ListUsersIn"/>
      <wsdl:output message="tns:ListUsersOut"/>
    </wsdl:operation>
    <wsdl:operation name="DeleteUser">
      <wsdl:input message="tns:DeleteUserIn"/>
      <wsdl:output message="tns:DeleteUserOut"/>
    </wsdl:operation>
  </wsdl:portType>
  <wsdl:binding name="UserBinding" type="tns:UserPortType">
    <soap:binding style="document" transport="http://schemas.xmlsoap.org/soap/http"/>
    <wsdl:operation name="GetUser">
      <soap:operation soapAction="http://example.com/users/GetUser"/>
    </wsdl:operation>
  </wsdl:binding>
  <wsdl:service name="UserService">
    <wsdl:port name="UserPort" binding="tns:UserBinding">
      <soap:address location="http://localhost:8080/soap/users"/>
    </wsdl:port>
  </wsdl:service>
</wsdl:definitions>`

func TestFromWSDL(t *testing.T) {
	eps, err := FromWSDL([]byte(userServiceWSDL))
	require.NoError(t, err)
	require.Len(t, eps, 4)

	names := make([]string, len(eps))
	for i, ep := range eps {
		names[i] = ep.Name
		assert.Equal(t, endpoint.ProtocolSOAP, ep.Protocol)
		assert.Equal(t, "/soap/users", ep.PathTemplate, "path comes from the soap:address")
		assert.Equal(t, []string{http.MethodPost}, ep.Methods)
		assert.Equal(t, endpoint.StrategyStatic, ep.Strategy)
		require.NotNil(t, ep.Static)
		assert.Equal(t, 200, ep.Static.StatusCode)
		assert.Contains(t, ep.Static.Body, soap.SOAP11Namespace)
		assert.Contains(t, ep.Static.Body, "<soap:Body>")
	}
	assert.Equal(t, []string{"GetUser", "CreateUser", "ListUsers", "DeleteUser"}, names,
		"endpoints follow portType operation order")
}

func TestFromWSDLSampleResponse(t *testing.T) {
	eps, err := FromWSDL([]byte(userServiceWSDL))
	require.NoError(t, err)

	// GetUser resolves its output message to the GetUserResponse element
	// and renders the User complex type with sample values.
	body := eps[0].Static.Body
	assert.Contains(t, body, "<GetUserResponse>")
	assert.Contains(t, body, "<user>")
	assert.Contains(t, body, "<name>sample</name>")
	assert.Contains(t, body, "<age>0</age>")
	assert.Contains(t, body, "<active>true</active>")

	// CreateUser's output message has no element reference, so it gets
	// the minimal wrapper.
	assert.Contains(t, eps[1].Static.Body, "<CreateUserResponse><result>ok</result></CreateUserResponse>")
}

func TestFromWSDLFallbackPath(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<definitions name="Calculator"
    xmlns="http://schemas.xmlsoap.org/wsdl/"
    xmlns:tns="http://example.com/calc"
    xmlns:soap="http://schemas.xmlsoap.org/wsdl/soap/">
  <message name="AddIn"/>
  <message name="AddOut"/>
  <portType name="CalcPort">
    <operation name="Add">
      <input message="tns:AddIn"/>
      <output message="tns:AddOut"/>
    </operation>
  </portType>
  <binding name="CalcBinding" type="tns:CalcPort">
    <soap:binding style="document" transport="http://schemas.xmlsoap.org/soap/http"/>
  </binding>
  <service name="CalcService">
    <port name="CalcSoapPort" binding="tns:CalcBinding"/>
  </service>
</definitions>`

	eps, err := FromWSDL([]byte(doc))
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "Add", eps[0].Name)
	assert.Equal(t, "/soap/calcservice", eps[0].PathTemplate, "no address, so the service name makes the path")
	assert.Contains(t, eps[0].Static.Body, "<AddResponse><result>ok</result></AddResponse>")
}

func TestFromWSDLMergesDuplicateBindings(t *testing.T) {
	// SOAP 1.1 and 1.2 bindings for the same portType commonly share one
	// address; they must collapse to a single endpoint per operation.
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<definitions name="MultiBind"
    xmlns="http://schemas.xmlsoap.org/wsdl/"
    xmlns:tns="http://example.com/multi"
    xmlns:soap="http://schemas.xmlsoap.org/wsdl/soap/"
    xmlns:soap12="http://schemas.xmlsoap.org/wsdl/soap12/">
  <message name="DoThingIn"/>
  <message name="DoThingOut"/>
  <portType name="MultiPort">
    <operation name="DoThing">
      <input message="tns:DoThingIn"/>
      <output message="tns:DoThingOut"/>
    </operation>
  </portType>
  <binding name="MultiSoap11" type="tns:MultiPort">
    <soap:binding style="document" transport="http://schemas.xmlsoap.org/soap/http"/>
  </binding>
  <binding name="MultiSoap12" type="tns:MultiPort">
    <soap12:binding style="document" transport="http://schemas.xmlsoap.org/soap/http"/>
  </binding>
  <service name="MultiService">
    <port name="Port11" binding="tns:MultiSoap11">
      <soap:address location="http://localhost/soap/multi"/>
    </port>
    <port name="Port12" binding="tns:MultiSoap12">
      <soap12:address location="http://localhost/soap/multi"/>
    </port>
  </service>
</definitions>`

	eps, err := FromWSDL([]byte(doc))
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "DoThing", eps[0].Name)
	assert.Equal(t, "/soap/multi", eps[0].PathTemplate)
}

func TestFromWSDLErrors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		contains string
	}{
		{
			name:     "wrong root element",
			doc:      `<html><body/></html>`,
			contains: "definitions",
		},
		{
			name:     "wsdl 2.0 document",
			doc:      `<description xmlns="http://www.w3.org/ns/wsdl"/>`,
			contains: "WSDL 2.0",
		},
		{
			name: "no services",
			doc: `<definitions xmlns="http://schemas.xmlsoap.org/wsdl/" name="Empty">
				<portType name="P"><operation name="Op"/></portType>
			</definitions>`,
			contains: "no services",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromWSDL([]byte(tt.doc))
			require.Error(t, err)
			var impErr *Error
			require.ErrorAs(t, err, &impErr)
			assert.Equal(t, FormatWSDL, impErr.Format)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}

	t.Run("not xml", func(t *testing.T) {
		_, err := FromWSDL([]byte("plainly not xml"))
		require.Error(t, err)
		var impErr *Error
		require.ErrorAs(t, err, &impErr)
		assert.Equal(t, FormatWSDL, impErr.Format)
	})
}
