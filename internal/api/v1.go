package api

import "encoding/xml"

const (
	NamespaceWMTSMultidim = "http://demo.geo-solutions.it/share/wmts-multidim/wmts_multi_dimensional.xsd"
	NamespaceOWS          = "http://www.opengis.net/ows/1.1"
)

// DomainValues is the GetDomainValues response body. Domain is a comma
// separated list of instants or "start/end" intervals.
type DomainValues struct {
	XMLName    xml.Name `xml:"http://demo.geo-solutions.it/share/wmts-multidim/wmts_multi_dimensional.xsd DomainValues" json:"-"`
	Identifier string   `xml:"http://www.opengis.net/ows/1.1 Identifier" json:"Identifier"`
	Limit      int      `xml:"Limit,omitempty" json:"Limit,omitempty"`
	Sort       string   `xml:"Sort,omitempty" json:"Sort,omitempty"`
	FromValue  string   `xml:"FromValue,omitempty" json:"FromValue,omitempty"`
	Domain     string   `xml:"Domain" json:"Domain"`
	Size       int      `xml:"Size" json:"Size"`
}

type DomainValuesEnvelope struct {
	DomainValues *DomainValues `json:"DomainValues"`
}

// Histogram is the GetHistogram response body. Domain is
// "start/end/resolution"; Values are comma separated bucket counts.
type Histogram struct {
	XMLName    xml.Name `xml:"http://demo.geo-solutions.it/share/wmts-multidim/wmts_multi_dimensional.xsd Histogram" json:"-"`
	Identifier string   `xml:"http://www.opengis.net/ows/1.1 Identifier" json:"Identifier"`
	Domain     string   `xml:"Domain" json:"Domain"`
	Values     string   `xml:"Values" json:"Values"`
}

type HistogramEnvelope struct {
	Histogram *Histogram `json:"Histogram"`
}

type ExceptionReport struct {
	XMLName    xml.Name    `xml:"http://www.opengis.net/ows/1.1 ExceptionReport"`
	Version    string      `xml:"version,attr"`
	Exceptions []Exception `xml:"http://www.opengis.net/ows/1.1 Exception"`
}

type Exception struct {
	Code    string `xml:"exceptionCode,attr"`
	Locator string `xml:"locator,attr,omitempty"`
	Text    string `xml:"http://www.opengis.net/ows/1.1 ExceptionText"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

// OWS exception codes used by the domain service.
const (
	ErrMissingParameter = "MissingParameterValue"
	ErrInvalidParameter = "InvalidParameterValue"
	ErrOperationUnknown = "OperationNotSupported"
	ErrLayerNotFound    = "LayerNotDefined"
)
