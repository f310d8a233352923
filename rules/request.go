package rules

import (
	"math/bits"
	"strings"

	"github.com/AdguardTeam/adengine/filterutil"
	"golang.org/x/net/publicsuffix"
)

// maxURLLength limits the URL length by 4 KiB.  It appears that there can be
// URLs longer than a megabyte, and it makes no sense to go through the whole
// URL.
const maxURLLength = 4 * 1024

// RequestType is the request types enumeration.  The zero value is the
// untyped request, which never matches type-restricted rules.
type RequestType uint32

const (
	// TypeDocument (main frame) $document
	TypeDocument RequestType = 1 << iota
	// TypeSubdocument (iframe) $subdocument
	TypeSubdocument
	// TypeScript (javascript, etc) $script
	TypeScript
	// TypeStylesheet (css) $stylesheet
	TypeStylesheet
	// TypeObject (flash, etc) $object
	TypeObject
	// TypeImage (any image) $image
	TypeImage
	// TypeXmlhttprequest (ajax/fetch) $xmlhttprequest
	TypeXmlhttprequest
	// TypeMedia (video/music) $media
	TypeMedia
	// TypeFont (any custom font) $font
	TypeFont
	// TypeWebsocket (a websocket connection) $websocket
	TypeWebsocket
	// TypePing (navigator.sendBeacon() or ping attribute on links) $ping
	TypePing
	// TypeOther - any other request type
	TypeOther
)

// Count returns the count of the enabled flags.
func (t RequestType) Count() int {
	return bits.OnesCount32(uint32(t))
}

// RequestTypeFromString converts a resource type name used at the embedder
// boundary into a RequestType.  Unknown names, including the empty string,
// yield the untyped value 0.
func RequestTypeFromString(s string) (t RequestType) {
	switch s {
	case "main_frame":
		return TypeDocument
	case "sub_frame":
		return TypeSubdocument
	case "stylesheet":
		return TypeStylesheet
	case "script":
		return TypeScript
	case "image":
		return TypeImage
	case "font":
		return TypeFont
	case "other":
		return TypeOther
	case "object":
		return TypeObject
	case "media":
		return TypeMedia
	case "xhr":
		return TypeXmlhttprequest
	case "ping":
		return TypePing
	case "websocket":
		return TypeWebsocket
	default:
		return 0
	}
}

// String implements the fmt.Stringer interface for RequestType.  It returns
// the boundary name of a single type and "" for the untyped and combined
// values.
func (t RequestType) String() (s string) {
	switch t {
	case TypeDocument:
		return "main_frame"
	case TypeSubdocument:
		return "sub_frame"
	case TypeStylesheet:
		return "stylesheet"
	case TypeScript:
		return "script"
	case TypeImage:
		return "image"
	case TypeFont:
		return "font"
	case TypeOther:
		return "other"
	case TypeObject:
		return "object"
	case TypeMedia:
		return "media"
	case TypeXmlhttprequest:
		return "xhr"
	case TypePing:
		return "ping"
	case TypeWebsocket:
		return "websocket"
	default:
		return ""
	}
}

// Request represents a web filtering request with all it's necessary
// properties.
type Request struct {
	// Tags is the set of tags that are currently enabled.  Rules with the
	// $tag modifier only match when their tag is in this set.  A nil set
	// enables no tags.
	Tags map[string]struct{}

	// URL is the full request URL.
	URL string

	// URLLowerCase is the full request URL in lower case.
	URLLowerCase string

	// Hostname is the hostname to filter.
	Hostname string

	// Domain is the effective top-level domain of the request with an
	// additional label.
	Domain string

	// SourceHostname is the hostname of the page that initiated the request.
	SourceHostname string

	// SourceDomain is the effective top-level domain of the source with an
	// additional label.
	SourceDomain string

	// RequestType is the type of the filtering request.
	RequestType RequestType

	// ThirdParty is true if the filtering request should consider
	// $third-party modifier.
	ThirdParty bool
}

// NewRequest creates a new instance of "Request" and populates it's fields.
// Third-party status is computed from the registrable domains of url and
// sourceHostname.
func NewRequest(url, sourceHostname string, requestType RequestType) (r *Request) {
	r = newRequest(url, filterutil.ExtractHostname(url), sourceHostname, requestType)
	r.ThirdParty = r.SourceDomain != "" && r.SourceDomain != r.Domain

	return r
}

// NewRequestThirdParty is like [NewRequest] but takes the hostname and the
// third-party status from the caller, which usually knows them already.
func NewRequestThirdParty(
	url string,
	hostname string,
	sourceHostname string,
	thirdParty bool,
	requestType RequestType,
) (r *Request) {
	if hostname == "" {
		hostname = filterutil.ExtractHostname(url)
	}

	r = newRequest(url, hostname, sourceHostname, requestType)
	r.ThirdParty = thirdParty

	return r
}

// newRequest fills the common fields of a request.
func newRequest(url, hostname, sourceHostname string, requestType RequestType) (r *Request) {
	if len(url) > maxURLLength {
		url = url[:maxURLLength]
	}

	hostname = strings.ToLower(hostname)
	sourceHostname = strings.ToLower(sourceHostname)

	return &Request{
		URL:            url,
		URLLowerCase:   strings.ToLower(url),
		Hostname:       hostname,
		Domain:         registrableDomain(hostname),
		SourceHostname: sourceHostname,
		SourceDomain:   registrableDomain(sourceHostname),
		RequestType:    requestType,
	}
}

// IsThirdParty returns true if hostname and sourceHostname belong to
// different registrable domains.  Private suffixes, such as "github.io", are
// taken into account.  An empty source is never third-party.
func IsThirdParty(hostname, sourceHostname string) (ok bool) {
	if sourceHostname == "" {
		return false
	}

	hostname = strings.ToLower(hostname)
	sourceHostname = strings.ToLower(sourceHostname)
	if hostname == sourceHostname {
		return false
	}

	return registrableDomain(hostname) != registrableDomain(sourceHostname)
}

// registrableDomain returns the eTLD+1 of hostname or hostname itself when it
// has none, which is the case for IP addresses and bare suffixes.
func registrableDomain(hostname string) (domain string) {
	if hostname == "" || filterutil.IsProbablyIP(hostname) {
		return hostname
	}

	domain = effectiveTLDPlusOne(hostname)
	if domain == "" {
		return hostname
	}

	return domain
}

// effectiveTLDPlusOne is a faster version of publicsuffix.EffectiveTLDPlusOne
// that avoids using fmt.Errorf when the domain is less or equal the suffix.
func effectiveTLDPlusOne(hostname string) (domain string) {
	hostnameLen := len(hostname)
	if hostnameLen < 1 {
		return ""
	}

	if hostname[0] == '.' || hostname[hostnameLen-1] == '.' {
		return ""
	}

	suffix, _ := publicsuffix.PublicSuffix(hostname)

	i := hostnameLen - len(suffix) - 1
	if i < 0 || hostname[i] != '.' {
		return ""
	}

	return hostname[1+strings.LastIndex(hostname[:i], "."):]
}
