package wsconn

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// Origin identifies the origin of a URI, per “The Web Origin Concept” RFC
// 6454 section 4.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

func parseOrigin(s string) (o *Origin, ok bool) {
	if s == "null" {
		return nil, true
	}
	o = new(Origin)

	i := strings.Index(s, "://")
	if i <= 0 {
		return nil, false
	}
	o.Scheme = s[:i]

	authority := s[i+3:]
	i = strings.LastIndexByte(authority, ':')
	if i >= 0 && authority[len(authority)-1] != ']' {
		o.Host = authority[:i]
		port, err := strconv.Atoi(authority[i+1:])
		if err != nil {
			return nil, false
		}
		o.Port = port
	} else {
		o.Host = authority
		o.Port, _ = net.LookupPort("tcp", o.Scheme)
	}
	if o.Host == "" {
		return nil, false
	}
	return o, true
}

// AllowOrigin parses every entry of r's Origin header and calls check until
// the first pass. It returns false on malformed header content. passNone is
// returned when the header is absent, per RFC 6454 section 6.
func AllowOrigin(r *http.Request, check func(serial string, o *Origin) bool, passNone bool) bool {
	var header string
	switch a := r.Header["Origin"]; len(a) {
	case 0:
		return passNone
	case 1:
		header = a[0]
	default:
		return false
	}
	if header == "" {
		return passNone
	}

	var allow bool
	end := len(header)
	for i := end - 2; i > 0; i-- {
		if header[i] != ' ' {
			continue
		}
		s := header[i+1 : end]

		origin, ok := parseOrigin(s)
		if !ok {
			return false
		}
		if !allow && check(s, origin) {
			allow = true
		}
		end = i
	}
	s := header[:end]

	origin, ok := parseOrigin(s)
	if !ok {
		return false
	}
	return allow || check(s, origin)
}
