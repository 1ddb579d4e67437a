package utils

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// HostPort is the (host, port) form of an RPC address.
type HostPort struct {
	Host string
	Port int
}

// NormalizeAddresses turns one address, a list of addresses or a HostPort
// into the candidate address list. Trailing slashes are dropped so paths
// like /status can be appended.
func NormalizeAddresses(addr any) ([]string, error) {
	var raw []string
	switch v := addr.(type) {
	case string:
		raw = []string{v}
	case []string:
		raw = v
	case HostPort:
		raw = []string{"http://" + net.JoinHostPort(v.Host, strconv.Itoa(v.Port))}
	case *HostPort:
		if v == nil {
			return nil, fmt.Errorf("nil host/port address")
		}
		raw = []string{"http://" + net.JoinHostPort(v.Host, strconv.Itoa(v.Port))}
	default:
		return nil, fmt.Errorf("unsupported address type %T", addr)
	}

	out := make([]string, 0, len(raw))
	for _, a := range raw {
		a = strings.TrimRight(strings.TrimSpace(a), "/")
		if a == "" {
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no RPC addresses provided")
	}
	return out, nil
}

func GetRequestIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}
	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr // Fallback
	}
	return ip
}

// StatusRecorder captures the status code written through it.
type StatusRecorder struct {
	http.ResponseWriter
	StatusCode int
}

// NewStatusRecorder defaults to 200, which is what net/http sends when
// WriteHeader is never called.
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{w, http.StatusOK}
}

func (sr *StatusRecorder) WriteHeader(code int) {
	sr.StatusCode = code
	sr.ResponseWriter.WriteHeader(code)
}
