package smb

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/micha91/music-assistant-server/config"
)

// Signing modes for the sign_options entry.
const (
	SigningDisabled      = 0
	SigningWhenRequired  = 1
	SigningWhenSupported = 2
)

// Params holds the validated connection parameters for an SMB share,
// built from a provider configuration. It describes how a client would
// connect; no connection is made here.
type Params struct {
	// Server connection
	Server    string // Hostname from the configured path
	Share     string // Share name
	Subfolder string // Path below the share root, slash separated
	TargetIP  string // Optional IP override for the connection
	Port      int    // Effective port, derived from the transport mode

	// Authentication
	Username string
	Password string
	Domain   string // Domain/workgroup (optional)

	// Protocol
	UseNTLMv2 bool // NTLM v2 instead of v1
	Signing   int  // One of the Signing* modes
	DirectTCP bool // Direct TCP framing instead of NetBIOS over TCP
}

// FromConfig builds Params from a parsed provider configuration.
func FromConfig(conf *config.ProviderConfig) (*Params, error) {
	p := &Params{}

	str := func(key string) (string, error) {
		value, err := conf.GetValue(key)
		if err != nil {
			return "", err
		}
		s, _ := value.(string)
		return s, nil
	}

	path, err := str("path")
	if err != nil {
		return nil, err
	}
	if p.Server, p.Share, p.Subfolder, err = ParsePath(path); err != nil {
		return nil, err
	}
	if p.Username, err = str("username"); err != nil {
		return nil, err
	}
	if p.Password, err = str("password"); err != nil {
		return nil, err
	}
	if p.TargetIP, err = str("target_ip"); err != nil {
		return nil, err
	}
	if p.Domain, err = str("domain"); err != nil {
		return nil, err
	}

	if value, err := conf.GetValue("use_ntlm_v2"); err == nil {
		p.UseNTLMv2, _ = value.(bool)
	}
	if value, err := conf.GetValue("direct_tcp"); err == nil {
		p.DirectTCP, _ = value.(bool)
	}
	if value, err := conf.GetValue("sign_options"); err == nil {
		if mode, ok := value.(int64); ok {
			p.Signing = int(mode)
		}
	}

	p.setDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// setDefaults fills the effective port from the transport mode unless one
// was set explicitly.
func (p *Params) setDefaults() {
	if p.Port == 0 {
		if p.DirectTCP {
			p.Port = 445
		} else {
			p.Port = 139
		}
	}
}

// Validate checks that the parameters describe a usable connection.
func (p *Params) Validate() error {
	if p.Server == "" {
		return fmt.Errorf("server is required")
	}
	if p.Share == "" {
		return fmt.Errorf("share is required")
	}
	if p.Username == "" {
		return fmt.Errorf("username is required")
	}
	if p.Password == "" {
		return fmt.Errorf("password is required")
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("invalid port: %d", p.Port)
	}
	if p.Signing < SigningDisabled || p.Signing > SigningWhenSupported {
		return fmt.Errorf("invalid signing mode: %d", p.Signing)
	}
	if p.TargetIP != "" && net.ParseIP(p.TargetIP) == nil {
		return fmt.Errorf("invalid target IP: %s", p.TargetIP)
	}
	return nil
}

// Address returns the host:port to dial, preferring the IP override over
// the server name from the path.
func (p *Params) Address() string {
	host := p.Server
	if p.TargetIP != "" {
		host = p.TargetIP
	}
	return net.JoinHostPort(host, strconv.Itoa(p.Port))
}

// ParsePath splits a share path into server, share and subfolder.
// Supported formats:
//
//	\\server\share[\subfolder...]
//	smb://server/share[/subfolder...]
func ParsePath(path string) (server, share, subfolder string, err error) {
	if strings.HasPrefix(path, "smb://") {
		u, err := url.Parse(path)
		if err != nil {
			return "", "", "", fmt.Errorf("invalid share path: %w", err)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if u.Hostname() == "" || len(parts) == 0 || parts[0] == "" {
			return "", "", "", fmt.Errorf("share path %q is missing a server or share name", path)
		}
		return u.Hostname(), parts[0], strings.Join(parts[1:], "/"), nil
	}

	if strings.HasPrefix(path, `\\`) {
		parts := strings.Split(strings.Trim(path, `\`), `\`)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return "", "", "", fmt.Errorf("share path %q is missing a server or share name", path)
		}
		return parts[0], parts[1], strings.Join(parts[2:], "/"), nil
	}

	return "", "", "", fmt.Errorf("share path %q must start with \\\\ or smb://", path)
}
