package config

// DefaultSettings returns settings with default values. Server TLS
// verification starts off so local endpoints with self-signed
// certificates work without configuration; strictSSL opts back in.
func DefaultSettings() *Settings {
	return &Settings{
		TimeoutMs:            0, // no timeout
		FollowRedirect:       BoolPtr(true),
		Proxy:                "",
		ExcludeHostsForProxy: nil,
		ProxyStrictSSL:       BoolPtr(false),
		RememberCookies:      BoolPtr(true),
		DecodeEscapedUnicode: BoolPtr(false),
		StrictSSL:            BoolPtr(false),
		HostCertificates:     nil,
	}
}
