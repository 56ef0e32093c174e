package http

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/restwire/restwire/packages/core/config"
)

// WarnFunc receives non-fatal pipeline warnings.
type WarnFunc func(format string, args ...any)

func defaultWarn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}

// PathContext tells certificate resolution how to anchor relative paths:
// the workspace root wins, then the directory of the file that declared the
// request. With neither set, relative paths cannot be resolved.
type PathContext struct {
	WorkspaceRoot string
	RequestDir    string
}

// ResolveCertificate looks up client certificate material for the URL's
// host. The lookup key is the URL's host[:port] exactly as written, with no
// default-port normalization. A missing mapping or unreadable files are not
// errors: unreadable files produce a warning and the material is treated as
// absent.
func ResolveCertificate(u *url.URL, settings *config.Settings, paths PathContext, warnf WarnFunc) *ClientCertificate {
	if settings == nil || len(settings.HostCertificates) == 0 {
		return nil
	}
	if warnf == nil {
		warnf = defaultWarn
	}

	certConfig, ok := settings.HostCertificates[u.Host]
	if !ok {
		return nil
	}

	cert := &ClientCertificate{
		Cert:       readCertFile(certConfig.Cert, paths, warnf),
		Key:        readCertFile(certConfig.Key, paths, warnf),
		Pfx:        readCertFile(certConfig.Pfx, paths, warnf),
		Passphrase: certConfig.Passphrase,
	}
	if cert.Cert == nil && cert.Key == nil && cert.Pfx == nil {
		return nil
	}
	return cert
}

// readCertFile resolves one configured path and reads it. Absolute paths
// are used as-is; relative paths anchor to the path context. Missing files
// warn and resolve to nil.
func readCertFile(path string, paths PathContext, warnf WarnFunc) []byte {
	if path == "" {
		return nil
	}

	resolved := path
	if !filepath.IsAbs(path) {
		switch {
		case paths.WorkspaceRoot != "":
			resolved = filepath.Join(paths.WorkspaceRoot, path)
		case paths.RequestDir != "":
			resolved = filepath.Join(paths.RequestDir, path)
		default:
			return nil
		}
	}

	if _, err := os.Stat(resolved); err != nil {
		warnf("certificate file %s does not exist", resolved)
		return nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		warnf("certificate file %s could not be read: %v", resolved, err)
		return nil
	}
	return data
}
