package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// BuildTLSConfig assembles a client tls.Config from the cert file paths the
// backends expose as parameters. All paths are optional: caCert pins the
// peer's CA, myCert/myKey supply a client certificate (myCert alone is read
// as a combined PEM). It returns (nil, nil) when nothing is configured.
func BuildTLSConfig(caCert, myCert, myKey string) (*tls.Config, error) {
	if caCert == "" && myCert == "" {
		return nil, nil
	}
	cfg := &tls.Config{}
	if caCert != "" {
		pem, err := os.ReadFile(caCert)
		if err != nil {
			return nil, fmt.Errorf("read ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca cert %s: no PEM certificates found", caCert)
		}
		cfg.RootCAs = pool
	}
	if myCert != "" {
		if myKey == "" {
			myKey = myCert
		}
		cert, err := tls.LoadX509KeyPair(myCert, myKey)
		if err != nil {
			return nil, fmt.Errorf("load client keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
