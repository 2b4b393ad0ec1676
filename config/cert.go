package config

import (
	"crypto/tls"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/edenfs/kernelchannel/errorkind"
)

// LoadClientCertificate reads the certificate at path and returns a
// tls.Certificate. Legacy .p12/.pfx bundles (the ssl.client-certificate
// fallback path) are decoded with pkcs12.Decode; any
// other extension is read as a standard PEM-encoded cert+key pair via
// tls.LoadX509KeyPair, splitting on the certificate's own path for both
// halves since the legacy single-path option has no separate key file.
func LoadClientCertificate(path, password string) (tls.Certificate, error) {
	if strings.HasSuffix(path, ".p12") || strings.HasSuffix(path, ".pfx") {
		return loadPKCS12(path, password)
	}
	cert, err := tls.LoadX509KeyPair(path, path)
	if err != nil {
		return tls.Certificate{}, errorkind.New(errorkind.KindConfig, "config: loading client certificate %s: %v", path, err)
	}
	return cert, nil
}

func loadPKCS12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, errorkind.New(errorkind.KindConfig, "config: reading pkcs12 bundle %s: %v", path, err)
	}
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, errorkind.New(errorkind.KindConfig, "config: decoding pkcs12 bundle %s: %v", path, err)
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}
