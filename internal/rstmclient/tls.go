package rstmclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"
)

// TLSConfig configures transport security.
type TLSConfig struct {
	Enabled    bool
	Insecure   bool   // skip certificate verification (development only)
	CACertFile string // PEM bundle; system roots when empty
	ServerName string // SNI override; defaults to the host part of Addr
}

func buildTLSConfig(cfg TLSConfig, addr string) (*tls.Config, error) {
	serverName := cfg.ServerName
	if serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		serverName = host
	}

	tlsCfg := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}
	if cfg.Insecure {
		tlsCfg.InsecureSkipVerify = true
		return tlsCfg, nil
	}
	if cfg.CACertFile != "" {
		pem, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("tls: read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("tls: no certificates found in %s", cfg.CACertFile)
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}

func upgradeTLS(ctx context.Context, conn net.Conn, cfg TLSConfig, addr string, log *zap.Logger) (net.Conn, error) {
	tlsCfg, err := buildTLSConfig(cfg, addr)
	if err != nil {
		return nil, err
	}
	if cfg.Insecure {
		log.Warn("using insecure TLS (certificate verification disabled)")
	}
	tlsConn := tls.Client(conn, tlsCfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("tls handshake failed: %w", err)
	}
	return tlsConn, nil
}
