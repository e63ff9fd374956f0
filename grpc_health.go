package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	configpkg "egodrive/cruise/internal/config"
	"egodrive/cruise/internal/logging"
)

// healthServiceName is the service identifier fleet probes ask about.
const healthServiceName = "cruise.controller"

// configureGRPCSecurity builds the server options for the health endpoint.
// Without certificate paths the endpoint serves plaintext for local probes;
// with a certificate and key it serves TLS, and it requires verified client
// certificates only when a client CA bundle is also configured.
func configureGRPCSecurity(cfg *configpkg.Config, logger *logging.Logger) ([]grpc.ServerOption, error) {
	if cfg == nil {
		return nil, fmt.Errorf("grpc config required")
	}
	if logger == nil {
		logger = logging.L()
	}
	if cfg.GRPCCertPath == "" {
		return nil, nil
	}
	creds, err := loadMTLSCredentials(cfg.GRPCCertPath, cfg.GRPCKeyPath, cfg.GRPCClientCAPath)
	if err != nil {
		return nil, err
	}
	logger.Info("gRPC mTLS enabled")
	return []grpc.ServerOption{grpc.Creds(creds)}, nil
}

// startHealthServer serves the stock gRPC health service on its own listener
// and returns a stop function that marks the service unhealthy first.
func startHealthServer(cfg *configpkg.Config, logger *logging.Logger) (func(), error) {
	opts, err := configureGRPCSecurity(cfg, logger)
	if err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen: %w", err)
	}

	server := grpc.NewServer(opts...)
	healthServer := health.NewServer()
	healthServer.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	go func() {
		if err := server.Serve(listener); err != nil {
			logger.Error("grpc health server stopped", logging.Error(err))
		}
	}()
	logger.Info("gRPC health endpoint listening", logging.String("addr", cfg.GRPCAddr))

	return func() {
		healthServer.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		server.GracefulStop()
	}, nil
}

func loadMTLSCredentials(certPath, keyPath, caPath string) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load server keypair: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if caPath != "" {
		caBytes, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read client ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("failed to parse client ca bundle")
		}
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		tlsConfig.ClientCAs = pool
	}
	return credentials.NewTLS(tlsConfig), nil
}
