package infra

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	MAX_TRY = 3

	maxRecvMsgSize = 100 * 1024 * 1024
	maxSendMsgSize = 100 * 1024 * 1024
)

// Dialer opens a client connection to a node.
type Dialer func(ctx context.Context, node Node) (*grpc.ClientConn, error)

// NewDialer returns a Dialer that blocks until the connection is up or
// timeout expired, and logs every call at debug level.
func NewDialer(timeout time.Duration, logger *log.Logger, extra ...grpc.DialOption) Dialer {
	return func(ctx context.Context, node Node) (*grpc.ClientConn, error) {
		return DialConnection(ctx, node, timeout, logger, extra...)
	}
}

// debugLevels keeps successful calls out of the info log.
func debugLevels(code codes.Code) log.Level {
	if code == codes.OK {
		return log.DebugLevel
	}
	return log.WarnLevel
}

func generateTransportCredentials(node Node) (credentials.TransportCredentials, error) {
	if len(node.TLSCACertByte) == 0 {
		return insecure.NewCredentials(), nil
	}

	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(node.TLSCACertByte) {
		return nil, errors.Errorf("fail to append TLS CA cert of %s", node.Address)
	}
	if len(node.TLSCARootByte) > 0 && !certPool.AppendCertsFromPEM(node.TLSCARootByte) {
		return nil, errors.Errorf("fail to append TLS root cert of %s", node.Address)
	}

	tlsConfig := &tls.Config{
		RootCAs:    certPool,
		ServerName: node.ServerNameOverride,
		MinVersion: tls.VersionTLS12,
	}

	// mutual TLS when the client key pair is given
	if len(node.TLSCAKeyByte) > 0 && len(node.TLSCARootByte) > 0 {
		cert, err := tls.X509KeyPair(node.TLSCACertByte, node.TLSCAKeyByte)
		if err != nil {
			return nil, errors.Wrapf(err, "fail to load client key pair for %s", node.Address)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return credentials.NewTLS(tlsConfig), nil
}

func DialConnection(ctx context.Context, node Node, timeout time.Duration, logger *log.Logger, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	creds, err := generateTransportCredentials(node)
	if err != nil {
		return nil, err
	}

	entry := log.NewEntry(logger).WithField("address", node.Address)
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxRecvMsgSize),
			grpc.MaxCallSendMsgSize(maxSendMsgSize),
		),
		grpc.WithUnaryInterceptor(grpc_middleware.ChainUnaryClient(
			grpc_logrus.UnaryClientInterceptor(entry, grpc_logrus.WithLevels(debugLevels)),
		)),
		grpc.WithStreamInterceptor(grpc_middleware.ChainStreamClient(
			grpc_logrus.StreamClientInterceptor(entry, grpc_logrus.WithLevels(debugLevels)),
		)),
	}
	opts = append(opts, extra...)

	for i := 1; i <= MAX_TRY; i++ {
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		var conn *grpc.ClientConn
		conn, err = grpc.DialContext(dialCtx, node.Address, opts...)
		cancel()
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			break
		}
		logger.Debugf("Fail to dial %s (attempt %d/%d): %v", node.Address, i, MAX_TRY, err)
	}
	return nil, errors.Wrapf(err, "failed to dial %s", node.Address)
}
