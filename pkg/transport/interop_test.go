package transport

import (
	"crypto/elliptic"
	"net"
	"testing"

	"github.com/praetorian-inc/sshpubkey/pkg/algorithms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// startGoServer runs a golang.org/x/crypto/ssh server for a single
// connection. It only supports the CBC ciphers and MACs it implements:
// aes128-cbc and hmac-sha1.
func startGoServer(t *testing.T, signer ssh.Signer) (string, <-chan error) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	config := &ssh.ServerConfig{NoClientAuth: true}
	config.KeyExchanges = []string{algorithms.KexDH14SHA256, algorithms.KexDH16SHA512, algorithms.KexDH14SHA1}
	config.Ciphers = []string{algorithms.CipherAES128CBC}
	config.MACs = []string{algorithms.MACHMACSHA1}
	config.AddHostKey(signer)

	done := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		_, _, _, err = ssh.NewServerConn(conn, config)
		done <- err
	}()
	return listener.Addr().String(), done
}

func interopConfig(family string) *Config {
	config := quietConfig(family)
	config.Ciphers = []string{algorithms.CipherAES128CBC}
	config.MACs = []string{algorithms.MACHMACSHA1}
	return config
}

func TestInteropGoServer(t *testing.T) {
	tests := []struct {
		name   string
		family string
		signer ssh.Signer
		want   string
	}{
		{"ed25519", "ed25519", ed25519Signer(t), algorithms.HostKeyED25519},
		{"rsa_sha2", "rsa_sha2", rsaSigner(t), algorithms.HostKeyRSASHA256},
		{"ecdsa nistp384", "ecdsa", ecdsaSigner(t, elliptic.P384()), algorithms.HostKeyECDSA384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, done := startGoServer(t, tt.signer)

			result, err := handshake(t, addr, interopConfig(tt.family))
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.HostKey.Algorithm)
			assert.Equal(t, tt.signer.PublicKey().Marshal(), result.HostKey.Blob)
			assert.Equal(t, algorithms.KexDH14SHA256, result.Algorithms.Kex)

			// the server decrypts our disconnect instead of a service request
			serverErr := <-done
			require.Error(t, serverErr)
			assert.Contains(t, serverErr.Error(), "reason 11")
		})
	}
}

func TestInteropGoServerKexOrder(t *testing.T) {
	addr, done := startGoServer(t, ed25519Signer(t))

	config := interopConfig("ed25519")
	config.KeyExchanges = []string{algorithms.KexDH16SHA512, algorithms.KexDH14SHA256}
	result, err := handshake(t, addr, config)
	require.NoError(t, err)
	assert.Equal(t, algorithms.KexDH16SHA512, result.Algorithms.Kex)
	<-done
}

func TestInteropGoServerNoCommonHostKey(t *testing.T) {
	addr, done := startGoServer(t, ed25519Signer(t))

	_, err := handshake(t, addr, interopConfig("ecdsa"))
	require.Error(t, err)
	<-done
}
