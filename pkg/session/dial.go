package session

import (
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/webosbrew/devman/pkg/devices"
	"github.com/webosbrew/devman/pkg/logger"
)

// ConnectTimeout bounds transport establishment. Authentication and channel
// operations are unbounded; callers impose their own timeouts when needed.
const ConnectTimeout = 3 * time.Second

// Legacy algorithm sets for outdated sshd builds on embedded targets. Tried
// once, only when the modern set fails algorithm negotiation.
var (
	legacyKeyExchanges = []string{
		"diffie-hellman-group14-sha1",
		"diffie-hellman-group1-sha1",
		"diffie-hellman-group14-sha256",
		"curve25519-sha256",
	}
	legacyHostKeyAlgorithms = []string{
		ssh.KeyAlgoRSA,
		ssh.KeyAlgoRSASHA512,
		ssh.KeyAlgoRSASHA256,
		ssh.KeyAlgoED25519,
	}
)

type sshDialer struct{}

func (sshDialer) Dial(network, addr string, config *ssh.ClientConfig) (Client, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &clientWrapper{Client: client}, nil
}

// NewDialer returns the production SSH dialer.
func NewDialer() Dialer {
	return sshDialer{}
}

// dialDevice negotiates and authenticates a transport to the device. An
// algorithm-negotiation mismatch on the first attempt is retried exactly once
// with the legacy algorithm set; every other failure is terminal.
func dialDevice(dialer Dialer, device devices.Device, timeout time.Duration, log *logger.Logger) (Client, error) {
	config, method, err := clientConfig(device, timeout, false, log)
	if err != nil {
		return nil, err
	}
	log.Debugf("Connecting to %s (%s, auth %s)", device.Name, device.Addr(), method)

	client, err := dialer.Dial("tcp", device.Addr(), config)
	if err != nil && isAlgoNegotiationError(err) {
		log.Debugf("Algorithm negotiation with %s failed, retrying with legacy algorithms: %v", device.Name, err)
		config, _, err = clientConfig(device, timeout, true, log)
		if err != nil {
			return nil, err
		}
		client, err = dialer.Dial("tcp", device.Addr(), config)
	}
	if err != nil {
		return nil, classifyDialError(device, err)
	}
	log.Debugf("Authenticated to %s", device.Name)
	return client, nil
}

// clientConfig builds the transport configuration for one connection attempt.
// Exactly one authentication method is offered, in private-key > password >
// none precedence; a refusal never falls back to the next method.
func clientConfig(device devices.Device, timeout time.Duration, legacy bool, log *logger.Logger) (*ssh.ClientConfig, string, error) {
	config := &ssh.ClientConfig{
		User:    device.Username,
		Timeout: timeout,
		// Embedded targets have no stable host identity; accept the key and
		// record the negotiated algorithm.
		//nolint:gosec
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			log.Debugf("Accepted %s host key from %s", key.Type(), hostname)
			return nil
		},
	}
	if legacy {
		config.KeyExchanges = legacyKeyExchanges
		config.HostKeyAlgorithms = legacyHostKeyAlgorithms
	}

	method, err := authMethod(device)
	if err != nil {
		return nil, "", err
	}
	switch method {
	case authPublicKey:
		signer, err := deviceSigner(device)
		if err != nil {
			return nil, "", err
		}
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	case authPassword:
		config.Auth = []ssh.AuthMethod{ssh.Password(device.Password)}
	case authNone:
		// Empty auth list attempts "none" login.
	}
	return config, method, nil
}

const (
	authPublicKey = "publickey"
	authPassword  = "password"
	authNone      = "none"
)

func authMethod(device devices.Device) (string, error) {
	if device.PrivateKey != "" {
		return authPublicKey, nil
	}
	if device.Password != "" {
		return authPassword, nil
	}
	return authNone, nil
}

func deviceSigner(device devices.Device) (ssh.Signer, error) {
	data, err := device.PrivateKeyData()
	if err != nil {
		return nil, NewError(ErrIO, "failed to load private key", err)
	}
	var signer ssh.Signer
	if device.Passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(device.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(data)
	}
	if err != nil {
		return nil, NewError(ErrIO, "failed to parse private key", err)
	}
	return signer, nil
}

// isAlgoNegotiationError matches the handshake failures recoverable with the
// legacy algorithm set: kex init failure and the no-common-{kex,key,cipher}
// family.
func isAlgoNegotiationError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"no common algorithm for key exchange",
		"no common algorithm for host key",
		"no common algorithm for client to server cipher",
		"no common algorithm for server to client cipher",
		"kex_init",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func classifyDialError(device devices.Device, err error) error {
	if strings.Contains(err.Error(), "unable to authenticate") {
		return NewError(ErrAuthorization, "device "+device.Name+" refused authorization", err)
	}
	return NewError(ErrIO, "failed to connect to "+device.Name, err)
}
