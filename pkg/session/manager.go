package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/webosbrew/devman/pkg/devices"
	"github.com/webosbrew/devman/pkg/logger"
)

// SessionManager owns the connection pool and the shell registry. It is
// constructed once at startup and handed to every call site.
type SessionManager struct {
	log            *logger.Logger
	dialer         Dialer
	connectTimeout time.Duration

	connsMu sync.Mutex
	conns   map[string]*Connection

	shellsMu sync.Mutex
	shells   map[ShellToken]*Shell

	// createMu serializes connection creation across the whole manager so a
	// burst of pool misses cannot open duplicate connections to one device.
	createMu sync.Mutex
}

type Option func(*SessionManager)

func WithDialer(d Dialer) Option {
	return func(m *SessionManager) { m.dialer = d }
}

func WithLogger(l *logger.Logger) Option {
	return func(m *SessionManager) { m.log = l }
}

func WithConnectTimeout(d time.Duration) Option {
	return func(m *SessionManager) { m.connectTimeout = d }
}

func NewSessionManager(opts ...Option) *SessionManager {
	m := &SessionManager{
		log:            logger.Get(),
		dialer:         NewDialer(),
		connectTimeout: ConnectTimeout,
		conns:          make(map[string]*Connection),
		shells:         make(map[ShellToken]*Shell),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Exec runs a command on the device and returns its stdout. A dead pooled
// connection is discarded and the command retried on a fresh one; callers
// never observe the intermediate reconnect.
func (m *SessionManager) Exec(device devices.Device, command string, stdin []byte) ([]byte, error) {
	for {
		conn, err := m.connObtain(device)
		if err != nil {
			return nil, err
		}
		data, err := conn.Exec(command, stdin)
		if device.New {
			_ = conn.Close()
		}
		if err != nil {
			if IsKind(err, ErrNeedsReconnect) {
				m.log.Infof("Connection to %s needs reconnect, retrying", device.Name)
				continue
			}
			return nil, err
		}
		return data, nil
	}
}

// Spawn starts a background process on the device.
func (m *SessionManager) Spawn(device devices.Device, command string) (*Proc, error) {
	for {
		conn, err := m.connObtain(device)
		if err != nil {
			return nil, err
		}
		proc, err := conn.Spawn(command)
		if err != nil {
			if device.New {
				_ = conn.Close()
			}
			if IsKind(err, ErrNeedsReconnect) {
				m.log.Infof("Connection to %s needs reconnect, retrying", device.Name)
				continue
			}
			return nil, err
		}
		if device.New {
			m.closeWhenDone(proc.Done(), conn)
		}
		return proc, nil
	}
}

// ReadFile fetches a remote file over SFTP with the same reconnect policy as
// Exec.
func (m *SessionManager) ReadFile(device devices.Device, path string) ([]byte, error) {
	for {
		conn, err := m.connObtain(device)
		if err != nil {
			return nil, err
		}
		data, err := conn.ReadFile(path)
		if device.New {
			_ = conn.Close()
		}
		if err != nil {
			if IsKind(err, ErrNeedsReconnect) {
				m.log.Infof("Connection to %s needs reconnect, retrying", device.Name)
				continue
			}
			return nil, err
		}
		return data, nil
	}
}

// ShellOpen opens an interactive shell sized cols x rows and registers it.
func (m *SessionManager) ShellOpen(device devices.Device, cols, rows int) (*Shell, error) {
	for {
		conn, err := m.connObtain(device)
		if err != nil {
			return nil, err
		}
		shell, err := conn.Shell(cols, rows)
		if err != nil {
			if device.New {
				_ = conn.Close()
			}
			if IsKind(err, ErrNeedsReconnect) {
				m.log.Infof("Connection to %s needs reconnect, retrying", device.Name)
				continue
			}
			return nil, err
		}
		if device.New {
			m.closeWhenDone(shell.Done(), conn)
		}
		m.shellsMu.Lock()
		m.shells[shell.token] = shell
		m.shellsMu.Unlock()
		return shell, nil
	}
}

// closeWhenDone releases a disposable connection once its spawned channel has
// torn down. Pooled connections are never passed here; their lifecycle is
// owned by the pool.
func (m *SessionManager) closeWhenDone(done <-chan struct{}, conn *Connection) {
	go func() {
		<-done
		if err := conn.Close(); err != nil {
			m.log.Debugf("Disposable connection to %s close: %v", conn.device.Name, err)
		}
	}()
}

// ShellClose removes the shell from the registry and closes it detached.
// Closing never blocks the caller and close errors are discarded.
func (m *SessionManager) ShellClose(token ShellToken) error {
	m.shellsMu.Lock()
	shell := m.shells[token]
	delete(m.shells, token)
	m.shellsMu.Unlock()
	if shell != nil {
		go func() {
			if err := shell.Close(); err != nil {
				m.log.Debugf("Shell %s close: %v", token, err)
			}
		}()
	}
	return nil
}

// ShellFind looks up a registered shell by token.
func (m *SessionManager) ShellFind(token ShellToken) (*Shell, error) {
	m.shellsMu.Lock()
	defer m.shellsMu.Unlock()
	shell, ok := m.shells[token]
	if !ok {
		return nil, NewError(ErrNotFound, "no shell "+string(token), nil)
	}
	return shell, nil
}

// ShellList returns all registered shells ordered by ascending creation time.
func (m *SessionManager) ShellList() []ShellInfo {
	m.shellsMu.Lock()
	list := make([]ShellInfo, 0, len(m.shells))
	for _, shell := range m.shells {
		list = append(list, shell.Info())
	}
	m.shellsMu.Unlock()
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// Close drains the registry and pool: every shell and connection is closed
// concurrently and the first error is reported.
func (m *SessionManager) Close() error {
	m.shellsMu.Lock()
	shells := make([]*Shell, 0, len(m.shells))
	for _, shell := range m.shells {
		shells = append(shells, shell)
	}
	m.shells = make(map[ShellToken]*Shell)
	m.shellsMu.Unlock()

	m.connsMu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.conns = make(map[string]*Connection)
	m.connsMu.Unlock()

	var g errgroup.Group
	for _, shell := range shells {
		shell := shell
		g.Go(shell.Close)
	}
	for _, conn := range conns {
		conn := conn
		g.Go(conn.Close)
	}
	return g.Wait()
}

// connObtain returns a pooled connection for the device, creating one when
// needed. Devices marked New always get a disposable connection that never
// touches the pool.
func (m *SessionManager) connObtain(device devices.Device) (*Connection, error) {
	if device.New {
		return m.connNew(device)
	}
	if conn := m.lookupConn(device.Name); conn != nil {
		return conn, nil
	}
	m.createMu.Lock()
	defer m.createMu.Unlock()
	if conn := m.lookupConn(device.Name); conn != nil {
		return conn, nil
	}
	conn, err := m.connNew(device)
	if err != nil {
		return nil, err
	}
	m.log.Infof("Connection to %s has been created", device.Name)
	m.connsMu.Lock()
	m.conns[device.Name] = conn
	m.connsMu.Unlock()
	return conn, nil
}

func (m *SessionManager) lookupConn(name string) *Connection {
	m.connsMu.Lock()
	defer m.connsMu.Unlock()
	return m.conns[name]
}

func (m *SessionManager) connNew(device devices.Device) (*Connection, error) {
	client, err := dialDevice(m.dialer, device, m.connectTimeout, m.log)
	if err != nil {
		return nil, err
	}
	conn := &Connection{
		id:     uuid.New(),
		device: device,
		client: client,
		log:    m.log,
	}
	name := device.Name
	conn.evict = func(id uuid.UUID) {
		m.dropConn(name, id)
	}
	go conn.monitor()
	return conn, nil
}

// dropConn removes a dead connection from the pool and drops its shells from
// the registry. Both removals tolerate the entry being gone already.
func (m *SessionManager) dropConn(name string, id uuid.UUID) {
	m.connsMu.Lock()
	if cur, ok := m.conns[name]; ok && cur.id == id {
		delete(m.conns, name)
		m.log.Debugf("Connection to %s removed from pool", name)
	}
	m.connsMu.Unlock()

	m.shellsMu.Lock()
	var orphaned []*Shell
	for token, shell := range m.shells {
		if shell.connID == id {
			orphaned = append(orphaned, shell)
			delete(m.shells, token)
		}
	}
	m.shellsMu.Unlock()
	for _, shell := range orphaned {
		shell := shell
		go func() { _ = shell.Close() }()
	}
}
