package app

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"sync"

	"github.com/moontrade/squirrel/logger"
)

// listenInit opens the one socket that carries both raft and RESP traffic.
func listenInit(conf Config, tlscfg *tls.Config) (*mux, net.Addr) {
	ln, err := net.Listen("tcp4", conf.Addr)
	if err != nil {
		logger.Fatal(err)
	}
	if tlscfg != nil {
		ln = tls.NewListener(ln, tlscfg)
	}
	logger.Print("addr", ln.Addr().String(), "advertise", conf.Advertise,
		"tls", tlscfg != nil, "listening")
	return newMux(ln), ln.Addr()
}

func tlsInit(conf Config) *tls.Config {
	if conf.TLSCertPath == "" || conf.TLSKeyPath == "" {
		return nil
	}
	tlscfg, err := loadTLS(conf.TLSCertPath, conf.TLSKeyPath)
	if err != nil {
		logger.Fatal(err)
	}
	return tlscfg
}

// loadTLS loads a key pair. The first DNS name found in the chain is the
// server name that nodes expect from each other.
func loadTLS(certFile, keyFile string) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	tlscfg := &tls.Config{Certificates: []tls.Certificate{pair}}
	for _, der := range pair.Certificate {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, err
		}
		if len(cert.DNSNames) > 0 {
			tlscfg.ServerName = cert.DNSNames[0]
			break
		}
	}
	return tlscfg, nil
}

// claimFunc looks at the buffered start of a new connection. When it takes
// the connection it returns how many leading bytes to drop.
type claimFunc func(br *bufio.Reader) (skip int, ok bool)

// mux shares a listener between several servers. Each accepted connection
// is offered to the routes in the order they were added.
type mux struct {
	ln     net.Listener
	routes []*route
}

func newMux(ln net.Listener) *mux {
	return &mux{ln: ln}
}

// handle adds a route. All routes must be added before serve is called.
func (mx *mux) handle(claim claimFunc) net.Listener {
	r := &route{
		claim:  claim,
		addr:   mx.ln.Addr(),
		conns:  make(chan net.Conn),
		closed: make(chan struct{}),
	}
	mx.routes = append(mx.routes, r)
	return r
}

// serve accepts connections until the socket is closed.
func (mx *mux) serve() error {
	for {
		c, err := mx.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			logger.Error(err)
			continue
		}
		go mx.dispatch(c)
	}
}

func (mx *mux) dispatch(c net.Conn) {
	br := bufio.NewReader(c)
	for _, r := range mx.routes {
		skip, ok := r.claim(br)
		if !ok {
			continue
		}
		if _, err := br.Discard(skip); err == nil &&
			r.deliver(&bufferedConn{Conn: c, r: br}) {
			return
		}
		break
	}
	c.Close()
}

// route is the listener side of one mux route.
type route struct {
	claim  claimFunc
	addr   net.Addr
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func (r *route) deliver(c net.Conn) bool {
	select {
	case r.conns <- c:
		return true
	case <-r.closed:
		return false
	}
}

func (r *route) Accept() (net.Conn, error) {
	select {
	case c := <-r.conns:
		return c, nil
	case <-r.closed:
		return nil, net.ErrClosed
	}
}

// Close stops the route. The shared socket stays open.
func (r *route) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func (r *route) Addr() net.Addr { return r.addr }

// bufferedConn replays the bytes read while the connection was routed.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
