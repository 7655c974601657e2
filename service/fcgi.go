package service

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"fcgi-serve/fastcgi"
)

//FCGIServiceID is the name the FastCGI service registers under.
const FCGIServiceID = "fcgi"

//Handler processes assigned FastCGI requests. The handler owns the
//request until it calls Complete, RejectRole or Close.
type Handler interface {
	ServeFCGI(req *fastcgi.Request)
}

//HandlerFunc adapts an ordinary function to a Handler.
type HandlerFunc func(req *fastcgi.Request)

func (f HandlerFunc) ServeFCGI(req *fastcgi.Request) { f(req) }

//FCGIConfig configures the FastCGI service.
type FCGIConfig struct {
	//Network and Address are passed to net.Listen; "tcp" and "unix"
	//listeners are supported by the protocol engine.
	Network string `json:"network"`
	Address string `json:"address"`

	MaxConnections           int   `json:"maxConnections"`
	MaxRequestsPerConnection int   `json:"maxRequests"`
	AppStatusOnAbort         int32 `json:"appStatusOnAbort"`

	//Workers bounds the number of handlers running concurrently.
	Workers int `json:"workers"`
}

func (c *FCGIConfig) defaults() {
	if c.Network == "" {
		c.Network = "tcp"
	}

	if c.MaxConnections == 0 {
		c.MaxConnections = 64
	}

	if c.MaxRequestsPerConnection == 0 {
		c.MaxRequestsPerConnection = 16
	}

	if c.Workers == 0 {
		c.Workers = 8
	}
}

//FCGIService hosts a protocol-engine interface: it owns the listener,
//drains AcceptRequests, and dispatches ready requests to the handler on a
//worker pool.
type FCGIService struct {
	handler Handler

	cfg *FCGIConfig
	log logrus.FieldLogger

	mu   sync.Mutex
	intf *fastcgi.Interface
}

//NewFCGIService creates the service around the given handler.
func NewFCGIService(handler Handler) *FCGIService {
	return &FCGIService{handler: handler}
}

//Init configures the service. The service stays disabled without a config
//section.
func (s *FCGIService) Init(cfg Config, log logrus.FieldLogger) (bool, error) {
	config := &FCGIConfig{}
	if err := cfg.Unmarshal(config); err != nil {
		return false, err
	}
	config.defaults()

	e, err := ParseEnvironment()
	if err != nil {
		return false, err
	}

	if e.MaxConnections > 0 {
		config.MaxConnections = e.MaxConnections
	}

	if e.MaxRequests > 0 {
		config.MaxRequestsPerConnection = e.MaxRequests
	}

	s.cfg = config
	s.log = log

	return true, nil
}

//Serve listens, builds the interface, and pumps ready requests to the
//workers until Stop is called or the interface fails.
func (s *FCGIService) Serve() error {
	ln, err := net.Listen(s.cfg.Network, s.cfg.Address)
	if err != nil {
		return errors.Wrap(err, "fcgi listen")
	}

	intf, err := fastcgi.New(ln, fastcgi.Config{
		MaxConnections:           s.cfg.MaxConnections,
		MaxRequestsPerConnection: s.cfg.MaxRequestsPerConnection,
		AppStatusOnAbort:         s.cfg.AppStatusOnAbort,
	})
	if err != nil {
		_ = ln.Close()

		return errors.Wrap(err, "fcgi interface")
	}

	s.mu.Lock()
	s.intf = intf
	s.mu.Unlock()

	s.log.Infof("listening on %s", ln.Addr())

	queue := make(chan *fastcgi.Request)

	var wg sync.WaitGroup
	wg.Add(s.cfg.Workers)

	for i := 0; i < s.cfg.Workers; i++ {
		go func() {
			defer wg.Done()

			for req := range queue {
				s.serveRequest(req)
			}
		}()
	}

	var serveErr error

	for {
		batch, err := intf.AcceptRequests()
		if err != nil {
			if !errors.Is(err, fastcgi.ErrInterfaceClosed) {
				serveErr = err
			}

			break
		}

		for _, req := range batch {
			queue <- req
		}
	}

	close(queue)
	wg.Wait()

	_ = intf.Close()

	return serveErr
}

func (s *FCGIService) serveRequest(req *fastcgi.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Errorf("handler panic: %v", rec)
			req.Close()
		}
	}()

	switch req.Role() {
	case fastcgi.RoleResponder, fastcgi.RoleAuthorizer, fastcgi.RoleFilter:
		s.handler.ServeFCGI(req)

	default:
		req.RejectRole(1)
	}
}

//Stop shuts the interface down; Serve returns once in-flight handlers
//finish.
func (s *FCGIService) Stop() {
	s.mu.Lock()
	intf := s.intf
	s.mu.Unlock()

	if intf != nil {
		_ = intf.Close()
	}
}
