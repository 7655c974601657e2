package service

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var errNoConfig = fmt.Errorf("no config has been provided")
var errServeEnded = fmt.Errorf("serve ended without error")

const InitMethod = "Init"

//Service can serve. Services may provide an Init method which must return
//(bool, error) and may accept the container, a config section, a logger,
//or other registered services as arguments.
type Service interface {
	//Serve serves.
	Serve() error

	//Stop stops the service.
	Stop()
}

//Container controls the server's services and provides a plugin based
//system.
type Container interface {
	//Register adds a new service to the container under the given name.
	Register(name string, service interface{})

	//Init configures all underlying services with the given configuration.
	Init(cfg Config) error

	//Has checks if a service has been registered.
	Has(service string) bool

	//Get returns a service instance by name, or nil if the service is not
	//found. The second value is the current service status.
	Get(service string) (svc interface{}, status int)

	//Serve all configured services until one of them fails or all of them
	//stop.
	Serve() error

	//Stop all active services.
	Stop()

	//List service names.
	List() []string
}

//Config provides the ability to slice configuration sections and to
//unmarshal configuration data into a struct.
type Config interface {
	//Get a nested config section (sub-map), nil if the section is not
	//found.
	Get(service string) Config

	//Unmarshal config data into the given struct.
	Unmarshal(out interface{}) error
}

type container struct {
	mu       sync.Mutex
	log      logrus.FieldLogger
	services []*service

	errors chan struct {
		name string
		err  error
	}
}

//NewContainer creates a new service container with the given logger.
func NewContainer(log logrus.FieldLogger) Container {
	return &container{
		log:      log,
		services: make([]*service, 0),
		errors: make(chan struct {
			name string
			err  error
		}, 1),
	}
}

func (c *container) Register(name string, serviceItem interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.services = append(c.services, &service{
		name:   name,
		svc:    serviceItem,
		status: StatusInactive,
	})
}

func (c *container) Has(target string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.services {
		if e.name == target {
			return true
		}
	}

	return false
}

func (c *container) Get(target string) (svc interface{}, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.services {
		if e.name == target {
			return e.svc, e.getStatus()
		}
	}

	return nil, StatusUndefined
}

func (c *container) Init(cfg Config) error {
	for _, e := range c.services {
		if e.getStatus() >= StatusOK {
			return fmt.Errorf("service [%s] has already been configured", e.name)
		}

		//inject service dependencies
		if ok, err := c.initService(e.svc, cfg.Get(e.name)); err != nil {
			//soft error (skipping)
			if err == errNoConfig {
				c.log.Debugf("[%s]: disabled", e.name)
				continue
			}

			return errors.Wrap(err, fmt.Sprintf("[%s]", e.name))
		} else if ok {
			e.setStatus(StatusOK)
		} else {
			c.log.Debugf("[%s]: disabled", e.name)
		}
	}

	return nil
}

func (c *container) Serve() error {
	var running = 0

	for _, e := range c.services {
		if e.hasStatus(StatusOK) && e.canServe() {
			running++
			c.log.Debugf("[%s]: started", e.name)
			go func(e *service) {
				e.setStatus(StatusServing)
				defer e.setStatus(StatusStopped)

				if err := e.svc.(Service).Serve(); err != nil {
					c.errors <- struct {
						name string
						err  error
					}{name: e.name, err: errors.Wrap(err, fmt.Sprintf("[%s]", e.name))}
				} else {
					c.errors <- struct {
						name string
						err  error
					}{name: e.name, err: errServeEnded}
				}
			}(e)
		}
	}

	if running == 0 {
		return nil
	}

	for fail := range c.errors {
		if fail.err == errServeEnded {
			running--
			if running == 0 {
				break
			}

			continue
		}

		c.log.Errorf("[%s]: %s", fail.name, fail.err)
		c.Stop()

		return fail.err
	}

	return nil
}

func (c *container) Stop() {
	for _, e := range c.services {
		if e.hasStatus(StatusServing) {
			e.setStatus(StatusStopping)
			e.svc.(Service).Stop()
			e.setStatus(StatusStopped)

			c.log.Debugf("[%s]: stopped", e.name)
		}
	}
}

func (c *container) List() []string {
	names := make([]string, 0, len(c.services))
	for _, e := range c.services {
		names = append(names, e.name)
	}

	return names
}

var configType = reflect.TypeOf((*Config)(nil)).Elem()

func (c *container) initService(s interface{}, segment Config) (bool, error) {
	r := reflect.TypeOf(s)

	m, ok := r.MethodByName(InitMethod)
	if !ok {
		return true, nil
	}

	if err := c.verifySignature(m); err != nil {
		return false, err
	}

	values, err := c.resolveValues(s, m, segment)
	if err != nil {
		return false, err
	}

	out := m.Func.Call(values)

	if out[1].IsNil() {
		return out[0].Bool(), nil
	}

	return out[0].Bool(), out[1].Interface().(error)
}

func (c *container) resolveValues(s interface{}, m reflect.Method, cfg Config) (values []reflect.Value, err error) {
	for i := 0; i < m.Type.NumIn(); i++ {
		v := m.Type.In(i)

		switch {
		case v.ConvertibleTo(reflect.ValueOf(s).Type()): //service itself
			values = append(values, reflect.ValueOf(s))

		case v == configType: //config section
			if cfg == nil {
				return nil, errNoConfig
			}

			values = append(values, reflect.ValueOf(cfg))

		case v.Implements(reflect.TypeOf((*Container)(nil)).Elem()): //container
			values = append(values, reflect.ValueOf(c))

		case v.Implements(reflect.TypeOf((*logrus.StdLogger)(nil)).Elem()),
			v.Implements(reflect.TypeOf((*logrus.FieldLogger)(nil)).Elem()),
			v.ConvertibleTo(reflect.ValueOf(c.log).Type()): //logger
			values = append(values, reflect.ValueOf(c.log))

		default: //dependency on other service (resolution to nil if service can't be found)
			value, err := c.resolveValue(v)
			if err != nil {
				return nil, err
			}

			values = append(values, value)
		}
	}

	return
}

func (c *container) verifySignature(m reflect.Method) error {
	if m.Type.NumOut() != 2 {
		return fmt.Errorf("method Init must have exact 2 return values")
	}

	if m.Type.Out(0).Kind() != reflect.Bool {
		return fmt.Errorf("first return value of Init method must be bool type")
	}

	if !m.Type.Out(1).Implements(reflect.TypeOf((*error)(nil)).Elem()) {
		return fmt.Errorf("second return value of Init method value must be error type")
	}

	return nil
}

func (c *container) resolveValue(v reflect.Type) (reflect.Value, error) {
	value := reflect.Value{}
	for _, e := range c.services {
		if !e.hasStatus(StatusOK) {
			continue
		}

		if v.Kind() == reflect.Interface && reflect.TypeOf(e.svc).Implements(v) {
			if value.IsValid() {
				return value, fmt.Errorf("disambiguous dependency `%s`", v)
			}

			value = reflect.ValueOf(e.svc)
		}

		if v.ConvertibleTo(reflect.ValueOf(e.svc).Type()) {
			if value.IsValid() {
				return value, fmt.Errorf("disambiguous dependency `%s`", v)
			}

			value = reflect.ValueOf(e.svc)
		}
	}

	if !value.IsValid() {
		//placeholder (make sure to check inside the method)
		value = reflect.New(v).Elem()
	}

	return value, nil
}
