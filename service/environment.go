package service

import (
	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

//Environment carries the process-environment overrides honored by the
//FastCGI service. WebServerAddrs is consumed by the protocol engine at
//interface construction; the limits override the configuration file when
//set.
type Environment struct {
	WebServerAddrs string `env:"FCGI_WEB_SERVER_ADDRS"`
	MaxConnections int    `env:"FCGI_SERVE_MAX_CONNECTIONS"`
	MaxRequests    int    `env:"FCGI_SERVE_MAX_REQUESTS"`
}

//ParseEnvironment decodes the overrides from the process environment.
func ParseEnvironment() (Environment, error) {
	var e Environment

	if err := env.Parse(&e); err != nil {
		return Environment{}, errors.Wrap(err, "parse environment")
	}

	return e, nil
}
