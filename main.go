package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/sirupsen/logrus"

	"fcgi-serve/fastcgi"
	"fcgi-serve/service"
)

const defaultConfig = `{
	"fcgi": {
		"network": "tcp",
		"address": "127.0.0.1:9000",
		"maxConnections": 64,
		"maxRequests": 16,
		"workers": 8
	}
}`

func main() {
	configPath := flag.String("config", "", "path to a JSON configuration file")
	flag.Parse()

	log := logrus.New()

	data := []byte(defaultConfig)
	if *configPath != "" {
		var err error

		data, err = ioutil.ReadFile(*configPath)
		if err != nil {
			log.Fatal(err)
		}
	}

	cfg, err := service.NewJSONConfig(data)
	if err != nil {
		log.Fatal(err)
	}

	c := service.NewContainer(log)
	c.Register(service.FCGIServiceID, service.NewFCGIService(service.HandlerFunc(respond)))

	if err := c.Init(cfg); err != nil {
		log.Fatal(err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-stop
		c.Stop()
	}()

	if err := c.Serve(); err != nil {
		log.Fatal(err)
	}
}

//respond echoes the request's parameters and stdin back to the client.
func respond(req *fastcgi.Request) {
	req.Write([]byte("Content-Type: text/plain\r\n\r\n"))

	names := make([]string, 0, len(req.Params()))
	for name := range req.Params() {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		req.Write([]byte(fmt.Sprintf("%s=%s\n", name, req.Params()[name])))
	}

	if in := req.Stdin(); len(in) > 0 {
		req.Write(in)
	}

	req.Complete(0)
}
