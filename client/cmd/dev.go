package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/peerctl/shared/management/client"
	"github.com/netbirdio/peerctl/shared/management/client/config"
	"github.com/netbirdio/peerctl/shared/management/http/testing/mockserver"
)

const devPassword = "peerctl-dev"

var devPeers = []string{"laptop", "phone", "tablet"}

// devService is an in-memory service listening on a random loopback port
type devService struct {
	URL      string
	Password string
	server   *http.Server
	done     chan struct{}
}

func startDevService(password string) (*devService, error) {
	if password == "" {
		password = devPassword
	}

	fake, err := mockserver.New(mockserver.Options{Password: password})
	if err != nil {
		return nil, err
	}
	for _, name := range devPeers {
		if _, err := fake.AddPeer(name); err != nil {
			return nil, err
		}
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	d := &devService{
		URL:      "http://" + lis.Addr().String(),
		Password: password,
		server:   &http.Server{Handler: fake, ReadHeaderTimeout: 5 * time.Second},
		done:     make(chan struct{}),
	}
	go func() {
		defer close(d.done)
		if err := d.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("dev service stopped: %v", err)
		}
	}()

	log.Infof("dev service listening on %s", d.URL)
	return d, nil
}

func (d *devService) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := d.server.Shutdown(ctx)
	<-d.done
	return err
}

// devClient stops the dev service together with the client
type devClient struct {
	client.Client
	dev *devService
}

func (c *devClient) Close() error {
	return multierror.Append(nil, c.Client.Close(), c.dev.Close()).ErrorOrNil()
}

func connectDev(cfg *config.Config, opts ...client.Option) (client.Client, error) {
	dev, err := startDevService(cfg.Password)
	if err != nil {
		return nil, err
	}
	cfg.URL = dev.URL
	cfg.Password = dev.Password

	c, err := client.New(cfg, opts...)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	return &devClient{Client: c, dev: dev}, nil
}
