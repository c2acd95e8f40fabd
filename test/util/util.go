// Package util holds the fixtures of the end-to-end tests: a throwaway
// Mosquitto broker and a generator for dispatch input directories.
package util

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/bhkw/infra/loader"
)

// BrokerReadyTimeout bounds how long StartMosquitto probes the new broker.
const BrokerReadyTimeout = 5 * time.Second

const mosquittoConf = `listener 1883
allow_anonymous true
persistence false
log_dest stdout
log_type error
log_type warning
`

// StartMosquitto runs eclipse-mosquitto in a container and returns its
// tcp:// URL once a client can connect. stop terminates the container.
func StartMosquitto(ctx context.Context) (url string, stop func(), err error) {
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "eclipse-mosquitto:2.0",
			ExposedPorts: []string{"1883/tcp"},
			WaitingFor:   wait.ForListeningPort("1883/tcp"),
			Files: []tc.ContainerFile{{
				Reader:            strings.NewReader(mosquittoConf),
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0o644,
			}},
		},
		Started: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("start mosquitto: %w", err)
	}
	stop = func() { _ = c.Terminate(context.Background()) }

	url, err = c.PortEndpoint(ctx, "1883/tcp", "tcp")
	if err == nil {
		probeCtx, cancel := context.WithTimeout(ctx, BrokerReadyTimeout)
		err = probe(probeCtx, url)
		cancel()
	}
	if err != nil {
		stop()
		return "", nil, err
	}
	return url, stop, nil
}

// probe connects until the broker accepts a session.
func probe(ctx context.Context, url string) error {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		cli := paho.NewClient(paho.NewClientOptions().AddBroker(url).SetClientID("bhkw-probe"))
		tok := cli.Connect()
		if tok.WaitTimeout(time.Second) && tok.Error() == nil {
			cli.Disconnect(50)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("broker %s not ready: %w", url, ctx.Err())
		case <-tick.C:
		}
	}
}

// WriteInputs lays out an input directory with one step per power price.
// Gas costs 10 and capacity 1 per unit; the envelope is 50..100 kW power,
// 120..220 gas and 60..110 heat.
func WriteInputs(dir string, power, allowance []float64) error {
	cols := []struct {
		file, column string
		value        func(i int) float64
	}{
		{loader.GasPriceFile, "Gas_Price", func(int) float64 { return 10 }},
		{loader.PowerPriceFile, "Power_Price", func(i int) float64 { return power[i] }},
		{loader.CapacityPriceFile, "Capacity_Price", func(int) float64 { return 1 }},
		{loader.CapacityAllowanceFile, "BHKWCapacityAllowance", func(i int) float64 { return allowance[i] }},
	}
	for _, c := range cols {
		var b strings.Builder
		fmt.Fprintf(&b, "t,%s\n", c.column)
		for i := range power {
			fmt.Fprintf(&b, "%d,%g\n", i+1, c.value(i))
		}
		if err := os.WriteFile(filepath.Join(dir, c.file), []byte(b.String()), 0o644); err != nil {
			return err
		}
	}
	envelope := ",Power,Gas,Heat\nMin,50,120,60\nMax,100,220,110\n"
	return os.WriteFile(filepath.Join(dir, loader.EnvelopeFile), []byte(envelope), 0o644)
}
