package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli"

	"github.com/user/gattlink/advertising"
	"github.com/user/gattlink/radio"
	"github.com/user/gattlink/reconnect"
	"github.com/user/gattlink/scan"
	"github.com/user/gattlink/session"
	"github.com/user/gattlink/simradio"
)

// Demo peripherals on the simulated radio
const (
	echoAddress   = "C0:FF:EE:00:00:01"
	sensorAddress = "C0:FF:EE:00:00:02"
)

var (
	echoService = radio.UUID16(0xFFF0)
	echoRx      = radio.UUID16(0xFFF1)
	echoTx      = radio.UUID16(0xFFF2)

	batteryService = radio.UUID16(0x180F)
	batteryLevel   = radio.UUID16(0x2A19)
)

func populate(a *simradio.Adapter) error {
	peripherals := []simradio.Peripheral{
		{
			Address: echoAddress,
			RSSI:    -52,
			Records: []advertising.Record{
				advertising.Flags(advertising.FlagLEGeneralDiscoverableMode | advertising.FlagBREDRNotSupported),
				advertising.CompleteLocalName("Echo"),
				advertising.Complete16BitServiceUUIDs(0xFFF0),
			},
			Services: []radio.ServiceInfo{{
				UUID: echoService,
				Characteristics: []radio.CharacteristicInfo{
					{UUID: echoRx, Properties: radio.PropWriteWithoutResponse | radio.PropWrite},
					{UUID: echoTx, Properties: radio.PropNotify, Descriptors: []radio.DescriptorInfo{{UUID: radio.CCCD}}},
				},
			}},
			EchoTo: echoTx,
		},
		{
			Address: sensorAddress,
			RSSI:    -71,
			Records: []advertising.Record{
				advertising.Flags(advertising.FlagLEGeneralDiscoverableMode),
				advertising.CompleteLocalName("Thermo"),
				advertising.Complete16BitServiceUUIDs(0x180F),
				advertising.TxPowerLevel(-4),
				advertising.ManufacturerSpecific(0x0059, []byte{0x01, 0x02}),
			},
			Services: []radio.ServiceInfo{{
				UUID: batteryService,
				Characteristics: []radio.CharacteristicInfo{
					{UUID: batteryLevel, Properties: radio.PropRead | radio.PropNotify, Descriptors: []radio.DescriptorInfo{{UUID: radio.CCCD}}},
				},
			}},
			Values: map[uuid.UUID][]byte{batteryLevel: {87}},
		},
	}
	for _, p := range peripherals {
		if err := a.AddPeripheral(p); err != nil {
			return err
		}
	}
	return nil
}

func scanCommand(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	crit := e.central.Criteria()
	if d := c.Duration("duration"); d > 0 {
		crit.WithDuration(d)
	}
	if n := c.Int("limit"); n > 0 {
		crit.WithLimit(n)
	}
	if name := c.String("name"); name != "" {
		crit.MatchLocalName(name)
	}
	if c.Bool("high-power") {
		crit.WithHighPowerPreScan(true)
	}

	ctx, cancel := signalContext()
	defer cancel()
	results, err := e.central.Scan(ctx, crit)
	if err != nil && ctx.Err() == nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%s  %4d dBm  %-12q  %s\n", r.Address, r.RSSI, r.Name, describe(r))
	}
	fmt.Printf("%d peripheral(s)\n", len(results))
	return nil
}

func describe(r scan.Result) string {
	var parts []string
	for _, rec := range r.Data.Records() {
		parts = append(parts, advertising.TypeName(rec.Type))
	}
	return strings.Join(parts, ",")
}

type printer struct {
	got chan []byte
}

func (p printer) OnPacket(service, characteristic uuid.UUID, payload []byte) {
	select {
	case p.got <- payload:
	default:
	}
}

func (p printer) OnDisconnected() {
	fmt.Println("link down")
}

func exchangeCommand(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	message := "hello"
	if c.NArg() > 0 {
		message = strings.Join(c.Args(), " ")
	}
	address := strings.ToUpper(c.String("address"))

	ctx, cancel := signalContext()
	defer cancel()

	results, err := e.central.Scan(ctx, e.central.Criteria().AllowAddresses(address).WithLimit(1))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("%s not found", address)
	}

	h := printer{got: make(chan []byte, 1)}
	p := e.central.Peripheral(results[0], session.WithPacketHandler(h))
	defer p.Release()

	policy := reconnect.New(e.cfg.Reconnect)
	if err := policy.Connect(ctx, p, 0); err != nil {
		return err
	}
	fmt.Printf("connected to %s (%s)\n", p.Address(), p.Name())

	if err := p.DiscoverServices(ctx, 0); err != nil {
		return err
	}
	if mtu := c.Int("mtu"); mtu > 0 {
		got, err := p.RequestMTU(ctx, mtu, 0)
		if err != nil {
			return err
		}
		fmt.Printf("mtu %d, max payload %d\n", got, p.MaxPayload())
	}
	if _, err := p.DiscoverService(ctx, echoService, 0); err != nil {
		return err
	}
	if err := p.EnableNotification(ctx, echoService, echoTx, 0); err != nil {
		return err
	}
	if err := p.WriteCommand(ctx, echoService, echoRx, []byte(message), 0); err != nil {
		return err
	}

	select {
	case payload := <-h.got:
		fmt.Printf("received %q\n", payload)
	case <-time.After(e.cfg.Timeouts.Notification):
		return fmt.Errorf("no notification within %v", e.cfg.Timeouts.Notification)
	case <-ctx.Done():
		return ctx.Err()
	}

	return p.Disconnect(context.Background(), 0)
}
