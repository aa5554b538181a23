package pandora

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Kind is the implementation behind a Pandora server.
type Kind string

const (
	KindAndroid Kind = "android"
	KindBumble  Kind = "bumble"
)

// DefaultResetTimeout bounds a factory reset including the server restart.
const DefaultResetTimeout = 30 * time.Second

// Device is one Pandora-controlled Bluetooth device of the testbed.
type Device struct {
	Services

	Name string
	Kind Kind

	// Serial is the adb serial of an Android device, empty otherwise.
	Serial string

	mu      sync.RWMutex
	address Address
	closer  io.Closer
	logger  *logrus.Logger
}

// NewDevice creates a device from its service clients. closer, if not nil, is
// closed by Close.
func NewDevice(name string, kind Kind, services Services, closer io.Closer, logger *logrus.Logger) *Device {
	if logger == nil {
		logger = logrus.New()
	}
	return &Device{
		Services: services,
		Name:     name,
		Kind:     kind,
		closer:   closer,
		logger:   logger,
	}
}

// Address returns the device's public address as last read from the device.
func (d *Device) Address() Address {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.address
}

// SetAddress overrides the cached device address.
func (d *Device) SetAddress(addr Address) {
	d.mu.Lock()
	d.address = addr
	d.mu.Unlock()
}

// IsBumble reports whether the device is a Bumble reference device.
func (d *Device) IsBumble() bool {
	return d.Kind == KindBumble
}

func (d *Device) String() string {
	return fmt.Sprintf("%s[%s]", d.Name, d.Kind)
}

// Log returns a logger entry tagged with the device name.
func (d *Device) Log() *logrus.Entry {
	return d.logger.WithField("device", d.Name)
}

// RefreshAddress re-reads the local address from the device.
func (d *Device) RefreshAddress(ctx context.Context) error {
	addr, err := d.Host.ReadLocalAddress(ctx)
	if err != nil {
		return fmt.Errorf("%s: read local address: %w", d.Name, err)
	}
	d.SetAddress(addr)
	return nil
}

// Reset factory-resets the device and waits until its server answers again.
// A server restarting in the middle of FactoryReset is not an error.
func (d *Device) Reset(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultResetTimeout)
		defer cancel()
	}

	d.Log().Debug("Factory reset")
	if err := d.Host.FactoryReset(ctx); err != nil && !errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%s: factory reset: %w", d.Name, err)
	}

	if err := d.RefreshAddress(ctx); err != nil {
		return err
	}
	d.Log().WithField("address", d.Address()).Debug("Device ready")
	return nil
}

// Close releases the device's channel.
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// Devices is the ordered device list of a testbed. The first device is the DUT.
type Devices struct {
	list []*Device
}

// NewDevices builds a device list; devs[0] is the DUT.
func NewDevices(devs ...*Device) *Devices {
	return &Devices{list: devs}
}

// Len returns the number of devices.
func (ds *Devices) Len() int {
	return len(ds.list)
}

// All returns every device, DUT first.
func (ds *Devices) All() []*Device {
	out := make([]*Device, len(ds.list))
	copy(out, ds.list)
	return out
}

// DUT returns the device under test.
func (ds *Devices) DUT() *Device {
	if len(ds.list) == 0 {
		return nil
	}
	return ds.list[0]
}

// Ref returns the i-th reference device (0-based).
func (ds *Devices) Ref(i int) (*Device, error) {
	if i < 0 || i+1 >= len(ds.list) {
		return nil, fmt.Errorf("testbed has %d reference device(s), need at least %d", max(len(ds.list)-1, 0), i+1)
	}
	return ds.list[i+1], nil
}

// ResetAll resets every device concurrently.
func (ds *Devices) ResetAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range ds.list {
		g.Go(func() error { return d.Reset(gctx) })
	}
	return g.Wait()
}

// StopAll closes every device channel.
func (ds *Devices) StopAll() error {
	var errs []error
	for _, d := range ds.list {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name, err))
		}
	}
	return errors.Join(errs...)
}
