package mmi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/btharness/internal/pandora"
)

// ErrUnknownProfile is returned for prompts of a profile without a proxy.
var ErrUnknownProfile = errors.New("mmi: unknown profile")

// Env is what a profile proxy is built from.
type Env struct {
	DUT       *pandora.Device
	Rootcanal Rootcanal
	Logger    *logrus.Logger
}

// Factory builds the proxy of one profile.
type Factory func(env Env) *Proxy

// Dispatcher owns one proxy per profile and routes prompts to it.
type Dispatcher struct {
	env       Env
	factories map[string]Factory
	aliases   map[string]string
	proxies   *hashmap.Map[string, *Proxy]
	mu        sync.Mutex // serializes proxy creation
}

// NewDispatcher creates a dispatcher with the HAP and VCP proxies registered.
// AICS prompts are handled by the VCP proxy.
func NewDispatcher(dut *pandora.Device, rootcanal Rootcanal, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	if rootcanal == nil {
		rootcanal = NopRootcanal{}
	}
	d := &Dispatcher{
		env:       Env{DUT: dut, Rootcanal: rootcanal, Logger: logger},
		factories: map[string]Factory{},
		aliases:   map[string]string{},
		proxies:   hashmap.New[string, *Proxy](),
	}
	d.Register("HAP", func(env Env) *Proxy { return NewHAPProxy(env).Proxy })
	d.Register("VCP", func(env Env) *Proxy { return NewVCPProxy(env).Proxy })
	d.Alias("AICS", "VCP")
	return d
}

// Register installs the proxy factory of profile.
func (d *Dispatcher) Register(profile string, f Factory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.factories[strings.ToUpper(profile)] = f
}

// Alias routes prompts of profile to the proxy of target.
func (d *Dispatcher) Alias(profile, target string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.aliases[strings.ToUpper(profile)] = strings.ToUpper(target)
}

// Profiles lists the profiles that have a proxy.
func (d *Dispatcher) Profiles() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.factories)+len(d.aliases))
	for p := range d.factories {
		out = append(out, p)
	}
	for p := range d.aliases {
		out = append(out, p)
	}
	return out
}

func (d *Dispatcher) resolve(profile string) string {
	p := strings.ToUpper(profile)
	if target, ok := d.aliases[p]; ok {
		return target
	}
	return p
}

// proxy returns the live proxy of profile, creating it when fresh is set or none exists.
func (d *Dispatcher) proxy(profile string, fresh bool) (*Proxy, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := d.resolve(profile)
	if p, ok := d.proxies.Get(key); ok && !fresh {
		return p, nil
	}
	factory, ok := d.factories[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, profile)
	}
	if old, ok := d.proxies.Get(key); ok {
		if err := old.Close(); err != nil {
			d.env.Logger.WithError(err).WithField("profile", key).Warn("Failed to close previous proxy")
		}
	}
	p := factory(d.env)
	d.proxies.Set(key, p)
	return p, nil
}

// TestStarted starts a fresh proxy for the test's profile and runs its hook.
func (d *Dispatcher) TestStarted(ctx context.Context, in Interaction) (string, error) {
	p, err := d.proxy(in.Profile, true)
	if err != nil {
		return "", err
	}
	d.env.Logger.WithFields(logrus.Fields{"profile": in.Profile, "test": in.Test}).Info("PTS test started")
	return p.TestStarted(ctx, in)
}

// Interact answers a prompt with the proxy of its profile.
func (d *Dispatcher) Interact(ctx context.Context, in Interaction) (string, error) {
	p, err := d.proxy(in.Profile, false)
	if err != nil {
		return "", err
	}
	return p.Interact(ctx, in)
}

// Close discards every proxy.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	d.proxies.Range(func(key string, p *Proxy) bool {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return true
	})
	d.proxies = hashmap.New[string, *Proxy]()
	return errors.Join(errs...)
}
