package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

// Dispatcher routes commands to whichever registered manager accepts
// them, the role the external server-facing dispatcher plays in a full
// deployment. Device-targeted commands go to exactly one manager (by
// technology prefix); GatewayListenCommand fans out to all of them.
type Dispatcher struct {
	managers []DeviceManager
}

func NewDispatcher(managers ...DeviceManager) *Dispatcher {
	return &Dispatcher{managers: managers}
}

// Register adds a manager after construction; not safe to call once
// commands are flowing.
func (d *Dispatcher) Register(m DeviceManager) {
	d.managers = append(d.managers, m)
}

func (d *Dispatcher) managerFor(cmd Command) (DeviceManager, error) {
	for _, m := range d.managers {
		if m.Accept(cmd) {
			return m, nil
		}
	}
	id, _ := cmd.TargetDeviceID()
	return nil, fmt.Errorf("%w: no manager accepts commands for %s", beeeon.ErrNotFound, id)
}

// HandleAccept routes a DeviceAcceptCommand to its owning manager.
func (d *Dispatcher) HandleAccept(ctx context.Context, cmd DeviceAcceptCommand) error {
	m, err := d.managerFor(cmd)
	if err != nil {
		return err
	}
	return m.HandleAccept(ctx, cmd)
}

// StartDiscovery opens a listen window on every manager, since every
// manager accepts a GatewayListenCommand. Managers that fail to start
// are skipped; the error of the last failure is returned alongside the
// works that did start.
func (d *Dispatcher) StartDiscovery(ctx context.Context, duration time.Duration) ([]AsyncWork, error) {
	var works []AsyncWork
	var lastErr error
	for _, m := range d.managers {
		work, err := m.StartDiscovery(ctx, duration)
		if err != nil {
			lastErr = err
			continue
		}
		works = append(works, work)
	}
	return works, lastErr
}

// StartUnpair routes an unpair to the owning manager.
func (d *Dispatcher) StartUnpair(ctx context.Context, id beeeon.DeviceID, timeout time.Duration) (AsyncWork, error) {
	m, err := d.managerFor(DeviceUnpairCommand{ID: id, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return m.StartUnpair(ctx, id, timeout)
}

// StartSetValue routes a set-value to the owning manager.
func (d *Dispatcher) StartSetValue(ctx context.Context, cmd DeviceSetValueCommand) (AsyncWork, error) {
	m, err := d.managerFor(cmd)
	if err != nil {
		return nil, err
	}
	return m.StartSetValue(ctx, cmd)
}

// Paired reports whether the owning manager currently considers id
// paired; false when no manager owns the prefix.
func (d *Dispatcher) Paired(id beeeon.DeviceID) bool {
	m, err := d.managerFor(DeviceAcceptCommand{ID: id})
	if err != nil {
		return false
	}
	return m.Paired(id)
}

// Stop stops every registered manager.
func (d *Dispatcher) Stop() {
	for _, m := range d.managers {
		m.Stop()
	}
}
