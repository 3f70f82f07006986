package transport

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/go-i2p/i2pkeys"
	"github.com/go-i2p/onramp"

	apperrors "github.com/go-i2p/netpool/lib/errors"
	"github.com/go-i2p/netpool/lib/metrics"
)

// normalizeI2PTarget accepts .i2p host names (resolved by the SAM bridge)
// and full base64 destinations, which are converted to their base32 form.
func normalizeI2PTarget(addr string) (string, error) {
	if strings.HasSuffix(addr, ".i2p") {
		return addr, nil
	}

	dest, err := i2pkeys.NewI2PAddrFromString(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidI2PTarget, err)
	}
	return dest.Base32(), nil
}

// session returns the shared I2P session, opening it on first use.
func (d *Dialer) session() (*onramp.Garlic, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, apperrors.ErrClosed
	}
	if d.garlic != nil {
		return d.garlic, nil
	}

	options := d.config.I2POptions
	if len(options) == 0 {
		options = onramp.OPT_DEFAULTS
	}

	garlic, err := onramp.NewGarlic(d.config.TunnelName, d.config.SAMAddress, options)
	if err != nil {
		return nil, fmt.Errorf("opening i2p session: %w", err)
	}
	d.garlic = garlic
	metrics.I2PSessionOpen.Set(1)

	if d.monitor == nil && d.config.SAMCheckInterval > 0 {
		d.monitor = NewSAMMonitor(d.config.SAMAddress, d.config.SAMCheckInterval, d.config.DialTimeout, d.resetSession)
		d.monitor.Start()
	}

	log.WithField("tunnel", d.config.TunnelName).WithField("sam", d.config.SAMAddress).Info("i2p session opened")
	return garlic, nil
}

// dialI2P opens a stream to the target. The SAM dial does not take a
// context, so a stream that arrives after ctx is done is closed.
func (d *Dialer) dialI2P(ctx context.Context) (net.Conn, error) {
	garlic, err := d.session()
	if err != nil {
		return nil, err
	}

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := garlic.Dial("tcp", d.target)
		done <- result{conn, err}
	}()

	dialCtx, cancel := context.WithTimeout(ctx, d.config.DialTimeout)
	defer cancel()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-dialCtx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.ErrTimeout
	}
}

// resetSession discards the current I2P session so the next connect opens
// a new one. Streams already handed out keep running until they fail.
func (d *Dialer) resetSession() error {
	d.mu.Lock()
	garlic := d.garlic
	d.garlic = nil
	d.mu.Unlock()

	if garlic == nil {
		return nil
	}
	metrics.I2PSessionOpen.Set(0)
	return garlic.Close()
}
