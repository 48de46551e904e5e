//go:build linux

package daide

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// defaultPollerEvents is the default number of events fetched per wait.
const defaultPollerEvents = 128

// Poller is an epoll reactor for the Conns of one Registry.
//
// Run drives every Conn handler from a single goroutine. Other goroutines
// must not touch Conns or the Registry directly; they hand work to the loop
// with Post.
type Poller struct {
	epfd     int
	wakefd   int
	registry *Registry
	logger   Logger

	events  []unix.EpollEvent
	watched map[Handle]*watch
	gen     uint64

	mu     sync.Mutex
	posted []func()

	closed atomic.Bool
}

// watch is the epoll interest currently installed for a Conn.
type watch struct {
	conn *Conn
	mask uint32
	gen  uint64
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// PollerLoggerOption sets the logger for the poller.
func PollerLoggerOption(logger Logger) PollerOption {
	return func(p *Poller) {
		p.logger = logger
	}
}

// PollerEventsOption sets how many readiness events one wait may return.
func PollerEventsOption(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.events = make([]unix.EpollEvent, n)
		}
	}
}

// NewPoller creates a Poller serving reg.
func NewPoller(reg *Registry, opts ...PollerOption) (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll create")
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, errors.Wrap(err, "eventfd")
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, errors.Wrap(err, "epoll add waker")
	}

	p := &Poller{
		epfd:     epfd,
		wakefd:   wakefd,
		registry: reg,
		logger:   defaultLogger(),
		events:   make([]unix.EpollEvent, defaultPollerEvents),
		watched:  make(map[Handle]*watch),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Run dispatches readiness events until ctx is canceled or epoll fails.
// It returns the context error on shutdown.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "conns", p.registry.Len())

	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-child.Done()
		p.wake()
		return nil
	})

	group.Go(func() error {
		return p.loop(child)
	})

	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Info("poller stopped with error", "error", err)
	} else {
		p.logger.Info("poller stopped")
	}

	return err
}

// Post schedules fn to run on the loop goroutine before the next wait.
func (p *Poller) Post(fn func()) {
	p.mu.Lock()
	p.posted = append(p.posted, fn)
	p.mu.Unlock()
	p.wake()
}

// Close releases the epoll instance. Call it after Run has returned.
// Safe to call multiple times.
func (p *Poller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	unix.Close(p.wakefd)
	return unix.Close(p.epfd)
}

func (p *Poller) loop(ctx context.Context) error {
	for {
		p.runPosted()
		if err := ctx.Err(); err != nil {
			return err
		}

		p.sync()

		n, err := unix.EpollWait(p.epfd, p.events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, "epoll wait")
		}

		for i := 0; i < n; i++ {
			fd := int(p.events[i].Fd)
			if fd == p.wakefd {
				p.drainWake()
				continue
			}
			p.dispatch(Handle(fd), p.events[i].Events)
		}
	}
}

func (p *Poller) runPosted() {
	p.mu.Lock()
	posted := p.posted
	p.posted = nil
	p.mu.Unlock()

	for _, fn := range posted {
		fn()
	}
}

// sync brings the epoll interest set in line with the Registry.
func (p *Poller) sync() {
	p.gen++

	p.registry.Each(func(c *Conn) {
		mask := interest(c)
		w, ok := p.watched[c.handle]
		// A reused handle belongs to a new socket that epoll has never seen.
		if ok && w.conn != c {
			delete(p.watched, c.handle)
			ok = false
		}

		switch {
		case mask == 0:
			if ok {
				p.ctl(unix.EPOLL_CTL_DEL, c.handle, 0)
				delete(p.watched, c.handle)
			}
			return
		case !ok:
			if err := p.ctl(unix.EPOLL_CTL_ADD, c.handle, mask); err == unix.EEXIST {
				p.ctl(unix.EPOLL_CTL_MOD, c.handle, mask)
			}
			w = &watch{conn: c, mask: mask}
			p.watched[c.handle] = w
		case w.mask != mask:
			p.ctl(unix.EPOLL_CTL_MOD, c.handle, mask)
			w.mask = mask
		}
		w.gen = p.gen
	})

	for h, w := range p.watched {
		if w.gen != p.gen {
			// Destroyed Conns closed their descriptor, which already left epoll.
			p.ctl(unix.EPOLL_CTL_DEL, h, 0)
			delete(p.watched, h)
		}
	}
}

func (p *Poller) ctl(op int, h Handle, mask uint32) error {
	ev := unix.EpollEvent{Events: mask, Fd: int32(h)}
	err := unix.EpollCtl(p.epfd, op, int(h), &ev)
	if err != nil && err != unix.EEXIST && err != unix.ENOENT && err != unix.EBADF {
		p.logger.Error("epoll ctl failed", "handle", h, "op", op, "error", err)
	}
	return err
}

// interest returns the epoll events a Conn currently needs.
func interest(c *Conn) uint32 {
	switch {
	case c.destroyed, c.failed, c.peerClosed, c.closed:
		return 0
	case c.state == StateConnecting:
		return unix.EPOLLOUT
	case c.state == StateConnected:
		mask := uint32(unix.EPOLLIN | unix.EPOLLRDHUP)
		if c.hasOutput() {
			mask |= unix.EPOLLOUT
		}
		return mask
	}
	return 0
}

func (p *Poller) dispatch(h Handle, events uint32) {
	c, ok := p.registry.Find(h)
	if !ok {
		return
	}

	if c.state == StateConnecting {
		if events&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			p.registry.NotifyConnect(h, sockError(h))
		}
		return
	}

	if events&unix.EPOLLERR != 0 {
		p.registry.NotifyClose(h, sockError(h))
		return
	}

	if events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP) != 0 && p.connected(h) {
		p.registry.NotifyReadable(h, nil)
	}

	if events&unix.EPOLLOUT != 0 && p.connected(h) {
		p.registry.NotifyWritable(h, nil)
	}

	if c, ok := p.registry.Find(h); ok && c.peerClosed && !c.closed {
		p.registry.NotifyClose(h, nil)
	}
}

// connected reports whether h still belongs to a live connected Conn. Handlers
// may destroy Conns through their callbacks between two notifications.
func (p *Poller) connected(h Handle) bool {
	c, ok := p.registry.Find(h)
	return ok && c.state == StateConnected && !c.peerClosed && !c.closed
}

func sockError(h Handle) error {
	v, err := unix.GetsockoptInt(int(h), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return errors.Wrap(err, "read socket error")
	}
	if v != 0 {
		return unix.Errno(v)
	}
	return nil
}

func (p *Poller) wake() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	// EAGAIN means the counter is saturated, which still wakes the loop.
	_, _ = unix.Write(p.wakefd, buf[:])
}

func (p *Poller) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(p.wakefd, buf[:])
}
