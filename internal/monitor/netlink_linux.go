//go:build linux

package monitor

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

// proc connector wire constants (linux/cn_proc.h, linux/connector.h)
const (
	cnIdxProc         = 1
	procCnMcastListen = 1
	procEventExec     = 0x00000002
	procEventExit     = 0x80000000

	nlmsgHdrLen = 16
	cnMsgLen    = 20
)

// NetlinkSource receives exec and exit notifications from the kernel
// proc connector. It needs CAP_NET_ADMIN (or root); newNetlinkSource
// fails otherwise and the caller falls back to polling. Exit events
// carry the real wait status, which polling cannot observe.
type NetlinkSource struct {
	fd int
}

func newNetlinkSource() (Source, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_CONNECTOR)
	if err != nil {
		return nil, fmt.Errorf("open netlink connector socket: %w", err)
	}
	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: cnIdxProc, Pid: uint32(os.Getpid())}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind netlink connector socket: %w", err)
	}
	s := &NetlinkSource{fd: fd}
	if err := s.subscribe(); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return s, nil
}

func (s *NetlinkSource) Describe() string { return "netlink" }

// subscribe sends the PROC_CN_MCAST_LISTEN control message.
func (s *NetlinkSource) subscribe() error {
	buf := make([]byte, nlmsgHdrLen+cnMsgLen+4)
	ne := binary.NativeEndian
	ne.PutUint32(buf[0:], uint32(len(buf)))      // nlmsghdr.len
	ne.PutUint16(buf[4:], unix.NLMSG_DONE)       // nlmsghdr.type
	ne.PutUint32(buf[8:], 1)                     // nlmsghdr.seq
	ne.PutUint32(buf[12:], uint32(os.Getpid()))  // nlmsghdr.pid
	ne.PutUint32(buf[nlmsgHdrLen+0:], cnIdxProc) // cn_msg.id.idx
	ne.PutUint32(buf[nlmsgHdrLen+4:], cnIdxProc) // cn_msg.id.val
	ne.PutUint16(buf[nlmsgHdrLen+16:], 4)        // cn_msg.len
	ne.PutUint32(buf[nlmsgHdrLen+cnMsgLen:], procCnMcastListen)
	dst := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if err := unix.Sendto(s.fd, buf, 0, dst); err != nil {
		return fmt.Errorf("subscribe to proc events: %w", err)
	}
	return nil
}

func (s *NetlinkSource) Run(ctx context.Context, out chan<- Event) error {
	defer func() { _ = unix.Close(s.fd) }()
	if err := s.snapshot(ctx, out); err != nil {
		return fmt.Errorf("initial process scan: %w", err)
	}
	// bounded reads so ctx cancellation is noticed
	tv := unix.NsecToTimeval((500 * time.Millisecond).Nanoseconds())
	if err := unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("set receive timeout: %w", err)
	}
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, _, err := unix.Recvfrom(s.fd, buf, 0)
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("receive proc event: %w", err)
		}
		s.parse(ctx, buf[:n], out)
	}
}

// snapshot reports processes that were already alive before the
// subscription, so long-running subjects are not missed.
func (s *NetlinkSource) snapshot(ctx context.Context, out chan<- Event) error {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, p := range procs {
		ct, err := p.CreateTime()
		if err != nil {
			continue
		}
		select {
		case out <- Event{Kind: EventExec, PID: p.Pid, CreateTime: ct, At: now}:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func (s *NetlinkSource) parse(ctx context.Context, buf []byte, out chan<- Event) {
	ne := binary.NativeEndian
	for off := 0; off+nlmsgHdrLen <= len(buf); {
		msgLen := int(ne.Uint32(buf[off:]))
		msgType := ne.Uint16(buf[off+4:])
		if msgLen < nlmsgHdrLen || off+msgLen > len(buf) {
			return
		}
		if msgType == unix.NLMSG_DONE {
			s.parseEvent(ctx, buf[off+nlmsgHdrLen+cnMsgLen:off+msgLen], out)
		}
		// messages are 4-byte aligned
		off += (msgLen + 3) &^ 3
	}
}

// parseEvent decodes a struct proc_event: what, cpu, timestamp(u64),
// then the per-kind union. Only exec and exit are interesting; threads
// (pid != tgid) are ignored.
func (s *NetlinkSource) parseEvent(ctx context.Context, data []byte, out chan<- Event) {
	if len(data) < 16 {
		return
	}
	ne := binary.NativeEndian
	what := ne.Uint32(data)
	body := data[16:]
	now := time.Now()
	switch what {
	case procEventExec:
		if len(body) < 8 {
			return
		}
		pid := int32(ne.Uint32(body))
		tgid := int32(ne.Uint32(body[4:]))
		if pid != tgid {
			return
		}
		s.emit(ctx, out, Event{Kind: EventExec, PID: pid, At: now})
	case procEventExit:
		if len(body) < 16 {
			return
		}
		pid := int32(ne.Uint32(body))
		tgid := int32(ne.Uint32(body[4:]))
		if pid != tgid {
			return
		}
		code := exitCode(ne.Uint32(body[8:]))
		s.emit(ctx, out, Event{Kind: EventExit, PID: pid, ExitCode: code, At: now})
	}
}

// exitCode maps a raw wait status onto the shell convention: the exit
// status for normal exits, 128+signal for signal deaths.
func exitCode(raw uint32) int {
	ws := unix.WaitStatus(raw)
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return int(raw)
	}
}

func (s *NetlinkSource) emit(ctx context.Context, out chan<- Event, ev Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
