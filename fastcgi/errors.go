package fastcgi

import (
	"io"
	"net"
	"syscall"

	"github.com/pkg/errors"
)

var (
	//ErrConstructionRejected reports that New could not produce an
	//interface: bad listener, bad environment, or a live instance already
	//exists in this process.
	ErrConstructionRejected = errors.New("fastcgi: interface construction rejected")

	//ErrInterfaceCorrupted is latched after an internal invariant
	//violation. Every subsequent AcceptRequests and SetOverload call fails
	//with it; Close, Addr, Overload, ConnectionCount and the Request
	//methods do not report it.
	ErrInterfaceCorrupted = errors.New("fastcgi: interface state corrupted")

	//ErrInterfaceClosed reports that the interface has been shut down.
	ErrInterfaceClosed = errors.New("fastcgi: interface closed")
)

//errPeerClosed marks write failures that mean the client went away rather
//than a real I/O fault. Connections in this state are torn down quietly.
var errPeerClosed = errors.New("fastcgi: peer closed connection")

func isPeerClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, errPeerClosed)
}
