package fastcgi

import (
	"encoding/binary"
	"net"
	"sync"
)

//conn carries the per-connection state of the interface: the socket, the
//record parser, the request map, the id pool, and the mutex that keeps
//outbound records whole.
type conn struct {
	srv *Interface
	rwc net.Conn

	//guards the write half of the socket and the dead flag
	writeMu sync.Mutex
	dead    bool

	status recordStatus
	ids    *idPool

	//guarded by the interface-state mutex
	requests map[uint16]*requestData
	closing  bool
}

func newConn(srv *Interface, rwc net.Conn) *conn {
	return &conn{
		srv:      srv,
		rwc:      rwc,
		ids:      newIDs(uint16(srv.cfg.MaxRequestsPerConnection)),
		requests: make(map[uint16]*requestData),
	}
}

//send gather-writes every buffer to the socket. Partial transfers and
//signal interruptions are absorbed by the runtime; a peer that has gone
//away marks the connection dead and is reported as errPeerClosed instead
//of the underlying write error.
//Callers hold writeMu.
func (c *conn) send(bufs net.Buffers) error {
	if c.dead {
		return errPeerClosed
	}

	if _, err := bufs.WriteTo(c.rwc); err != nil {
		if isPeerClosed(err) {
			c.dead = true

			return errPeerClosed
		}

		return err
	}

	return nil
}

//writeRecordLocked frames b as a single record and sends it with
//alignment padding. Callers hold writeMu and guarantee len(b) <= maxWrite.
func (c *conn) writeRecordLocked(recType recType, reqID uint16, b []byte) error {
	var h header
	h.init(recType, reqID, len(b))

	hdr := make([]byte, headerLen)
	h.marshal(hdr)

	bufs := net.Buffers{hdr}
	if len(b) > 0 {
		bufs = append(bufs, b)
	}
	if h.PaddingLength > 0 {
		bufs = append(bufs, pad[:h.PaddingLength])
	}

	return c.send(bufs)
}

func (c *conn) writeRecord(recType recType, reqID uint16, b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.writeRecordLocked(recType, reqID, b)
}

//writeStreamLocked partitions b into records of at most maxWrite bytes
//each. A nil or empty b writes nothing; the terminal record of a stream is
//written separately with writeRecordLocked. Callers hold writeMu.
func (c *conn) writeStreamLocked(recType recType, reqID uint16, b []byte) error {
	for len(b) > 0 {
		n := len(b)
		if n > maxWrite {
			n = maxWrite
		}

		if err := c.writeRecordLocked(recType, reqID, b[:n]); err != nil {
			return err
		}

		b = b[n:]
	}

	return nil
}

func (c *conn) writeStream(recType recType, reqID uint16, b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.writeStreamLocked(recType, reqID, b)
}

func (c *conn) writeEndRequestLocked(reqID uint16, appStatus int32, protocolStatus uint8) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b, uint32(appStatus))
	b[4] = protocolStatus

	return c.writeRecordLocked(typeEndRequest, reqID, b)
}

func (c *conn) writeEndRequest(reqID uint16, appStatus int32, protocolStatus uint8) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.writeEndRequestLocked(reqID, appStatus, protocolStatus)
}

func (c *conn) writeUnknownType(t recType) error {
	b := make([]byte, 8)
	b[0] = uint8(t)

	return c.writeRecord(typeUnknownType, nullRequestID, b)
}

func (c *conn) writeGetValuesResult(pairs map[string]string) error {
	return c.writeRecord(typeGetValuesResult, nullRequestID, encodePairs(pairs))
}

//close shuts the socket down. The read loop notices and runs teardown.
func (c *conn) close() {
	c.writeMu.Lock()
	c.dead = true
	c.writeMu.Unlock()

	_ = c.rwc.Close()
}

//closurePending reports whether a connection scheduled for closure has
//drained its request map. Callers hold the interface-state mutex and,
//on true, close the connection after releasing it: close takes the write
//mutex, which must never nest inside the state mutex.
func (c *conn) closurePending() bool {
	return c.closing && len(c.requests) == 0
}
