package fastcgi

import (
	"encoding/binary"
	"strconv"

	"github.com/pkg/errors"
)

//errConnTeardown ends the read loop of one connection without touching
//interface-wide state. I/O trouble on a connection is never promoted to
//interface corruption.
var errConnTeardown = errors.New("fastcgi: connection teardown")

//recordStatus reassembles the byte stream of one connection into records.
//It is owned by the connection's read goroutine and never locked.
type recordStatus struct {
	header          [headerLen]byte
	bytesReceived   uint32
	contentExpected uint16
	paddingExpected uint8
	recType         recType
	requestID       uint16

	//the record is received in full but its bytes are discarded
	invalidatedByHeader bool

	//content that is not appended to a request stream: management
	//content and begin/abort bodies
	contentBuffer []byte
}

func (rs *recordStatus) expectedBytes() uint32 {
	return headerLen + uint32(rs.contentExpected) + uint32(rs.paddingExpected)
}

func (rs *recordStatus) clear() {
	rs.header = [headerLen]byte{}
	rs.bytesReceived = 0
	rs.contentExpected = 0
	rs.paddingExpected = 0
	rs.recType = 0
	rs.requestID = 0
	rs.invalidatedByHeader = false
	rs.contentBuffer = rs.contentBuffer[:0]
}

//feed consumes one chunk read from the socket, possibly spanning several
//records and record fragments, and returns the requests that became ready
//for assignment. A returned error other than errConnTeardown is a logic
//error and latches the interface.
func (c *conn) feed(b []byte) ([]*Request, error) {
	rs := &c.status

	var ready []*Request

	for len(b) > 0 {
		if rs.bytesReceived < headerLen {
			n := copy(rs.header[rs.bytesReceived:], b)
			rs.bytesReceived += uint32(n)
			b = b[n:]

			if rs.bytesReceived < headerLen {
				break
			}

			c.headerComplete()
		}

		//route content bytes
		if have := rs.bytesReceived - headerLen; have < uint32(rs.contentExpected) {
			n := uint32(rs.contentExpected) - have
			if n > uint32(len(b)) {
				n = uint32(len(b))
			}

			c.routeContent(b[:n])
			rs.bytesReceived += n
			b = b[n:]
		}

		//discard padding bytes
		if have := rs.bytesReceived - headerLen - uint32(rs.contentExpected); have < uint32(rs.paddingExpected) {
			n := uint32(rs.paddingExpected) - have
			if n > uint32(len(b)) {
				n = uint32(len(b))
			}

			rs.bytesReceived += n
			b = b[n:]
		}

		if rs.bytesReceived < rs.expectedBytes() {
			break
		}

		req, err := c.processCompleteRecord()
		if err != nil {
			return ready, err
		}

		if req != nil {
			ready = append(ready, req)
		}

		rs.clear()
	}

	return ready, nil
}

//headerComplete parses the header and runs the validation table. An
//invalidated record is still received in full; its bytes go nowhere.
func (c *conn) headerComplete() {
	rs := &c.status
	h := parseHeader(rs.header[:])

	rs.recType = h.Type
	rs.requestID = h.ID
	rs.contentExpected = h.ContentLength
	rs.paddingExpected = h.PaddingLength
	rs.invalidatedByHeader = false

	//management records are received unconditionally
	if h.ID == nullRequestID {
		return
	}

	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	rd := c.requests[h.ID]

	switch h.Type {
	case typeBeginRequest:
		if h.ContentLength != 8 || rd != nil || c.closing {
			rs.invalidatedByHeader = true
		}

	case typeAbortRequest:
		if h.ContentLength != 0 || rd == nil || rd.aborted {
			rs.invalidatedByHeader = true
		}

	case typeParams, typeStdin, typeData:
		if rd == nil || rd.assigned || rd.streamComplete(h.Type) {
			rs.invalidatedByHeader = true
		}

	default:
		rs.invalidatedByHeader = true
	}
}

func (c *conn) routeContent(b []byte) {
	rs := &c.status

	if rs.invalidatedByHeader {
		return
	}

	if rs.requestID == nullRequestID ||
		rs.recType == typeBeginRequest || rs.recType == typeAbortRequest {
		rs.contentBuffer = append(rs.contentBuffer, b...)

		return
	}

	switch rs.recType {
	case typeParams, typeStdin, typeData:
		c.srv.mu.Lock()
		if rd := c.requests[rs.requestID]; rd != nil && !rd.assigned {
			rd.appendStream(rs.recType, b)
		}
		c.srv.mu.Unlock()
	}
}

func (c *conn) processCompleteRecord() (*Request, error) {
	rs := &c.status

	if rs.requestID == nullRequestID {
		return nil, c.processManagementRecord()
	}

	if rs.invalidatedByHeader {
		return nil, nil
	}

	switch rs.recType {
	case typeBeginRequest:
		return nil, c.processBeginRequest()

	case typeAbortRequest:
		return nil, c.processAbortRequest()

	default:
		return c.processStreamRecord()
	}
}

func (c *conn) processManagementRecord() error {
	rs := &c.status

	if rs.recType != typeGetValues {
		if err := c.writeUnknownType(rs.recType); err != nil {
			return errConnTeardown
		}

		return nil
	}

	reply := make(map[string]string)

	//a malformed name-value stream yields an empty result
	if names, ok := decodePairs(rs.contentBuffer); ok {
		cfg := c.srv.cfg

		for name := range names {
			switch name {
			case maxConnsName:
				reply[maxConnsName] = strconv.Itoa(cfg.MaxConnections)

			case maxReqsName:
				reply[maxReqsName] = strconv.Itoa(cfg.MaxConnections * cfg.MaxRequestsPerConnection)

			case mpxsConnsName:
				reply[mpxsConnsName] = "1"
			}
		}
	}

	if err := c.writeGetValuesResult(reply); err != nil {
		return errConnTeardown
	}

	return nil
}

func (c *conn) processBeginRequest() error {
	rs := &c.status

	role := binary.BigEndian.Uint16(rs.contentBuffer[0:2])
	flags := rs.contentBuffer[2]

	s := c.srv

	s.mu.Lock()

	if len(c.requests) >= s.cfg.MaxRequestsPerConnection {
		limit := s.cfg.MaxRequestsPerConnection
		s.mu.Unlock()

		status := statusOverloaded
		if limit == 1 {
			status = statusCantMultiplex
		}

		if err := c.writeEndRequest(rs.requestID, 1, status); err != nil {
			return errConnTeardown
		}

		return nil
	}

	if s.overload {
		s.mu.Unlock()

		if err := c.writeEndRequest(rs.requestID, 1, statusOverloaded); err != nil {
			return errConnTeardown
		}

		return nil
	}

	slot, err := c.ids.Alloc()
	if err != nil {
		s.mu.Unlock()

		//the request map was below the limit, so the pool cannot be empty
		return errors.Wrap(err, "begin-request admission")
	}

	c.requests[rs.requestID] = &requestData{
		role:              role,
		closeOnCompletion: flags&flagKeepConn == 0,
		slot:              slot,
	}

	s.mu.Unlock()

	return nil
}

func (c *conn) processAbortRequest() error {
	rs := &c.status
	s := c.srv

	s.mu.Lock()

	rd := c.requests[rs.requestID]
	if rd == nil {
		s.mu.Unlock()

		return nil
	}

	if rd.assigned {
		//the handle owns the entry; it observes the flag
		rd.aborted = true
		s.mu.Unlock()

		return nil
	}

	delete(c.requests, rs.requestID)
	releaseErr := c.ids.Release(rd.slot)

	if rd.closeOnCompletion {
		c.closing = true
	}
	shouldClose := c.closurePending()

	s.mu.Unlock()

	if releaseErr != nil {
		return errors.Wrap(releaseErr, "abort-request removal")
	}

	if err := c.writeEndRequest(rs.requestID, s.cfg.AppStatusOnAbort, statusRequestComplete); err != nil {
		return errConnTeardown
	}

	if shouldClose {
		c.close()
	}

	return nil
}

//processStreamRecord handles PARAMS, STDIN and DATA records whose bytes
//have already been routed. Only a terminal record can change an entry's
//state: it completes the stream and may make the request assignable.
func (c *conn) processStreamRecord() (*Request, error) {
	rs := &c.status

	if rs.contentExpected != 0 {
		return nil, nil
	}

	s := c.srv

	s.mu.Lock()

	rd := c.requests[rs.requestID]
	if rd == nil || rd.assigned {
		s.mu.Unlock()

		return nil, nil
	}

	rd.markStreamComplete(rs.recType)

	if !rd.readyForAssignment() {
		s.mu.Unlock()

		return nil, nil
	}

	s.mu.Unlock()

	//the entry is unassigned, so only this goroutine touches its buffers
	params, ok := decodePairs(rd.paramsStream)

	if !ok {
		s.mu.Lock()
		delete(c.requests, rs.requestID)
		releaseErr := c.ids.Release(rd.slot)

		if rd.closeOnCompletion {
			c.closing = true
		}
		shouldClose := c.closurePending()
		s.mu.Unlock()

		if releaseErr != nil {
			return nil, errors.Wrap(releaseErr, "malformed-params removal")
		}

		if err := c.writeEndRequest(rs.requestID, 1, statusRequestComplete); err != nil {
			return nil, errConnTeardown
		}

		if shouldClose {
			c.close()
		}

		return nil, nil
	}

	s.mu.Lock()
	rd.decodedParams = params
	rd.assigned = true
	s.mu.Unlock()

	return newRequest(c, rs.requestID, rd), nil
}
