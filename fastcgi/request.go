package fastcgi

import (
	"sync"
)

//Request is the application-facing handle for one assigned request. The
//interface freezes the underlying store entry before surfacing a handle,
//so Params, Stdin and Data read it without locking; AbortStatus takes the
//interface-state mutex to read the flags that may still change. A handle
//may outlive its interface; writes then report failure.
//
//Handles are created exclusively by the interface, at most once per
//request.
type Request struct {
	srv *Interface
	c   *conn
	id  uint16
	rd  *requestData

	role     uint16
	keepConn bool

	mu        sync.Mutex
	completed bool
}

func newRequest(c *conn, id uint16, rd *requestData) *Request {
	return &Request{
		srv:      c.srv,
		c:        c,
		id:       id,
		rd:       rd,
		role:     rd.role,
		keepConn: !rd.closeOnCompletion,
	}
}

//Params returns the decoded parameter pairs.
func (r *Request) Params() map[string]string { return r.rd.decodedParams }

//Stdin returns the buffered stdin stream.
func (r *Request) Stdin() []byte { return r.rd.stdinStream }

//Data returns the buffered data stream.
func (r *Request) Data() []byte { return r.rd.dataStream }

//Role returns the role from the begin-request record. Values other than
//the three defined roles are carried through unchanged.
func (r *Request) Role() uint16 { return r.role }

//KeepConn reports whether the client asked for the connection to survive
//request completion.
func (r *Request) KeepConn() bool { return r.keepConn }

//AbortStatus reports whether the client aborted the request or its
//connection was lost.
func (r *Request) AbortStatus() bool {
	r.srv.mu.Lock()
	defer r.srv.mu.Unlock()

	return r.rd.aborted || r.rd.connClosed
}

//Write sends p on the request's stdout stream, framed as one or more
//records. It reports false without blocking when the request has
//completed or the connection is gone.
func (r *Request) Write(p []byte) bool {
	return r.write(typeStdout, p)
}

//WriteError sends p on the request's stderr stream.
func (r *Request) WriteError(p []byte) bool {
	return r.write(typeStderr, p)
}

func (r *Request) write(t recType, p []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.completed {
		return false
	}

	if len(p) == 0 {
		//an empty record would terminate the stream
		r.c.writeMu.Lock()
		dead := r.c.dead
		r.c.writeMu.Unlock()

		return !dead
	}

	return r.c.writeStream(t, r.id, p) == nil
}

//Complete closes both output streams and ends the request with the given
//application status. It reports false, with no records emitted, when
//called again or when the connection is gone.
func (r *Request) Complete(appStatus int32) bool {
	return r.finish(appStatus, statusRequestComplete)
}

//RejectRole refuses a request whose role the application does not
//implement: both streams are terminated and the end-request record
//carries UNKNOWN_ROLE.
func (r *Request) RejectRole(appStatus int32) bool {
	return r.finish(appStatus, statusUnknownRole)
}

//Close abandons an uncompleted handle: the request ends with the
//interface's configured abort status. Closing a completed handle does
//nothing.
func (r *Request) Close() {
	r.finish(r.srv.cfg.AppStatusOnAbort, statusRequestComplete)
}

func (r *Request) finish(appStatus int32, protocolStatus uint8) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.completed {
		return false
	}
	r.completed = true

	c := r.c

	//all three records go out under one hold of the write mutex so no
	//record from another handle lands between them
	c.writeMu.Lock()
	err := c.writeRecordLocked(typeStdout, r.id, nil)
	if err == nil {
		err = c.writeRecordLocked(typeStderr, r.id, nil)
	}
	if err == nil {
		err = c.writeEndRequestLocked(r.id, appStatus, protocolStatus)
	}
	c.writeMu.Unlock()

	//completion handshake: ownership of the entry returns to the
	//interface
	s := r.srv

	s.mu.Lock()

	delete(c.requests, r.id)
	releaseErr := c.ids.Release(r.rd.slot)

	if r.rd.closeOnCompletion {
		c.closing = true
	}
	shouldClose := c.closurePending()

	s.mu.Unlock()

	if releaseErr != nil {
		s.latchCorruption(releaseErr)
	}

	if shouldClose {
		c.close()
	}

	return err == nil
}
