package fastcgi

//requestData is the per-request store entry. The interface-state mutex
//guards every field until the entry is assigned; after assignment the
//stream buffers and completion flags are frozen and only the
//observational flags (aborted, connClosed) may still change.
type requestData struct {
	role              uint16
	closeOnCompletion bool

	//internal slot obtained from the connection's id pool
	slot uint16

	paramsStream []byte
	stdinStream  []byte
	dataStream   []byte

	paramsComplete bool
	stdinComplete  bool
	dataComplete   bool

	decodedParams map[string]string

	assigned   bool
	aborted    bool
	connClosed bool
}

func (rd *requestData) appendStream(t recType, b []byte) {
	switch t {
	case typeParams:
		rd.paramsStream = append(rd.paramsStream, b...)

	case typeStdin:
		rd.stdinStream = append(rd.stdinStream, b...)

	case typeData:
		rd.dataStream = append(rd.dataStream, b...)
	}
}

func (rd *requestData) streamComplete(t recType) bool {
	switch t {
	case typeParams:
		return rd.paramsComplete

	case typeStdin:
		return rd.stdinComplete

	case typeData:
		return rd.dataComplete
	}

	return false
}

func (rd *requestData) markStreamComplete(t recType) {
	switch t {
	case typeParams:
		rd.paramsComplete = true

	case typeStdin:
		rd.stdinComplete = true

	case typeData:
		rd.dataComplete = true
	}
}

//readyForAssignment is the completion predicate: params must be finished
//for every role, stdin is waived for authorizers, and data is only
//demanded from filters and unknown roles.
func (rd *requestData) readyForAssignment() bool {
	if !rd.paramsComplete {
		return false
	}

	if !rd.stdinComplete && rd.role != RoleAuthorizer {
		return false
	}

	if !rd.dataComplete && rd.role != RoleResponder && rd.role != RoleAuthorizer {
		return false
	}

	return true
}
