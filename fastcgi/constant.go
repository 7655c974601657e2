package fastcgi

type recType uint8

const version uint8 = 1

const (
	typeBeginRequest    recType = 1
	typeAbortRequest    recType = 2
	typeEndRequest      recType = 3
	typeParams          recType = 4
	typeStdin           recType = 5
	typeStdout          recType = 6
	typeStderr          recType = 7
	typeData            recType = 8
	typeGetValues       recType = 9
	typeGetValuesResult recType = 10
	typeUnknownType     recType = 11
)

func (t recType) String() string {
	switch t {
	case typeBeginRequest:
		return "FCGI_BEGIN_REQUEST"

	case typeAbortRequest:
		return "FCGI_ABORT_REQUEST"

	case typeEndRequest:
		return "FCGI_END_REQUEST"

	case typeParams:
		return "FCGI_PARAMS"

	case typeStdin:
		return "FCGI_STDIN"

	case typeStdout:
		return "FCGI_STDOUT"

	case typeStderr:
		return "FCGI_STDERR"

	case typeData:
		return "FCGI_DATA"

	case typeGetValues:
		return "FCGI_GET_VALUES"

	case typeGetValuesResult:
		return "FCGI_GET_VALUES_RESULT"

	case typeUnknownType:
		fallthrough

	default:
		return "FCGI_UNKNOWN_TYPE"
	}
}

func (t recType) GoString() string {
	return t.String()
}

const (
	//maximum record body
	maxWrite = 65535

	maxPad = 255

	headerLen = 8
)

//request id reserved for management records
const nullRequestID uint16 = 0

const (
	//role type
	RoleResponder uint16 = iota + 1
	RoleAuthorizer
	RoleFilter
)

const (
	//protocol status carried by an end-request record
	statusRequestComplete uint8 = iota
	statusCantMultiplex
	statusOverloaded
	statusUnknownRole
)

//bit 0 of the flags byte of a begin-request body
const flagKeepConn uint8 = 1

//variable names answered in a GET_VALUES_RESULT record
const (
	maxConnsName  = "FCGI_MAX_CONNS"
	maxReqsName   = "FCGI_MAX_REQS"
	mpxsConnsName = "FCGI_MPXS_CONNS"
)
