package fileclient

import "github.com/evonode/evcan/pkg/bus"

// Result is the file-result taxonomy of the remote file protocol,
// implemented the way the teacher's bus.go implements CANopenError: a
// small typed code backed by a description table, so callers compare
// against named constants rather than opaque errors.New values.
type Result int8

const (
	Ok Result = iota
	DiskErr
	NoFile
	NoPath
	InvalidName
	Denied
	Exist
	InvalidObject
	WriteProtected
	InvalidDrive
	NotEnabled
	NoFilesystem
	Timeout
	Locked
	MemoryFull // NotEnoughCore
	TooManyOpenFiles
	InvalidParameter
	NetworkBusy
	NetworkError
	NetworkTimeout
	FileNotOpened
	NodeOffline
)

var resultDescription = map[Result]string{
	Ok:               "operation completed successfully",
	DiskErr:          "disk error",
	NoFile:           "no such file",
	NoPath:           "no such path",
	InvalidName:      "invalid file name",
	Denied:           "access denied",
	Exist:            "file already exists",
	InvalidObject:    "invalid file object",
	WriteProtected:   "medium is write protected",
	InvalidDrive:     "invalid drive",
	NotEnabled:       "volume not enabled",
	NoFilesystem:     "no valid filesystem",
	Timeout:          "timed out",
	Locked:           "file locked",
	MemoryFull:       "not enough memory",
	TooManyOpenFiles: "too many open files",
	InvalidParameter: "invalid parameter",
	NetworkBusy:      "network busy",
	NetworkError:     "network error",
	NetworkTimeout:   "network timeout",
	FileNotOpened:    "file not opened",
	NodeOffline:      "node offline",
}

func (r Result) Error() string {
	if d, ok := resultDescription[r]; ok {
		return d
	}
	return "unknown file result"
}

func (r Result) String() string { return r.Error() }

// mapSendResult implements the send-error mapping of the synchronous
// request/ack primitive: BufferFull->NetworkBusy, MallocFail->MemoryFull,
// anything else -> NetworkError.
func mapSendResult(r bus.SendResult) Result {
	switch r {
	case bus.SendOk:
		return Ok
	case bus.SendBufferFull:
		return NetworkBusy
	case bus.SendMallocFail:
		return MemoryFull
	default:
		return NetworkError
	}
}
