package kernel

import (
	"strings"

	"gokos/pkg/vfs"
)

// mockRoutineBase is where the mock pretends kernel routines live. Real
// kernels hand out genuine function addresses; tests only need stable,
// recognisable values well away from the load regions.
const mockRoutineBase uint32 = 0xC0000000

// MockHost is a Host for tests: files live on a VirtualDisk, console output
// is captured, Exec calls are recorded instead of executed.
type MockHost struct {
	Disk    *vfs.VirtualDisk
	Console strings.Builder

	ExecCalls  []uint32
	ExecReturn int32
	Ended      []int32

	addrs map[string]uint32
}

func NewMockHost() *MockHost {
	return &MockHost{
		Disk:  vfs.NewVirtualDisk(),
		addrs: PlaceholderAddrs(mockRoutineBase),
	}
}

func (m *MockHost) RoutineAddr(name string) (uint32, bool) {
	a, ok := m.addrs[name]
	return a, ok
}

func (m *MockHost) ReadFile(path string) ([]byte, error) {
	return m.Disk.Read(path)
}

func (m *MockHost) WriteFile(path string, data []byte) error {
	return m.Disk.Write(path, data)
}

func (m *MockHost) Stat(path string) (int, error) {
	return m.Disk.Size(path)
}

// ListFiles enumerates the virtual disk, for shell ls support. Names carry a
// leading slash so they match the absolute paths callers pass to ReadFile.
func (m *MockHost) ListFiles() []string {
	names := m.Disk.List()
	for i, n := range names {
		names[i] = "/" + n
	}
	return names
}

func (m *MockHost) Print(msg string) {
	m.Console.WriteString(msg)
}

func (m *MockHost) Exec(addr uint32) int32 {
	m.ExecCalls = append(m.ExecCalls, addr)
	return m.ExecReturn
}

func (m *MockHost) ProgramEnded(status int32) {
	m.Ended = append(m.Ended, status)
}
