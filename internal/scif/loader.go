// internal/scif/loader.go
package scif

import (
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"micmgmt-service/pkg/micsdk"
)

const (
	DefaultLibraryName    = "libscif"
	DefaultLibraryVersion = 0
)

// Loader loads a native library and resolves symbols from it.
type Loader interface {
	IsLoaded() bool
	SetFileName(name string)
	SetVersion(version int)
	Load() error
	Lookup(name string) (uintptr, error)
	Unload() error
	ErrorText() string
}

// DynamicLoader is a Loader backed by dlopen.
type DynamicLoader struct {
	mutex     sync.Mutex
	fileName  string
	version   int
	handle    uintptr
	errorText string
}

// NewDynamicLoader returns a loader for the given base name and major
// version. A negative version loads the unversioned file.
func NewDynamicLoader(fileName string, version int) *DynamicLoader {
	return &DynamicLoader{fileName: fileName, version: version}
}

func (l *DynamicLoader) IsLoaded() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.handle != 0
}

func (l *DynamicLoader) SetFileName(name string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.fileName = name
}

func (l *DynamicLoader) SetVersion(version int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.version = version
}

// Path returns the file name handed to dlopen.
func (l *DynamicLoader) Path() string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.path()
}

func (l *DynamicLoader) path() string {
	suffix := ".so"
	if runtime.GOOS == "darwin" {
		suffix = ".dylib"
	}
	name := l.fileName + suffix
	if l.version >= 0 {
		name += "." + strconv.Itoa(l.version)
	}
	return name
}

func (l *DynamicLoader) Load() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.handle != 0 {
		return nil
	}
	if l.fileName == "" {
		l.errorText = "No library file name set"
		return micsdk.SharedLibraryError
	}

	handle, err := purego.Dlopen(l.path(), purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		l.errorText = err.Error()
		return fmt.Errorf("%w: %w", micsdk.SharedLibraryError, err)
	}
	l.handle = handle
	l.errorText = ""
	return nil
}

func (l *DynamicLoader) Lookup(name string) (uintptr, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.handle == 0 {
		return 0, micsdk.SharedLibraryError
	}
	sym, err := purego.Dlsym(l.handle, name)
	if err != nil {
		l.errorText = err.Error()
		return 0, fmt.Errorf("%w: %w", micsdk.SharedLibraryError, err)
	}
	return sym, nil
}

func (l *DynamicLoader) Unload() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.handle == 0 {
		return nil
	}
	err := purego.Dlclose(l.handle)
	l.handle = 0
	if err != nil {
		l.errorText = err.Error()
		return fmt.Errorf("%w: %w", micsdk.SharedLibraryError, err)
	}
	return nil
}

func (l *DynamicLoader) ErrorText() string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.errorText
}

// nativeFunctions calls into the resolved libscif entry points.
type nativeFunctions struct {
	open    func() int32
	close   func(epd int32) int32
	bind    func(epd int32, pn uint16) int32
	connect func(epd int32, dst *PortID) int32
	send    func(epd int32, msg unsafe.Pointer, length int32, flags int32) int32
	recv    func(epd int32, msg unsafe.Pointer, length int32, flags int32) int32
	errno   func() unsafe.Pointer
}

var errnoSymbols = []string{"__errno_location", "__error"}

// resolveFunctions looks up the six scif entry points in a loaded library.
func resolveFunctions(loader Loader) (Functions, error) {
	fns := &nativeFunctions{}
	targets := []struct {
		name string
		fptr any
	}{
		{"scif_open", &fns.open},
		{"scif_close", &fns.close},
		{"scif_bind", &fns.bind},
		{"scif_connect", &fns.connect},
		{"scif_send", &fns.send},
		{"scif_recv", &fns.recv},
	}
	for _, target := range targets {
		sym, err := loader.Lookup(target.name)
		if err != nil || sym == 0 {
			return nil, fmt.Errorf("%w: missing symbol %s", micsdk.SharedLibraryError, target.name)
		}
		purego.RegisterFunc(target.fptr, sym)
	}
	for _, name := range errnoSymbols {
		if sym, err := loader.Lookup(name); err == nil && sym != 0 {
			purego.RegisterFunc(&fns.errno, sym)
			break
		}
	}
	return fns, nil
}

// call runs fn on a locked OS thread and captures errno for negative results.
func (n *nativeFunctions) call(fn func() int32) (int, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ret := fn()
	if ret >= 0 {
		return int(ret), nil
	}
	if n.errno == nil {
		return int(ret), errUnknownErrno
	}
	errno := *(*int32)(n.errno())
	if errno == 0 {
		return int(ret), errUnknownErrno
	}
	return int(ret), unixErrno(errno)
}

func (n *nativeFunctions) Open() (Endpoint, error) {
	ret, err := n.call(func() int32 { return n.open() })
	return Endpoint(ret), err
}

func (n *nativeFunctions) Close(epd Endpoint) error {
	_, err := n.call(func() int32 { return n.close(int32(epd)) })
	return err
}

func (n *nativeFunctions) Bind(epd Endpoint, port uint16) (int, error) {
	return n.call(func() int32 { return n.bind(int32(epd), port) })
}

func (n *nativeFunctions) Connect(epd Endpoint, dst PortID) (int, error) {
	return n.call(func() int32 { return n.connect(int32(epd), &dst) })
}

func (n *nativeFunctions) Send(epd Endpoint, msg []byte, flags int) (int, error) {
	if len(msg) == 0 {
		return 0, nil
	}
	return n.call(func() int32 {
		return n.send(int32(epd), unsafe.Pointer(&msg[0]), int32(len(msg)), int32(flags))
	})
}

func (n *nativeFunctions) Recv(epd Endpoint, msg []byte, flags int) (int, error) {
	if len(msg) == 0 {
		return 0, nil
	}
	return n.call(func() int32 {
		return n.recv(int32(epd), unsafe.Pointer(&msg[0]), int32(len(msg)), int32(flags))
	})
}
