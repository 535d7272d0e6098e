package internal

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"

	"github.com/serpent-os/pisi/internal/rand"
	"go.uber.org/zap"
)

// StartCPUProfile writes a cpu profile to path until the returned function is called
func StartCPUProfile(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err = pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		pprof.StopCPUProfile()
		_ = f.Close()
	}, nil
}

func writeProfIfNExist(path string, name string) error {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}
	fprof, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = fprof.Close()
	}()
	return pprof.Lookup(name).WriteTo(fprof, 0)
}

// MemProfParams tells where to write memory profiles
type MemProfParams struct {
	DestDir    string
	NamePrefix string
	Logger     *zap.Logger
}

// WriteMemProfiles dumps the heap and allocs profiles into DestDir.
//
// Profile names carry the current heap size in MiB, e.g. mem_x3k-512.heap.prof.
// It returns the common path prefix of the profiles written.
func WriteMemProfiles(params MemProfParams) (string, error) {
	if params.NamePrefix == "" {
		params.NamePrefix = "mem_" + rand.LetterString(3)
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(params.DestDir, 0755); err != nil {
		return "", err
	}
	mstats := new(runtime.MemStats)
	runtime.GC()
	runtime.ReadMemStats(mstats)

	basePath := filepath.Join(params.DestDir, strings.Join([]string{
		params.NamePrefix,
		strconv.FormatUint(mstats.HeapAlloc/1024/1024, 10),
	}, "-"))
	if err := writeProfIfNExist(basePath+".heap.prof", "heap"); err != nil {
		return "", err
	}
	if err := writeProfIfNExist(basePath+".alloc.prof", "allocs"); err != nil {
		return "", err
	}
	params.Logger.Info("memory profiles written",
		zap.String("prefix", basePath),
		zap.Uint64("MiB for heap (un-GC)", mstats.HeapAlloc/1024/1024),
		zap.Uint64("MiB for heap (max ever)", mstats.HeapSys/1024/1024),
		zap.Int("num go routines", runtime.NumGoroutine()),
	)
	return basePath, nil
}
