// Package pluginhost implements a sandboxed WebAssembly plugin host:
// directory discovery, metadata extraction, hook invocation, and
// hot-reload-on-change.
//
// A directory-scoped Host holds a lockable table of live records. A reload
// compiles a fresh record and swaps it in atomically; the prior instance
// is closed once its in-flight calls have drained. Plugins run in-process via wazero rather than as sidecar
// processes. The alloc/dealloc, ptr+len marshalling, and metadata
// protocol form this package's own plugin ABI contract.
package pluginhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"golang.org/x/sync/errgroup"

	"github.com/logline-motor/motor/internal/logging"
	"github.com/logline-motor/motor/internal/metrics"
	"github.com/logline-motor/motor/internal/observability"
)

// Named failure modes, matched against with errors.Is.
var (
	ErrCompile           = errors.New("wasm compile error")
	ErrInstantiation     = errors.New("wasm instantiation error")
	ErrImport            = errors.New("wasm import error")
	ErrExecution         = errors.New("wasm execution error")
	ErrWasi              = errors.New("wasi error")
	ErrMetadata          = errors.New("metadata error")
	ErrSerialization     = errors.New("serialization error")
	ErrInvalidPluginFile = errors.New("invalid plugin file")
	ErrPluginNotFound    = errors.New("plugin not found")
	ErrHookNotFound      = errors.New("function not found")
)

// Config controls plugin discovery and reload cadence.
type Config struct {
	Enabled         bool
	Directory       string
	RefreshInterval time.Duration
}

// DefaultConfig returns this package's documented defaults; internal/config
// layers file and LOGLINE_* environment overrides on top.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Directory:       "./plugins",
		RefreshInterval: 30 * time.Second,
	}
}

// Metadata is the plugin-declared identity, extracted via get_metadata.
type Metadata struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Author      string   `json:"author"`
	Description string   `json:"description"`
	Hooks       []string `json:"hooks"`
}

// record is the live, installed form of one plugin. At most one record per
// id is "active" (present in Host.records) at a time.
type record struct {
	id       string
	path     string
	metadata Metadata
	module   wazero.CompiledModule
	instance api.Module
	exports  map[string]string // hook name -> exported function name
	inflight sync.WaitGroup

	// callMu serializes calls into the instance: wazero module instances
	// are not safe for concurrent invocation. Held only for the duration
	// of one call.
	callMu sync.Mutex
}

func (r *record) hookFunc(hook string) string {
	return r.exports[hook]
}

// Host discovers, compiles, and invokes WASM plugins under a directory,
// refreshing them as files change.
type Host struct {
	cfg     Config
	runtime wazero.Runtime

	mu      sync.RWMutex
	records map[string]*record

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds a Host, performs an initial directory scan, and starts the
// hot-reload watcher. Callers must call Close when done.
func New(ctx context.Context, cfg Config) (*Host, error) {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultConfig().RefreshInterval
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create plugin dir: %w", err)
	}

	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate wasi: %w", err)
	}

	h := &Host{
		cfg:     cfg,
		runtime: rt,
		records: make(map[string]*record),
		stopCh:  make(chan struct{}),
	}

	if err := h.rescan(ctx); err != nil {
		logging.Op().Warn("initial plugin scan failed", "error", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Op().Warn("plugin hot-reload watcher unavailable, falling back to polling only", "error", err)
	} else if err := watchRecursive(watcher, cfg.Directory); err != nil {
		logging.Op().Warn("plugin hot-reload watch add failed, falling back to polling only", "error", err)
		watcher.Close()
		watcher = nil
	}
	h.watcher = watcher

	h.wg.Add(1)
	go h.reloadLoop(ctx)

	return h, nil
}

// Close drains in-flight invocations, closes every instance, and stops the
// runtime and watcher.
func (h *Host) Close(ctx context.Context) error {
	close(h.stopCh)
	h.wg.Wait()
	if h.watcher != nil {
		h.watcher.Close()
	}

	h.mu.Lock()
	records := make([]*record, 0, len(h.records))
	for _, r := range h.records {
		records = append(records, r)
	}
	h.records = make(map[string]*record)
	h.mu.Unlock()

	for _, r := range records {
		r.inflight.Wait()
		r.instance.Close(ctx)
	}
	return h.runtime.Close(ctx)
}

func (h *Host) reloadLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.RefreshInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if h.watcher != nil {
		events = h.watcher.Events
		errs = h.watcher.Errors
	}

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			if err := h.rescan(ctx); err != nil {
				logging.Op().Warn("plugin rescan failed", "error", err)
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			h.handleFSEvent(ctx, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logging.Op().Warn("plugin watcher error", "error", err)
		}
	}
}

// watchRecursive registers watches on dir and every directory below it;
// fsnotify itself watches a single level at a time.
func watchRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func (h *Host) handleFSEvent(ctx context.Context, ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if h.watcher != nil {
				if err := watchRecursive(h.watcher, ev.Name); err != nil {
					logging.Op().Warn("watch new plugin subdirectory failed", "dir", ev.Name, "error", err)
				}
			}
			return
		}
	}

	if !strings.HasSuffix(ev.Name, ".wasm") {
		return
	}
	id := pluginID(ev.Name)

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if err := h.load(ctx, ev.Name); err != nil {
			logging.Op().Warn("plugin load failed, keeping prior version active", "plugin", id, "error", err)
		}
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		h.drop(ctx, id)
	}
}

func pluginID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// rescan walks the plugin directory tree and reconciles the active record
// table against what's on disk, as the ticker-driven fallback for missed
// fsnotify events.
func (h *Host) rescan(ctx context.Context) error {
	seen := make(map[string]struct{})
	err := filepath.WalkDir(h.cfg.Directory, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".wasm") {
			return nil
		}
		id := pluginID(path)
		seen[id] = struct{}{}

		if h.upToDate(id, path) {
			return nil
		}
		if err := h.load(ctx, path); err != nil {
			logging.Op().Warn("plugin load failed during rescan", "plugin", id, "error", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	var stale []string
	for id := range h.records {
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()
	for _, id := range stale {
		h.drop(ctx, id)
	}
	return nil
}

func (h *Host) upToDate(id, path string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.records[id]
	return ok && r.path == path
}

// load compiles and instantiates the module at path and atomically installs
// it as the active record for its id, draining and closing any prior
// instance once the new one is live.
func (h *Host) load(ctx context.Context, path string) error {
	id := pluginID(path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", id, ErrInvalidPluginFile, err)
	}

	compiled, err := h.runtime.CompileModule(ctx, raw)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", id, ErrCompile, err)
	}

	if err := checkImports(compiled); err != nil {
		compiled.Close(ctx)
		return fmt.Errorf("%s: %w", id, err)
	}

	cfg := wazero.NewModuleConfig().
		WithName(id).
		WithSysWalltime().
		WithSysNanotime().
		WithEnv("LOGLINE_VERSION", runtimeVersion)

	instance, err := h.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		compiled.Close(ctx)
		return fmt.Errorf("%s: %w: %v", id, ErrInstantiation, err)
	}

	meta, exports, err := extractMetadata(ctx, id, instance)
	if err != nil {
		instance.Close(ctx)
		compiled.Close(ctx)
		return err
	}

	r := &record{id: id, path: path, metadata: meta, module: compiled, instance: instance, exports: exports}

	h.mu.Lock()
	prior := h.records[id]
	h.records[id] = r
	h.mu.Unlock()

	if prior != nil {
		go func() {
			prior.inflight.Wait()
			prior.instance.Close(ctx)
			prior.module.Close(ctx)
		}()
	}

	logging.Op().Info("plugin loaded", "plugin", id, "version", meta.Version, "hooks", meta.Hooks)
	return nil
}

func (h *Host) drop(ctx context.Context, id string) {
	h.mu.Lock()
	r, ok := h.records[id]
	if ok {
		delete(h.records, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	go func() {
		r.inflight.Wait()
		r.instance.Close(ctx)
		r.module.Close(ctx)
	}()
	logging.Op().Info("plugin removed", "plugin", id)
}

// runtimeVersion is surfaced to plugins via the LOGLINE_VERSION WASI
// environment variable allow-list entry.
const runtimeVersion = "1"

// allowedImportModules is the only host surface a plugin may import from;
// anything else is rejected at load time before instantiation.
var allowedImportModules = map[string]struct{}{
	"wasi_snapshot_preview1": {},
}

func checkImports(compiled wazero.CompiledModule) error {
	for _, fn := range compiled.ImportedFunctions() {
		mod, name, ok := fn.Import()
		if !ok {
			continue
		}
		if _, allowed := allowedImportModules[mod]; !allowed {
			return fmt.Errorf("%w: disallowed import %s.%s", ErrImport, mod, name)
		}
	}
	return nil
}

func requireExport(instance api.Module, name string) (api.Function, error) {
	fn := instance.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("%w: missing export %q", ErrMetadata, name)
	}
	return fn, nil
}

func extractMetadata(ctx context.Context, id string, instance api.Module) (Metadata, map[string]string, error) {
	getMetadata, err := requireExport(instance, "get_metadata")
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("%s: %w", id, err)
	}
	allocFn, err := requireExport(instance, "alloc")
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("%s: %w", id, err)
	}
	deallocFn := instance.ExportedFunction("dealloc")

	raw, err := callPtrLen(ctx, instance, getMetadata, nil, allocFn, deallocFn)
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("%s: %w: %v", id, ErrMetadata, err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, nil, fmt.Errorf("%s: %w: %v", id, ErrSerialization, err)
	}

	exports := make(map[string]string, len(meta.Hooks))
	for _, hook := range meta.Hooks {
		fnName := "hook_" + hook
		if instance.ExportedFunction(fnName) == nil {
			return Metadata{}, nil, fmt.Errorf("%s: %w: declared hook %q missing export %q", id, ErrMetadata, hook, fnName)
		}
		exports[hook] = fnName
	}
	return meta, exports, nil
}

// callPtrLen implements the alloc/write/call/read/dealloc marshalling
// contract plugins are expected to export. When payload is nil, the call
// takes no arguments (the get_metadata shape); otherwise the payload is
// copied into a freshly allocated region and passed as (ptr, len).
func callPtrLen(ctx context.Context, instance api.Module, fn api.Function, payload []byte, allocFn, deallocFn api.Function) ([]byte, error) {
	mem := instance.Memory()
	if mem == nil {
		return nil, fmt.Errorf("%w: no exported memory", ErrExecution)
	}

	var args []uint64
	var inPtr uint32
	if payload != nil {
		allocated, err := allocFn.Call(ctx, uint64(len(payload)))
		if err != nil {
			return nil, fmt.Errorf("%w: alloc: %v", ErrExecution, err)
		}
		inPtr = api.DecodeU32(allocated[0])
		if !mem.Write(inPtr, payload) {
			return nil, fmt.Errorf("%w: payload write out of bounds", ErrExecution)
		}
		args = []uint64{uint64(inPtr), uint64(len(payload))}
	}

	results, err := fn.Call(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}
	if payload != nil && deallocFn != nil {
		if _, err := deallocFn.Call(ctx, uint64(inPtr), uint64(len(payload))); err != nil {
			logging.Op().Warn("plugin dealloc of input region failed", "error", err)
		}
	}
	if len(results) != 2 {
		return nil, fmt.Errorf("%w: expected (ptr, len) result pair, got %d values", ErrExecution, len(results))
	}

	rptr := api.DecodeU32(results[0])
	rlen := api.DecodeU32(results[1])
	out, ok := mem.Read(rptr, rlen)
	if !ok {
		return nil, fmt.Errorf("%w: response region out of bounds", ErrExecution)
	}
	// Copy out of the module's linear memory before it can be reused.
	buf := make([]byte, len(out))
	copy(buf, out)

	if deallocFn != nil {
		if _, err := deallocFn.Call(ctx, uint64(rptr), uint64(rlen)); err != nil {
			logging.Op().Warn("plugin dealloc of response region failed", "error", err)
		}
	}
	return buf, nil
}

// Invoke calls hook on pluginID with payload, returning its UTF-8 response.
func (h *Host) Invoke(ctx context.Context, pluginID, hook string, payload []byte) (string, error) {
	ctx, span := observability.StartSpan(ctx, "plugin.invoke",
		observability.AttrPluginID.String(pluginID),
		observability.AttrHook.String(hook))
	defer span.End()

	// The in-flight count is taken under the table lock, so a reload or
	// removal that swaps this record out afterwards waits for this call.
	h.mu.RLock()
	r, ok := h.records[pluginID]
	if ok {
		r.inflight.Add(1)
	}
	h.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%s: %w", pluginID, ErrPluginNotFound)
	}
	defer r.inflight.Done()

	fnName := r.hookFunc(hook)
	if fnName == "" {
		return "", fmt.Errorf("%s/%s: %w", pluginID, hook, ErrHookNotFound)
	}
	fn := r.instance.ExportedFunction(fnName)
	if fn == nil {
		return "", fmt.Errorf("%s/%s: %w", pluginID, hook, ErrHookNotFound)
	}

	allocFn := r.instance.ExportedFunction("alloc")
	deallocFn := r.instance.ExportedFunction("dealloc")
	if allocFn == nil {
		return "", fmt.Errorf("%s: %w: missing export %q", pluginID, ErrExecution, "alloc")
	}

	r.callMu.Lock()
	raw, err := callPtrLen(ctx, r.instance, fn, payload, allocFn, deallocFn)
	r.callMu.Unlock()
	metrics.Global().RecordPluginInvocation(pluginID, hook, err == nil)
	if err != nil {
		return "", fmt.Errorf("%s/%s: %w", pluginID, hook, err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%s/%s: %w: response is not valid UTF-8", pluginID, hook, ErrSerialization)
	}
	return string(raw), nil
}

// HookResult is one plugin's response (or failure) to a hook invocation.
type HookResult struct {
	PluginID string
	Response string
	Err      error
}

// PluginsWithHook returns, in lexicographic id order, the ids of every
// active plugin exposing hook.
func (h *Host) PluginsWithHook(hook string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var ids []string
	for id, r := range h.records {
		if r.hookFunc(hook) != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// hookVeto is the shape a pre-hook response may carry to abort dispatch.
type hookVeto struct {
	Veto   bool   `json:"veto"`
	Reason string `json:"reason"`
}

// InvokeHookChain invokes hook on every plugin that declares it, in
// deterministic lexicographic plugin-id order, prefetching concurrently
// (independent calls have no ordering requirement among themselves) but
// applying results and detecting the first veto in that fixed order.
func (h *Host) InvokeHookChain(ctx context.Context, hook string, payload []byte) (results []HookResult, veto bool, reason string) {
	ids := h.PluginsWithHook(hook)
	if len(ids) == 0 {
		return nil, false, ""
	}

	responses := make([]HookResult, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			resp, err := h.Invoke(ctx, id, hook, payload)
			responses[i] = HookResult{PluginID: id, Response: resp, Err: err}
			// Every plugin's outcome is carried on its own HookResult
			// regardless of failure, so one plugin erroring must never
			// cancel its siblings' in-flight calls; errgroup's own
			// first-error cancellation is not engaged here.
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range responses {
		if r.Err != nil {
			continue
		}
		var v hookVeto
		if err := json.Unmarshal([]byte(r.Response), &v); err == nil && v.Veto {
			return responses, true, v.Reason
		}
	}
	return responses, false, ""
}
