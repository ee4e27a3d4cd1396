package apkinfo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/haeter525/quark-engine/internal/archive"
	"github.com/haeter525/quark-engine/internal/manifest"
	"github.com/haeter525/quark-engine/internal/model"
	"github.com/haeter525/quark-engine/internal/retry"
	"github.com/haeter525/quark-engine/internal/rizin"
	"github.com/haeter525/quark-engine/internal/smali"
)

// BackendOpener 打开一个 dex 文件的后端通道，可替换为测试桩
type BackendOpener func(filePath string) (rizin.Backend, error)

// Options RizinApkinfo 的构造参数
type Options struct {
	RizinPath string // rizin 可执行文件路径，空则搜索 PATH
	AaptPath  string // aapt 可执行文件路径，空则搜索 PATH
	TempDir   string // APK 解压目录，空则使用系统临时目录
	Logger    *logrus.Logger

	// OpenBackend 替换默认的 rizin 进程通道，测试用
	OpenBackend BackendOpener

	// ManifestReader 替换默认的 aapt 权限读取实现
	ManifestReader manifest.Reader
}

// session 一个 dex 的分析会话，独占一条后端通道
// 首次使用时才启动后端并执行控制流分析，失败的会话保持失败状态
type session struct {
	dexPath string
	once    sync.Once
	backend rizin.Backend
	err     error
}

// methodTable 一个 dex 的类名到方法列表映射
type methodTable map[string][]*model.MethodObject

// RizinApkinfo 基于 rizin 后端的 Apkinfo 实现
type RizinApkinfo struct {
	apkPath     string
	kind        archive.Kind
	sessions    []*session
	openBackend BackendOpener
	reader      manifest.Reader
	logger      *logrus.Logger
	tmpDir      string

	mu           sync.Mutex
	methodTables map[int]methodTable
	upperCache   map[model.MethodKey]model.MethodSet
	lowerCache   map[model.MethodKey][]CallSite
	allMethods   model.MethodSet
	superclasses map[string]map[string]bool
	subclasses   map[string]map[string]bool
}

// NewRizinApkinfo 识别输入类型、抽取 dex 并准备懒加载的分析会话
// 输入既不是 dex 也不是 APK 时返回 archive.ErrUnsupportedInput
func NewRizinApkinfo(path string, opts Options) (*RizinApkinfo, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	contents, err := archive.Extract(path, opts.TempDir, logger)
	if err != nil {
		return nil, err
	}

	openBackend := opts.OpenBackend
	if openBackend == nil {
		rizinPath, err := rizin.Find(opts.RizinPath)
		if err != nil {
			return nil, err
		}

		openBackend = func(filePath string) (rizin.Backend, error) {
			// 进程偶发启动失败时重试，进行中的查询绝不重试
			return retry.DoWithResult(context.Background(), retrySpawnConfig(logger),
				func(ctx context.Context) (rizin.Backend, error) {
					return rizin.OpenPipe(rizinPath, filePath, logger)
				})
		}
	}

	reader := opts.ManifestReader
	if reader == nil {
		if contents.Kind == archive.KindAPK {
			reader = manifest.NewAaptReader(opts.AaptPath, path, logger)
		} else {
			reader = manifest.NoPermissions{}
		}
	}

	sessions := make([]*session, len(contents.DexPaths))
	for i, dexPath := range contents.DexPaths {
		sessions[i] = &session{dexPath: dexPath}
	}

	return &RizinApkinfo{
		apkPath:      path,
		kind:         contents.Kind,
		sessions:     sessions,
		openBackend:  openBackend,
		reader:       reader,
		logger:       logger,
		tmpDir:       contents.TempDir,
		methodTables: make(map[int]methodTable),
		upperCache:   make(map[model.MethodKey]model.MethodSet),
		lowerCache:   make(map[model.MethodKey][]CallSite),
	}, nil
}

// retrySpawnConfig 后端进程启动的重试配置
func retrySpawnConfig(logger *logrus.Logger) *retry.Config {
	config := retry.DefaultConfig()
	config.MaxAttempts = 2
	config.Logger = logger
	return config
}

// Filename 返回被分析样本的路径
func (a *RizinApkinfo) Filename() string {
	return a.apkPath
}

// DexCount 返回样本包含的 dex 数量
func (a *RizinApkinfo) DexCount() int {
	return len(a.sessions)
}

// Kind 返回输入类型（DEX 或 APK）
func (a *RizinApkinfo) Kind() string {
	return string(a.kind)
}

// backendFor 返回指定 dex 的后端通道，首次调用时启动进程并执行控制流分析
// 并发的首次调用通过 sync.Once 收敛到同一个会话
func (a *RizinApkinfo) backendFor(ctx context.Context, dexIndex int) (rizin.Backend, error) {
	if dexIndex < 0 || dexIndex >= len(a.sessions) {
		return nil, fmt.Errorf("dex index %d out of range", dexIndex)
	}

	s := a.sessions[dexIndex]
	s.once.Do(func() {
		backend, err := a.openBackend(s.dexPath)
		if err != nil {
			s.err = fmt.Errorf("failed to open session for dex %d: %w", dexIndex, err)
			return
		}

		if err := backend.Analyze(ctx); err != nil {
			backend.Close()
			s.err = fmt.Errorf("control flow analysis failed for dex %d: %w", dexIndex, err)
			return
		}

		s.backend = backend
	})

	return s.backend, s.err
}

// methodsClassified 构建指定 dex 的方法表，按索引记忆化
// 单条符号的解析失败只丢弃该条记录，不中断整表构建
func (a *RizinApkinfo) methodsClassified(ctx context.Context, dexIndex int) (methodTable, error) {
	a.mu.Lock()
	table, ok := a.methodTables[dexIndex]
	a.mu.Unlock()
	if ok {
		return table, nil
	}

	backend, err := a.backendFor(ctx, dexIndex)
	if err != nil {
		return nil, err
	}

	symbols, err := backend.Symbols(ctx)
	if err != nil {
		return nil, err
	}

	built := make(methodTable)
	for _, sym := range symbols {
		method, err := parseMethodFromSymbol(sym, dexIndex, a.logger)
		if err != nil {
			a.logSkippedSymbol(sym, err)
			continue
		}
		built[method.ClassName] = append(built[method.ClassName], method)
	}

	// 同类内按身份三元组去重
	for className, methods := range built {
		seen := make(model.MethodSet)
		var unique []*model.MethodObject
		for _, method := range methods {
			if !seen.Contains(method) {
				seen.Add(method)
				unique = append(unique, method)
			}
		}
		built[className] = unique
	}

	// insert-if-absent：并发的首次构建收敛到同一份结果
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.methodTables[dexIndex]; ok {
		return existing, nil
	}
	a.methodTables[dexIndex] = built

	a.logger.WithFields(logrus.Fields{
		"dex_index": dexIndex,
		"classes":   len(built),
	}).Debug("Method table built")

	return built, nil
}

// logSkippedSymbol 按失败原因记录被丢弃的符号
func (a *RizinApkinfo) logSkippedSymbol(sym rizin.Symbol, err error) {
	switch {
	case errors.Is(err, errNotMethod):
		// 数据段、字段等符号，正常情况
	case errors.Is(err, errDamagedFlag):
		a.logger.WithField("flag", sym.FlagName).Warn("Skip the damaged flag")
	default:
		a.logger.WithFields(logrus.Fields{
			"symbol": sym.Name,
			"error":  err.Error(),
		}).Debug("Skip unparsable symbol")
	}
}

// methodByAddress 把地址解析为其所属方法
// 地址只在产生它的 dex 内解析，未命中返回 nil
// 单次查询失败（空响应、响应损坏）视为未命中，仅会话失效才向上传播
func (a *RizinApkinfo) methodByAddress(ctx context.Context, dexIndex int, addr uint64) (*model.MethodObject, error) {
	backend, err := a.backendFor(ctx, dexIndex)
	if err != nil {
		return nil, err
	}

	symbols, err := backend.SymbolAt(ctx, addr)
	if err != nil {
		if errors.Is(err, rizin.ErrBackendFailure) {
			return nil, err
		}
		a.logger.WithError(err).WithField("address", addr).Debug("Cannot resolve symbol at address")
		return nil, nil
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	method, err := parseMethodFromSymbol(symbols[0], dexIndex, a.logger)
	if err != nil {
		return nil, nil
	}
	return method, nil
}

// Permissions 返回样本声明的权限
func (a *RizinApkinfo) Permissions(ctx context.Context) ([]string, error) {
	return a.reader.Permissions(ctx)
}

// AllMethods 返回全部 dex 的方法合集
// 单个 dex 的会话失败只丢弃该 dex 的结果，其余 dex 仍然可用
func (a *RizinApkinfo) AllMethods(ctx context.Context) (model.MethodSet, error) {
	a.mu.Lock()
	cached := a.allMethods
	a.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	methods := make(model.MethodSet)
	var failures int
	for dexIndex := range a.sessions {
		table, err := a.methodsClassified(ctx, dexIndex)
		if err != nil {
			failures++
			a.logger.WithError(err).WithField("dex_index", dexIndex).
				Error("Failed to build method table, dropping this dex")
			continue
		}
		for _, bucket := range table {
			for _, method := range bucket {
				methods.Add(method)
			}
		}
	}

	if failures == len(a.sessions) && len(a.sessions) > 0 {
		return nil, fmt.Errorf("all %d dex sessions failed", len(a.sessions))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.allMethods == nil {
		a.allMethods = methods
	}
	return a.allMethods, nil
}

// AndroidAPIs 返回样本使用的 Android 平台 API
func (a *RizinApkinfo) AndroidAPIs(ctx context.Context) (model.MethodSet, error) {
	all, err := a.AllMethods(ctx)
	if err != nil {
		return nil, err
	}

	apis := make(model.MethodSet)
	for _, method := range all {
		if method.IsAndroidAPI() && method.Cache != nil && method.Cache.IsImported {
			apis.Add(method)
		}
	}
	return apis, nil
}

// CustomMethods 返回样本自定义的方法
func (a *RizinApkinfo) CustomMethods(ctx context.Context) (model.MethodSet, error) {
	all, err := a.AllMethods(ctx)
	if err != nil {
		return nil, err
	}

	custom := make(model.MethodSet)
	for _, method := range all {
		if method.Cache != nil && !method.Cache.IsImported {
			custom.Add(method)
		}
	}
	return custom, nil
}

// FindMethod 按正则模式查找方法，空模式匹配任意值，未找到返回 nil
func (a *RizinApkinfo) FindMethod(ctx context.Context, classPattern, namePattern, descriptorPattern string) (*model.MethodObject, error) {
	classRegex, err := compilePattern(classPattern)
	if err != nil {
		return nil, err
	}
	nameRegex, err := compilePattern(namePattern)
	if err != nil {
		return nil, err
	}
	descRegex, err := compilePattern(descriptorPattern)
	if err != nil {
		return nil, err
	}

	for dexIndex := range a.sessions {
		table, err := a.methodsClassified(ctx, dexIndex)
		if err != nil {
			a.logger.WithError(err).WithField("dex_index", dexIndex).
				Error("Failed to build method table, dropping this dex")
			continue
		}

		// 按类名排序保证查找结果稳定
		classNames := make([]string, 0, len(table))
		for className := range table {
			classNames = append(classNames, className)
		}
		sort.Strings(classNames)

		for _, className := range classNames {
			if classRegex != nil && !classRegex.MatchString(className) {
				continue
			}
			for _, method := range table[className] {
				if nameRegex != nil && !nameRegex.MatchString(method.Name) {
					continue
				}
				if descRegex != nil && !descRegex.MatchString(method.Descriptor) {
					continue
				}
				return method, nil
			}
		}
	}

	return nil, nil
}

// compilePattern 编译查找模式，空模式返回 nil 表示匹配任意值
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid search pattern %q: %w", pattern, err)
	}
	return regex, nil
}

// Upperfunc 返回调用指定方法的方法集合，按方法身份记忆化
// 无法解析的调用方地址记录日志后丢弃
func (a *RizinApkinfo) Upperfunc(ctx context.Context, method *model.MethodObject) (model.MethodSet, error) {
	if method.Cache == nil {
		return nil, fmt.Errorf("method %s carries no backend cache", method.FullName())
	}

	a.mu.Lock()
	cached, ok := a.upperCache[method.Key()]
	a.mu.Unlock()
	if ok {
		return cached, nil
	}

	backend, err := a.backendFor(ctx, method.Cache.DexIndex)
	if err != nil {
		return nil, err
	}

	xrefs, err := backend.XrefsAt(ctx, method.Cache.Address)
	if err != nil {
		return nil, err
	}

	callers := make(model.MethodSet)
	for _, xref := range xrefs {
		if xref.Type != "CALL" {
			continue
		}

		caller, err := a.methodByAddress(ctx, method.Cache.DexIndex, xref.From)
		if err != nil {
			return nil, err
		}
		if caller == nil {
			a.logger.WithField("address", xref.From).Debug("Cannot identify function at address")
			continue
		}
		callers.Add(caller)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.upperCache[method.Key()]; ok {
		return existing, nil
	}
	a.upperCache[method.Key()] = callers
	return callers, nil
}

// Lowerfunc 返回指定方法调用的方法及调用点偏移
// 同一被调方法的多个调用点全部保留
func (a *RizinApkinfo) Lowerfunc(ctx context.Context, method *model.MethodObject) ([]CallSite, error) {
	if method.Cache == nil {
		return nil, fmt.Errorf("method %s carries no backend cache", method.FullName())
	}

	a.mu.Lock()
	cached, ok := a.lowerCache[method.Key()]
	a.mu.Unlock()
	if ok {
		return cached, nil
	}

	backend, err := a.backendFor(ctx, method.Cache.DexIndex)
	if err != nil {
		return nil, err
	}

	fn, err := backend.FunctionAt(ctx, method.Cache.Address)
	if err != nil {
		return nil, err
	}

	callSites := make([]CallSite, 0)
	for _, op := range fn.Ops {
		for _, xref := range op.XrefsFrom {
			if xref.Type != "CALL" {
				continue
			}

			callee, err := a.methodByAddress(ctx, method.Cache.DexIndex, xref.Addr)
			if err != nil {
				return nil, err
			}
			if callee == nil {
				a.logger.WithField("address", xref.Addr).Debug("Cannot identify function at address")
				continue
			}

			offset := int64(op.Offset) - int64(method.Cache.Address)
			callSites = append(callSites, CallSite{Method: callee, Offset: offset})
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.lowerCache[method.Key()]; ok {
		return existing, nil
	}
	a.lowerCache[method.Key()] = callSites
	return callSites, nil
}

// GetMethodBytecode 返回指定方法的完整指令流
// 每次调用重新反汇编，单行解析失败只丢弃该行
func (a *RizinApkinfo) GetMethodBytecode(ctx context.Context, method *model.MethodObject) ([]*model.BytecodeObject, error) {
	if method.Cache == nil || method.Cache.IsImported {
		return nil, nil
	}

	backend, err := a.backendFor(ctx, method.Cache.DexIndex)
	if err != nil {
		return nil, err
	}

	fn, err := backend.FunctionAt(ctx, method.Cache.Address)
	if err != nil {
		return nil, err
	}

	instructions := make([]*model.BytecodeObject, 0, len(fn.Ops))
	for _, op := range fn.Ops {
		instruction, err := smali.ParseInstruction(op.Disasm)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"method": method.FullName(),
				"disasm": op.Disasm,
			}).Warn("Skip unparsable instruction")
			continue
		}
		instructions = append(instructions, instruction)
	}

	return instructions, nil
}

// GetStrings 返回全部 dex 的字符串常量合集
func (a *RizinApkinfo) GetStrings(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var result []string
	var failures int

	for dexIndex := range a.sessions {
		backend, err := a.backendFor(ctx, dexIndex)
		if err != nil {
			failures++
			a.logger.WithError(err).WithField("dex_index", dexIndex).
				Error("Failed to open session, dropping this dex")
			continue
		}

		strs, err := backend.Strings(ctx)
		if err != nil {
			failures++
			a.logger.WithError(err).WithField("dex_index", dexIndex).
				Error("Failed to list strings, dropping this dex")
			continue
		}

		for _, s := range strs {
			if !seen[s.String] {
				seen[s.String] = true
				result = append(result, s.String)
			}
		}
	}

	if failures == len(a.sessions) && len(a.sessions) > 0 {
		return nil, fmt.Errorf("all %d dex sessions failed", len(a.sessions))
	}

	sort.Strings(result)
	return result, nil
}

// GetWrapperSmali 扫描 parent 的指令流，提取调用 first 与 second 的证据
func (a *RizinApkinfo) GetWrapperSmali(ctx context.Context, parent, first, second *model.MethodObject) (*WrapperEvidence, error) {
	evidence := &WrapperEvidence{}

	if parent.Cache == nil || parent.Cache.IsImported {
		return evidence, nil
	}

	firstPattern := invokePattern(first)
	secondPattern := invokePattern(second)

	backend, err := a.backendFor(ctx, parent.Cache.DexIndex)
	if err != nil {
		return nil, err
	}

	fn, err := backend.FunctionAt(ctx, parent.Cache.Address)
	if err != nil {
		return nil, err
	}

	for _, op := range fn.Ops {
		if !strings.HasPrefix(op.Disasm, "invoke") {
			continue
		}

		// 解析后的 parameter 使用规范的 class->name(descriptor) 形式
		instruction, err := smali.ParseInstruction(op.Disasm)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"method": parent.FullName(),
				"disasm": op.Disasm,
			}).Warn("Skip unparsable instruction")
			continue
		}

		if strings.Contains(instruction.Parameter, firstPattern) {
			evidence.First = instruction.Flatten()
			evidence.FirstHex = formatHexBytes(op.Bytes)
		}
		if strings.Contains(instruction.Parameter, secondPattern) {
			evidence.Second = instruction.Flatten()
			evidence.SecondHex = formatHexBytes(op.Bytes)
		}
	}

	return evidence, nil
}

// invokePattern 构造 invoke 指令中方法引用的匹配文本
// 形如 Lcom/example/Cls->method(Ljava/lang/String;)V，类描述符不含结尾分号
func invokePattern(method *model.MethodObject) string {
	return fmt.Sprintf("%s->%s%s",
		strings.TrimSuffix(method.ClassName, ";"), method.Name, method.Descriptor)
}

// formatHexBytes 把指令的原始编码改写为空格分隔的十六进制字节对
func formatHexBytes(raw string) string {
	var pairs []string
	for i := 0; i+2 <= len(raw); i += 2 {
		pairs = append(pairs, raw[i:i+2])
	}
	return strings.Join(pairs, " ")
}

// classHierarchy 构建全部 dex 的类继承关系，构建一次后缓存
func (a *RizinApkinfo) classHierarchy(ctx context.Context) (map[string]map[string]bool, map[string]map[string]bool, error) {
	a.mu.Lock()
	superclasses, subclasses := a.superclasses, a.subclasses
	a.mu.Unlock()
	if superclasses != nil {
		return superclasses, subclasses, nil
	}

	superclasses = make(map[string]map[string]bool)
	subclasses = make(map[string]map[string]bool)
	var failures int

	for dexIndex := range a.sessions {
		backend, err := a.backendFor(ctx, dexIndex)
		if err != nil {
			failures++
			a.logger.WithError(err).WithField("dex_index", dexIndex).
				Error("Failed to open session, dropping this dex")
			continue
		}

		classes, err := backend.Classes(ctx)
		if err != nil {
			failures++
			a.logger.WithError(err).WithField("dex_index", dexIndex).
				Error("Failed to list classes, dropping this dex")
			continue
		}

		for _, class := range classes {
			if superclasses[class.ClassName] == nil {
				superclasses[class.ClassName] = make(map[string]bool)
			}
			superclasses[class.ClassName][class.Super] = true

			if subclasses[class.Super] == nil {
				subclasses[class.Super] = make(map[string]bool)
			}
			subclasses[class.Super][class.ClassName] = true
		}
	}

	if failures == len(a.sessions) && len(a.sessions) > 0 {
		return nil, nil, fmt.Errorf("all %d dex sessions failed", len(a.sessions))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.superclasses == nil {
		a.superclasses = superclasses
		a.subclasses = subclasses
	}
	return a.superclasses, a.subclasses, nil
}

// SuperclassesOf 返回指定类的父类集合
func (a *RizinApkinfo) SuperclassesOf(ctx context.Context, className string) ([]string, error) {
	superclasses, _, err := a.classHierarchy(ctx)
	if err != nil {
		return nil, err
	}
	return sortedKeys(superclasses[className]), nil
}

// SubclassesOf 返回指定类的子类集合
func (a *RizinApkinfo) SubclassesOf(ctx context.Context, className string) ([]string, error) {
	_, subclasses, err := a.classHierarchy(ctx)
	if err != nil {
		return nil, err
	}
	return sortedKeys(subclasses[className]), nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Close 关闭全部后端会话并清理临时目录
func (a *RizinApkinfo) Close() error {
	for _, s := range a.sessions {
		if s.backend != nil {
			s.backend.Close()
		}
	}

	if a.tmpDir != "" {
		if err := os.RemoveAll(a.tmpDir); err != nil {
			a.logger.WithError(err).Warn("Failed to remove temp dir")
		}
	}

	return nil
}
