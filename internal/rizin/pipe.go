package rizin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Pipe 基于 rzpipe 协议的 Backend 实现
// 以 rizin -q0 启动常驻进程，命令经 stdin 写入，响应以 NUL 结尾从 stdout 读回
type Pipe struct {
	path   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	logger *logrus.Logger

	mu       sync.Mutex
	analyzed bool
	broken   bool
}

// OpenPipe 启动 rizin 进程并等待其就绪
func OpenPipe(rizinPath, filePath string, logger *logrus.Logger) (*Pipe, error) {
	cmd := exec.Command(rizinPath, "-q0", filePath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start rizin process: %w", err)
	}

	p := &Pipe{
		path:   filePath,
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		logger: logger,
	}

	go p.drainStderr(stderr)

	// -q0 模式下 rizin 就绪后输出一个 NUL
	if _, err := p.stdout.ReadString('\x00'); err != nil {
		p.Close()
		return nil, fmt.Errorf("rizin did not become ready: %w", err)
	}

	logger.WithField("file", filePath).Debug("Rizin session opened")

	return p, nil
}

// drainStderr 把 rizin 的 stderr 输出转入日志
func (p *Pipe) drainStderr(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		p.logger.WithFields(logrus.Fields{
			"file":   p.path,
			"stderr": scanner.Text(),
		}).Debug("Rizin stderr")
	}
}

// run 发送一条命令并读取完整响应
// 调用者间通过互斥锁串行化，通道上的请求与响应严格交替
func (p *Pipe) run(ctx context.Context, command string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.broken {
		return "", fmt.Errorf("%w: session is broken", ErrBackendFailure)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if _, err := fmt.Fprintf(p.stdin, "%s\n", command); err != nil {
		p.broken = true
		return "", fmt.Errorf("%w: write %q: %v", ErrBackendFailure, command, err)
	}

	type readResult struct {
		output string
		err    error
	}
	resultChan := make(chan readResult, 1)

	go func() {
		output, err := p.stdout.ReadString('\x00')
		resultChan <- readResult{output: output, err: err}
	}()

	select {
	case result := <-resultChan:
		if result.err != nil {
			p.broken = true
			return "", fmt.Errorf("%w: read %q: %v", ErrBackendFailure, command, result.err)
		}
		return strings.TrimRight(result.output, "\x00\n"), nil

	case <-ctx.Done():
		// 查询本身无法取消，超时后整个会话作废
		p.broken = true
		return "", fmt.Errorf("%w: %v while running %q", ErrBackendFailure, ctx.Err(), command)
	}
}

// runJSON 发送一条命令并把响应解析为 JSON
// 空响应或无法解析的响应是可恢复的单次查询失败
func (p *Pipe) runJSON(ctx context.Context, command string, v any) error {
	output, err := p.run(ctx, command)
	if err != nil {
		return err
	}

	output = strings.TrimSpace(output)
	if output == "" {
		return fmt.Errorf("%w: %s", ErrEmptyResponse, command)
	}

	if err := json.Unmarshal([]byte(output), v); err != nil {
		return fmt.Errorf("malformed response for %q: %w", command, err)
	}

	return nil
}

// Analyze 触发一次完整的控制流分析，幂等
func (p *Pipe) Analyze(ctx context.Context) error {
	p.mu.Lock()
	analyzed := p.analyzed
	p.mu.Unlock()
	if analyzed {
		return nil
	}

	if _, err := p.run(ctx, "aa"); err != nil {
		return err
	}

	p.mu.Lock()
	p.analyzed = true
	p.mu.Unlock()

	p.logger.WithField("file", p.path).Debug("Control flow analysis completed")
	return nil
}

func (p *Pipe) Symbols(ctx context.Context) ([]Symbol, error) {
	var symbols []Symbol
	if err := p.runJSON(ctx, "isj", &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

func (p *Pipe) Classes(ctx context.Context) ([]ClassInfo, error) {
	var classes []ClassInfo
	if err := p.runJSON(ctx, "icj", &classes); err != nil {
		return nil, err
	}
	return classes, nil
}

func (p *Pipe) Strings(ctx context.Context) ([]StringInfo, error) {
	var strs []StringInfo
	if err := p.runJSON(ctx, "izzj", &strs); err != nil {
		return nil, err
	}
	return strs, nil
}

func (p *Pipe) XrefsAt(ctx context.Context, addr uint64) ([]Xref, error) {
	var xrefs []Xref
	if err := p.runJSON(ctx, fmt.Sprintf("axtj @ %d", addr), &xrefs); err != nil {
		return nil, err
	}
	return xrefs, nil
}

func (p *Pipe) FunctionAt(ctx context.Context, addr uint64) (*Function, error) {
	var fn Function
	if err := p.runJSON(ctx, fmt.Sprintf("pdfj @ %d", addr), &fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

func (p *Pipe) SymbolAt(ctx context.Context, addr uint64) ([]Symbol, error) {
	var symbols []Symbol
	if err := p.runJSON(ctx, fmt.Sprintf("is.j @ %d", addr), &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

// Close 关闭通道并终止 rizin 进程
func (p *Pipe) Close() error {
	p.mu.Lock()
	p.broken = true
	p.mu.Unlock()

	if p.stdin != nil {
		p.stdin.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
		p.cmd.Wait()
	}

	p.logger.WithField("file", p.path).Debug("Rizin session closed")
	return nil
}
