// Package rizin 封装与 rizin 反汇编后端的命令通道
// 每个通道独占一个 rizin 进程，命令与响应在单一有序流上交替进行
package rizin

import (
	"context"
	"errors"
)

// ErrBackendFailure 后端通道已失效（进程崩溃、管道关闭或响应无法解析）
// 持有者必须丢弃会话并重建，不允许原地重试
var ErrBackendFailure = errors.New("rizin backend failure")

// ErrEmptyResponse 后端对本次查询返回了空响应，仅影响本次查询
var ErrEmptyResponse = errors.New("rizin returned an empty response")

// Symbol isj / is.j 输出的一条符号记录
type Symbol struct {
	Name       string `json:"name"`
	RealName   string `json:"realname"`
	FlagName   string `json:"flagname"`
	Type       string `json:"type"`
	VAddr      uint64 `json:"vaddr"`
	PAddr      uint64 `json:"paddr"`
	IsImported bool   `json:"is_imported"`
}

// ClassInfo icj 输出的一条类继承记录
type ClassInfo struct {
	ClassName string `json:"classname"`
	Super     string `json:"super"`
}

// StringInfo izzj 输出的一条字符串常量记录
type StringInfo struct {
	String string `json:"string"`
	VAddr  uint64 `json:"vaddr"`
	Size   int    `json:"size"`
	Type   string `json:"type"`
}

// Xref axtj / pdfj 输出的一条交叉引用记录
// axtj 给出 from / to，pdfj 的 xrefs_from 给出 addr（引用目标）
type Xref struct {
	Type string `json:"type"`
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
	Addr uint64 `json:"addr"`
}

// Op pdfj 输出的一条指令记录
type Op struct {
	Offset    uint64 `json:"offset"`
	Disasm    string `json:"disasm"`
	Bytes     string `json:"bytes"`
	Type      string `json:"type"`
	XrefsFrom []Xref `json:"xrefs_from"`
}

// Function pdfj 输出的完整函数反汇编
type Function struct {
	Name string `json:"name"`
	Addr uint64 `json:"addr"`
	Ops  []Op   `json:"ops"`
}

// Backend 反汇编后端的能力集合
// 所有实现共享同一语义：Analyze 必须在任何地址查询之前完成且只执行一次
type Backend interface {
	// Analyze 触发一次完整的控制流分析（命令 aa）
	Analyze(ctx context.Context) error

	// Symbols 列出全部符号（命令 isj）
	Symbols(ctx context.Context) ([]Symbol, error)

	// Classes 列出全部类及其父类（命令 icj）
	Classes(ctx context.Context) ([]ClassInfo, error)

	// Strings 列出全部字符串常量（命令 izzj）
	Strings(ctx context.Context) ([]StringInfo, error)

	// XrefsAt 查询指向指定地址的交叉引用（命令 axtj @ addr）
	XrefsAt(ctx context.Context, addr uint64) ([]Xref, error)

	// FunctionAt 反汇编包含指定地址的函数（命令 pdfj @ addr）
	FunctionAt(ctx context.Context, addr uint64) (*Function, error)

	// SymbolAt 解析指定地址处的符号（命令 is.j @ addr）
	SymbolAt(ctx context.Context, addr uint64) ([]Symbol, error)

	// Close 关闭通道并终止后端进程
	Close() error
}
