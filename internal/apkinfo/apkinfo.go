// Package apkinfo 把 rizin 后端的输出统一为与后端无关的方法模型与调用图
// 规则引擎只依赖本包的 Apkinfo 契约，不感知具体后端
package apkinfo

import (
	"context"

	"github.com/haeter525/quark-engine/internal/model"
)

// CallSite 一次调用点：被调用方法与相对父方法起始地址的偏移
// 同一被调方法在不同偏移处的调用是不同的证据，因此不去重
type CallSite struct {
	Method *model.MethodObject `json:"method"`
	Offset int64               `json:"offset"`
}

// WrapperEvidence 包装方法调用两个目标 API 的字节码证据
// 四个字段相互独立，未命中的目标对应字段为空
type WrapperEvidence struct {
	First     []string `json:"first,omitempty"`
	FirstHex  string   `json:"first_hex,omitempty"`
	Second    []string `json:"second,omitempty"`
	SecondHex string   `json:"second_hex,omitempty"`
}

// Apkinfo 提供给规则引擎的统一查询契约
type Apkinfo interface {
	// Filename 返回被分析样本的路径
	Filename() string

	// Permissions 返回样本声明的权限
	Permissions(ctx context.Context) ([]string, error)

	// AndroidAPIs 返回样本使用的 Android 平台 API（导入符号）
	AndroidAPIs(ctx context.Context) (model.MethodSet, error)

	// CustomMethods 返回样本自定义的方法（非导入符号）
	CustomMethods(ctx context.Context) (model.MethodSet, error)

	// AllMethods 返回样本中的全部方法
	AllMethods(ctx context.Context) (model.MethodSet, error)

	// FindMethod 按类名、方法名、描述符的正则模式查找方法，空模式匹配任意值
	// 未找到时返回 nil
	FindMethod(ctx context.Context, classPattern, namePattern, descriptorPattern string) (*model.MethodObject, error)

	// Upperfunc 返回调用指定方法的方法集合
	Upperfunc(ctx context.Context, method *model.MethodObject) (model.MethodSet, error)

	// Lowerfunc 返回指定方法调用的方法及调用点偏移，按指令顺序排列
	Lowerfunc(ctx context.Context, method *model.MethodObject) ([]CallSite, error)

	// GetMethodBytecode 返回指定方法的完整指令流
	// 每次调用重新向后端查询，序列有限且可重放
	GetMethodBytecode(ctx context.Context, method *model.MethodObject) ([]*model.BytecodeObject, error)

	// GetStrings 返回样本中的全部字符串常量
	GetStrings(ctx context.Context) ([]string, error)

	// GetWrapperSmali 扫描 parent 的指令流，提取调用 first 与 second 的字节码证据
	GetWrapperSmali(ctx context.Context, parent, first, second *model.MethodObject) (*WrapperEvidence, error)

	// SuperclassesOf 返回指定类的父类集合
	SuperclassesOf(ctx context.Context, className string) ([]string, error)

	// SubclassesOf 返回指定类的子类集合
	SubclassesOf(ctx context.Context, className string) ([]string, error)

	// Close 关闭全部后端会话并清理临时文件
	Close() error
}
