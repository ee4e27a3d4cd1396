// Package smali 把 rizin pdfj 输出的单行 smali 反汇编解析为结构化指令
package smali

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/haeter525/quark-engine/internal/model"
)

// ParseInstruction 解析一行 smali 指令
// 空行或寄存器无法解析时返回错误
func ParseInstruction(line string) (*model.BytecodeObject, error) {
	if line == "" {
		return nil, fmt.Errorf("instruction cannot be empty")
	}

	mnemonic, rest, found := strings.Cut(line, " ")
	if !found {
		return &model.BytecodeObject{Mnemonic: mnemonic}, nil
	}

	// 操作数按 { } , 切分
	rawArgs := strings.FieldsFunc(rest, func(r rune) bool {
		return r == '{' || r == '}' || r == ','
	})
	args := make([]string, 0, len(rawArgs))
	for _, arg := range rawArgs {
		arg = strings.TrimSpace(arg)
		if arg != "" {
			args = append(args, arg)
		}
	}

	// 末尾不以寄存器前缀开头的 token 是参数
	var parameter string
	if len(args) > 0 && !strings.HasPrefix(args[len(args)-1], "v") {
		parameter = args[len(args)-1]
		args = args[:len(args)-1]

		// invoke 类指令把类与方法间的第一个 . 改写为 ->
		if strings.HasPrefix(mnemonic, "invoke") {
			parameter = strings.Replace(parameter, ".", "->", 1)
		}
	}

	var registers []string

	switch {
	case len(args) == 1 && (strings.Contains(args[0], ":") || strings.Contains(args[0], "..")):
		// 区间寄存器表达式，如 v0..v5 或 v0:v5
		bounds, err := parseRangeBounds(args[0])
		if err != nil {
			return nil, err
		}
		for index := bounds[0]; index <= bounds[1]; index++ {
			registers = append(registers, fmt.Sprintf("v%d", index))
		}

	case len(args) > 0:
		for _, arg := range args {
			index, err := strconv.Atoi(strings.TrimPrefix(arg, "v"))
			if err != nil {
				return nil, fmt.Errorf("cannot parse bytecode, unknown smali %q", line)
			}
			registers = append(registers, fmt.Sprintf("v%d", index))
		}
	}

	return &model.BytecodeObject{
		Mnemonic:  mnemonic,
		Registers: registers,
		Parameter: parameter,
	}, nil
}

// parseRangeBounds 解析区间表达式的两端寄存器序号
func parseRangeBounds(expr string) ([2]int, error) {
	parts := strings.FieldsFunc(expr, func(r rune) bool {
		return r == ':' || r == '.'
	})

	var bounds [2]int
	if len(parts) != 2 {
		return bounds, fmt.Errorf("cannot parse register range %q", expr)
	}

	for i, part := range parts {
		index, err := strconv.Atoi(strings.TrimPrefix(part, "v"))
		if err != nil {
			return bounds, fmt.Errorf("cannot parse register range %q", expr)
		}
		bounds[i] = index
	}

	return bounds, nil
}
