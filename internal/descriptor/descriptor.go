// Package descriptor 负责 Java 源码类型与 JVM 类型签名之间的转换
package descriptor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// primitiveTypes Java 基本类型到 JVM 类型签名的映射
var primitiveTypes = map[string]string{
	"void":    "V",
	"boolean": "Z",
	"byte":    "B",
	"char":    "C",
	"short":   "S",
	"int":     "I",
	"long":    "J",
	"float":   "F",
	"double":  "D",
}

// ErrMalformedDescriptor 描述符缺少配对的括号
var ErrMalformedDescriptor = errors.New("malformed descriptor")

// ConvertTypeSignature 把 Java 语言格式的类型转换为 JVM 类型签名
// 例如 int -> I，String... -> [Ljava/lang/String;
// 该函数对所有输入都有定义，空串原样返回
func ConvertTypeSignature(rawType string) string {
	if rawType == "" {
		return rawType
	}

	if strings.HasSuffix(rawType, "[]") {
		return "[" + ConvertTypeSignature(rawType[:len(rawType)-2])
	}

	if strings.HasPrefix(rawType, "[") {
		return "[" + ConvertTypeSignature(rawType[1:])
	}

	// 可变参数等价于数组
	if index := strings.Index(rawType, "..."); index >= 0 {
		return "[" + ConvertTypeSignature(rawType[:index])
	}

	if signature, ok := primitiveTypes[rawType]; ok {
		return signature
	}

	if strings.ContainsAny(rawType, "._") {
		converted := strings.ReplaceAll(rawType, ".", "/")
		converted = strings.ReplaceAll(converted, "_", "$")
		return "L" + converted + ";"
	}

	// 无限定名的类型默认属于 java.lang
	return "Ljava/lang/" + rawType + ";"
}

// rizinEscapeChars rizin flag 名称中有特殊含义的字符
const rizinEscapeChars = "<>$"

// EscapeRizinChars 把 rizin 中有特殊含义的字符替换为 _
func EscapeRizinChars(raw string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(rizinEscapeChars, r) {
			return '_'
		}
		return r
	}, raw)
}

var argTokenPattern = regexp.MustCompile(`L.+?;|[ZBCSIJFD]|\[`)

// ToAndroguardFormat 把方法描述符规整为 androguard 风格（参数之间以空格分隔）
// 描述符缺少括号时返回 ErrMalformedDescriptor
func ToAndroguardFormat(desc string) (string, error) {
	if !strings.Contains(desc, "(") || !strings.Contains(desc, ")") {
		return "", fmt.Errorf("%w: %s", ErrMalformedDescriptor, desc)
	}

	delimiter := strings.Index(desc, ")")
	argStr := desc[:delimiter]

	args := argTokenPattern.FindAllString(argStr, -1)

	normalized := "(" + strings.Join(args, " ") + desc[delimiter:]
	normalized = strings.ReplaceAll(normalized, "[ ", "[")

	return normalized, nil
}
