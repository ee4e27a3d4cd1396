package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConvertTypeSignature 测试 Java 源码类型到 JVM 类型签名的转换
func TestConvertTypeSignature(t *testing.T) {
	tests := []struct {
		name     string
		rawType  string
		expected string
	}{
		{"Void", "void", "V"},
		{"Boolean", "boolean", "Z"},
		{"Byte", "byte", "B"},
		{"Char", "char", "C"},
		{"Short", "short", "S"},
		{"Int", "int", "I"},
		{"Long", "long", "J"},
		{"Float", "float", "F"},
		{"Double", "double", "D"},
		{"Unqualified Class", "String", "Ljava/lang/String;"},
		{"Array", "String[]", "[Ljava/lang/String;"},
		{"Nested Array", "String[][]", "[[Ljava/lang/String;"},
		{"Prefixed Array", "[String[]", "[[Ljava/lang/String;"},
		{"Primitive Array", "int[]", "[I"},
		{"Variadic", "String...", "[Ljava/lang/String;"},
		{"Variadic Primitive", "int...", "[I"},
		{
			"Qualified Class",
			"android.accessibilityservice.AccessibilityServiceInfo",
			"Landroid/accessibilityservice/AccessibilityServiceInfo;",
		},
		{
			"Qualified Array",
			"[android.accessibilityservice.AccessibilityServiceInfo",
			"[Landroid/accessibilityservice/AccessibilityServiceInfo;",
		},
		{
			"Qualified Nested Array",
			"[[android.accessibilityservice.AccessibilityServiceInfo",
			"[[Landroid/accessibilityservice/AccessibilityServiceInfo;",
		},
		{
			"Inner Class",
			"android.support.v4.app.Fragment_InstantiationException",
			"Landroid/support/v4/app/Fragment$InstantiationException;",
		},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ConvertTypeSignature(tt.rawType))
		})
	}
}

// TestEscapeRizinChars 测试 rizin 特殊字符的转义
func TestEscapeRizinChars(t *testing.T) {
	assert.Equal(t, "_init_", EscapeRizinChars("<init>"))
	assert.Equal(t, "_clinit_", EscapeRizinChars("<clinit>"))
	assert.Equal(t, "Outer_Inner", EscapeRizinChars("Outer$Inner"))
	assert.Equal(t, "plainName", EscapeRizinChars("plainName"))
}

// TestToAndroguardFormat 测试方法描述符的规整
func TestToAndroguardFormat(t *testing.T) {
	tests := []struct {
		name     string
		desc     string
		expected string
	}{
		{"No Arguments", "()V", "()V"},
		{
			"Single Class Argument",
			"(Landroid/accessibilityservice/AccessibilityServiceInfo;)I",
			"(Landroid/accessibilityservice/AccessibilityServiceInfo;)I",
		},
		{
			"Mixed Arguments",
			"(Ljava/lang/String;I)V",
			"(Ljava/lang/String; I)V",
		},
		{
			"Multiple Class Arguments",
			"(Landroid/os/Handler;Ljava/lang/String;Ljava/lang/String;)V",
			"(Landroid/os/Handler; Ljava/lang/String; Ljava/lang/String;)V",
		},
		{
			"Array Argument",
			"([Ljava/lang/String;)V",
			"([Ljava/lang/String;)V",
		},
		{
			"Primitive Arrays",
			"([I[J)V",
			"([I [J)V",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := ToAndroguardFormat(tt.desc)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

// TestToAndroguardFormat_Malformed 测试缺少括号的描述符
func TestToAndroguardFormat_Malformed(t *testing.T) {
	for _, desc := range []string{"", "V", "(V", ")V", "Ljava/lang/String;"} {
		_, err := ToAndroguardFormat(desc)
		assert.ErrorIs(t, err, ErrMalformedDescriptor, "descriptor %q", desc)
	}
}
