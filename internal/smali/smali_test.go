package smali

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseInstruction_Invoke 测试 invoke 指令的解析与方法引用改写
func TestParseInstruction_Invoke(t *testing.T) {
	line := "invoke-virtual {v1, v2}, Ljava/lang/String.concat(Ljava/lang/String;)Ljava/lang/String;"

	instruction, err := ParseInstruction(line)
	require.NoError(t, err)

	assert.Equal(t, "invoke-virtual", instruction.Mnemonic)
	assert.Equal(t, []string{"v1", "v2"}, instruction.Registers)
	assert.Equal(t,
		"Ljava/lang/String->concat(Ljava/lang/String;)Ljava/lang/String;",
		instruction.Parameter)
}

// TestParseInstruction_RangedRegisters 测试区间寄存器表达式的展开
func TestParseInstruction_RangedRegisters(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected []string
	}{
		{
			"Dotted Range",
			"invoke-static {v0..v5}, Lcom/example/Util.pack(IIIIII)V",
			[]string{"v0", "v1", "v2", "v3", "v4", "v5"},
		},
		{
			"Colon Range",
			"invoke-virtual/range {v2:v4}, Lcom/example/Util.join(III)V",
			[]string{"v2", "v3", "v4"},
		},
		{
			"Single Element Range",
			"invoke-direct {v3..v3}, Lcom/example/Obj.init(I)V",
			[]string{"v3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instruction, err := ParseInstruction(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, instruction.Registers)
		})
	}
}

// TestParseInstruction_NoOperand 测试无操作数指令
func TestParseInstruction_NoOperand(t *testing.T) {
	instruction, err := ParseInstruction("return-void")
	require.NoError(t, err)

	assert.Equal(t, "return-void", instruction.Mnemonic)
	assert.Empty(t, instruction.Registers)
	assert.Empty(t, instruction.Parameter)
}

// TestParseInstruction_RegistersOnly 测试只有寄存器的指令
func TestParseInstruction_RegistersOnly(t *testing.T) {
	instruction, err := ParseInstruction("move v1, v2")
	require.NoError(t, err)

	assert.Equal(t, "move", instruction.Mnemonic)
	assert.Equal(t, []string{"v1", "v2"}, instruction.Registers)
	assert.Empty(t, instruction.Parameter)
}

// TestParseInstruction_LiteralParameter 测试字面量参数
func TestParseInstruction_LiteralParameter(t *testing.T) {
	instruction, err := ParseInstruction("const/4 v0, 1")
	require.NoError(t, err)

	assert.Equal(t, "const/4", instruction.Mnemonic)
	assert.Equal(t, []string{"v0"}, instruction.Registers)
	assert.Equal(t, "1", instruction.Parameter)
}

// TestParseInstruction_Errors 测试无法解析的输入
func TestParseInstruction_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"Empty Line", ""},
		{"Unknown Register", "add-int v1, vx, v3"},
		{"Broken Range", "invoke-static {v0..}, Lcom/example/Util.pack(I)V"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInstruction(tt.line)
			assert.Error(t, err)
		})
	}
}

// TestParseInstruction_Flatten 测试指令展开为证据列表
func TestParseInstruction_Flatten(t *testing.T) {
	instruction, err := ParseInstruction(
		"invoke-direct {v0}, Ljava/lang/Object.<init>()V")
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"invoke-direct", "v0", "Ljava/lang/Object-><init>()V"},
		instruction.Flatten())
}
